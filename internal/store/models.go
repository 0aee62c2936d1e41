package store

import "time"

// Upload types recorded on a version.
const (
	UploadInitial  = "initial"
	UploadUpdate   = "update"
	UploadRevision = "revision"
	UploadRollback = "rollback"
)

// DocumentVersion is one immutable content snapshot of a document.
// (DocumentID, VersionNumber) is unique; VersionNumber starts at 1 and is
// contiguous per document. Exactly one version per document is current.
type DocumentVersion struct {
	ID            int64
	DocumentID    int64
	VersionNumber int
	Path          string
	Content       string
	ContentHash   string
	FileSize      int64
	MimeType      string
	UploadType    string
	UploadedBy    string
	UploadReason  string
	IsCurrent     bool
	CreatedAt     time.Time
}

// DocumentChange is one persisted diff segment between two versions of the
// same document. ComplianceImpact holds the raw JSON produced by analysis.
type DocumentChange struct {
	ID               int64
	FromVersionID    int64
	ToVersionID      int64
	ChangeType       string
	OldContent       string
	NewContent       string
	LineStart        int
	LineEnd          int
	ConfidenceScore  float64
	ChangeSummary    string
	ImpactAssessment string
	ComplianceImpact []byte
	CreatedAt        time.Time
}

// VersionSummary is a version row without its content, plus counts joined
// from the change, comment and tag tables. Used for history listings.
type VersionSummary struct {
	ID            int64
	DocumentID    int64
	VersionNumber int
	Path          string
	ContentHash   string
	FileSize      int64
	MimeType      string
	UploadType    string
	UploadedBy    string
	UploadReason  string
	IsCurrent     bool
	CreatedAt     time.Time
	ChangeCount   int
	CommentCount  int
	TagCount      int
}

// VersionComment is a free-text annotation on a version, optionally tied to
// a specific change record.
type VersionComment struct {
	ID          int64
	VersionID   int64
	ChangeID    *int64
	Commenter   string
	CommentType string
	CommentText string
	CreatedAt   time.Time
}

// VersionTag is a key-value tag on a version.
type VersionTag struct {
	ID        int64
	VersionID int64
	TagName   string
	TagValue  string
	TagType   string
	CreatedBy string
	CreatedAt time.Time
}

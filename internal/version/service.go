// Package version is the transactional coordinator over the version store
// and the change analyzer. It enforces version numbering and duplicate
// detection, and exposes rollback, comparison and temporal queries.
package version

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lexvault/api/internal/diff"
	"lexvault/api/internal/store"
)

// dataStore is the slice of the version store this service needs.
type dataStore interface {
	GetLatestVersionNumber(ctx context.Context, documentID int64) (int, error)
	GetVersion(ctx context.Context, documentID int64, versionNumber int) (store.DocumentVersion, error)
	GetVersionByID(ctx context.Context, versionID int64) (store.DocumentVersion, error)
	GetCurrentVersion(ctx context.Context, documentID int64) (store.DocumentVersion, error)
	PersistVersion(ctx context.Context, v store.DocumentVersion, changes []store.DocumentChange) (int64, error)
	ListVersions(ctx context.Context, documentID int64, limit int) ([]store.VersionSummary, error)
	GetChanges(ctx context.Context, fromVersionID, toVersionID int64) ([]store.DocumentChange, error)
	InsertComment(ctx context.Context, comment store.VersionComment) (int64, error)
	InsertTag(ctx context.Context, tag store.VersionTag) (int64, error)
	GetVersionAtTime(ctx context.Context, documentID int64, at time.Time) (store.DocumentVersion, error)
	ListVersionsBetween(ctx context.Context, start, end time.Time, documentID int64, limit int) ([]store.VersionSummary, error)
}

// currentCache is an external pointer cache for the current version of a
// document. Every persist invalidates it before publishing the new pointer.
type currentCache interface {
	GetCurrent(ctx context.Context, documentID int64) (int64, int, bool, error)
	SetCurrent(ctx context.Context, documentID, versionID int64, versionNumber int) error
	Invalidate(ctx context.Context, documentID int64) error
}

// indexer receives version summaries for search after a successful create.
type indexer interface {
	IndexVersion(v store.DocumentVersion, impact string)
}

// archiver receives content snapshots for retention storage.
type archiver interface {
	ArchiveVersion(ctx context.Context, v store.DocumentVersion)
}

// Service orchestrates version creation, rollback and comparison.
type Service struct {
	store    dataStore
	analyzer *diff.Analyzer
	cache    currentCache // optional
	index    indexer      // optional
	archive  archiver     // optional
	log      zerolog.Logger
}

// Option configures optional collaborators on the service.
type Option func(*Service)

func WithCache(cache currentCache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithIndexer(index indexer) Option {
	return func(s *Service) { s.index = index }
}

func WithArchiver(archive archiver) Option {
	return func(s *Service) { s.archive = archive }
}

func New(dataStore dataStore, analyzer *diff.Analyzer, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    dataStore,
		analyzer: analyzer,
		log:      log.With().Str("component", "version").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateVersionInput carries everything needed to record a new snapshot.
type CreateVersionInput struct {
	DocumentID   int64
	Content      string
	Path         string
	UploadedBy   string
	UploadType   string
	UploadReason string
}

// CreateVersionResult reports the persisted identity of a new version.
type CreateVersionResult struct {
	VersionID     int64
	VersionNumber int
	ChangeCount   int
}

// CreateVersion records a new content snapshot for a document. The content
// is hashed and compared against the current version; identical content is
// rejected with ErrDuplicateContent. When a prior version exists its diff
// is analyzed up front and persisted in the same transaction as the new
// row, so a version never exists without its change records.
func (s *Service) CreateVersion(ctx context.Context, in CreateVersionInput) (CreateVersionResult, error) {
	contentHash := hashContent(in.Content)

	latest, err := s.store.GetLatestVersionNumber(ctx, in.DocumentID)
	if err != nil {
		return CreateVersionResult{}, storageErr("latest version number", err)
	}

	var prior *store.DocumentVersion
	if latest > 0 {
		current, err := s.store.GetCurrentVersion(ctx, in.DocumentID)
		if err != nil {
			if store.IsNotFound(err) {
				// Versions exist but none is flagged current: a partial
				// write got through at some point. Surface it.
				return CreateVersionResult{}, storageErr("current version", fmt.Errorf("document %d has %d versions but no current flag", in.DocumentID, latest))
			}
			return CreateVersionResult{}, storageErr("current version", err)
		}
		if current.ContentHash == contentHash {
			return CreateVersionResult{}, ErrDuplicateContent
		}
		prior = &current
	}

	var changes []store.DocumentChange
	if prior != nil {
		analyzed, err := s.analyzer.Analyze(prior.Content, in.Content)
		if err != nil {
			// No silent fallback: a versioned-but-unanalyzed state would
			// defeat the change-tracking guarantee.
			return CreateVersionResult{}, err
		}
		changes, err = toStoreChanges(prior.ID, analyzed)
		if err != nil {
			return CreateVersionResult{}, err
		}
	}

	row := store.DocumentVersion{
		DocumentID:    in.DocumentID,
		VersionNumber: latest + 1,
		Path:          in.Path,
		Content:       in.Content,
		ContentHash:   contentHash,
		FileSize:      int64(len(in.Content)),
		MimeType:      DetectMimeType(in.Path),
		UploadType:    normalizeUploadType(in.UploadType, latest),
		UploadedBy:    in.UploadedBy,
		UploadReason:  in.UploadReason,
		IsCurrent:     true,
	}

	versionID, err := s.store.PersistVersion(ctx, row, changes)
	if err != nil {
		return CreateVersionResult{}, storageErr("persist version", err)
	}
	row.ID = versionID

	s.publishCurrent(ctx, row)
	s.notifyCollaborators(row, changes)

	s.log.Info().
		Int64("document_id", in.DocumentID).
		Int("version", row.VersionNumber).
		Int("changes", len(changes)).
		Str("upload_type", row.UploadType).
		Msg("created document version")

	return CreateVersionResult{
		VersionID:     versionID,
		VersionNumber: row.VersionNumber,
		ChangeCount:   len(changes),
	}, nil
}

// Rollback appends a new version whose content equals the target version's.
// History is never rewritten. Rolling back to the version immediately
// preceding the current one fails as a duplicate, since its content still
// matches the current hash; older targets are allowed even if their content
// matches some non-current version.
func (s *Service) Rollback(ctx context.Context, documentID int64, targetVersion int, rolledBackBy, reason string) (CreateVersionResult, error) {
	target, err := s.store.GetVersion(ctx, documentID, targetVersion)
	if err != nil {
		if store.IsNotFound(err) {
			return CreateVersionResult{}, fmt.Errorf("version %d of document %d: %w", targetVersion, documentID, ErrNotFound)
		}
		return CreateVersionResult{}, storageErr("get rollback target", err)
	}

	result, err := s.CreateVersion(ctx, CreateVersionInput{
		DocumentID:   documentID,
		Content:      target.Content,
		Path:         target.Path,
		UploadedBy:   rolledBackBy,
		UploadType:   store.UploadRollback,
		UploadReason: fmt.Sprintf("Rollback to version %d: %s", targetVersion, reason),
	})
	if err != nil {
		return CreateVersionResult{}, err
	}

	s.log.Info().
		Int64("document_id", documentID).
		Int("target_version", targetVersion).
		Int("new_version", result.VersionNumber).
		Msg("rolled back document")
	return result, nil
}

// VersionInfo is version metadata returned from comparisons.
type VersionInfo struct {
	ID            int64     `json:"id"`
	VersionNumber int       `json:"number"`
	Content       string    `json:"content"`
	UploadedBy    string    `json:"uploadedBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Statistics aggregates a comparison's change counts.
type Statistics struct {
	Additions     int `json:"additions"`
	Deletions     int `json:"deletions"`
	Modifications int `json:"modifications"`
	TotalChanges  int `json:"totalChanges"`
}

// Comparison is the result of comparing two stored versions.
type Comparison struct {
	Version1   VersionInfo
	Version2   VersionInfo
	Changes    []store.DocumentChange
	Statistics Statistics
}

// Compare diffs two stored versions of a document in the order given; they
// need not be adjacent. Persisted change records are returned when they
// exist for the pair; otherwise the diff is computed on demand and not
// stored, keeping the persisted history limited to the consecutive-version
// lineage.
func (s *Service) Compare(ctx context.Context, documentID int64, versionNumber1, versionNumber2 int) (Comparison, error) {
	v1, err := s.fetchVersion(ctx, documentID, versionNumber1)
	if err != nil {
		return Comparison{}, err
	}
	v2, err := s.fetchVersion(ctx, documentID, versionNumber2)
	if err != nil {
		return Comparison{}, err
	}

	changes, err := s.store.GetChanges(ctx, v1.ID, v2.ID)
	if err != nil {
		return Comparison{}, storageErr("get changes", err)
	}
	if len(changes) == 0 && v1.ContentHash != v2.ContentHash {
		analyzed, err := s.analyzer.Analyze(v1.Content, v2.Content)
		if err != nil {
			return Comparison{}, err
		}
		changes, err = toStoreChanges(v1.ID, analyzed)
		if err != nil {
			return Comparison{}, err
		}
		for i := range changes {
			changes[i].ToVersionID = v2.ID
		}
	}

	stats := Statistics{TotalChanges: len(changes)}
	for _, change := range changes {
		switch change.ChangeType {
		case string(diff.ChangeAdded):
			stats.Additions++
		case string(diff.ChangeDeleted):
			stats.Deletions++
		case string(diff.ChangeModified):
			stats.Modifications++
		}
	}

	return Comparison{
		Version1:   toVersionInfo(v1),
		Version2:   toVersionInfo(v2),
		Changes:    changes,
		Statistics: stats,
	}, nil
}

// ListVersions returns a document's history, most recent first. A document
// with no versions at all is a not-found condition.
func (s *Service) ListVersions(ctx context.Context, documentID int64, limit int) ([]store.VersionSummary, error) {
	versions, err := s.store.ListVersions(ctx, documentID, limit)
	if err != nil {
		return nil, storageErr("list versions", err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("document %d: %w", documentID, ErrNotFound)
	}
	return versions, nil
}

// GetVersion returns one version including its full content.
func (s *Service) GetVersion(ctx context.Context, documentID int64, versionNumber int) (store.DocumentVersion, error) {
	return s.fetchVersion(ctx, documentID, versionNumber)
}

// CurrentVersion resolves a document's current version, going through the
// pointer cache when one is configured.
func (s *Service) CurrentVersion(ctx context.Context, documentID int64) (store.DocumentVersion, error) {
	if s.cache != nil {
		versionID, _, ok, err := s.cache.GetCurrent(ctx, documentID)
		if err != nil {
			s.log.Warn().Err(err).Int64("document_id", documentID).Msg("current pointer cache read failed")
		} else if ok {
			v, err := s.store.GetVersionByID(ctx, versionID)
			if err == nil && v.IsCurrent {
				return v, nil
			}
			// Stale pointer: fall through to storage and repair below.
		}
	}

	v, err := s.store.GetCurrentVersion(ctx, documentID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.DocumentVersion{}, fmt.Errorf("document %d: %w", documentID, ErrNotFound)
		}
		return store.DocumentVersion{}, storageErr("current version", err)
	}
	s.publishCurrent(ctx, v)
	return v, nil
}

// GetChanges returns the persisted change records between two version IDs.
// Empty is a valid answer, not an error.
func (s *Service) GetChanges(ctx context.Context, fromVersionID, toVersionID int64) ([]store.DocumentChange, error) {
	changes, err := s.store.GetChanges(ctx, fromVersionID, toVersionID)
	if err != nil {
		return nil, storageErr("get changes", err)
	}
	return changes, nil
}

// AddComment attaches a free-text annotation to an existing version.
func (s *Service) AddComment(ctx context.Context, comment store.VersionComment) (int64, error) {
	if _, err := s.store.GetVersionByID(ctx, comment.VersionID); err != nil {
		if store.IsNotFound(err) {
			return 0, fmt.Errorf("version %d: %w", comment.VersionID, ErrNotFound)
		}
		return 0, storageErr("get version", err)
	}
	id, err := s.store.InsertComment(ctx, comment)
	if err != nil {
		return 0, storageErr("insert comment", err)
	}
	return id, nil
}

// AddTag attaches a key-value tag to an existing version.
func (s *Service) AddTag(ctx context.Context, tag store.VersionTag) (int64, error) {
	if _, err := s.store.GetVersionByID(ctx, tag.VersionID); err != nil {
		if store.IsNotFound(err) {
			return 0, fmt.Errorf("version %d: %w", tag.VersionID, ErrNotFound)
		}
		return 0, storageErr("get version", err)
	}
	id, err := s.store.InsertTag(ctx, tag)
	if err != nil {
		return 0, storageErr("insert tag", err)
	}
	return id, nil
}

// VersionAtTime returns the version that was current at the given instant.
func (s *Service) VersionAtTime(ctx context.Context, documentID int64, at time.Time) (store.DocumentVersion, error) {
	v, err := s.store.GetVersionAtTime(ctx, documentID, at)
	if err != nil {
		if store.IsNotFound(err) {
			return store.DocumentVersion{}, fmt.Errorf("document %d at %s: %w", documentID, at.Format(time.RFC3339), ErrNotFound)
		}
		return store.DocumentVersion{}, storageErr("version at time", err)
	}
	return v, nil
}

// ChangesBetween lists version activity inside a time window, optionally
// restricted to one document (documentID > 0).
func (s *Service) ChangesBetween(ctx context.Context, start, end time.Time, documentID int64, limit int) ([]store.VersionSummary, error) {
	items, err := s.store.ListVersionsBetween(ctx, start, end, documentID, limit)
	if err != nil {
		return nil, storageErr("list versions between", err)
	}
	return items, nil
}

func (s *Service) fetchVersion(ctx context.Context, documentID int64, versionNumber int) (store.DocumentVersion, error) {
	v, err := s.store.GetVersion(ctx, documentID, versionNumber)
	if err != nil {
		if store.IsNotFound(err) {
			return store.DocumentVersion{}, fmt.Errorf("version %d of document %d: %w", versionNumber, documentID, ErrNotFound)
		}
		return store.DocumentVersion{}, storageErr("get version", err)
	}
	return v, nil
}

// publishCurrent refreshes the pointer cache after a successful write or a
// cache miss. Cache failures are logged, never surfaced: storage holds the
// truth.
func (s *Service) publishCurrent(ctx context.Context, v store.DocumentVersion) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, v.DocumentID); err != nil {
		s.log.Warn().Err(err).Int64("document_id", v.DocumentID).Msg("invalidate current pointer failed")
		return
	}
	if err := s.cache.SetCurrent(ctx, v.DocumentID, v.ID, v.VersionNumber); err != nil {
		s.log.Warn().Err(err).Int64("document_id", v.DocumentID).Msg("set current pointer failed")
	}
}

// notifyCollaborators pushes the new version to search and retention,
// fire and forget. Both are replicas of storage, so failures are logged
// and never fail the write.
func (s *Service) notifyCollaborators(v store.DocumentVersion, changes []store.DocumentChange) {
	if s.index != nil {
		s.index.IndexVersion(v, highestImpact(changes))
	}
	if s.archive != nil {
		go s.archive.ArchiveVersion(context.Background(), v)
	}
}

func toStoreChanges(fromVersionID int64, analyzed []diff.Change) ([]store.DocumentChange, error) {
	changes := make([]store.DocumentChange, 0, len(analyzed))
	for _, c := range analyzed {
		compliance, err := json.Marshal(c.Compliance)
		if err != nil {
			return nil, &diff.AnalysisError{Reason: fmt.Sprintf("encode compliance impact: %v", err)}
		}
		changes = append(changes, store.DocumentChange{
			FromVersionID:    fromVersionID,
			ChangeType:       string(c.Type),
			OldContent:       c.OldContent,
			NewContent:       c.NewContent,
			LineStart:        c.LineStart,
			LineEnd:          c.LineEnd,
			ConfidenceScore:  c.Confidence,
			ChangeSummary:    c.Summary,
			ImpactAssessment: string(c.Impact),
			ComplianceImpact: compliance,
		})
	}
	return changes, nil
}

func toVersionInfo(v store.DocumentVersion) VersionInfo {
	return VersionInfo{
		ID:            v.ID,
		VersionNumber: v.VersionNumber,
		Content:       v.Content,
		UploadedBy:    v.UploadedBy,
		CreatedAt:     v.CreatedAt,
	}
}

func highestImpact(changes []store.DocumentChange) string {
	rank := map[string]int{"low": 0, "medium": 1, "high": 2, "critical": 3}
	highest := ""
	for _, c := range changes {
		if highest == "" || rank[c.ImpactAssessment] > rank[highest] {
			highest = c.ImpactAssessment
		}
	}
	return highest
}

func normalizeUploadType(uploadType string, latest int) string {
	switch uploadType {
	case store.UploadInitial, store.UploadUpdate, store.UploadRevision, store.UploadRollback:
		return uploadType
	}
	if latest == 0 {
		return store.UploadInitial
	}
	return store.UploadUpdate
}

// DetectMimeType maps a path's extension to a MIME type.
func DetectMimeType(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return "application/octet-stream"
	}
	switch strings.ToLower(path[idx+1:]) {
	case "pdf":
		return "application/pdf"
	case "txt":
		return "text/plain"
	case "md":
		return "text/markdown"
	case "html":
		return "text/html"
	case "doc":
		return "application/msword"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case "json":
		return "application/json"
	case "xml":
		return "application/xml"
	}
	return "application/octet-stream"
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

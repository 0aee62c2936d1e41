package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore is the durable, append-only home of versions and their
// change records. Version rows are never updated after insert except for
// the is_current demotion, which happens inside PersistVersion's
// transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const versionColumns = `id, document_id, version_number, path, content, content_hash, file_size,
	mime_type, upload_type, uploaded_by, COALESCE(upload_reason, ''), is_current, created_at`

func scanVersion(row interface{ Scan(...any) error }) (DocumentVersion, error) {
	var v DocumentVersion
	err := row.Scan(
		&v.ID,
		&v.DocumentID,
		&v.VersionNumber,
		&v.Path,
		&v.Content,
		&v.ContentHash,
		&v.FileSize,
		&v.MimeType,
		&v.UploadType,
		&v.UploadedBy,
		&v.UploadReason,
		&v.IsCurrent,
		&v.CreatedAt,
	)
	return v, err
}

// GetLatestVersionNumber returns the highest version number for a document,
// or 0 when the document has no versions. Always derived from the stored
// rows, never from a counter, so numbers are not reused after data loss.
func (s *PostgresStore) GetLatestVersionNumber(ctx context.Context, documentID int64) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(version_number) FROM document_versions WHERE document_id=$1
	`, documentID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("latest version number: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, documentID int64, versionNumber int) (DocumentVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM document_versions
		WHERE document_id=$1 AND version_number=$2
	`, documentID, versionNumber))
	if err != nil {
		return DocumentVersion{}, err
	}
	return v, nil
}

func (s *PostgresStore) GetVersionByID(ctx context.Context, versionID int64) (DocumentVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM document_versions
		WHERE id=$1
	`, versionID))
	if err != nil {
		return DocumentVersion{}, err
	}
	return v, nil
}

// GetVersionByHash finds a document's version carrying exactly this content
// hash, preferring the most recent. Used for deduplication lookups.
func (s *PostgresStore) GetVersionByHash(ctx context.Context, documentID int64, contentHash string) (DocumentVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM document_versions
		WHERE document_id=$1 AND content_hash=$2
		ORDER BY version_number DESC
		LIMIT 1
	`, documentID, contentHash))
	if err != nil {
		return DocumentVersion{}, err
	}
	return v, nil
}

func (s *PostgresStore) GetCurrentVersion(ctx context.Context, documentID int64) (DocumentVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM document_versions
		WHERE document_id=$1 AND is_current
	`, documentID))
	if err != nil {
		return DocumentVersion{}, err
	}
	return v, nil
}

// PersistVersion inserts a new version as current, demotes the previous
// current row, and records the supplied change rows, all in one
// transaction. A concurrent writer racing on the same version number trips
// the (document_id, version_number) uniqueness constraint and the whole
// transaction rolls back, leaving the prior current flag untouched.
func (s *PostgresStore) PersistVersion(ctx context.Context, v DocumentVersion, changes []DocumentChange) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin persist version: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE document_versions SET is_current=FALSE
		WHERE document_id=$1 AND is_current
	`, v.DocumentID); err != nil {
		return 0, fmt.Errorf("demote current version: %w", err)
	}

	var versionID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO document_versions
			(document_id, version_number, path, content, content_hash, file_size,
			 mime_type, upload_type, uploaded_by, upload_reason, is_current)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), TRUE)
		RETURNING id
	`, v.DocumentID, v.VersionNumber, v.Path, v.Content, v.ContentHash, v.FileSize,
		v.MimeType, v.UploadType, v.UploadedBy, v.UploadReason).Scan(&versionID)
	if err != nil {
		return 0, fmt.Errorf("insert version: %w", err)
	}

	for _, change := range changes {
		compliance := change.ComplianceImpact
		if compliance == nil {
			compliance = []byte("{}")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_changes
				(from_version_id, to_version_id, change_type, old_content, new_content,
				 line_start, line_end, confidence_score, change_summary,
				 impact_assessment, compliance_impact)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)
		`, change.FromVersionID, versionID, change.ChangeType, change.OldContent,
			change.NewContent, change.LineStart, change.LineEnd, change.ConfidenceScore,
			change.ChangeSummary, change.ImpactAssessment, string(compliance)); err != nil {
			return 0, fmt.Errorf("insert change at line %d: %w", change.LineStart, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit persist version: %w", err)
	}
	return versionID, nil
}

// ListVersions returns a document's versions most recent first, bounded by
// limit, with change/comment/tag counts joined in.
func (s *PostgresStore) ListVersions(ctx context.Context, documentID int64, limit int) ([]VersionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT dv.id, dv.document_id, dv.version_number, dv.path, dv.content_hash,
			dv.file_size, dv.mime_type, dv.upload_type, dv.uploaded_by,
			COALESCE(dv.upload_reason, ''), dv.is_current, dv.created_at,
			(SELECT COUNT(*) FROM document_changes dc WHERE dc.to_version_id=dv.id),
			(SELECT COUNT(*) FROM document_version_comments vc WHERE vc.version_id=dv.id),
			(SELECT COUNT(*) FROM document_version_tags vt WHERE vt.version_id=dv.id)
		FROM document_versions dv
		WHERE dv.document_id=$1
		ORDER BY dv.version_number DESC
		LIMIT $2
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]VersionSummary, 0)
	for rows.Next() {
		var item VersionSummary
		if err := rows.Scan(
			&item.ID,
			&item.DocumentID,
			&item.VersionNumber,
			&item.Path,
			&item.ContentHash,
			&item.FileSize,
			&item.MimeType,
			&item.UploadType,
			&item.UploadedBy,
			&item.UploadReason,
			&item.IsCurrent,
			&item.CreatedAt,
			&item.ChangeCount,
			&item.CommentCount,
			&item.TagCount,
		); err != nil {
			return nil, fmt.Errorf("scan version summary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

// GetChanges returns the persisted change records between two version IDs,
// ordered by line_start ascending. An empty result is not an error.
func (s *PostgresStore) GetChanges(ctx context.Context, fromVersionID, toVersionID int64) ([]DocumentChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_version_id, to_version_id, change_type, old_content, new_content,
			line_start, line_end, confidence_score, change_summary, impact_assessment,
			COALESCE(compliance_impact::text, '{}'), created_at
		FROM document_changes
		WHERE from_version_id=$1 AND to_version_id=$2
		ORDER BY line_start ASC
	`, fromVersionID, toVersionID)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentChange, 0)
	for rows.Next() {
		var item DocumentChange
		var compliance string
		if err := rows.Scan(
			&item.ID,
			&item.FromVersionID,
			&item.ToVersionID,
			&item.ChangeType,
			&item.OldContent,
			&item.NewContent,
			&item.LineStart,
			&item.LineEnd,
			&item.ConfidenceScore,
			&item.ChangeSummary,
			&item.ImpactAssessment,
			&compliance,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		item.ComplianceImpact = []byte(compliance)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment VersionComment) (int64, error) {
	commentType := comment.CommentType
	if commentType == "" {
		commentType = "general"
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_version_comments (version_id, change_id, commenter, comment_type, comment_text)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, comment.VersionID, comment.ChangeID, comment.Commenter, commentType, comment.CommentText).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert version comment: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) InsertTag(ctx context.Context, tag VersionTag) (int64, error) {
	tagType := tag.TagType
	if tagType == "" {
		tagType = "custom"
	}
	createdBy := tag.CreatedBy
	if createdBy == "" {
		createdBy = "system"
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_version_tags (version_id, tag_name, tag_value, tag_type, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, tag.VersionID, tag.TagName, tag.TagValue, tagType, createdBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert version tag: %w", err)
	}
	return id, nil
}

// GetVersionAtTime returns the version that was the newest one created at
// or before the given instant.
func (s *PostgresStore) GetVersionAtTime(ctx context.Context, documentID int64, at time.Time) (DocumentVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM document_versions
		WHERE document_id=$1 AND created_at <= $2
		ORDER BY version_number DESC
		LIMIT 1
	`, documentID, at))
	if err != nil {
		return DocumentVersion{}, err
	}
	return v, nil
}

// ListVersionsBetween returns version summaries created inside [start, end],
// newest first, optionally restricted to one document (documentID > 0).
func (s *PostgresStore) ListVersionsBetween(ctx context.Context, start, end time.Time, documentID int64, limit int) ([]VersionSummary, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT dv.id, dv.document_id, dv.version_number, dv.path, dv.content_hash,
			dv.file_size, dv.mime_type, dv.upload_type, dv.uploaded_by,
			COALESCE(dv.upload_reason, ''), dv.is_current, dv.created_at,
			(SELECT COUNT(*) FROM document_changes dc WHERE dc.to_version_id=dv.id),
			0, 0
		FROM document_versions dv
		WHERE dv.created_at BETWEEN $1 AND $2
		  AND ($3::bigint = 0 OR dv.document_id=$3)
		ORDER BY dv.created_at DESC
		LIMIT $4
	`, start, end, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions between: %w", err)
	}
	defer rows.Close()

	items := make([]VersionSummary, 0)
	for rows.Next() {
		var item VersionSummary
		if err := rows.Scan(
			&item.ID,
			&item.DocumentID,
			&item.VersionNumber,
			&item.Path,
			&item.ContentHash,
			&item.FileSize,
			&item.MimeType,
			&item.UploadType,
			&item.UploadedBy,
			&item.UploadReason,
			&item.IsCurrent,
			&item.CreatedAt,
			&item.ChangeCount,
			&item.CommentCount,
			&item.TagCount,
		); err != nil {
			return nil, fmt.Errorf("scan version window row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate version window: %w", err)
	}
	return items, nil
}

// SearchVersions is the fallback full-text path over version metadata and
// content, used when the search index is unavailable.
func (s *PostgresStore) SearchVersions(ctx context.Context, query string, limit int) ([]VersionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT dv.id, dv.document_id, dv.version_number, dv.path, dv.content_hash,
			dv.file_size, dv.mime_type, dv.upload_type, dv.uploaded_by,
			COALESCE(dv.upload_reason, ''), dv.is_current, dv.created_at, 0, 0, 0
		FROM document_versions dv
		WHERE dv.path ILIKE '%' || $1 || '%'
		   OR dv.uploaded_by ILIKE '%' || $1 || '%'
		   OR COALESCE(dv.upload_reason, '') ILIKE '%' || $1 || '%'
		   OR dv.content ILIKE '%' || $1 || '%'
		ORDER BY dv.created_at DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search versions: %w", err)
	}
	defer rows.Close()

	items := make([]VersionSummary, 0)
	for rows.Next() {
		var item VersionSummary
		if err := rows.Scan(
			&item.ID,
			&item.DocumentID,
			&item.VersionNumber,
			&item.Path,
			&item.ContentHash,
			&item.FileSize,
			&item.MimeType,
			&item.UploadType,
			&item.UploadedBy,
			&item.UploadReason,
			&item.IsCurrent,
			&item.CreatedAt,
			&item.ChangeCount,
			&item.CommentCount,
			&item.TagCount,
		); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return items, nil
}

// IsNotFound reports whether err is the store's no-rows condition.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

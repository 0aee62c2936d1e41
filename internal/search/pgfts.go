package search

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"lexvault/api/internal/store"
)

// versionStore is the slice of the store the fallback needs.
type versionStore interface {
	SearchVersions(ctx context.Context, query string, limit int) ([]store.VersionSummary, error)
}

// PgFallback implements Searcher on top of Postgres ILIKE matching. It is
// the degraded path used while Meilisearch is down; no ranking, no
// highlighting.
type PgFallback struct {
	store versionStore
}

// NewPgFallback creates the Postgres-backed fallback searcher.
func NewPgFallback(store versionStore) *PgFallback {
	return &PgFallback{store: store}
}

// Healthy always reports true; the database is the system of record and a
// failure there surfaces from Search itself.
func (p *PgFallback) Healthy() bool {
	return true
}

// Search matches the query against version paths, uploaders, reasons and
// content.
func (p *PgFallback) Search(q Query) ([]Result, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	limit := q.Limit
	if limit == 0 {
		limit = 20
	}

	summaries, err := p.store.SearchVersions(ctx, q.Text, limit+q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres search: %w", err)
	}

	results := make([]Result, 0, len(summaries))
	for _, s := range summaries {
		if q.FilterDocumentID > 0 && s.DocumentID != q.FilterDocumentID {
			continue
		}
		results = append(results, Result{
			VersionID:     strconv.FormatInt(s.ID, 10),
			DocumentID:    s.DocumentID,
			VersionNumber: s.VersionNumber,
			Path:          s.Path,
			Snippet:       s.UploadReason,
			UploadType:    s.UploadType,
			UploadedBy:    s.UploadedBy,
			CreatedAt:     s.CreatedAt,
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(results) {
			results = results[:0]
		} else {
			results = results[q.Offset:]
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, len(results), nil
}

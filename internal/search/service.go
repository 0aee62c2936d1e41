package search

import (
	"strconv"

	"github.com/rs/zerolog"

	"lexvault/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres when it is down or unconfigured.
type Service struct {
	meili    *Meili
	fallback *PgFallback
	log      zerolog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback *PgFallback, log zerolog.Logger) *Service {
	return &Service{
		meili:    meili,
		fallback: fallback,
		log:      log.With().Str("component", "search").Logger(),
	}
}

// Search tries Meilisearch if healthy, otherwise the Postgres fallback.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to postgres")
	}

	results, total, err := s.fallback.Search(q)
	if err != nil {
		s.log.Error().Err(err).Msg("postgres search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexVersion pushes a new version into the search index, fire and
// forget. The store remains the source of truth; a missed index entry is
// repaired by the next reindex.
func (s *Service) IndexVersion(v store.DocumentVersion, impact string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := toRecord(v, impact)
	go func() {
		if err := s.meili.IndexVersions([]VersionRecord{record}); err != nil {
			s.log.Warn().Err(err).Str("version_id", record.ID).Msg("index version failed")
		}
	}()
}

// ReindexVersions bulk-loads version records into Meilisearch, used at
// startup or after an outage.
func (s *Service) ReindexVersions(summaries []store.VersionSummary) {
	if s.meili == nil || !s.meili.Healthy() || len(summaries) == 0 {
		return
	}
	records := make([]VersionRecord, 0, len(summaries))
	for _, summary := range summaries {
		records = append(records, VersionRecord{
			ID:            strconv.FormatInt(summary.ID, 10),
			DocumentID:    summary.DocumentID,
			VersionNumber: summary.VersionNumber,
			Path:          summary.Path,
			UploadType:    summary.UploadType,
			UploadedBy:    summary.UploadedBy,
			UploadReason:  summary.UploadReason,
			CreatedAt:     summary.CreatedAt.Unix(),
		})
	}
	if err := s.meili.IndexVersions(records); err != nil {
		s.log.Warn().Err(err).Int("count", len(records)).Msg("reindex versions failed")
	}
}

func toRecord(v store.DocumentVersion, impact string) VersionRecord {
	createdAt := v.CreatedAt.Unix()
	if v.CreatedAt.IsZero() {
		createdAt = 0
	}
	return VersionRecord{
		ID:            strconv.FormatInt(v.ID, 10),
		DocumentID:    v.DocumentID,
		VersionNumber: v.VersionNumber,
		Path:          v.Path,
		UploadType:    v.UploadType,
		UploadedBy:    v.UploadedBy,
		UploadReason:  v.UploadReason,
		Impact:        impact,
		CreatedAt:     createdAt,
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

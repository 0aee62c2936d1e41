// Package app is the HTTP boundary: routing, request decoding, error
// mapping and response shaping over the version, search and export
// services.
package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lexvault/api/internal/diff"
	"lexvault/api/internal/export"
	"lexvault/api/internal/search"
	"lexvault/api/internal/store"
	"lexvault/api/internal/version"
)

// VersionService is the slice of the version orchestrator the HTTP layer
// uses.
type VersionService interface {
	CreateVersion(ctx context.Context, in version.CreateVersionInput) (version.CreateVersionResult, error)
	Rollback(ctx context.Context, documentID int64, targetVersion int, rolledBackBy, reason string) (version.CreateVersionResult, error)
	Compare(ctx context.Context, documentID int64, versionNumber1, versionNumber2 int) (version.Comparison, error)
	ListVersions(ctx context.Context, documentID int64, limit int) ([]store.VersionSummary, error)
	GetVersion(ctx context.Context, documentID int64, versionNumber int) (store.DocumentVersion, error)
	CurrentVersion(ctx context.Context, documentID int64) (store.DocumentVersion, error)
	GetChanges(ctx context.Context, fromVersionID, toVersionID int64) ([]store.DocumentChange, error)
	AddComment(ctx context.Context, comment store.VersionComment) (int64, error)
	AddTag(ctx context.Context, tag store.VersionTag) (int64, error)
	VersionAtTime(ctx context.Context, documentID int64, at time.Time) (store.DocumentVersion, error)
	ChangesBetween(ctx context.Context, start, end time.Time, documentID int64, limit int) ([]store.VersionSummary, error)
}

// SearchService executes full-text queries over indexed versions.
type SearchService interface {
	Search(q search.Query) search.Response
}

// ExportService renders change reports.
type ExportService interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type HTTPServer struct {
	versions   VersionService
	search     SearchService // optional
	exporter   ExportService // optional
	ping       func(ctx context.Context) error
	corsOrigin string
	log        zerolog.Logger
}

func NewHTTPServer(versions VersionService, searchSvc SearchService, exporter ExportService, ping func(ctx context.Context) error, corsOrigin string, log zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		versions:   versions,
		search:     searchSvc,
		exporter:   exporter,
		ping:       ping,
		corsOrigin: corsOrigin,
		log:        log.With().Str("component", "http").Logger(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/changes" {
		s.handleChanges(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/changes/window" {
		s.handleChangesWindow(w, r)
		return
	}

	parts := splitPath(r.URL.Path)

	// /api/documents/{id}/...
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "documents" {
		documentID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || documentID <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "document id must be a positive integer", nil)
			return
		}
		s.handleDocument(w, r, documentID, parts[3:])
		return
	}

	// /api/versions/{versionID}/comments | tags
	if len(parts) == 4 && parts[0] == "api" && parts[1] == "versions" && r.Method == http.MethodPost {
		versionID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || versionID <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version id must be a positive integer", nil)
			return
		}
		switch parts[3] {
		case "comments":
			s.handleAddComment(w, r, versionID)
			return
		case "tags":
			s.handleAddTag(w, r, versionID)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDocument(w http.ResponseWriter, r *http.Request, documentID int64, rest []string) {
	switch {
	case len(rest) == 1 && rest[0] == "versions" && r.Method == http.MethodPost:
		s.handleCreateVersion(w, r, documentID)
	case len(rest) == 1 && rest[0] == "versions" && r.Method == http.MethodGet:
		s.handleListVersions(w, r, documentID)
	case len(rest) == 2 && rest[0] == "versions" && rest[1] == "current" && r.Method == http.MethodGet:
		s.handleCurrentVersion(w, r, documentID)
	case len(rest) == 2 && rest[0] == "versions" && rest[1] == "at" && r.Method == http.MethodGet:
		s.handleVersionAtTime(w, r, documentID)
	case len(rest) == 2 && rest[0] == "versions" && r.Method == http.MethodGet:
		s.handleGetVersion(w, r, documentID, rest[1])
	case len(rest) == 4 && rest[0] == "versions" && rest[1] == "compare" && r.Method == http.MethodGet:
		s.handleCompare(w, r, documentID, rest[2], rest[3])
	case len(rest) == 5 && rest[0] == "versions" && rest[1] == "compare" && rest[4] == "export" && r.Method == http.MethodGet:
		s.handleCompareExport(w, r, documentID, rest[2], rest[3])
	case len(rest) == 1 && rest[0] == "rollback" && r.Method == http.MethodPost:
		s.handleRollback(w, r, documentID)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleCreateVersion(w http.ResponseWriter, r *http.Request, documentID int64) {
	var body struct {
		Content      string `json:"content"`
		Path         string `json:"path"`
		UploadedBy   string `json:"uploadedBy"`
		UploadType   string `json:"uploadType"`
		UploadReason string `json:"uploadReason"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.UploadedBy) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "uploadedBy is required", nil)
		return
	}
	// Empty content is a legitimate snapshot: it records a full deletion
	// of the document's text. Deduplication still rejects a repeat.

	result, err := s.versions.CreateVersion(r.Context(), version.CreateVersionInput{
		DocumentID:   documentID,
		Content:      body.Content,
		Path:         body.Path,
		UploadedBy:   body.UploadedBy,
		UploadType:   body.UploadType,
		UploadReason: body.UploadReason,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"versionId":     result.VersionID,
		"versionNumber": result.VersionNumber,
		"changeCount":   result.ChangeCount,
	})
}

func (s *HTTPServer) handleListVersions(w http.ResponseWriter, r *http.Request, documentID int64) {
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}

	versions, err := s.versions.ListVersions(r.Context(), documentID, limit)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	items := make([]map[string]any, 0, len(versions))
	for _, v := range versions {
		items = append(items, summaryPayload(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": items})
}

func (s *HTTPServer) handleCurrentVersion(w http.ResponseWriter, r *http.Request, documentID int64) {
	v, err := s.versions.CurrentVersion(r.Context(), documentID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, versionPayload(v))
}

func (s *HTTPServer) handleVersionAtTime(w http.ResponseWriter, r *http.Request, documentID int64) {
	raw := strings.TrimSpace(r.URL.Query().Get("time"))
	if raw == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "time query parameter is required", nil)
		return
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "time must be RFC 3339", nil)
		return
	}

	v, err := s.versions.VersionAtTime(r.Context(), documentID, at)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, versionPayload(v))
}

func (s *HTTPServer) handleGetVersion(w http.ResponseWriter, r *http.Request, documentID int64, rawNumber string) {
	versionNumber, err := strconv.Atoi(rawNumber)
	if err != nil || versionNumber <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version number must be a positive integer", nil)
		return
	}

	v, err := s.versions.GetVersion(r.Context(), documentID, versionNumber)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, versionPayload(v))
}

func (s *HTTPServer) handleCompare(w http.ResponseWriter, r *http.Request, documentID int64, raw1, raw2 string) {
	v1, v2, ok := parseVersionPair(w, raw1, raw2)
	if !ok {
		return
	}

	comparison, err := s.versions.Compare(r.Context(), documentID, v1, v2)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, comparisonPayload(comparison))
}

func (s *HTTPServer) handleCompareExport(w http.ResponseWriter, r *http.Request, documentID int64, raw1, raw2 string) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export service not configured", nil)
		return
	}
	v1, v2, ok := parseVersionPair(w, raw1, raw2)
	if !ok {
		return
	}

	format := export.Format(strings.TrimSpace(r.URL.Query().Get("format")))
	result, err := s.exporter.Export(r.Context(), export.Request{
		DocumentID: documentID,
		Version1:   v1,
		Version2:   v2,
		Format:     format,
	})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export dependency missing", nil)
			return
		}
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleRollback(w http.ResponseWriter, r *http.Request, documentID int64) {
	var body struct {
		TargetVersion int    `json:"targetVersion"`
		RolledBackBy  string `json:"rolledBackBy"`
		Reason        string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.TargetVersion <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "targetVersion must be a positive integer", nil)
		return
	}
	if strings.TrimSpace(body.RolledBackBy) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "rolledBackBy is required", nil)
		return
	}

	result, err := s.versions.Rollback(r.Context(), documentID, body.TargetVersion, body.RolledBackBy, body.Reason)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"versionId":     result.VersionID,
		"versionNumber": result.VersionNumber,
		"changeCount":   result.ChangeCount,
	})
}

func (s *HTTPServer) handleChanges(w http.ResponseWriter, r *http.Request) {
	from, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("from")), 10, 64)
	if err != nil || from <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from must be a positive version id", nil)
		return
	}
	to, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("to")), 10, 64)
	if err != nil || to <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "to must be a positive version id", nil)
		return
	}

	changes, err := s.versions.GetChanges(r.Context(), from, to)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	items := make([]map[string]any, 0, len(changes))
	for _, c := range changes {
		items = append(items, changePayload(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": items})
}

func (s *HTTPServer) handleChangesWindow(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(r.URL.Query().Get("start")))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "start must be RFC 3339", nil)
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(r.URL.Query().Get("end")))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "end must be RFC 3339", nil)
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "end must not precede start", nil)
		return
	}

	var documentID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("documentId")); raw != "" {
		documentID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || documentID <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "documentId must be a positive integer", nil)
			return
		}
	}
	limit, ok := queryInt(w, r, "limit", 100)
	if !ok {
		return
	}

	items, err := s.versions.ChangesBetween(r.Context(), start, end, documentID, limit)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, summaryPayload(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": payload})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeError(w, http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search service not configured", nil)
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
		return
	}

	var documentID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("documentId")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "documentId must be a positive integer", nil)
			return
		}
		documentID = parsed
	}
	limit, ok := queryInt(w, r, "limit", 20)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return
	}

	response := s.search.Search(search.Query{
		Text:             q,
		FilterDocumentID: documentID,
		FilterImpact:     strings.TrimSpace(r.URL.Query().Get("impact")),
		Limit:            limit,
		Offset:           offset,
	})
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAddComment(w http.ResponseWriter, r *http.Request, versionID int64) {
	var body struct {
		ChangeID    *int64 `json:"changeId"`
		Commenter   string `json:"commenter"`
		CommentType string `json:"commentType"`
		CommentText string `json:"commentText"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.Commenter) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "commenter is required", nil)
		return
	}
	if strings.TrimSpace(body.CommentText) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "commentText is required", nil)
		return
	}

	id, err := s.versions.AddComment(r.Context(), store.VersionComment{
		VersionID:   versionID,
		ChangeID:    body.ChangeID,
		Commenter:   body.Commenter,
		CommentType: body.CommentType,
		CommentText: body.CommentText,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"commentId": id})
}

func (s *HTTPServer) handleAddTag(w http.ResponseWriter, r *http.Request, versionID int64) {
	var body struct {
		TagName   string `json:"tagName"`
		TagValue  string `json:"tagValue"`
		TagType   string `json:"tagType"`
		CreatedBy string `json:"createdBy"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.TagName) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "tagName is required", nil)
		return
	}

	id, err := s.versions.AddTag(r.Context(), store.VersionTag{
		VersionID: versionID,
		TagName:   body.TagName,
		TagValue:  body.TagValue,
		TagType:   body.TagType,
		CreatedBy: body.CreatedBy,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tagId": id})
}

func versionPayload(v store.DocumentVersion) map[string]any {
	return map[string]any{
		"id":            v.ID,
		"documentId":    v.DocumentID,
		"versionNumber": v.VersionNumber,
		"path":          v.Path,
		"content":       v.Content,
		"contentHash":   v.ContentHash,
		"fileSize":      v.FileSize,
		"mimeType":      v.MimeType,
		"uploadType":    v.UploadType,
		"uploadedBy":    v.UploadedBy,
		"uploadReason":  v.UploadReason,
		"isCurrent":     v.IsCurrent,
		"createdAt":     v.CreatedAt,
	}
}

func summaryPayload(v store.VersionSummary) map[string]any {
	return map[string]any{
		"id":            v.ID,
		"documentId":    v.DocumentID,
		"versionNumber": v.VersionNumber,
		"path":          v.Path,
		"contentHash":   v.ContentHash,
		"fileSize":      v.FileSize,
		"mimeType":      v.MimeType,
		"uploadType":    v.UploadType,
		"uploadedBy":    v.UploadedBy,
		"uploadReason":  v.UploadReason,
		"isCurrent":     v.IsCurrent,
		"createdAt":     v.CreatedAt,
		"changeCount":   v.ChangeCount,
		"commentCount":  v.CommentCount,
		"tagCount":      v.TagCount,
	}
}

func changePayload(c store.DocumentChange) map[string]any {
	payload := map[string]any{
		"id":            c.ID,
		"fromVersionId": c.FromVersionID,
		"toVersionId":   c.ToVersionID,
		"changeType":    c.ChangeType,
		"oldContent":    c.OldContent,
		"newContent":    c.NewContent,
		"lineStart":     c.LineStart,
		"lineEnd":       c.LineEnd,
		"confidence":    c.ConfidenceScore,
		"summary":       c.ChangeSummary,
		"impact":        c.ImpactAssessment,
	}
	if len(c.ComplianceImpact) > 0 {
		payload["complianceImpact"] = json.RawMessage(c.ComplianceImpact)
	}
	return payload
}

func comparisonPayload(comparison version.Comparison) map[string]any {
	changes := make([]map[string]any, 0, len(comparison.Changes))
	for _, c := range comparison.Changes {
		changes = append(changes, changePayload(c))
	}
	return map[string]any{
		"version1": map[string]any{
			"id":            comparison.Version1.ID,
			"versionNumber": comparison.Version1.VersionNumber,
			"uploadedBy":    comparison.Version1.UploadedBy,
			"createdAt":     comparison.Version1.CreatedAt,
		},
		"version2": map[string]any{
			"id":            comparison.Version2.ID,
			"versionNumber": comparison.Version2.VersionNumber,
			"uploadedBy":    comparison.Version2.UploadedBy,
			"createdAt":     comparison.Version2.CreatedAt,
		},
		"changes":    changes,
		"statistics": comparison.Statistics,
	}
}

func parseVersionPair(w http.ResponseWriter, raw1, raw2 string) (int, int, bool) {
	v1, err := strconv.Atoi(raw1)
	if err != nil || v1 <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version numbers must be positive integers", nil)
		return 0, 0, false
	}
	v2, err := strconv.Atoi(raw2)
	if err != nil || v2 <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version numbers must be positive integers", nil)
		return 0, 0, false
	}
	return v1, v2, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be a non-negative integer", nil)
		return 0, false
	}
	return parsed, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, version.ErrDuplicateContent) {
		return http.StatusConflict, "DUPLICATE_CONTENT", "Content is identical to the current version", nil
	}
	if errors.Is(err, version.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	var analysisErr *diff.AnalysisError
	if errors.As(err, &analysisErr) {
		return http.StatusUnprocessableEntity, "ANALYSIS_FAILED", "Change analysis failed", analysisErr.Reason
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// Package search indexes document versions for retrieval, backed by
// Meilisearch with a Postgres ILIKE fallback.
package search

import "time"

// Result is a single search hit returned to the caller.
type Result struct {
	VersionID     string    `json:"versionId"`
	DocumentID    int64     `json:"documentId"`
	VersionNumber int       `json:"versionNumber"`
	Path          string    `json:"path"`
	Snippet       string    `json:"snippet"`
	UploadType    string    `json:"uploadType"`
	UploadedBy    string    `json:"uploadedBy"`
	Impact        string    `json:"impact,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Query describes a search request.
type Query struct {
	Text             string
	FilterDocumentID int64 // 0 = all documents
	FilterImpact     string
	Limit            int
	Offset           int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over indexed versions.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// VersionRecord is the data we index per document version.
type VersionRecord struct {
	ID            string `json:"id"` // version row ID
	DocumentID    int64  `json:"documentId"`
	VersionNumber int    `json:"versionNumber"`
	Path          string `json:"path"`
	UploadType    string `json:"uploadType"`
	UploadedBy    string `json:"uploadedBy"`
	UploadReason  string `json:"uploadReason"`
	Impact        string `json:"impact"`
	CreatedAt     int64  `json:"createdAt"` // unix seconds, sortable
}

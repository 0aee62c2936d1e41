package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// openIntegrationStore connects to the test database, applies migrations
// and truncates the version tables. Skips unless LEXVAULT_TEST_DATABASE_URL
// is set.
func openIntegrationStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dsn := strings.TrimSpace(os.Getenv("LEXVAULT_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("LEXVAULT_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if _, err := db.ExecContext(ctx, `
		TRUNCATE document_version_comments, document_version_tags,
			document_changes, document_versions RESTART IDENTITY CASCADE
	`); err != nil {
		t.Fatalf("truncate version tables: %v", err)
	}

	return NewPostgresStore(db), ctx
}

func TestPersistVersionTransaction(t *testing.T) {
	s, ctx := openIntegrationStore(t)

	v1 := DocumentVersion{
		DocumentID:    1,
		VersionNumber: 1,
		Path:          "policies/privacy.md",
		Content:       "original text",
		ContentHash:   "hash-v1",
		FileSize:      13,
		MimeType:      "text/markdown",
		UploadType:    UploadInitial,
		UploadedBy:    "avery",
	}
	v1ID, err := s.PersistVersion(ctx, v1, nil)
	if err != nil {
		t.Fatalf("persist v1: %v", err)
	}

	v2 := v1
	v2.VersionNumber = 2
	v2.Content = "revised text"
	v2.ContentHash = "hash-v2"
	v2.UploadType = UploadUpdate
	change := DocumentChange{
		FromVersionID:    v1ID,
		ChangeType:       "modified",
		OldContent:       "original text",
		NewContent:       "revised text",
		LineStart:        1,
		LineEnd:          1,
		ConfidenceScore:  0.95,
		ChangeSummary:    "Modified content, added 0 words",
		ImpactAssessment: "low",
	}
	v2ID, err := s.PersistVersion(ctx, v2, []DocumentChange{change})
	if err != nil {
		t.Fatalf("persist v2: %v", err)
	}

	// Exactly one current row, and it is v2.
	current, err := s.GetCurrentVersion(ctx, 1)
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	if current.ID != v2ID || current.VersionNumber != 2 {
		t.Fatalf("expected v2 to be current, got version %d (id %d)", current.VersionNumber, current.ID)
	}
	var currentCount int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM document_versions WHERE document_id=1 AND is_current
	`).Scan(&currentCount); err != nil {
		t.Fatalf("count current rows: %v", err)
	}
	if currentCount != 1 {
		t.Fatalf("expected exactly one current row, got %d", currentCount)
	}

	// The change row landed in the same transaction, pointed at v2.
	changes, err := s.GetChanges(ctx, v1ID, v2ID)
	if err != nil {
		t.Fatalf("get changes: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected 1 change row, got %d", len(changes))
	}
	if changes[0].ToVersionID != v2ID || changes[0].ChangeType != "modified" {
		t.Fatalf("unexpected change row: %+v", changes[0])
	}
	if string(changes[0].ComplianceImpact) != "{}" {
		t.Fatalf("nil compliance must default to {}, got %s", changes[0].ComplianceImpact)
	}
}

func TestPersistVersionDuplicateNumberRollsBack(t *testing.T) {
	s, ctx := openIntegrationStore(t)

	v1 := DocumentVersion{
		DocumentID:    2,
		VersionNumber: 1,
		Path:          "a.txt",
		Content:       "one",
		ContentHash:   "dup-hash-1",
		FileSize:      3,
		MimeType:      "text/plain",
		UploadType:    UploadInitial,
		UploadedBy:    "avery",
	}
	if _, err := s.PersistVersion(ctx, v1, nil); err != nil {
		t.Fatalf("persist v1: %v", err)
	}
	v2 := v1
	v2.VersionNumber = 2
	v2.Content = "two"
	v2.ContentHash = "dup-hash-2"
	v2ID, err := s.PersistVersion(ctx, v2, nil)
	if err != nil {
		t.Fatalf("persist v2: %v", err)
	}

	// A racing writer reusing version number 2 must fail loudly on the
	// (document_id, version_number) constraint.
	racer := v2
	racer.Content = "two prime"
	racer.ContentHash = "dup-hash-3"
	if _, err := s.PersistVersion(ctx, racer, nil); err == nil {
		t.Fatal("expected duplicate version number to fail")
	}

	// The failed transaction rolled back whole: no third row, and the
	// demotion of v2 was undone.
	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM document_versions WHERE document_id=2
	`).Scan(&total); err != nil {
		t.Fatalf("count versions: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 versions after failed insert, got %d", total)
	}
	current, err := s.GetCurrentVersion(ctx, 2)
	if err != nil {
		t.Fatalf("get current after failed insert: %v", err)
	}
	if current.ID != v2ID {
		t.Fatalf("v2 must remain current after rollback, current is id %d", current.ID)
	}
}

func TestGetVersionByHash(t *testing.T) {
	s, ctx := openIntegrationStore(t)

	base := DocumentVersion{
		DocumentID: 3,
		Path:       "b.txt",
		FileSize:   4,
		MimeType:   "text/plain",
		UploadType: UploadInitial,
		UploadedBy: "avery",
	}
	v1 := base
	v1.VersionNumber = 1
	v1.Content = "alpha"
	v1.ContentHash = "hash-alpha"
	if _, err := s.PersistVersion(ctx, v1, nil); err != nil {
		t.Fatalf("persist v1: %v", err)
	}
	v2 := base
	v2.VersionNumber = 2
	v2.Content = "beta"
	v2.ContentHash = "hash-beta"
	v2.UploadType = UploadUpdate
	if _, err := s.PersistVersion(ctx, v2, nil); err != nil {
		t.Fatalf("persist v2: %v", err)
	}
	// Rollback-style version 3 repeats v1's content hash.
	v3 := v1
	v3.VersionNumber = 3
	v3.UploadType = UploadRollback
	if _, err := s.PersistVersion(ctx, v3, nil); err != nil {
		t.Fatalf("persist v3: %v", err)
	}

	found, err := s.GetVersionByHash(ctx, 3, "hash-alpha")
	if err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if found.VersionNumber != 3 {
		t.Fatalf("expected the most recent match (version 3), got %d", found.VersionNumber)
	}

	_, err = s.GetVersionByHash(ctx, 3, "hash-missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found for unknown hash, got %v", err)
	}

	// Hash lookups are scoped per document.
	_, err = s.GetVersionByHash(ctx, 99, "hash-alpha")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found for wrong document, got %v", err)
	}
}

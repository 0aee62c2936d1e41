package version

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lexvault/api/internal/diff"
	"lexvault/api/internal/store"
)

// memStore is an in-memory dataStore with the same uniqueness and
// current-flag behavior the SQL schema enforces.
type memStore struct {
	nextID   int64
	versions []store.DocumentVersion
	changes  []store.DocumentChange
	comments []store.VersionComment
	tags     []store.VersionTag

	persistFn func(context.Context, store.DocumentVersion, []store.DocumentChange) (int64, error)
}

func newMemStore() *memStore {
	return &memStore{nextID: 1}
}

func (m *memStore) GetLatestVersionNumber(_ context.Context, documentID int64) (int, error) {
	max := 0
	for _, v := range m.versions {
		if v.DocumentID == documentID && v.VersionNumber > max {
			max = v.VersionNumber
		}
	}
	return max, nil
}

func (m *memStore) GetVersion(_ context.Context, documentID int64, versionNumber int) (store.DocumentVersion, error) {
	for _, v := range m.versions {
		if v.DocumentID == documentID && v.VersionNumber == versionNumber {
			return v, nil
		}
	}
	return store.DocumentVersion{}, sql.ErrNoRows
}

func (m *memStore) GetVersionByID(_ context.Context, versionID int64) (store.DocumentVersion, error) {
	for _, v := range m.versions {
		if v.ID == versionID {
			return v, nil
		}
	}
	return store.DocumentVersion{}, sql.ErrNoRows
}

func (m *memStore) GetCurrentVersion(_ context.Context, documentID int64) (store.DocumentVersion, error) {
	for _, v := range m.versions {
		if v.DocumentID == documentID && v.IsCurrent {
			return v, nil
		}
	}
	return store.DocumentVersion{}, sql.ErrNoRows
}

func (m *memStore) PersistVersion(ctx context.Context, v store.DocumentVersion, changes []store.DocumentChange) (int64, error) {
	if m.persistFn != nil {
		return m.persistFn(ctx, v, changes)
	}
	for _, existing := range m.versions {
		if existing.DocumentID == v.DocumentID && existing.VersionNumber == v.VersionNumber {
			return 0, fmt.Errorf("duplicate key (document_id, version_number)=(%d, %d)", v.DocumentID, v.VersionNumber)
		}
	}
	for i := range m.versions {
		if m.versions[i].DocumentID == v.DocumentID {
			m.versions[i].IsCurrent = false
		}
	}
	v.ID = m.nextID
	m.nextID++
	v.IsCurrent = true
	v.CreatedAt = time.Now()
	m.versions = append(m.versions, v)
	for _, change := range changes {
		change.ToVersionID = v.ID
		m.changes = append(m.changes, change)
	}
	return v.ID, nil
}

func (m *memStore) ListVersions(_ context.Context, documentID int64, limit int) ([]store.VersionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	items := make([]store.VersionSummary, 0)
	for i := len(m.versions) - 1; i >= 0; i-- {
		v := m.versions[i]
		if v.DocumentID != documentID {
			continue
		}
		items = append(items, store.VersionSummary{
			ID:            v.ID,
			DocumentID:    v.DocumentID,
			VersionNumber: v.VersionNumber,
			ContentHash:   v.ContentHash,
			UploadType:    v.UploadType,
			UploadedBy:    v.UploadedBy,
			UploadReason:  v.UploadReason,
			IsCurrent:     v.IsCurrent,
			CreatedAt:     v.CreatedAt,
		})
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (m *memStore) GetChanges(_ context.Context, fromVersionID, toVersionID int64) ([]store.DocumentChange, error) {
	items := make([]store.DocumentChange, 0)
	for _, c := range m.changes {
		if c.FromVersionID == fromVersionID && c.ToVersionID == toVersionID {
			items = append(items, c)
		}
	}
	return items, nil
}

func (m *memStore) InsertComment(_ context.Context, comment store.VersionComment) (int64, error) {
	comment.ID = m.nextID
	m.nextID++
	m.comments = append(m.comments, comment)
	return comment.ID, nil
}

func (m *memStore) InsertTag(_ context.Context, tag store.VersionTag) (int64, error) {
	tag.ID = m.nextID
	m.nextID++
	m.tags = append(m.tags, tag)
	return tag.ID, nil
}

func (m *memStore) GetVersionAtTime(_ context.Context, documentID int64, at time.Time) (store.DocumentVersion, error) {
	var best *store.DocumentVersion
	for i := range m.versions {
		v := m.versions[i]
		if v.DocumentID != documentID || v.CreatedAt.After(at) {
			continue
		}
		if best == nil || v.VersionNumber > best.VersionNumber {
			best = &m.versions[i]
		}
	}
	if best == nil {
		return store.DocumentVersion{}, sql.ErrNoRows
	}
	return *best, nil
}

func (m *memStore) ListVersionsBetween(_ context.Context, start, end time.Time, documentID int64, limit int) ([]store.VersionSummary, error) {
	items := make([]store.VersionSummary, 0)
	for _, v := range m.versions {
		if v.CreatedAt.Before(start) || v.CreatedAt.After(end) {
			continue
		}
		if documentID > 0 && v.DocumentID != documentID {
			continue
		}
		items = append(items, store.VersionSummary{
			ID:            v.ID,
			DocumentID:    v.DocumentID,
			VersionNumber: v.VersionNumber,
			CreatedAt:     v.CreatedAt,
		})
	}
	return items, nil
}

type fakeCache struct {
	pointers    map[int64][2]int64
	invalidates int
	sets        int
}

func newFakeCache() *fakeCache {
	return &fakeCache{pointers: make(map[int64][2]int64)}
}

func (f *fakeCache) GetCurrent(_ context.Context, documentID int64) (int64, int, bool, error) {
	p, ok := f.pointers[documentID]
	if !ok {
		return 0, 0, false, nil
	}
	return p[0], int(p[1]), true, nil
}

func (f *fakeCache) SetCurrent(_ context.Context, documentID, versionID int64, versionNumber int) error {
	f.sets++
	f.pointers[documentID] = [2]int64{versionID, int64(versionNumber)}
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context, documentID int64) error {
	f.invalidates++
	delete(f.pointers, documentID)
	return nil
}

type slowArchiver struct {
	started chan struct{}
	release chan struct{}
	done    chan store.DocumentVersion
}

func newSlowArchiver() *slowArchiver {
	return &slowArchiver{
		started: make(chan struct{}),
		release: make(chan struct{}),
		done:    make(chan store.DocumentVersion, 1),
	}
}

func (a *slowArchiver) ArchiveVersion(_ context.Context, v store.DocumentVersion) {
	close(a.started)
	<-a.release
	a.done <- v
}

func newTestService(m *memStore, opts ...Option) *Service {
	return New(m, diff.NewAnalyzer(), zerolog.Nop(), opts...)
}

func TestCreateVersionSequence(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m)
	ctx := context.Background()

	contents := []string{"first draft", "second draft", "third draft"}
	for i, content := range contents {
		result, err := svc.CreateVersion(ctx, CreateVersionInput{
			DocumentID: 7,
			Content:    content,
			Path:       "policies/retention.md",
			UploadedBy: "avery",
		})
		if err != nil {
			t.Fatalf("create version %d: %v", i+1, err)
		}
		if result.VersionNumber != i+1 {
			t.Fatalf("expected version number %d, got %d", i+1, result.VersionNumber)
		}
	}

	currentCount := 0
	for _, v := range m.versions {
		if v.IsCurrent {
			currentCount++
			if v.VersionNumber != 3 {
				t.Fatalf("expected version 3 to be current, got %d", v.VersionNumber)
			}
		}
	}
	if currentCount != 1 {
		t.Fatalf("expected exactly one current version, got %d", currentCount)
	}

	if m.versions[0].UploadType != store.UploadInitial {
		t.Fatalf("first version should default to initial, got %s", m.versions[0].UploadType)
	}
	if m.versions[1].UploadType != store.UploadUpdate {
		t.Fatalf("later versions should default to update, got %s", m.versions[1].UploadType)
	}
	if m.versions[0].MimeType != "text/markdown" {
		t.Fatalf("expected markdown mime type, got %s", m.versions[0].MimeType)
	}
}

func TestCreateVersionFullDeletion(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m)
	ctx := context.Background()

	mustCreate(t, svc, 4, "section one\nsection two")

	result, err := svc.CreateVersion(ctx, CreateVersionInput{
		DocumentID: 4,
		Content:    "",
		Path:       "doc.txt",
		UploadedBy: "avery",
	})
	if err != nil {
		t.Fatalf("emptying a document must be a valid version: %v", err)
	}
	if result.VersionNumber != 2 {
		t.Fatalf("expected version 2, got %d", result.VersionNumber)
	}
	if result.ChangeCount == 0 {
		t.Fatal("wiping all content must produce change records")
	}

	current, err := svc.CurrentVersion(ctx, 4)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if current.Content != "" {
		t.Fatalf("expected empty current content, got %q", current.Content)
	}
}

func TestCreateVersionDuplicateRejected(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m)
	ctx := context.Background()

	in := CreateVersionInput{DocumentID: 1, Content: "unchanged content", Path: "a.txt", UploadedBy: "avery"}
	if _, err := svc.CreateVersion(ctx, in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.CreateVersion(ctx, in)
	if !errors.Is(err, ErrDuplicateContent) {
		t.Fatalf("expected ErrDuplicateContent, got %v", err)
	}
	if len(m.versions) != 1 {
		t.Fatalf("duplicate must not create a version row, have %d", len(m.versions))
	}
}

func TestCreateVersionAnalysisFailureAborts(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m)
	ctx := context.Background()

	if _, err := svc.CreateVersion(ctx, CreateVersionInput{DocumentID: 1, Content: "clean", Path: "a.txt", UploadedBy: "avery"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.CreateVersion(ctx, CreateVersionInput{DocumentID: 1, Content: string([]byte{0xff, 0xfe}), Path: "a.txt", UploadedBy: "avery"})
	var analysisErr *diff.AnalysisError
	if !errors.As(err, &analysisErr) {
		t.Fatalf("expected AnalysisError, got %v", err)
	}
	if len(m.versions) != 1 {
		t.Fatalf("failed analysis must not persist a version, have %d", len(m.versions))
	}
}

func TestCreateVersionStorageFailurePropagates(t *testing.T) {
	m := newMemStore()
	m.persistFn = func(context.Context, store.DocumentVersion, []store.DocumentChange) (int64, error) {
		return 0, errors.New("connection reset")
	}
	svc := newTestService(m)

	_, err := svc.CreateVersion(context.Background(), CreateVersionInput{DocumentID: 1, Content: "x", Path: "a.txt", UploadedBy: "avery"})
	var storageError *StorageError
	if !errors.As(err, &storageError) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

func TestRollback(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m)
	ctx := context.Background()

	mustCreate(t, svc, 5, "version one content")
	mustCreate(t, svc, 5, "version two content")
	mustCreate(t, svc, 5, "version three content")

	result, err := svc.Rollback(ctx, 5, 1, "jordan", "restore original wording")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if result.VersionNumber != 4 {
		t.Fatalf("rollback must append, expected version 4, got %d", result.VersionNumber)
	}

	restored, err := svc.GetVersion(ctx, 5, 4)
	if err != nil {
		t.Fatalf("get restored version: %v", err)
	}
	if restored.Content != "version one content" {
		t.Fatalf("restored content mismatch: %q", restored.Content)
	}
	if restored.UploadType != store.UploadRollback {
		t.Fatalf("expected rollback upload type, got %s", restored.UploadType)
	}
	if !strings.Contains(restored.UploadReason, "Rollback to version 1") {
		t.Fatalf("expected composed reason, got %q", restored.UploadReason)
	}
}

func TestRollbackToCurrentContentIsDuplicate(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m)
	ctx := context.Background()

	mustCreate(t, svc, 2, "alpha")
	mustCreate(t, svc, 2, "beta")

	// Version 2 is current; its content still matches the current hash.
	_, err := svc.Rollback(ctx, 2, 2, "jordan", "noop")
	if !errors.Is(err, ErrDuplicateContent) {
		t.Fatalf("expected ErrDuplicateContent, got %v", err)
	}
}

func TestRollbackTargetNotFound(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m)

	mustCreate(t, svc, 2, "alpha")
	_, err := svc.Rollback(context.Background(), 2, 9, "jordan", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompareUsesPersistedChanges(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m)
	ctx := context.Background()

	mustCreate(t, svc, 3, "line a\nline b")
	mustCreate(t, svc, 3, "line a\nline c")

	comparison, err := svc.Compare(ctx, 3, 1, 2)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if comparison.Statistics.TotalChanges != 1 || comparison.Statistics.Modifications != 1 {
		t.Fatalf("unexpected statistics: %+v", comparison.Statistics)
	}
	if len(comparison.Changes) != 1 {
		t.Fatalf("expected persisted change, got %d", len(comparison.Changes))
	}
}

func TestCompareStatisticsSymmetry(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m)
	ctx := context.Background()

	mustCreate(t, svc, 4, "shared line")
	mustCreate(t, svc, 4, "shared line\nextra line one\nextra line two")

	forward, err := svc.Compare(ctx, 4, 1, 2)
	if err != nil {
		t.Fatalf("forward compare: %v", err)
	}
	backward, err := svc.Compare(ctx, 4, 2, 1)
	if err != nil {
		t.Fatalf("backward compare: %v", err)
	}

	if forward.Statistics.Additions != 1 {
		t.Fatalf("expected one addition going forward, got %+v", forward.Statistics)
	}
	if forward.Statistics.TotalChanges != backward.Statistics.TotalChanges {
		t.Fatalf("total changes differ: %+v vs %+v", forward.Statistics, backward.Statistics)
	}
	if forward.Statistics.Additions != backward.Statistics.Deletions ||
		forward.Statistics.Deletions != backward.Statistics.Additions {
		t.Fatalf("additions/deletions not swapped: %+v vs %+v", forward.Statistics, backward.Statistics)
	}
	if forward.Statistics.Modifications != backward.Statistics.Modifications {
		t.Fatalf("modification counts differ: %+v vs %+v", forward.Statistics, backward.Statistics)
	}
}

func TestCompareNonAdjacentComputesOnDemand(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m)
	ctx := context.Background()

	mustCreate(t, svc, 6, "one")
	mustCreate(t, svc, 6, "two")
	mustCreate(t, svc, 6, "three")

	persistedBefore := len(m.changes)
	comparison, err := svc.Compare(ctx, 6, 1, 3)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if comparison.Statistics.TotalChanges == 0 {
		t.Fatal("expected on-demand changes for distinct versions")
	}
	if len(m.changes) != persistedBefore {
		t.Fatal("ad hoc comparison must not persist change records")
	}
}

func TestCompareMissingVersion(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m)

	mustCreate(t, svc, 1, "only one")
	_, err := svc.Compare(context.Background(), 1, 1, 2)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListVersionsEmptyDocument(t *testing.T) {
	svc := newTestService(newMemStore())
	_, err := svc.ListVersions(context.Background(), 42, 10)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty document, got %v", err)
	}
}

func TestAddCommentRequiresVersion(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m)
	ctx := context.Background()

	_, err := svc.AddComment(ctx, store.VersionComment{VersionID: 99, Commenter: "kim", CommentText: "?"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mustCreate(t, svc, 1, "content")
	id, err := svc.AddComment(ctx, store.VersionComment{VersionID: m.versions[0].ID, Commenter: "kim", CommentText: "looks right"})
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a comment id")
	}
}

func TestCurrentVersionCachePointer(t *testing.T) {
	m := newMemStore()
	cache := newFakeCache()
	svc := newTestService(m, WithCache(cache))
	ctx := context.Background()

	mustCreate(t, svc, 9, "cached content")
	if cache.invalidates == 0 || cache.sets == 0 {
		t.Fatalf("create must refresh the pointer cache, invalidates=%d sets=%d", cache.invalidates, cache.sets)
	}

	current, err := svc.CurrentVersion(ctx, 9)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if current.Content != "cached content" {
		t.Fatalf("unexpected current content %q", current.Content)
	}

	mustCreate(t, svc, 9, "newer content")
	current, err = svc.CurrentVersion(ctx, 9)
	if err != nil {
		t.Fatalf("current version after update: %v", err)
	}
	if current.Content != "newer content" {
		t.Fatalf("cache must not serve a stale current version, got %q", current.Content)
	}
}

func TestCreateVersionDoesNotWaitForArchive(t *testing.T) {
	m := newMemStore()
	archiver := newSlowArchiver()
	svc := newTestService(m, WithArchiver(archiver))

	// The archiver blocks until released; creation must return anyway.
	result := mustCreate(t, svc, 13, "archived content")
	if result.VersionNumber != 1 {
		t.Fatalf("expected version 1, got %d", result.VersionNumber)
	}

	select {
	case <-archiver.started:
	case <-time.After(2 * time.Second):
		t.Fatal("archiver was never invoked")
	}

	close(archiver.release)
	select {
	case v := <-archiver.done:
		if v.Content != "archived content" || v.DocumentID != 13 {
			t.Fatalf("unexpected archived version: %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("archiver never completed after release")
	}
}

func TestVersionAtTime(t *testing.T) {
	m := newMemStore()
	svc := newTestService(m)
	ctx := context.Background()

	mustCreate(t, svc, 8, "early")
	m.versions[0].CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustCreate(t, svc, 8, "late")
	m.versions[1].CreatedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	v, err := svc.VersionAtTime(ctx, 8, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("version at time: %v", err)
	}
	if v.Content != "early" {
		t.Fatalf("expected the January version, got %q", v.Content)
	}

	_, err = svc.VersionAtTime(ctx, 8, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first version, got %v", err)
	}
}

func mustCreate(t *testing.T, svc *Service, documentID int64, content string) CreateVersionResult {
	t.Helper()
	result, err := svc.CreateVersion(context.Background(), CreateVersionInput{
		DocumentID: documentID,
		Content:    content,
		Path:       "doc.txt",
		UploadedBy: "avery",
	})
	if err != nil {
		t.Fatalf("create version for document %d: %v", documentID, err)
	}
	return result
}

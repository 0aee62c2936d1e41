// Package archive writes immutable content snapshots to object storage
// for retention. The database remains the system of record; the archive
// is a write-only replica for compliance holds.
package archive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"lexvault/api/internal/store"
)

// Config holds object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioArchiver stores one object per document version.
type MinioArchiver struct {
	client *minio.Client
	bucket string
	log    zerolog.Logger
}

// NewMinioArchiver connects to object storage and ensures the bucket
// exists.
func NewMinioArchiver(cfg Config, log zerolog.Logger) (*MinioArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object storage: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioArchiver{
		client: client,
		bucket: cfg.Bucket,
		log:    log.With().Str("component", "archive").Logger(),
	}, nil
}

// objectKey places versions under their document, one object each.
// Versions are append-only, so keys are never overwritten in practice.
func objectKey(v store.DocumentVersion) string {
	return fmt.Sprintf("documents/%d/v%d.txt", v.DocumentID, v.VersionNumber)
}

// ArchiveVersion writes one version's content to the bucket. Failures are
// logged, never surfaced: the database copy is authoritative and an
// operator can re-archive later.
func (a *MinioArchiver) ArchiveVersion(ctx context.Context, v store.DocumentVersion) {
	key := objectKey(v)
	reader := strings.NewReader(v.Content)
	_, err := a.client.PutObject(ctx, a.bucket, key, reader, int64(len(v.Content)), minio.PutObjectOptions{
		ContentType: v.MimeType,
		UserMetadata: map[string]string{
			"content-hash": v.ContentHash,
			"uploaded-by":  v.UploadedBy,
			"upload-type":  v.UploadType,
		},
	})
	if err != nil {
		a.log.Warn().Err(err).
			Int64("document_id", v.DocumentID).
			Int("version", v.VersionNumber).
			Msg("archive version failed")
		return
	}
	a.log.Debug().
		Str("key", key).
		Int64("document_id", v.DocumentID).
		Int("version", v.VersionNumber).
		Msg("archived version")
}

// RetrieveVersion reads an archived snapshot back, used for audit
// verification against the database copy.
func (a *MinioArchiver) RetrieveVersion(ctx context.Context, documentID int64, versionNumber int) (string, error) {
	key := fmt.Sprintf("documents/%d/v%d.txt", documentID, versionNumber)
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get archived version %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("read archived version %s: %w", key, err)
	}
	return string(data), nil
}

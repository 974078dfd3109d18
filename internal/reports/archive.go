package reports

import (
	"bytes"
	"context"
	"fmt"

	"sales_enforcer_backend/platform/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive stores generated digest artifacts (the scoreboard CSV) in
// object storage so past weeks remain retrievable after the email is
// long gone.
type Archive struct {
	client *minio.Client
	bucket string
}

func NewArchive(cfg config.ArchiveConfig) (*Archive, error) {
	if !cfg.IsArchiveEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	return &Archive{client: client, bucket: cfg.GetReportArchiveBucket()}, nil
}

// Store writes one object. Safe to call on a nil archive.
func (a *Archive) Store(ctx context.Context, objectName string, data []byte, contentType string) error {
	if a == nil || a.client == nil {
		return nil
	}

	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check archive bucket: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create archive bucket: %w", err)
		}
	}

	_, err = a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", objectName, err)
	}
	return nil
}

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

const (
	// BatchPrefix holds merge batch manifests.
	BatchPrefix = "batches/"
	// RunPrefix holds audit run reports.
	RunPrefix = "runs/"
)

// Prefixes lists the archive layout.
func Prefixes() []string {
	return []string{BatchPrefix, RunPrefix}
}

// BatchKey is the object name of a batch manifest.
func BatchKey(batchID string) string {
	return path.Join(BatchPrefix, batchID+".json")
}

// RunKey is the object name of a run report.
func RunKey(runID string) string {
	return path.Join(RunPrefix, runID+".json")
}

// Archive stores JSON documents in one bucket. A nil Archive, or one without a
// client, discards writes.
type Archive struct {
	client Client
	bucket string
	logger *zap.Logger
}

// NewArchive creates an Archive over client.
func NewArchive(client Client, bucket string, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{client: client, bucket: bucket, logger: logger}
}

// Enabled reports whether writes reach object storage.
func (a *Archive) Enabled() bool {
	return a != nil && a.client != nil
}

// Client returns the underlying client.
func (a *Archive) Client() Client {
	if a == nil {
		return nil
	}
	return a.client
}

// Bucket returns the archive bucket.
func (a *Archive) Bucket() string {
	if a == nil {
		return ""
	}
	return a.bucket
}

// PutJSON uploads v as key.
func (a *Archive) PutJSON(ctx context.Context, key string, v any) error {
	if !a.Enabled() {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Store uploads v and logs failures instead of returning them. Archiving never
// fails the operation that produced the document.
func (a *Archive) Store(ctx context.Context, key string, v any) {
	if err := a.PutJSON(ctx, key, v); err != nil {
		a.logger.Warn("Archive upload failed", zap.String("key", key), zap.Error(err))
	}
}

// GetJSON downloads key into v.
func (a *Archive) GetJSON(ctx context.Context, key string, v any) error {
	if !a.Enabled() {
		return fmt.Errorf("archive disabled")
	}
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	return json.Unmarshal(data, v)
}

// EnsureBucket creates the bucket when missing.
func (a *Archive) EnsureBucket(ctx context.Context, region string) error {
	if !a.Enabled() {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

package checks

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"catalog-reconciler/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// RequiredPrefixes lists the folders that must exist in the archive bucket.
var RequiredPrefixes = storage.Prefixes()

// CheckStructure returns the archive folders missing from the bucket.
func CheckStructure(ctx context.Context, client storage.Client, bucket string) ([]string, error) {
	var missing []string

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	for _, folder := range RequiredPrefixes {
		folderPath := folder
		if !strings.HasSuffix(folderPath, "/") {
			folderPath += "/"
		}

		opts := minio.ListObjectsOptions{
			Prefix:    folderPath,
			Recursive: false,
			MaxKeys:   1,
		}

		found := false
		for range client.ListObjects(ctx, bucket, opts) {
			found = true
			break
		}

		if !found {
			missing = append(missing, folder)
		}
	}

	return missing, nil
}

// FixStructure creates the missing folders as zero-byte placeholder objects.
func FixStructure(ctx context.Context, client storage.Client, bucket string, logger *zap.Logger, missing []string) error {
	for _, folder := range missing {
		folderPath := folder
		if !strings.HasSuffix(folderPath, "/") {
			folderPath += "/"
		}

		_, err := client.PutObject(ctx, bucket, folderPath, bytes.NewReader([]byte{}), 0, minio.PutObjectOptions{})
		if err != nil {
			logger.Error("Failed to create folder", zap.String("folder", folder), zap.Error(err))
			return err
		}
		logger.Info("Created missing folder", zap.String("folder", folder))
	}
	return nil
}

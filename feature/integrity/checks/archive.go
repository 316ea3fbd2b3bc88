package checks

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"catalog-reconciler/core/models"
	"catalog-reconciler/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ArchiveReport lists archived documents whose batch or run no longer exists.
type ArchiveReport struct {
	Scanned int      `json:"scanned"`
	Orphans []string `json:"orphans"`
}

const idChunk = 500

// CheckArchive scans the batch and run folders and reports documents with no
// matching database row.
func CheckArchive(ctx context.Context, client storage.Client, bucket string, db *gorm.DB) (*ArchiveReport, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	report := &ArchiveReport{Orphans: []string{}}

	folders := []struct {
		prefix string
		model  any
	}{
		{storage.BatchPrefix, &models.MergeBatch{}},
		{storage.RunPrefix, &models.AuditRun{}},
	}
	for _, f := range folders {
		keys := make(map[string]string)
		opts := minio.ListObjectsOptions{Prefix: f.prefix, Recursive: true}
		for obj := range client.ListObjects(ctx, bucket, opts) {
			if obj.Err != nil {
				return nil, fmt.Errorf("list %s: %w", f.prefix, obj.Err)
			}
			if !strings.HasSuffix(obj.Key, ".json") {
				continue
			}
			report.Scanned++
			keys[strings.TrimSuffix(path.Base(obj.Key), ".json")] = obj.Key
		}

		ids := make([]string, 0, len(keys))
		for id := range keys {
			ids = append(ids, id)
		}
		existing := make(map[string]struct{}, len(ids))
		for start := 0; start < len(ids); start += idChunk {
			end := min(start+idChunk, len(ids))
			var found []string
			if err := db.WithContext(ctx).Model(f.model).Where("id IN ?", ids[start:end]).Pluck("id", &found).Error; err != nil {
				return nil, fmt.Errorf("lookup %s ids: %w", f.prefix, err)
			}
			for _, id := range found {
				existing[id] = struct{}{}
			}
		}
		for id, key := range keys {
			if _, ok := existing[id]; !ok {
				report.Orphans = append(report.Orphans, key)
			}
		}
	}
	return report, nil
}

// RemoveOrphans deletes the given archive objects.
func RemoveOrphans(ctx context.Context, client storage.Client, bucket string, logger *zap.Logger, keys []string) error {
	objects := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- minio.ObjectInfo{Key: k}
	}
	close(objects)

	var errs []error
	for rerr := range client.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		logger.Error("Failed to remove archive object", zap.String("key", rerr.ObjectName), zap.Error(rerr.Err))
		errs = append(errs, fmt.Errorf("%s: %w", rerr.ObjectName, rerr.Err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logger.Info("Removed orphaned archive objects", zap.Int("count", len(keys)))
	return nil
}

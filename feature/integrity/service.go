package integrity

import (
	"context"
	"fmt"
	"time"

	"catalog-reconciler/core/storage"
	"catalog-reconciler/feature/integrity/checks"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultStuckAfter is how long a batch may stay pending before it is reported.
const DefaultStuckAfter = time.Hour

var errNoStorage = fmt.Errorf("archive storage is not configured")

// Service handles integrity checks.
type Service struct {
	client storage.Client
	bucket string
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a new integrity service. A nil client disables the
// archive checks.
func NewService(client storage.Client, bucket string, logger *zap.Logger, db *gorm.DB) *Service {
	return &Service{
		client: client,
		bucket: bucket,
		logger: logger,
		db:     db,
	}
}

// CheckStructure returns a list of missing archive folders.
func (s *Service) CheckStructure(ctx context.Context) ([]string, error) {
	if s.client == nil {
		return nil, errNoStorage
	}
	return checks.CheckStructure(ctx, s.client, s.bucket)
}

// FixStructure creates the missing folders.
func (s *Service) FixStructure(ctx context.Context, missing []string) error {
	if s.client == nil {
		return errNoStorage
	}
	return checks.FixStructure(ctx, s.client, s.bucket, s.logger, missing)
}

// CheckArchive reports archived documents without a batch or run.
func (s *Service) CheckArchive(ctx context.Context) (*checks.ArchiveReport, error) {
	if s.client == nil {
		return nil, errNoStorage
	}
	return checks.CheckArchive(ctx, s.client, s.bucket, s.db)
}

// FixArchive removes orphaned archive documents.
func (s *Service) FixArchive(ctx context.Context, orphans []string) error {
	if s.client == nil {
		return errNoStorage
	}
	if len(orphans) == 0 {
		return nil
	}
	return checks.RemoveOrphans(ctx, s.client, s.bucket, s.logger, orphans)
}

// CheckSchema compares the database with the models.
func (s *Service) CheckSchema() (*checks.SchemaReport, error) {
	return checks.CheckSchema(s.db)
}

// CheckLedger cross-checks candidates, history and batches.
func (s *Service) CheckLedger(ctx context.Context) (*checks.LedgerReport, error) {
	return checks.CheckLedger(ctx, s.db, DefaultStuckAfter)
}

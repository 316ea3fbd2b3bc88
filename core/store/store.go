package store

import (
	"context"
	"errors"
	"fmt"

	"catalog-reconciler/core/models"

	"gorm.io/gorm"
)

// Store is the gorm-backed repository.
type Store struct {
	db *gorm.DB
}

// New wraps db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate creates or updates the tables for every model.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// WithinTx runs fn in a transaction. fn must only use the Store it receives.
func (s *Store) WithinTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Page bounds a listing.
type Page struct {
	Limit  int
	Offset int
}

const maxPageSize = 500

func (p Page) apply(q *gorm.DB) *gorm.DB {
	limit := p.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	q = q.Limit(limit)
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}
	return q
}

func notFound(err error, sentinel error, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return err
}

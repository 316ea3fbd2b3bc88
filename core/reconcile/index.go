package reconcile

import (
	"context"

	"catalog-reconciler/core/models"
	"catalog-reconciler/core/store"
)

// ScopeIndex resolves audit scopes against the database. Every call reads the
// current record set, so records and observations written by another process
// before a run starts are always covered.
type ScopeIndex struct {
	store *store.Store
}

// NewScopeIndex creates an index over st.
func NewScopeIndex(st *store.Store) *ScopeIndex {
	return &ScopeIndex{store: st}
}

// Resolve maps a scope to its targets. Explicit ids that have no record are
// returned in Unknown so callers can report them.
func (x *ScopeIndex) Resolve(ctx context.Context, scope Scope) (*Targets, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	if scope.Kind == models.ScopeAll {
		ids, err := x.store.ListRecordIDs(ctx)
		if err != nil {
			return nil, err
		}
		return &Targets{IDs: ids, Unknown: map[string]struct{}{}}, nil
	}

	ids := dedupe(scope.IDs)
	existing, err := x.store.ExistingRecordIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	targets := &Targets{IDs: ids, Unknown: map[string]struct{}{}}
	for _, id := range ids {
		if _, ok := existing[id]; !ok {
			targets.Unknown[id] = struct{}{}
		}
	}
	return targets, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package reconcile

import (
	"fmt"

	"catalog-reconciler/core/models"
)

// RecordResult summarizes one record reconciliation.
type RecordResult struct {
	// RecordID is the reconciled record.
	RecordID string `json:"record_id"`

	// Discrepancies are the open discrepancies created or refreshed.
	Discrepancies []models.Candidate `json:"discrepancies"`

	// Enrichments are the open enrichments created or refreshed.
	Enrichments []models.Candidate `json:"enrichments"`

	// Created counts candidates that did not exist before.
	Created int `json:"created"`

	// Refreshed counts open candidates updated in place.
	Refreshed int `json:"refreshed"`

	// Superseded counts applied candidates retired by newer observations.
	Superseded int `json:"superseded"`

	// Retired counts pending discrepancies closed because the record now agrees.
	Retired int `json:"retired"`

	// Unclassified lists fields the comparator could not handle.
	Unclassified []FieldError `json:"unclassified,omitempty"`
}

// FieldError is a per-field comparator failure.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Scope selects the records an audit covers.
type Scope struct {
	// Kind is single, ids or all.
	Kind models.RunScope `json:"scope"`

	// IDs are the requested record ids for single and ids scopes.
	IDs []string `json:"record_ids,omitempty"`
}

// Validate checks that the ids fit the scope kind.
func (s Scope) Validate() error {
	switch s.Kind {
	case models.ScopeSingle:
		if len(s.IDs) != 1 {
			return fmt.Errorf("single scope needs exactly one record id, got %d", len(s.IDs))
		}
	case models.ScopeIDs:
		if len(s.IDs) == 0 {
			return fmt.Errorf("ids scope needs at least one record id")
		}
	case models.ScopeAll:
		if len(s.IDs) > 0 {
			return fmt.Errorf("all scope takes no record ids")
		}
	default:
		return fmt.Errorf("unknown scope %q", s.Kind)
	}
	return nil
}

// Targets are the records a scope resolves to.
type Targets struct {
	// IDs are the records to reconcile, in order, including unknown ones so
	// callers can report them.
	IDs []string

	// Unknown are requested ids with no record.
	Unknown map[string]struct{}
}

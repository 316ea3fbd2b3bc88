package ledger

import (
	"context"
	"fmt"
	"time"

	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/metrics"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/store"

	"go.uber.org/zap"
)

const (
	// ActorPolicy decides candidates the trust policy marked auto-acceptable.
	ActorPolicy = "policy"
	// ActorSystem performs applied and superseded transitions.
	ActorSystem = "system"
)

// Ledger applies lifecycle transitions.
type Ledger struct {
	store   *store.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Ledger.
func New(st *store.Store, logger *zap.Logger, m *metrics.Metrics) *Ledger {
	return &Ledger{store: st, logger: logger, metrics: m}
}

// Resolve records a decision on a candidate. Candidates that are no longer pending
// or provisional are returned unchanged.
func (l *Ledger) Resolve(ctx context.Context, candidateID string, d Decision, actor, notes string) (*models.Candidate, error) {
	target, ok := d.Target()
	if !ok {
		return nil, fmt.Errorf("%w: unknown decision %q", errs.ErrInvalidTransition, d)
	}
	if actor == "" {
		actor = "user"
	}

	var out *models.Candidate
	err := l.store.WithinTx(ctx, func(tx *store.Store) error {
		c, err := tx.GetCandidate(ctx, candidateID)
		if err != nil {
			return err
		}
		out = c
		if !Decidable(c.Status) {
			return nil
		}
		return l.Transition(ctx, tx, c, target, string(d), actor, notes)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Candidate resolved",
		zap.String("candidate_id", candidateID),
		zap.String("decision", string(d)),
		zap.String("status", string(out.Status)),
		zap.String("actor", actor),
	)
	return out, nil
}

// Transition moves c to status to within tx and appends a resolution event. c is
// updated in place.
func (l *Ledger) Transition(ctx context.Context, tx *store.Store, c *models.Candidate, to models.Status, decision, actor, notes string) error {
	from := c.Status
	if !CanTransitionAs(c.Kind, from, to, actor) {
		return fmt.Errorf("%w: %s %s -> %s by %s", errs.ErrInvalidTransition, c.Kind, from, to, actor)
	}

	now := time.Now()
	updates := map[string]any{"updated_at": now}
	switch to {
	case models.StatusAccepted, models.StatusRejected, models.StatusIgnored, models.StatusApproved:
		updates["resolution"] = decision
		updates["resolved_by"] = actor
		updates["resolved_at"] = now
	}
	if notes != "" {
		updates["notes"] = notes
	}

	ok, err := tx.TransitionCandidate(ctx, c.ID, from, to, updates)
	if err != nil {
		return fmt.Errorf("transition candidate %s: %w", c.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: candidate %s is no longer %s", errs.ErrInvalidTransition, c.ID, from)
	}

	if err := tx.AddEvent(ctx, &models.ResolutionEvent{
		CandidateID: c.ID,
		From:        from,
		To:          to,
		Decision:    decision,
		Actor:       actor,
		Notes:       notes,
		At:          now,
	}); err != nil {
		return fmt.Errorf("record resolution event: %w", err)
	}

	c.Status = to
	c.UpdatedAt = now
	if r, ok := updates["resolution"]; ok {
		c.Resolution = r.(string)
		c.ResolvedBy = actor
		c.ResolvedAt = &now
	}
	if notes != "" {
		c.Notes = notes
	}
	l.metrics.IncrementTransition(string(c.Kind), string(to), actorLabel(actor))
	return nil
}

// Ready advances a candidate to the state from which it may be applied: accepted
// for discrepancies, approved for enrichments. Candidates already there are left
// alone.
func (l *Ledger) Ready(ctx context.Context, tx *store.Store, c *models.Candidate, actor string) error {
	target := committable(c.Kind)
	for c.Status != target {
		var next models.Status
		var d Decision
		switch {
		case c.Kind == models.KindEnrichment && c.Status == models.StatusPending:
			next, d = models.StatusProvisional, DecisionProvisional
		case c.Kind == models.KindEnrichment && c.Status == models.StatusProvisional:
			next, d = models.StatusApproved, DecisionApprove
		case c.Kind == models.KindDiscrepancy && c.Status == models.StatusPending:
			next, d = models.StatusAccepted, DecisionAccept
		default:
			return fmt.Errorf("%w: %s candidate %s is %s", errs.ErrInvalidTransition, c.Kind, c.ID, c.Status)
		}
		if err := l.Transition(ctx, tx, c, next, string(d), actor, ""); err != nil {
			return err
		}
	}
	return nil
}

// MarkApplied records that a candidate's value was written by a batch.
func (l *Ledger) MarkApplied(ctx context.Context, tx *store.Store, c *models.Candidate, batchID string) error {
	return l.Transition(ctx, tx, c, models.StatusApplied, "", ActorSystem, "batch "+batchID)
}

// Supersede retires an applied candidate replaced by a newer observation.
func (l *Ledger) Supersede(ctx context.Context, tx *store.Store, c *models.Candidate, reason string) error {
	return l.Transition(ctx, tx, c, models.StatusSuperseded, "", ActorSystem, reason)
}

// Events returns a candidate's transitions.
func (l *Ledger) Events(ctx context.Context, candidateID string) ([]models.ResolutionEvent, error) {
	if _, err := l.store.GetCandidate(ctx, candidateID); err != nil {
		return nil, err
	}
	return l.store.EventsForCandidate(ctx, candidateID)
}

func actorLabel(actor string) string {
	switch actor {
	case ActorPolicy, ActorSystem:
		return actor
	default:
		return "user"
	}
}

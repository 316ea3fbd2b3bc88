package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/ledger"
	"catalog-reconciler/core/lock"
	"catalog-reconciler/core/metrics"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/store"
	"catalog-reconciler/core/trust"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("catalog-reconciler/core/reconcile")

// Deps are the collaborators of an Engine.
type Deps struct {
	Store   *store.Store
	Schema  *compare.Schema
	Policy  *trust.Policy
	Ledger  *ledger.Ledger
	Locker  lock.Locker
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// FieldWorkers bounds concurrent field comparisons per record.
	FieldWorkers int
}

// Engine turns observations into candidates.
type Engine struct {
	store        *store.Store
	schema       *compare.Schema
	policy       *trust.Policy
	ledger       *ledger.Ledger
	locker       lock.Locker
	logger       *zap.Logger
	metrics      *metrics.Metrics
	fieldWorkers int
	sf           singleflight.Group
}

// New creates an Engine. Nil optional dependencies get defaults.
func New(d Deps) *Engine {
	e := &Engine{
		store:        d.Store,
		schema:       d.Schema,
		policy:       d.Policy,
		ledger:       d.Ledger,
		locker:       d.Locker,
		logger:       d.Logger,
		metrics:      d.Metrics,
		fieldWorkers: d.FieldWorkers,
	}
	if e.schema == nil {
		e.schema = compare.DefaultSchema()
	}
	if e.policy == nil {
		e.policy = trust.DefaultPolicy()
	}
	if e.locker == nil {
		e.locker = lock.NewLocal()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.ledger == nil {
		e.ledger = ledger.New(d.Store, e.logger, d.Metrics)
	}
	if e.fieldWorkers <= 0 {
		e.fieldWorkers = 4
	}
	return e
}

// Schema returns the field schema in use.
func (e *Engine) Schema() *compare.Schema {
	return e.schema
}

// Policy returns the trust policy in use.
func (e *Engine) Policy() *trust.Policy {
	return e.policy
}

// ReconcileRecord compares a record with its observations and emits candidates.
// Concurrent calls for the same record and run share one execution.
func (e *Engine) ReconcileRecord(ctx context.Context, recordID, runID string) (*RecordResult, error) {
	v, err, _ := e.sf.Do(runID+"\x00"+recordID, func() (interface{}, error) {
		return e.reconcile(ctx, recordID, runID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RecordResult), nil
}

func (e *Engine) reconcile(ctx context.Context, recordID, runID string) (result *RecordResult, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "reconcile.record",
		trace.WithAttributes(
			attribute.String("record.id", recordID),
			attribute.String("run.id", runID),
		))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			if errors.Is(err, errs.ErrUnknownRecord) {
				outcome = "unknown_record"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		e.metrics.ObserveReconcile(outcome, time.Since(start))
		span.End()
	}()

	release, err := e.locker.Obtain(ctx, lock.RecordKey(recordID))
	if err != nil {
		return nil, fmt.Errorf("lock record %s: %w", recordID, err)
	}
	defer release()

	rec, err := e.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	obs, err := e.store.ObservationsForRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("load observations for %s: %w", recordID, err)
	}

	byField := make(map[string][]models.Observation)
	for _, o := range obs {
		byField[o.FieldName] = append(byField[o.FieldName], o)
	}
	fields := make([]string, 0, len(byField))
	for f := range byField {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	// Compare fields concurrently; emission below stays sequential
	plans := make([]fieldPlan, len(fields))
	g := new(errgroup.Group)
	g.SetLimit(e.fieldWorkers)
	for i, f := range fields {
		i, f := i, f
		g.Go(func() error {
			plans[i] = e.planField(rec, f, byField[f])
			return nil
		})
	}
	_ = g.Wait()

	result = &RecordResult{RecordID: recordID}
	err = e.store.WithinTx(ctx, func(tx *store.Store) error {
		for i := range plans {
			if err := e.emitField(ctx, tx, rec, runID, &plans[i], result); err != nil {
				return fmt.Errorf("field %s: %w", plans[i].field, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("emit candidates for %s: %w", recordID, err)
	}

	for _, p := range plans {
		if p.unclassified != nil {
			result.Unclassified = append(result.Unclassified, *p.unclassified)
		}
	}
	for _, c := range result.Discrepancies {
		e.metrics.IncrementCandidate(string(c.Kind), string(c.DifferenceType))
	}
	for _, c := range result.Enrichments {
		e.metrics.IncrementCandidate(string(c.Kind), string(c.DifferenceType))
	}

	e.logger.Debug("Record reconciled",
		zap.String("record_id", recordID),
		zap.String("run_id", runID),
		zap.Int("fields", len(fields)),
		zap.Int("created", result.Created),
		zap.Int("refreshed", result.Refreshed),
		zap.Int("superseded", result.Superseded),
		zap.Int("unclassified", len(result.Unclassified)),
	)
	return result, nil
}

func (e *Engine) emitField(ctx context.Context, tx *store.Store, rec *models.Record, runID string, plan *fieldPlan, result *RecordResult) error {
	if err := e.supersede(ctx, tx, rec.ID, plan, result); err != nil {
		return err
	}
	if plan.enrichment != nil {
		if err := e.upsertEnrichment(ctx, tx, rec.ID, runID, plan, plan.enrichment, result); err != nil {
			return err
		}
	}
	for i := range plan.discrepancies {
		if err := e.upsertDiscrepancy(ctx, tx, rec.ID, runID, plan, &plan.discrepancies[i], result); err != nil {
			return err
		}
	}
	return e.retire(ctx, tx, rec.ID, plan, result)
}

// supersede retires applied candidates that a newer, different observation replaced.
func (e *Engine) supersede(ctx context.Context, tx *store.Store, recordID string, plan *fieldPlan, result *RecordResult) error {
	if len(plan.observations) == 0 {
		return nil
	}
	applied, err := tx.CandidatesForField(ctx, recordID, plan.field, models.StatusApplied)
	if err != nil {
		return err
	}
	for i := range applied {
		c := &applied[i]
		newer := newerDifferent(c, plan.observations)
		if newer == nil {
			continue
		}
		if err := e.ledger.Supersede(ctx, tx, c, "superseded by observation "+newer.ID); err != nil {
			return err
		}
		result.Superseded++
	}
	return nil
}

// retire closes pending candidates the record no longer needs: discrepancies whose
// value the record already agrees with, and enrichments of populated fields.
func (e *Engine) retire(ctx context.Context, tx *store.Store, recordID string, plan *fieldPlan, result *RecordResult) error {
	if !plan.known || !plan.current.IsPresent() {
		return nil
	}
	pending, err := tx.CandidatesForField(ctx, recordID, plan.field, models.StatusPending)
	if err != nil {
		return err
	}
	for i := range pending {
		c := &pending[i]
		var reason string
		switch c.Kind {
		case models.KindEnrichment:
			reason = "field already populated"
		case models.KindDiscrepancy:
			res, err := compare.Compare(plan.desc, plan.current, c.ObservedValue)
			if err != nil || !res.Difference.Agrees() {
				continue
			}
			reason = "record already holds this value"
		}
		if err := e.ledger.Transition(ctx, tx, c, models.StatusIgnored, string(ledger.DecisionIgnore), ledger.ActorSystem, reason); err != nil {
			return err
		}
		result.Retired++
	}
	return nil
}

func (e *Engine) upsertDiscrepancy(ctx context.Context, tx *store.Store, recordID, runID string, plan *fieldPlan, p *proposal, result *RecordResult) error {
	key := p.value.Key()
	existing, err := tx.FindOpenCandidate(ctx, models.KindDiscrepancy, recordID, plan.field, key, p.source)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.CurrentValue = plan.current
		applyProposal(existing, p, runID)
		if err := tx.SaveCandidate(ctx, existing); err != nil {
			return err
		}
		result.Refreshed++
		result.Discrepancies = append(result.Discrepancies, *existing)
		return nil
	}

	decided, err := e.decidedWithoutNews(ctx, tx, models.KindDiscrepancy, recordID, plan.field, key, p)
	if err != nil || decided {
		return err
	}

	c := newCandidate(recordID, plan.field, plan.current, p, runID)
	if err := tx.SaveCandidate(ctx, c); err != nil {
		return err
	}
	result.Created++
	result.Discrepancies = append(result.Discrepancies, *c)
	return nil
}

// upsertEnrichment keeps one open enrichment per field. A pending one follows the
// current primary value; once a reviewer acted on it only its alternates change.
func (e *Engine) upsertEnrichment(ctx context.Context, tx *store.Store, recordID, runID string, plan *fieldPlan, p *proposal, result *RecordResult) error {
	existing, err := tx.FindOpenCandidate(ctx, models.KindEnrichment, recordID, plan.field, "", "")
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Status == models.StatusPending {
			applyProposal(existing, p, runID)
		} else {
			existing.Alternates = alternatesExcluding(p, existing.ObservedKey)
			existing.RunID = runID
		}
		if err := tx.SaveCandidate(ctx, existing); err != nil {
			return err
		}
		result.Refreshed++
		result.Enrichments = append(result.Enrichments, *existing)
		return nil
	}

	decided, err := e.decidedWithoutNews(ctx, tx, models.KindEnrichment, recordID, plan.field, p.value.Key(), p)
	if err != nil || decided {
		return err
	}

	c := newCandidate(recordID, plan.field, plan.current, p, runID)
	if err := tx.SaveCandidate(ctx, c); err != nil {
		return err
	}
	result.Created++
	result.Enrichments = append(result.Enrichments, *c)
	return nil
}

// decidedWithoutNews reports whether a reviewer already rejected or ignored the
// same proposal and nothing newer has been observed since.
func (e *Engine) decidedWithoutNews(ctx context.Context, tx *store.Store, kind models.CandidateKind, recordID, field, key string, p *proposal) (bool, error) {
	closed, err := tx.FindCandidate(ctx, kind, recordID, field, key, p.source,
		[]models.Status{models.StatusRejected, models.StatusIgnored})
	if err != nil || closed == nil {
		return false, err
	}
	return !p.observedAt.After(closed.ObservedAt), nil
}

func newCandidate(recordID, field string, current compare.Value, p *proposal, runID string) *models.Candidate {
	c := &models.Candidate{
		ID:           uuid.New().String(),
		Kind:         p.kind,
		RecordID:     recordID,
		FieldName:    field,
		CurrentValue: current,
		Status:       models.StatusPending,
	}
	applyProposal(c, p, runID)
	return c
}

func applyProposal(c *models.Candidate, p *proposal, runID string) {
	c.ObservedValue = p.value
	c.ObservedKey = p.value.Key()
	c.DifferenceType = p.result.Difference
	c.Similarity = p.result.Similarity
	c.Confidence = p.confidence
	c.TrustLevel = p.level
	c.SourceName = p.source
	c.SourceRef = p.sourceRef
	c.ObservationIDs = p.observationIDs
	c.Alternates = p.alternates
	c.AutoAcceptable = p.autoAcceptable
	c.ObservedAt = p.observedAt
	c.RunID = runID
}

func alternatesExcluding(p *proposal, key string) []models.Alternate {
	var out []models.Alternate
	if p.value.Key() != key {
		out = append(out, models.Alternate{
			Value:         p.value,
			SourceName:    p.source,
			TrustLevel:    p.level,
			Confidence:    p.confidence,
			ObservationID: firstOrEmpty(p.observationIDs),
			ObservedAt:    p.observedAt,
		})
	}
	for _, a := range p.alternates {
		if a.Value.Key() != key {
			out = append(out, a)
		}
	}
	return out
}

func firstOrEmpty(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

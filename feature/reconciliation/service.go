package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-reconciler/core/audit"
	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/jobs"
	"catalog-reconciler/core/ledger"
	"catalog-reconciler/core/merge"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/reconcile"
	"catalog-reconciler/core/store"
	"catalog-reconciler/core/trust"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidRequest marks a request rejected before any work was done.
var ErrInvalidRequest = errors.New("invalid request")

// Deps are the collaborators of a Service.
type Deps struct {
	Store  *store.Store
	Engine *reconcile.Engine
	Ledger *ledger.Ledger
	Merger *merge.Manager
	Audits *audit.Coordinator
	Jobs   *jobs.Orchestrator
	Logger *zap.Logger
}

// Service handles reconciliation requests.
type Service struct {
	store    *store.Store
	engine   *reconcile.Engine
	ledger   *ledger.Ledger
	merger   *merge.Manager
	audits   *audit.Coordinator
	jobs     *jobs.Orchestrator
	logger   *zap.Logger
	validate *validator.Validate
}

// NewService creates a new reconciliation service.
func NewService(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		engine:   d.Engine,
		ledger:   d.Ledger,
		merger:   d.Merger,
		audits:   d.Audits,
		jobs:     d.Jobs,
		logger:   d.Logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// RecordInput imports a catalog record.
type RecordInput struct {
	Fields map[string]any `json:"fields" validate:"required"`
}

// PutRecord inserts or replaces a record. Only schema fields are accepted.
func (s *Service) PutRecord(ctx context.Context, id string, in RecordInput) (*models.Record, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	if id == "" || len(id) > 64 {
		return nil, fmt.Errorf("%w: record id must be 1-64 characters", ErrInvalidRequest)
	}
	schema := s.engine.Schema()
	fields := make(models.FieldMap, len(in.Fields))
	for name, raw := range in.Fields {
		if _, ok := schema.Descriptor(name); !ok {
			return nil, fmt.Errorf("%w: %w %q", ErrInvalidRequest, errs.ErrInvalidFieldType, name)
		}
		v, err := TypeValue(schema, name, "", raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		if v.IsPresent() {
			fields[name] = v
		}
	}

	rec := &models.Record{ID: id, Fields: fields}
	if existing, err := s.store.GetRecord(ctx, id); err == nil {
		rec.Version = existing.Version + 1
		rec.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, errs.ErrUnknownRecord) {
		return nil, err
	}
	if err := s.store.PutRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("put record: %w", err)
	}
	return rec, nil
}

// GetRecord returns a record.
func (s *Service) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	return s.store.GetRecord(ctx, id)
}

// ObservationInput is one source observation as submitted by a collector.
type ObservationInput struct {
	// ID makes resubmission idempotent; empty generates one.
	ID         string    `json:"id,omitempty" validate:"omitempty,uuid"`
	RecordID   string    `json:"record_id" validate:"required,max=64"`
	FieldName  string    `json:"field_name" validate:"required,max=64"`
	Value      any       `json:"value"`
	Presence   string    `json:"presence,omitempty" validate:"omitempty,oneof=present empty unknown"`
	SourceName string    `json:"source_name" validate:"required,max=128"`
	TrustLevel string    `json:"trust_level" validate:"required,oneof=authoritative high medium low untrusted"`
	ObservedAt time.Time `json:"observed_at" validate:"required"`
	SourceRef  string    `json:"source_ref,omitempty" validate:"max=255"`
	Confidence *float64  `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	Flags      []string  `json:"quality_flags,omitempty" validate:"omitempty,dive,required,max=64"`
}

// IngestRequest is a batch of observations.
type IngestRequest struct {
	Observations []ObservationInput `json:"observations" validate:"required,min=1,max=1000,dive"`
	// Reconcile reconciles the affected records right after ingestion.
	Reconcile bool `json:"reconcile"`
}

// IngestResult reports what an ingestion stored and, optionally, reconciled.
type IngestResult struct {
	Accepted       int                       `json:"accepted"`
	ObservationIDs []string                  `json:"observation_ids"`
	Reconciled     []*reconcile.RecordResult `json:"reconciled,omitempty"`
	Failures       []RecordFailure           `json:"failures,omitempty"`
}

// RecordFailure is a record that could not be reconciled after ingestion.
type RecordFailure struct {
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
}

// IngestObservations stores a batch of observations. Every referenced record
// must exist; otherwise nothing is stored.
func (s *Service) IngestObservations(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	schema := s.engine.Schema()

	var recordIDs []string
	seen := make(map[string]struct{})
	obs := make([]*models.Observation, 0, len(req.Observations))
	for i, in := range req.Observations {
		v, err := TypeValue(schema, in.FieldName, in.Presence, in.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: observation %d: %w", ErrInvalidRequest, i, err)
		}
		id := in.ID
		if id == "" {
			id = uuid.New().String()
		}
		obs = append(obs, &models.Observation{
			ID:           id,
			RecordID:     in.RecordID,
			FieldName:    in.FieldName,
			Value:        v,
			SourceName:   in.SourceName,
			TrustLevel:   trust.Level(in.TrustLevel),
			ObservedAt:   in.ObservedAt.UTC(),
			SourceRef:    in.SourceRef,
			Confidence:   in.Confidence,
			QualityFlags: in.Flags,
		})
		if _, ok := seen[in.RecordID]; !ok {
			seen[in.RecordID] = struct{}{}
			recordIDs = append(recordIDs, in.RecordID)
		}
	}

	existing, err := s.store.ExistingRecordIDs(ctx, recordIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range recordIDs {
		if _, ok := existing[id]; !ok {
			return nil, fmt.Errorf("%w: %s", errs.ErrUnknownRecord, id)
		}
	}
	if err := s.store.AddObservations(ctx, obs...); err != nil {
		return nil, fmt.Errorf("add observations: %w", err)
	}

	result := &IngestResult{Accepted: len(obs), ObservationIDs: make([]string, len(obs))}
	for i, o := range obs {
		result.ObservationIDs[i] = o.ID
	}
	s.logger.Info("Observations ingested",
		zap.Int("observations", len(obs)),
		zap.Int("records", len(recordIDs)),
	)

	if !req.Reconcile {
		return result, nil
	}
	for _, id := range recordIDs {
		res, err := s.engine.ReconcileRecord(ctx, id, "")
		if err != nil {
			if errs.IsConfiguration(err) {
				return nil, err
			}
			result.Failures = append(result.Failures, RecordFailure{RecordID: id, Reason: err.Error()})
			continue
		}
		result.Reconciled = append(result.Reconciled, res)
	}
	return result, nil
}

// StartAudit validates and starts an audit run, returning its initial state.
func (s *Service) StartAudit(ctx context.Context, req audit.RunRequest) (*models.AuditRun, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := (reconcile.Scope{Kind: req.Scope, IDs: req.RecordIDs}).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	runID, err := s.audits.StartRun(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.audits.RunStatus(ctx, runID)
}

// Run returns an audit run's status.
func (s *Service) Run(ctx context.Context, id string) (*models.AuditRun, error) {
	return s.audits.RunStatus(ctx, id)
}

// RunFailures pages through the records a run could not audit.
func (s *Service) RunFailures(ctx context.Context, id string, page store.Page) ([]models.AuditRunFailure, error) {
	return s.audits.Failures(ctx, id, page)
}

// CancelRun cancels an audit run.
func (s *Service) CancelRun(ctx context.Context, id string) (*models.AuditRun, error) {
	return s.audits.Cancel(ctx, id)
}

// CandidateQuery filters candidate listings.
type CandidateQuery struct {
	Status         string `validate:"omitempty,oneof=pending provisional accepted approved rejected ignored applied superseded open"`
	RecordID       string `validate:"max=64"`
	Field          string `validate:"max=64"`
	RunID          string `validate:"max=36"`
	AutoAcceptable *bool
	Limit          int `validate:"gte=0,lte=500"`
	Offset         int `validate:"gte=0"`
}

// ListCandidates lists candidates of one kind. Status "open" selects every
// state still awaiting a decision or a commit.
func (s *Service) ListCandidates(ctx context.Context, kind models.CandidateKind, q CandidateQuery) ([]models.Candidate, error) {
	if err := s.check(q); err != nil {
		return nil, err
	}
	f := store.CandidateFilter{
		Kind:           kind,
		FieldName:      q.Field,
		RunID:          q.RunID,
		AutoAcceptable: q.AutoAcceptable,
		Page:           store.Page{Limit: q.Limit, Offset: q.Offset},
	}
	switch q.Status {
	case "":
	case "open":
		f.Statuses = models.OpenStatuses()
	default:
		f.Statuses = []models.Status{models.Status(q.Status)}
	}
	if q.RecordID != "" {
		f.RecordIDs = []string{q.RecordID}
	}
	out, err := s.store.ListCandidates(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Candidate{}
	}
	return out, nil
}

// ResolveRequest is a reviewer's decision.
type ResolveRequest struct {
	Decision string `json:"decision" validate:"required,oneof=accept reject ignore provisional approve"`
	Actor    string `json:"actor" validate:"max=128"`
	Notes    string `json:"notes" validate:"max=2000"`
}

// Resolve records a decision on a candidate.
func (s *Service) Resolve(ctx context.Context, id string, req ResolveRequest) (*models.Candidate, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.ledger.Resolve(ctx, id, ledger.Decision(req.Decision), req.Actor, req.Notes)
}

// Events returns a candidate's resolution trail.
func (s *Service) Events(ctx context.Context, id string) ([]models.ResolutionEvent, error) {
	if _, err := s.store.GetCandidate(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.Events(ctx, id)
}

// Preview dry-runs a selection.
func (s *Service) Preview(ctx context.Context, sel merge.Selection) (*merge.Plan, error) {
	if err := sel.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return s.merger.Preview(ctx, sel)
}

// CommitRequest commits a selection.
type CommitRequest struct {
	merge.Selection
	BatchID string `json:"batch_id,omitempty" validate:"omitempty,max=36"`
	Actor   string `json:"actor,omitempty" validate:"max=128"`
	// Async runs the commit as a job and returns immediately.
	Async bool `json:"async"`
}

// CommitResponse is either a finished batch or a queued job.
type CommitResponse struct {
	Result  *merge.BatchResult `json:"result,omitempty"`
	BatchID string             `json:"batch_id"`
	Job     *models.Job        `json:"job,omitempty"`
}

// Commit applies a selection, synchronously or as a job. A partial batch
// returns the result together with errs.ErrPartialBatchFailure.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*CommitResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := req.Selection.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	opts := merge.CommitOptions{BatchID: req.BatchID, Actor: req.Actor}

	if req.Async {
		batchID, job, err := s.merger.CommitAsync(ctx, s.jobs, req.Selection, opts)
		if err != nil {
			return nil, err
		}
		return &CommitResponse{BatchID: batchID, Job: job}, nil
	}

	result, err := s.merger.Commit(ctx, req.Selection, opts)
	if err != nil {
		return nil, err
	}
	return &CommitResponse{Result: result, BatchID: result.Batch.ID}, result.Err()
}

// Batch returns a committed batch.
func (s *Service) Batch(ctx context.Context, id string) (*merge.BatchResult, error) {
	return s.merger.Batch(ctx, id)
}

// Rollback reverts a batch.
func (s *Service) Rollback(ctx context.Context, id string) (*merge.RollbackResult, error) {
	return s.merger.Rollback(ctx, id)
}

// History returns a record's field history.
func (s *Service) History(ctx context.Context, recordID string) ([]models.FieldHistoryEntry, error) {
	return s.merger.History(ctx, recordID)
}

// Job returns an asynchronous job.
func (s *Service) Job(ctx context.Context, id string) (*models.Job, error) {
	return s.jobs.Get(ctx, id)
}

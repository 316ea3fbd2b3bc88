package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/jobs"
	"catalog-reconciler/core/ledger"
	"catalog-reconciler/core/merge"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/reconcile"
	"catalog-reconciler/core/storage"
	"catalog-reconciler/core/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// JobType runs an audit.
const JobType = "audit_run"

// RunRequest starts an audit run.
type RunRequest struct {
	// Scope is single, ids or all.
	Scope models.RunScope `json:"scope" validate:"required,oneof=single ids all"`
	// RecordIDs are the targets of single and ids scopes.
	RecordIDs []string `json:"record_ids,omitempty" validate:"omitempty,dive,required"`
	// AutoApply commits auto-acceptable candidates when the run completes.
	AutoApply bool `json:"auto_apply"`
	// RunID makes the request idempotent; empty generates one.
	RunID string `json:"run_id,omitempty" validate:"omitempty,max=36"`
}

// Report is the archived summary of a finished run.
type Report struct {
	Run      models.AuditRun          `json:"run"`
	Failures []models.AuditRunFailure `json:"failures"`
}

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Store   *store.Store
	Engine  *reconcile.Engine
	Index   *reconcile.ScopeIndex
	Merger  *merge.Manager
	Jobs    *jobs.Orchestrator
	Archive *storage.Archive
	Logger  *zap.Logger

	// Workers bounds records reconciled concurrently.
	Workers int
}

// Coordinator starts, tracks and cancels audit runs.
type Coordinator struct {
	store   *store.Store
	engine  *reconcile.Engine
	index   *reconcile.ScopeIndex
	merger  *merge.Manager
	jobs    *jobs.Orchestrator
	archive *storage.Archive
	logger  *zap.Logger
	workers int
}

// New creates a Coordinator and registers its job handler.
func New(d Deps) *Coordinator {
	c := &Coordinator{
		store:   d.Store,
		engine:  d.Engine,
		index:   d.Index,
		merger:  d.Merger,
		jobs:    d.Jobs,
		archive: d.Archive,
		logger:  d.Logger,
		workers: d.Workers,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.index == nil {
		c.index = reconcile.NewScopeIndex(d.Store)
	}
	if c.workers <= 0 {
		c.workers = 8
	}
	if c.jobs != nil {
		c.jobs.Register(JobType, c.handle)
	}
	return c
}

type runPayload struct {
	RunID string `json:"run_id"`
}

// StartRun persists a run and enqueues its job. A request repeating a known
// RunID returns that run without starting another.
func (c *Coordinator) StartRun(ctx context.Context, req RunRequest) (string, error) {
	scope := reconcile.Scope{Kind: req.Scope, IDs: req.RecordIDs}
	if err := scope.Validate(); err != nil {
		return "", err
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	run := &models.AuditRun{
		ID:        runID,
		Scope:     req.Scope,
		TargetIDs: req.RecordIDs,
		Status:    models.RunQueued,
		AutoApply: req.AutoApply,
	}
	created, err := c.store.CreateRun(ctx, run)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	// a retry also re-enqueues a run whose job was never created
	if !created && (run.JobID != "" || run.Status != models.RunQueued) {
		return run.ID, nil
	}

	job, err := c.jobs.Enqueue(ctx, JobType, runPayload{RunID: run.ID})
	if err != nil {
		return "", fmt.Errorf("enqueue run: %w", err)
	}
	if err := c.store.UpdateRun(ctx, run.ID, map[string]any{"job_id": job.ID}); err != nil {
		return "", fmt.Errorf("link job: %w", err)
	}

	c.logger.Info("Audit run queued",
		zap.String("run_id", run.ID),
		zap.String("scope", string(req.Scope)),
		zap.Int("record_ids", len(req.RecordIDs)),
		zap.Bool("auto_apply", req.AutoApply),
	)
	return run.ID, nil
}

// RunStatus returns a run with its current counters.
func (c *Coordinator) RunStatus(ctx context.Context, runID string) (*models.AuditRun, error) {
	return c.store.GetRun(ctx, runID)
}

// Failures lists the records a run could not audit.
func (c *Coordinator) Failures(ctx context.Context, runID string, page store.Page) ([]models.AuditRunFailure, error) {
	if _, err := c.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return c.store.RunFailures(ctx, runID, page)
}

// Cancel stops a queued or running run. Cancelling a finished run returns it
// unchanged.
func (c *Coordinator) Cancel(ctx context.Context, runID string) (*models.AuditRun, error) {
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if _, err := c.store.TransitionRun(ctx, runID, models.RunCancelled, models.RunQueued, models.RunRunning); err != nil {
		return nil, err
	}
	if run.JobID != "" && c.jobs != nil {
		if _, err := c.jobs.Cancel(ctx, run.JobID); err != nil {
			return nil, err
		}
	}
	return c.store.GetRun(ctx, runID)
}

func (c *Coordinator) handle(ctx context.Context, job *models.Job) error {
	var p runPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return c.Execute(ctx, p.RunID)
}

// Execute performs a queued run. Cancelling ctx stops scheduling records;
// records already started complete on a detached context. The run row is
// re-read before every record, so a Cancel issued by another process stops the
// run as well.
func (c *Coordinator) Execute(ctx context.Context, runID string) error {
	work := context.WithoutCancel(ctx)

	ok, err := c.store.TransitionRun(work, runID, models.RunRunning, models.RunQueued)
	if err != nil {
		return err
	}
	if !ok {
		c.logger.Info("Audit run not queued, skipping", zap.String("run_id", runID))
		return nil
	}
	run, err := c.store.GetRun(work, runID)
	if err != nil {
		return err
	}

	scope := reconcile.Scope{Kind: run.Scope, IDs: run.TargetIDs}
	targets, err := c.index.Resolve(work, scope)
	if err != nil {
		return c.fail(work, runID, fmt.Errorf("resolve scope: %w", err))
	}
	if err := c.store.UpdateRun(work, runID, map[string]any{"total": len(targets.IDs)}); err != nil {
		return c.fail(work, runID, err)
	}

	sched, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(sched)
	g.SetLimit(c.workers)
	for _, id := range targets.IDs {
		id := id
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if !c.stillRunning(work, runID) {
				stop()
				return nil
			}
			return c.auditRecord(work, runID, id, targets)
		})
	}
	abortErr := g.Wait()

	switch {
	case abortErr != nil:
		return c.fail(work, runID, abortErr)
	case ctx.Err() != nil || !c.stillRunning(work, runID):
		if _, err := c.store.TransitionRun(work, runID, models.RunCancelled, models.RunRunning); err != nil {
			return err
		}
		c.logger.Info("Audit run cancelled", zap.String("run_id", runID))
	default:
		if run.AutoApply {
			c.autoApply(work, runID, scope)
		}
		if _, err := c.store.TransitionRun(work, runID, models.RunCompleted, models.RunRunning); err != nil {
			return err
		}
	}

	c.finish(work, runID)
	return nil
}

// stillRunning reports whether the stored run is still running. A read error
// keeps the run going; the next record checks again.
func (c *Coordinator) stillRunning(ctx context.Context, runID string) bool {
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		c.logger.Warn("Failed to reload run", zap.String("run_id", runID), zap.Error(err))
		return true
	}
	return run.Status == models.RunRunning
}

// auditRecord reconciles one record. Only configuration errors are returned;
// everything else is recorded as a run failure.
func (c *Coordinator) auditRecord(ctx context.Context, runID, recordID string, targets *reconcile.Targets) error {
	var counters store.RunCounters
	var failure error

	switch {
	case has(targets.Unknown, recordID):
		failure = fmt.Errorf("%w: %s", errs.ErrUnknownRecord, recordID)
	default:
		res, err := c.engine.ReconcileRecord(ctx, recordID, runID)
		if errs.IsConfiguration(err) {
			return err
		}
		if err != nil {
			failure = err
			break
		}
		counters.Audited = 1
		counters.Discrepancies = len(res.Discrepancies)
		counters.Enrichments = len(res.Enrichments)
	}

	if failure != nil {
		counters.Failed = 1
		if err := c.store.AddRunFailure(ctx, &models.AuditRunFailure{
			RunID:    runID,
			RecordID: recordID,
			Reason:   failure.Error(),
		}); err != nil {
			c.logger.Error("Failed to record run failure", zap.String("run_id", runID), zap.Error(err))
		}
		c.logger.Warn("Record audit failed",
			zap.String("run_id", runID),
			zap.String("record_id", recordID),
			zap.Error(failure),
		)
	}
	if err := c.store.IncrementRunCounters(ctx, runID, counters); err != nil {
		c.logger.Error("Failed to update run counters", zap.String("run_id", runID), zap.Error(err))
	}
	return nil
}

// autoApply commits the scope's auto-acceptable candidates. The batch id derives
// from the run id so a retried run reuses its batch. A run cancelled meanwhile
// commits nothing.
func (c *Coordinator) autoApply(ctx context.Context, runID string, scope reconcile.Scope) {
	if c.merger == nil || !c.stillRunning(ctx, runID) {
		return
	}
	batchID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("audit-run:"+runID)).String()
	res, err := c.merger.Commit(ctx, merge.Selection{Scope: &scope}, merge.CommitOptions{BatchID: batchID, Actor: ledger.ActorPolicy})
	if err != nil {
		c.logger.Error("Auto-apply failed", zap.String("run_id", runID), zap.Error(err))
		_ = c.store.UpdateRun(ctx, runID, map[string]any{"error": "auto-apply: " + err.Error()})
		return
	}
	updates := map[string]any{"batch_id": batchID}
	if perr := res.Err(); perr != nil {
		updates["error"] = "auto-apply: " + perr.Error()
	}
	if err := c.store.UpdateRun(ctx, runID, updates); err != nil {
		c.logger.Error("Failed to link batch", zap.String("run_id", runID), zap.Error(err))
	}
}

func (c *Coordinator) fail(ctx context.Context, runID string, cause error) error {
	if err := c.store.UpdateRun(ctx, runID, map[string]any{"error": cause.Error()}); err != nil {
		c.logger.Error("Failed to record run error", zap.String("run_id", runID), zap.Error(err))
	}
	if _, err := c.store.TransitionRun(ctx, runID, models.RunFailed, models.RunQueued, models.RunRunning); err != nil {
		c.logger.Error("Failed to mark run failed", zap.String("run_id", runID), zap.Error(err))
	}
	c.finish(ctx, runID)
	return cause
}

// finish archives the run report and logs the outcome.
func (c *Coordinator) finish(ctx context.Context, runID string) {
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		c.logger.Error("Failed to load finished run", zap.String("run_id", runID), zap.Error(err))
		return
	}
	failures, err := c.allFailures(ctx, runID)
	if err != nil {
		c.logger.Error("Failed to load run failures", zap.String("run_id", runID), zap.Error(err))
	}
	c.archive.Store(ctx, storage.RunKey(runID), Report{Run: *run, Failures: failures})

	var elapsed time.Duration
	if run.StartedAt != nil && run.CompletedAt != nil {
		elapsed = run.CompletedAt.Sub(*run.StartedAt)
	}
	c.logger.Info("Audit run finished",
		zap.String("run_id", runID),
		zap.String("status", string(run.Status)),
		zap.Int("total", run.Total),
		zap.Int("audited", run.Audited),
		zap.Int("failed", run.Failed),
		zap.Int("discrepancies", run.DiscrepanciesFound),
		zap.Int("enrichments", run.EnrichmentsFound),
		zap.Duration("elapsed", elapsed),
	)
}

// allFailures pages through every failure of a run.
func (c *Coordinator) allFailures(ctx context.Context, runID string) ([]models.AuditRunFailure, error) {
	page := store.Page{Limit: 500}
	var out []models.AuditRunFailure
	for {
		batch, err := c.store.RunFailures(ctx, runID, page)
		if err != nil {
			return out, err
		}
		out = append(out, batch...)
		if len(batch) < page.Limit {
			return out, nil
		}
		page.Offset += len(batch)
	}
}

func has(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"catalog-reconciler/core/logger"
	"catalog-reconciler/core/metrics"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler runs one job.
type Handler func(ctx context.Context, job *models.Job) error

// Orchestrator dispatches persisted jobs to a worker pool.
type Orchestrator struct {
	store    *store.Store
	logger   *zap.Logger
	metrics  *metrics.Metrics
	cfg      Config
	workerID string

	queue chan string

	mu       sync.Mutex
	handlers map[string]Handler
	running  map[string]context.CancelFunc
	started  bool
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// New creates an Orchestrator. Call Register for every job type, then Start.
func New(st *store.Store, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.PollMillis <= 0 {
		cfg.PollMillis = 2000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:    st,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
		workerID: uuid.NewString(),
		queue:    make(chan string, cfg.QueueSize),
		handlers: make(map[string]Handler),
		running:  make(map[string]context.CancelFunc),
	}
}

// Register sets the handler of a job type.
func (o *Orchestrator) Register(jobType string, h Handler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers[jobType] = h
}

// Enqueue persists a job with payload encoded as JSON and dispatches it.
func (o *Orchestrator) Enqueue(ctx context.Context, jobType string, payload any) (*models.Job, error) {
	o.mu.Lock()
	_, known := o.handlers[jobType]
	o.mu.Unlock()
	if !known {
		return nil, fmt.Errorf("no handler for job type %q", jobType)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	job := &models.Job{
		ID:      uuid.NewString(),
		Type:    jobType,
		Payload: data,
		Status:  models.JobQueued,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	o.dispatch(job.ID)
	return job, nil
}

// dispatch offers id to the workers. A full queue leaves the job to the poller.
func (o *Orchestrator) dispatch(id string) {
	select {
	case o.queue <- id:
	default:
		o.logger.Debug("Job queue full, deferring to poller", zap.String("job_id", id))
	}
}

// Start launches the workers and the poller. Jobs queued by a previous process
// are dispatched right away.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true
	ctx, o.stop = context.WithCancel(ctx)
	o.mu.Unlock()

	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.work(ctx)
	}
	o.wg.Add(1)
	go o.poll(ctx)

	o.logger.Info("Job orchestrator started",
		zap.String("worker_id", o.workerID),
		zap.Int("workers", o.cfg.Workers),
	)
	return o.recover(ctx)
}

func (o *Orchestrator) recover(ctx context.Context) error {
	ids, err := o.store.QueuedJobIDs(ctx)
	if err != nil {
		return fmt.Errorf("load queued jobs: %w", err)
	}
	for _, id := range ids {
		o.dispatch(id)
	}
	if len(ids) > 0 {
		o.logger.Info("Recovered queued jobs", zap.Int("count", len(ids)))
	}
	return nil
}

func (o *Orchestrator) poll(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(time.Duration(o.cfg.PollMillis) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.recover(ctx); err != nil && ctx.Err() == nil {
				o.logger.Warn("Job poll failed", zap.Error(err))
			}
		}
	}
}

func (o *Orchestrator) work(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-o.queue:
			o.run(ctx, id)
		}
	}
}

// run claims and executes one job. Duplicate dispatches lose the claim and return.
func (o *Orchestrator) run(ctx context.Context, id string) {
	// a stopping orchestrator lets the current job finish
	base := context.WithoutCancel(ctx)

	claimed, err := o.store.ClaimJob(base, id, o.workerID)
	if err != nil {
		o.logger.Error("Failed to claim job", zap.String("job_id", id), zap.Error(err))
		return
	}
	if !claimed {
		return
	}
	job, err := o.store.GetJob(base, id)
	if err != nil {
		o.logger.Error("Failed to load claimed job", zap.String("job_id", id), zap.Error(err))
		return
	}

	o.mu.Lock()
	h := o.handlers[job.Type]
	jctx, cancel := context.WithCancel(base)
	o.running[id] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.running, id)
		o.mu.Unlock()
		cancel()
	}()

	log := logger.ForJob(o.logger, job.Type, id)
	watched := make(chan struct{})
	defer close(watched)
	go o.watch(jctx, id, cancel, watched)

	o.metrics.JobStarted()
	status := models.JobCompleted
	var msg string
	if h == nil {
		status, msg = models.JobFailed, fmt.Sprintf("no handler for job type %q", job.Type)
	} else if err := safeRun(jctx, h, job); err != nil {
		status, msg = models.JobFailed, err.Error()
	}
	if jctx.Err() != nil && status == models.JobCompleted {
		status = models.JobCancelled
	}
	if err := o.store.FinishJob(base, id, status, msg); err != nil {
		log.Error("Failed to finish job", zap.Error(err))
	}
	o.metrics.JobFinished(job.Type, string(status))

	log.Info("Job finished",
		zap.String("status", string(status)),
		zap.String("error", msg),
	)
}

// watch polls a running job and cancels its handler once the row is cancelled,
// which is how a Cancel issued by another process reaches this one.
func (o *Orchestrator) watch(ctx context.Context, id string, cancel context.CancelFunc, done <-chan struct{}) {
	ticker := time.NewTicker(time.Duration(o.cfg.PollMillis) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := o.store.GetJob(ctx, id)
			if err != nil {
				o.logger.Warn("Failed to reload running job", zap.String("job_id", id), zap.Error(err))
				continue
			}
			if job.Status == models.JobCancelled {
				o.logger.Info("Job cancelled elsewhere, stopping", zap.String("job_id", id))
				cancel()
				return
			}
		}
	}
}

func safeRun(ctx context.Context, h Handler, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return h(ctx, job)
}

// Cancel marks a job cancelled and signals its handler if it runs here.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (bool, error) {
	changed, err := o.store.CancelJob(ctx, id)
	if err != nil {
		return false, err
	}
	if !changed {
		if _, err := o.store.GetJob(ctx, id); err != nil {
			return false, err
		}
	}
	o.mu.Lock()
	cancel, ok := o.running[id]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return changed, nil
}

// Get returns a job.
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.Job, error) {
	return o.store.GetJob(ctx, id)
}

// Wait polls a job until it reaches a terminal state or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context, id string, interval time.Duration) (*models.Job, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := o.store.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		switch job.Status {
		case models.JobCompleted, models.JobFailed, models.JobCancelled:
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop stops dispatching and waits for running jobs to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	stop := o.stop
	o.mu.Unlock()
	if stop != nil {
		stop()
	}
	o.wg.Wait()
}

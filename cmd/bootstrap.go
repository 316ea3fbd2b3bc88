package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"catalog-reconciler/core/audit"
	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/config"
	"catalog-reconciler/core/database"
	"catalog-reconciler/core/jobs"
	"catalog-reconciler/core/ledger"
	"catalog-reconciler/core/lock"
	"catalog-reconciler/core/logger"
	"catalog-reconciler/core/merge"
	"catalog-reconciler/core/metrics"
	"catalog-reconciler/core/reconcile"
	"catalog-reconciler/core/storage"
	"catalog-reconciler/core/store"
	"catalog-reconciler/feature/reconciliation"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime holds the wired services shared by the server and the CLI commands.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	store   *store.Store
	locker  lock.Locker
	client  storage.Client
	archive *storage.Archive
	metrics *metrics.Metrics
	ledger  *ledger.Ledger
	engine  *reconcile.Engine
	merger  *merge.Manager
	jobs    *jobs.Orchestrator
	audits  *audit.Coordinator
}

// bootstrap loads configuration and wires every service. reg receives the
// metric collectors; commands that do not expose them pass a private registry.
func bootstrap(ctx context.Context, reg prometheus.Registerer) (*runtime, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	st := store.New(db)
	if cfg.Database.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	locker, err := lock.New(cfg.Lock)
	if err != nil {
		return nil, fmt.Errorf("failed to create locker: %w", err)
	}
	if r, ok := locker.(*lock.Redis); ok {
		if err := r.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
	}

	var client storage.Client
	if cfg.Storage.Enabled {
		client, err = storage.NewClient(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
	}
	archive := storage.NewArchive(client, cfg.Storage.Bucket, logg)
	if err := archive.EnsureBucket(ctx, cfg.Storage.Region); err != nil {
		logg.Warn("Archive bucket unavailable", zap.String("bucket", cfg.Storage.Bucket), zap.Error(err))
	}

	schema, policy, err := cfg.Reconcile.LoadRules()
	if err != nil {
		return nil, err
	}

	m := metrics.New(reg)
	led := ledger.New(st, logg, m)
	engine := reconcile.New(reconcile.Deps{
		Store:        st,
		Schema:       schema,
		Policy:       policy,
		Ledger:       led,
		Locker:       locker,
		Logger:       logg,
		Metrics:      m,
		FieldWorkers: cfg.Reconcile.FieldWorkers,
	})
	merger := merge.New(merge.Deps{
		Store:     st,
		Schema:    schema,
		Ledger:    led,
		Locker:    locker,
		Validator: compare.NewValueValidator(validator.New(validator.WithRequiredStructEnabled())),
		Archive:   archive,
		Logger:    logg,
		Metrics:   m,
		Workers:   cfg.Reconcile.MergeWorkers,
	})
	o := jobs.New(st, cfg.Jobs, logg, m)
	merger.RegisterJobs(o)
	audits := audit.New(audit.Deps{
		Store:   st,
		Engine:  engine,
		Index:   reconcile.NewScopeIndex(st),
		Merger:  merger,
		Jobs:    o,
		Archive: archive,
		Logger:  logg,
		Workers: cfg.Reconcile.AuditWorkers,
	})

	return &runtime{
		cfg:     cfg,
		logger:  logg,
		db:      db,
		store:   st,
		locker:  locker,
		client:  client,
		archive: archive,
		metrics: m,
		ledger:  led,
		engine:  engine,
		merger:  merger,
		jobs:    o,
		audits:  audits,
	}, nil
}

// features returns the collaborators of the reconciliation feature.
func (r *runtime) features() reconciliation.Deps {
	return reconciliation.Deps{
		Store:  r.store,
		Engine: r.engine,
		Ledger: r.ledger,
		Merger: r.merger,
		Audits: r.audits,
		Jobs:   r.jobs,
		Logger: r.logger,
	}
}

// service builds the reconciliation service for CLI commands.
func (r *runtime) service() *reconciliation.Service {
	return reconciliation.NewService(r.features())
}

// Close releases the database and lock connections.
func (r *runtime) Close() {
	if closer, ok := r.locker.(io.Closer); ok {
		_ = closer.Close()
	}
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = r.logger.Sync()
}

// cliRuntime bootstraps with a private metrics registry.
func cliRuntime(ctx context.Context) (*runtime, error) {
	return bootstrap(ctx, prometheus.NewRegistry())
}

// waitJob runs the orchestrator in-process until the job finishes.
func (r *runtime) waitJob(ctx context.Context, jobID string) error {
	if err := r.jobs.Start(ctx); err != nil {
		return fmt.Errorf("failed to start jobs: %w", err)
	}
	defer r.jobs.Stop()

	job, err := r.jobs.Wait(ctx, jobID, 200*time.Millisecond)
	if err != nil {
		return err
	}
	r.logger.Info("Job finished", zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
	if job.Error != "" {
		return fmt.Errorf("job %s: %s", job.ID, job.Error)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

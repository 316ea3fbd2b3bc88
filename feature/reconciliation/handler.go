package reconciliation

import (
	"errors"
	"fmt"

	"catalog-reconciler/core/audit"
	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/logger"
	"catalog-reconciler/core/merge"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/store"
	"catalog-reconciler/core/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for reconciliation.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the reconciliation routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	records := app.Group("/records")
	records.Put("/:id", h.HandlePutRecord)
	records.Get("/:id", h.HandleGetRecord)
	records.Get("/:id/history", h.HandleHistory)

	app.Post("/observations", h.HandleIngest)

	runs := app.Group("/audit/runs")
	runs.Post("/", h.HandleStartAudit)
	runs.Get("/:id", h.HandleGetRun)
	runs.Get("/:id/failures", h.HandleRunFailures)
	runs.Post("/:id/cancel", h.HandleCancelRun)

	app.Get("/discrepancies", h.HandleListDiscrepancies)
	app.Get("/enrichments", h.HandleListEnrichments)

	candidates := app.Group("/candidates")
	candidates.Post("/:id/resolve", h.HandleResolve)
	candidates.Get("/:id/events", h.HandleEvents)

	mg := app.Group("/merge")
	mg.Post("/preview", h.HandlePreview)
	mg.Post("/commit", h.HandleCommit)
	mg.Get("/batches/:id", h.HandleGetBatch)
	mg.Post("/batches/:id/rollback", h.HandleRollback)

	app.Get("/jobs/:id", h.HandleGetJob)
}

// statusFor maps an error to an HTTP status by kind.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errs.IsNotFound(err):
		return fiber.StatusNotFound
	case errors.Is(err, errs.ErrInvalidTransition), errors.Is(err, errs.ErrStaleRollback):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *Handler) fail(c *fiber.Ctx, msg string, err error) error {
	status := statusFor(err)
	l := logger.WithRayID(h.service.logger, c)
	if status >= fiber.StatusInternalServerError {
		l.Error(msg, zap.Error(err))
	} else {
		l.Debug(msg, zap.Error(err), zap.Int("status", status))
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func (h *Handler) badBody(c *fiber.Ctx, err error) error {
	return h.fail(c, "Malformed request body", fmt.Errorf("%w: %w", ErrInvalidRequest, err))
}

func page(c *fiber.Ctx) store.Page {
	return store.Page{Limit: c.QueryInt("limit"), Offset: c.QueryInt("offset")}
}

// HandlePutRecord imports a catalog record.
// @Summary Import Record
// @Description Insert or replace a catalog record. Values are typed against the field schema.
// @Tags records
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param record body RecordInput true "Record fields"
// @Success 200 {object} models.Record
// @Failure 400 {object} map[string]string "Invalid record"
// @Router /records/{id} [put]
func (h *Handler) HandlePutRecord(c *fiber.Ctx) error {
	var in RecordInput
	if err := c.BodyParser(&in); err != nil {
		return h.badBody(c, err)
	}
	rec, err := h.service.PutRecord(c.Context(), c.Params("id"), in)
	if err != nil {
		return h.fail(c, "Record import failed", err)
	}
	return c.JSON(rec)
}

// HandleGetRecord returns a record.
// @Summary Get Record
// @Tags records
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} models.Record
// @Failure 404 {object} map[string]string "Unknown record"
// @Router /records/{id} [get]
func (h *Handler) HandleGetRecord(c *fiber.Ctx) error {
	rec, err := h.service.GetRecord(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Record lookup failed", err)
	}
	return c.JSON(rec)
}

// HandleHistory returns a record's field history.
// @Summary Get Field History
// @Description Ordered fill, update and rollback entries of a record.
// @Tags records
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {array} models.FieldHistoryEntry
// @Failure 404 {object} map[string]string "Unknown record"
// @Router /records/{id}/history [get]
func (h *Handler) HandleHistory(c *fiber.Ctx) error {
	entries, err := h.service.History(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, "History lookup failed", err)
	}
	if entries == nil {
		entries = []models.FieldHistoryEntry{}
	}
	return c.JSON(entries)
}

// HandleIngest stores source observations.
// @Summary Ingest Observations
// @Description Store a batch of observations, optionally reconciling the affected records.
// @Tags observations
// @Accept json
// @Produce json
// @Param request body IngestRequest true "Observations"
// @Success 201 {object} IngestResult
// @Failure 400 {object} map[string]string "Invalid observation"
// @Failure 404 {object} map[string]string "Unknown record"
// @Router /observations [post]
func (h *Handler) HandleIngest(c *fiber.Ctx) error {
	var req IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badBody(c, err)
	}
	res, err := h.service.IngestObservations(c.Context(), req)
	if err != nil {
		return h.fail(c, "Observation ingestion failed", err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// HandleStartAudit starts an audit run.
// @Summary Start Audit Run
// @Description Queue an audit over one record, a list of records or the whole catalog.
// @Tags audit
// @Accept json
// @Produce json
// @Param request body audit.RunRequest true "Run request"
// @Success 202 {object} models.AuditRun
// @Failure 400 {object} map[string]string "Invalid scope"
// @Router /audit/runs [post]
func (h *Handler) HandleStartAudit(c *fiber.Ctx) error {
	var req audit.RunRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badBody(c, err)
	}
	run, err := h.service.StartAudit(c.Context(), req)
	if err != nil {
		return h.fail(c, "Audit run failed to start", err)
	}
	return c.Status(fiber.StatusAccepted).JSON(run)
}

// HandleGetRun returns an audit run's status.
// @Summary Get Audit Run
// @Tags audit
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} models.AuditRun
// @Failure 404 {object} map[string]string "Unknown run"
// @Router /audit/runs/{id} [get]
func (h *Handler) HandleGetRun(c *fiber.Ctx) error {
	run, err := h.service.Run(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Run lookup failed", err)
	}
	return c.JSON(run)
}

// HandleRunFailures lists the records an audit run could not audit.
// @Summary List Audit Run Failures
// @Tags audit
// @Produce json
// @Param id path string true "Run ID"
// @Param limit query int false "Page size (max 500)"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.AuditRunFailure
// @Failure 404 {object} map[string]string "Unknown run"
// @Router /audit/runs/{id}/failures [get]
func (h *Handler) HandleRunFailures(c *fiber.Ctx) error {
	failures, err := h.service.RunFailures(c.Context(), c.Params("id"), page(c))
	if err != nil {
		return h.fail(c, "Run failures lookup failed", err)
	}
	if failures == nil {
		failures = []models.AuditRunFailure{}
	}
	return c.JSON(failures)
}

// HandleCancelRun cancels an audit run.
// @Summary Cancel Audit Run
// @Tags audit
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} models.AuditRun
// @Failure 404 {object} map[string]string "Unknown run"
// @Router /audit/runs/{id}/cancel [post]
func (h *Handler) HandleCancelRun(c *fiber.Ctx) error {
	run, err := h.service.CancelRun(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Run cancel failed", err)
	}
	return c.JSON(run)
}

func (h *Handler) listCandidates(c *fiber.Ctx, kind models.CandidateKind) error {
	q := CandidateQuery{
		Status:   c.Query("status"),
		RecordID: c.Query("record_id"),
		Field:    c.Query("field"),
		RunID:    c.Query("run_id"),
		Limit:    c.QueryInt("limit"),
		Offset:   c.QueryInt("offset"),
	}
	if raw := c.Query("auto_acceptable"); raw != "" {
		auto := utils.ToBool(raw)
		q.AutoAcceptable = &auto
	}
	out, err := h.service.ListCandidates(c.Context(), kind, q)
	if err != nil {
		return h.fail(c, "Candidate listing failed", err)
	}
	return c.JSON(out)
}

// HandleListDiscrepancies lists discrepancies.
// @Summary List Discrepancies
// @Tags candidates
// @Produce json
// @Param status query string false "Status, or 'open'"
// @Param record_id query string false "Record ID"
// @Param field query string false "Field name"
// @Param run_id query string false "Audit run ID"
// @Param auto_acceptable query bool false "Only auto-acceptable candidates"
// @Param limit query int false "Page size (max 500)"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.Candidate
// @Router /discrepancies [get]
func (h *Handler) HandleListDiscrepancies(c *fiber.Ctx) error {
	return h.listCandidates(c, models.KindDiscrepancy)
}

// HandleListEnrichments lists enrichments.
// @Summary List Enrichments
// @Tags candidates
// @Produce json
// @Param status query string false "Status, or 'open'"
// @Param record_id query string false "Record ID"
// @Param field query string false "Field name"
// @Param run_id query string false "Audit run ID"
// @Param auto_acceptable query bool false "Only auto-acceptable candidates"
// @Param limit query int false "Page size (max 500)"
// @Param offset query int false "Page offset"
// @Success 200 {array} models.Candidate
// @Router /enrichments [get]
func (h *Handler) HandleListEnrichments(c *fiber.Ctx) error {
	return h.listCandidates(c, models.KindEnrichment)
}

// HandleResolve records a decision on a candidate.
// @Summary Resolve Candidate
// @Description Accept, reject, ignore, mark provisional or approve a candidate.
// @Tags candidates
// @Accept json
// @Produce json
// @Param id path string true "Candidate ID"
// @Param request body ResolveRequest true "Decision"
// @Success 200 {object} models.Candidate
// @Failure 404 {object} map[string]string "Unknown candidate"
// @Failure 409 {object} map[string]string "Invalid transition"
// @Router /candidates/{id}/resolve [post]
func (h *Handler) HandleResolve(c *fiber.Ctx) error {
	var req ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badBody(c, err)
	}
	cand, err := h.service.Resolve(c.Context(), c.Params("id"), req)
	if err != nil {
		return h.fail(c, "Resolve failed", err)
	}
	return c.JSON(cand)
}

// HandleEvents returns a candidate's resolution trail.
// @Summary Get Resolution Events
// @Tags candidates
// @Produce json
// @Param id path string true "Candidate ID"
// @Success 200 {array} models.ResolutionEvent
// @Failure 404 {object} map[string]string "Unknown candidate"
// @Router /candidates/{id}/events [get]
func (h *Handler) HandleEvents(c *fiber.Ctx) error {
	events, err := h.service.Events(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Events lookup failed", err)
	}
	if events == nil {
		events = []models.ResolutionEvent{}
	}
	return c.JSON(events)
}

// HandlePreview dry-runs a merge selection.
// @Summary Preview Merge
// @Tags merge
// @Accept json
// @Produce json
// @Param request body merge.Selection true "Selection"
// @Success 200 {object} merge.Plan
// @Failure 400 {object} map[string]string "Invalid selection"
// @Router /merge/preview [post]
func (h *Handler) HandlePreview(c *fiber.Ctx) error {
	var sel merge.Selection
	if err := c.BodyParser(&sel); err != nil {
		return h.badBody(c, err)
	}
	plan, err := h.service.Preview(c.Context(), sel)
	if err != nil {
		return h.fail(c, "Merge preview failed", err)
	}
	return c.JSON(plan)
}

// HandleCommit commits a merge selection.
// @Summary Commit Merge
// @Description Apply a selection as one batch. With async the commit runs as a job.
// @Tags merge
// @Accept json
// @Produce json
// @Param request body CommitRequest true "Commit request"
// @Success 200 {object} CommitResponse "Batch completed"
// @Success 202 {object} CommitResponse "Commit queued"
// @Success 207 {object} CommitResponse "Batch partially failed"
// @Failure 400 {object} map[string]string "Invalid selection"
// @Router /merge/commit [post]
func (h *Handler) HandleCommit(c *fiber.Ctx) error {
	var req CommitRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badBody(c, err)
	}
	resp, err := h.service.Commit(c.Context(), req)
	switch {
	case errors.Is(err, errs.ErrPartialBatchFailure):
		logger.WithRayID(h.service.logger, c).Warn("Merge batch partially failed", zap.Error(err))
		return c.Status(fiber.StatusMultiStatus).JSON(resp)
	case err != nil:
		return h.fail(c, "Merge commit failed", err)
	case resp.Job != nil:
		return c.Status(fiber.StatusAccepted).JSON(resp)
	}
	return c.JSON(resp)
}

// HandleGetBatch returns a batch result.
// @Summary Get Merge Batch
// @Tags merge
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} merge.BatchResult
// @Failure 404 {object} map[string]string "Unknown batch"
// @Router /merge/batches/{id} [get]
func (h *Handler) HandleGetBatch(c *fiber.Ctx) error {
	res, err := h.service.Batch(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Batch lookup failed", err)
	}
	return c.JSON(res)
}

// HandleRollback rolls a batch back.
// @Summary Rollback Merge Batch
// @Description Restore the pre-batch values of every field the batch changed.
// @Tags merge
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} merge.RollbackResult
// @Failure 404 {object} map[string]string "Unknown batch"
// @Failure 409 {object} map[string]string "A field changed after the batch"
// @Router /merge/batches/{id}/rollback [post]
func (h *Handler) HandleRollback(c *fiber.Ctx) error {
	res, err := h.service.Rollback(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Rollback failed", err)
	}
	return c.JSON(res)
}

// HandleGetJob returns an asynchronous job.
// @Summary Get Job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} models.Job
// @Failure 404 {object} map[string]string "Unknown job"
// @Router /jobs/{id} [get]
func (h *Handler) HandleGetJob(c *fiber.Ctx) error {
	job, err := h.service.Job(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Job lookup failed", err)
	}
	return c.JSON(job)
}

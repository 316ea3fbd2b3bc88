package integrity

import (
	"catalog-reconciler/core/logger"
	"catalog-reconciler/core/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for integrity checks.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the integrity routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/integrity")
	group.Get("/", h.HandleIntegrityCheck)
	group.Get("/structure", h.HandleStructureCheck)
	group.Get("/archive", h.HandleArchiveCheck)
	group.Get("/schema", h.HandleSchemaCheck)
	group.Get("/ledger", h.HandleLedgerCheck)
}

func section(v any, err error) any {
	if err != nil {
		return fiber.Map{"status": "error", "error": err.Error()}
	}
	return v
}

// HandleIntegrityCheck triggers all integrity checks.
// @Summary Run All Integrity Checks
// @Description Performs all available integrity checks (Structure, Archive, Schema, Ledger).
// @Tags integrity
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{} "Combined Report"
// @Router /integrity [get]
func (h *Handler) HandleIntegrityCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Triggering all integrity checks")

	ctx := c.Context()
	report := make(map[string]any)

	if missing, err := h.service.CheckStructure(ctx); err != nil {
		report["structure"] = section(nil, err)
	} else {
		report["structure"] = fiber.Map{"status": "ok", "missing": missing}
	}
	report["archive"] = section(h.service.CheckArchive(ctx))
	report["schema"] = section(h.service.CheckSchema())
	report["ledger"] = section(h.service.CheckLedger(ctx))

	return c.JSON(report)
}

// HandleStructureCheck checks and optionally fixes structure.
// @Summary Check Structure
// @Description Checks if the archive folders exist in the storage bucket. Optionally fixes missing folders.
// @Tags integrity
// @Accept json
// @Produce json
// @Param fix query boolean false "Fix missing folders"
// @Success 200 {object} map[string]interface{} "Structure Report"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/structure [get]
func (h *Handler) HandleStructureCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	fix := utils.ToBool(c.Query("fix"))

	missing, err := h.service.CheckStructure(c.Context())
	if err != nil {
		l.Error("Structure check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if len(missing) > 0 {
		l.Warn("Missing folders detected", zap.Strings("missing", missing))

		if fix {
			l.Info("Attempting to fix missing folders")
			if err := h.service.FixStructure(c.Context(), missing); err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error":   "Failed to fix structure",
					"details": err.Error(),
					"missing": missing,
				})
			}
			return c.JSON(fiber.Map{
				"status": "fixed",
				"fixed":  missing,
			})
		}
	}

	return c.JSON(fiber.Map{
		"status":  "checked",
		"missing": missing,
	})
}

// HandleArchiveCheck checks and optionally prunes orphaned archive documents.
// @Summary Check Archive
// @Description Finds batch manifests and run reports whose batch or run no longer exists. Optionally removes them.
// @Tags integrity
// @Accept json
// @Produce json
// @Param fix query boolean false "Remove orphaned documents"
// @Success 200 {object} checks.ArchiveReport "Archive Report"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/archive [get]
func (h *Handler) HandleArchiveCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	report, err := h.service.CheckArchive(c.Context())
	if err != nil {
		l.Error("Archive check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if len(report.Orphans) > 0 && utils.ToBool(c.Query("fix")) {
		if err := h.service.FixArchive(c.Context(), report.Orphans); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "Failed to remove orphaned documents",
				"details": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"status":  "fixed",
			"removed": report.Orphans,
		})
	}

	return c.JSON(report)
}

// HandleSchemaCheck checks database schema integrity.
// @Summary Check Database Schema
// @Description Checks if the database tables match the expected models.
// @Tags integrity
// @Accept json
// @Produce json
// @Success 200 {object} checks.SchemaReport "Schema Check Report"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/schema [get]
func (h *Handler) HandleSchemaCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Starting schema check")

	report, err := h.service.CheckSchema()
	if err != nil {
		l.Error("Schema check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(report)
}

// HandleLedgerCheck checks ledger consistency.
// @Summary Check Ledger
// @Description Finds candidates without records, applied candidates without history and batches stuck pending.
// @Tags integrity
// @Accept json
// @Produce json
// @Success 200 {object} checks.LedgerReport "Ledger Report"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/ledger [get]
func (h *Handler) HandleLedgerCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	report, err := h.service.CheckLedger(c.Context())
	if err != nil {
		l.Error("Ledger check failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if !report.OK() {
		l.Warn("Ledger inconsistencies detected",
			zap.Int("orphan_candidates", len(report.OrphanCandidates)),
			zap.Int("applied_without_history", len(report.AppliedWithoutHistory)),
			zap.Int("stuck_batches", len(report.StuckBatches)))
	}

	return c.JSON(report)
}

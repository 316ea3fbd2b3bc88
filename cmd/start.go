package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-reconciler/core/loader"
	"catalog-reconciler/core/logger"
	"catalog-reconciler/core/middleware/auth"
	"catalog-reconciler/core/middleware/rayid"

	"catalog-reconciler/feature/integrity"
	"catalog-reconciler/feature/reconciliation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "catalog-reconciler/docs/swagger"
)

// @title Catalog Reconciler API
// @version 1.0
// @description API for auditing catalog records against external sources and committing reviewed changes.
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the reconciliation server",
	Long:  `Starts the HTTP server, the job workers and all enabled features.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// 1. Configuration, logger, database, locks, archive and services
		rt, err := bootstrap(ctx, prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		defer rt.Close()
		logg := rt.logger
		zap.ReplaceGlobals(logg)
		cfg := rt.cfg

		// 2. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true,
			BodyLimit:             cfg.Server.BodyLimit(),
			ReadTimeout:           cfg.Server.ReadTimeout(),
		})

		// 3. Initialize Feature Loader
		mgr := loader.NewManager()
		mgr.Register(reconciliation.NewFeature(rt.features()))
		mgr.Register(integrity.NewFeature(rt.client, cfg.Storage.Bucket, logg, rt.db))

		// Middleware Registration
		// RayID first so every log line carries it
		app.Use(rayid.New())

		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// Public endpoints
		app.Get("/swagger/*", swagger.HandlerDefault)
		var skip []string
		if cfg.Server.MetricsPath != "" {
			app.Get(cfg.Server.MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))
			skip = append(skip, cfg.Server.MetricsPath)
		}

		// Everything else requires the API key
		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey, Skip: skip}))

		// 4. Load Features
		if err := mgr.LoadAll(app); err != nil {
			return fmt.Errorf("failed to load features: %w", err)
		}

		// 5. Job workers resume queued audits and commits
		if err := rt.jobs.Start(ctx); err != nil {
			return fmt.Errorf("failed to start jobs: %w", err)
		}

		// 6. Start Server
		listenErr := make(chan error, 1)
		go func() {
			logg.Info("Starting server", zap.String("port", cfg.Server.Port))
			listenErr <- app.Listen(cfg.Server.Address())
		}()

		// 7. Graceful Shutdown
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sig:
		case err := <-listenErr:
			if err != nil {
				rt.jobs.Stop()
				return fmt.Errorf("server failed to start: %w", err)
			}
		}
		logg.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logg.Warn("Server shutdown incomplete", zap.Error(err))
		}
		cancel()
		rt.jobs.Stop()
		return nil
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}

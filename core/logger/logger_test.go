package logger_test

import (
	"net/http/httptest"
	"testing"

	"catalog-reconciler/core/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	l, err := logger.New(&logger.Config{Level: "warn", Format: "console"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = logger.New(&logger.Config{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = logger.New(&logger.Config{Level: "loud"})
	assert.Error(t, err)
}

func TestWithRayID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		c.Locals("ray_id", "ray-1")
		logger.WithRayID(base, c).Info("tagged")
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		logger.WithRayID(base, c).Info("untagged")
		return c.SendStatus(fiber.StatusNoContent)
	})

	_, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	_, err = app.Test(httptest.NewRequest("GET", "/plain", nil))
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "ray-1", entries[0].ContextMap()["ray_id"])
	assert.NotContains(t, entries[1].ContextMap(), "ray_id")
}

func TestForJob(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger.ForJob(zap.New(core), "audit_run", "j1").Info("x")
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "audit_run", fields["job_type"])
	assert.Equal(t, "j1", fields["job_id"])
}

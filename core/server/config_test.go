package server_test

import (
	"testing"
	"time"

	"catalog-reconciler/core/server"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     server.Config
		wantErr bool
	}{
		{"Valid", server.Config{Port: "8080", MetricsPath: "/metrics"}, false},
		{"NoMetrics", server.Config{Port: "8080"}, false},
		{"NoPort", server.Config{MetricsPath: "/metrics"}, true},
		{"RelativeMetrics", server.Config{Port: "8080", MetricsPath: "metrics"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Derived(t *testing.T) {
	c := server.Config{Port: "9000", BodyLimitMB: 2, ReadTimeoutSeconds: 5}
	assert.Equal(t, ":9000", c.Address())
	assert.Equal(t, 2*1024*1024, c.BodyLimit())
	assert.Equal(t, 5*time.Second, c.ReadTimeout())

	assert.Equal(t, 4*1024*1024, server.Config{}.BodyLimit())
}

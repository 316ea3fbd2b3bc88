package server

import (
	"fmt"
	"time"
)

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
	// BodyLimitMB caps request bodies; observation ingestion is the largest.
	BodyLimitMB int `mapstructure:"body_limit_mb" default:"16"`
	// ReadTimeoutSeconds bounds reading a request.
	ReadTimeoutSeconds int `mapstructure:"read_timeout_seconds" default:"30"`
	// MetricsPath exposes Prometheus metrics; empty disables the endpoint.
	MetricsPath string `mapstructure:"metrics_path" default:"/metrics"`
}

// Address returns the listen address for the configured port.
func (c Config) Address() string {
	return ":" + c.Port
}

// BodyLimit returns the body limit in bytes.
func (c Config) BodyLimit() int {
	if c.BodyLimitMB <= 0 {
		return 4 * 1024 * 1024
	}
	return c.BodyLimitMB * 1024 * 1024
}

// ReadTimeout returns the read timeout, zero meaning none.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// Validate checks the settings needed to start listening.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.MetricsPath != "" && c.MetricsPath[0] != '/' {
		return fmt.Errorf("metrics path %q must start with /", c.MetricsPath)
	}
	return nil
}

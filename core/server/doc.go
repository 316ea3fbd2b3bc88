// Package server holds the HTTP server configuration.
//
// The main entry point in cmd/start.go builds the Fiber app from these
// settings: listen port, API key, body limit, read timeout and the path
// where Prometheus metrics are exposed.
package server

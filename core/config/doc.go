// Package config provides configuration management for the catalog reconciler.
//
// It utilizes Viper for loading configuration from environment variables and
// an optional .env file. Defaults come from the `default` struct tags of each
// section, so every key is registered for AutomaticEnv.
//
// # Configuration Structure
//
// The Config struct is divided into subsections:
//   - Server: HTTP port, API key, body limit, metrics path
//   - Database: MySQL or SQLite connection details
//   - Storage: S3/MinIO archive bucket
//   - Log: Logging level and format
//   - Lock: Redis URL for per-record locks (empty keeps them in-process)
//   - Reconcile: schema and policy files, worker limits, index TTL
//   - Jobs: orchestrator workers and polling
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Reconcile.AuditWorkers) // RECONCILE_AUDIT_WORKERS
package config

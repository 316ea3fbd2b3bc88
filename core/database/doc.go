// Package database handles database connections and schema inspection.
//
// It wraps GORM and configures MySQL or sqlite connections from the application's
// configuration. sqlite is used for single-user installs and tests.
//
// # Connect
//
// Connect opens the configured driver, tunes the pool and pings the database.
//
// # Schema Inspection
//
// GetTableColumns reads live column definitions and CheckModels compares them with
// the gorm models, which backs the database part of the integrity check.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	checks, err := database.CheckModels(db, models.All()...)
package database

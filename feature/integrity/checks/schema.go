package checks

import (
	"fmt"

	"catalog-reconciler/core/database"
	"catalog-reconciler/core/models"

	"gorm.io/gorm"
)

// SchemaReport strictly types the result of a schema integrity check.
type SchemaReport struct {
	Dialect string                `json:"dialect"`
	Matched bool                  `json:"matched"`
	Tables  []database.TableCheck `json:"tables"`
}

// CheckSchema verifies the database schema using the gorm models as the source of truth.
func CheckSchema(db *gorm.DB) (*SchemaReport, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	tables, err := database.CheckModels(db, models.All()...)
	if err != nil {
		return nil, err
	}
	report := &SchemaReport{Dialect: db.Dialector.Name(), Matched: true, Tables: tables}
	for _, t := range tables {
		if !t.OK() {
			report.Matched = false
		}
	}
	return report, nil
}

package database

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ColumnInfo matches the output of SHOW COLUMNS.
type ColumnInfo struct {
	Field   string
	Type    string
	Null    string
	Key     string
	Default *string
	Extra   string
}

// GetTableColumns retrieves the column definitions for a given table.
func GetTableColumns(db *gorm.DB, tableName string) ([]ColumnInfo, error) {
	var columns []ColumnInfo
	if db.Dialector.Name() == "sqlite" {
		type sqliteColumn struct {
			Cid        int
			Name       string
			Type       string
			Notnull    int
			DefaultVal *string
			Pk         int
		}
		var sqliteCols []sqliteColumn
		if err := db.Raw(fmt.Sprintf("PRAGMA table_info('%s')", tableName)).Scan(&sqliteCols).Error; err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
		}
		for _, col := range sqliteCols {
			columns = append(columns, ColumnInfo{
				Field: strings.ToLower(col.Name),
				Type:  strings.ToLower(col.Type),
			})
		}
		return columns, nil
	}

	err := db.Raw(fmt.Sprintf("SHOW COLUMNS FROM `%s`", tableName)).Scan(&columns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
	}
	for i := range columns {
		columns[i].Type = strings.ToLower(columns[i].Type)
		columns[i].Field = strings.ToLower(columns[i].Field)
	}
	return columns, nil
}

// TableCheck is the comparison of one model against its table.
type TableCheck struct {
	Table          string   `json:"table"`
	Exists         bool     `json:"exists"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

// OK reports whether the table exists with every expected column.
func (c TableCheck) OK() bool {
	return c.Exists && len(c.MissingColumns) == 0
}

// CheckModels compares each model's gorm schema with the live table columns.
func CheckModels(db *gorm.DB, models ...any) ([]TableCheck, error) {
	cache := &sync.Map{}
	checks := make([]TableCheck, 0, len(models))
	for _, m := range models {
		s, err := schema.Parse(m, cache, db.NamingStrategy)
		if err != nil {
			return nil, fmt.Errorf("parse model %T: %w", m, err)
		}
		cols, err := GetTableColumns(db, s.Table)
		if err != nil {
			return nil, err
		}
		check := TableCheck{Table: s.Table, Exists: len(cols) > 0}
		present := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			present[c.Field] = struct{}{}
		}
		for _, name := range s.DBNames {
			if _, ok := present[strings.ToLower(name)]; !ok {
				check.MissingColumns = append(check.MissingColumns, name)
			}
		}
		sort.Strings(check.MissingColumns)
		checks = append(checks, check)
	}
	return checks, nil
}

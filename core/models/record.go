package models

import (
	"time"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/trust"
)

// FieldMap holds a record's field values by name.
type FieldMap map[string]compare.Value

// Record is a catalog record. Fields absent from the map read as Empty.
type Record struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Fields    FieldMap  `gorm:"column:fields;serializer:json" json:"fields"`
	Version   int64     `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// Field returns the value of name, Empty of type t when unset.
func (r *Record) Field(name string, t compare.FieldType) compare.Value {
	if v, ok := r.Fields[name]; ok {
		return v
	}
	return compare.EmptyOf(t)
}

// Observation is an immutable value asserted by an external source.
type Observation struct {
	ID         string        `gorm:"column:id;primaryKey;size:36" json:"id"`
	RecordID   string        `gorm:"column:record_id;size:64;index:idx_observation_record_field" json:"record_id"`
	FieldName  string        `gorm:"column:field_name;size:64;index:idx_observation_record_field" json:"field_name"`
	Value      compare.Value `gorm:"column:value;serializer:json" json:"value"`
	SourceName string        `gorm:"column:source_name;size:128" json:"source_name"`
	TrustLevel trust.Level   `gorm:"column:trust_level;size:16" json:"trust_level"`
	ObservedAt time.Time     `gorm:"column:observed_at" json:"observed_at"`
	SourceRef  string        `gorm:"column:source_ref;size:255" json:"source_ref,omitempty"`
	// Confidence is the source's own certainty; nil reads as 1.
	Confidence   *float64  `gorm:"column:confidence" json:"confidence,omitempty"`
	QualityFlags []string  `gorm:"column:quality_flags;serializer:json" json:"quality_flags,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

// EffectiveConfidence returns the confidence, defaulting to 1.
func (o *Observation) EffectiveConfidence() float64 {
	if o.Confidence == nil {
		return 1
	}
	return *o.Confidence
}

package compare

import (
	"fmt"
	"os"
	"sort"

	"catalog-reconciler/core/errs"

	"github.com/goccy/go-yaml"
	"github.com/shopspring/decimal"
)

// DefaultSimilarityThreshold is the Jaro-Winkler score at or above which two
// different text values are considered within tolerance.
const DefaultSimilarityThreshold = 0.92

// Descriptor defines how one field is compared.
type Descriptor struct {
	Name                string
	Type                FieldType
	Tolerance           decimal.Decimal
	YearDelta           int
	SimilarityThreshold float64
	Synonyms            *SynonymTable
	// Validate is a go-playground/validator tag checked before a value is written.
	Validate string
}

func (d Descriptor) threshold() float64 {
	if d.SimilarityThreshold <= 0 {
		return DefaultSimilarityThreshold
	}
	return d.SimilarityThreshold
}

// Schema maps field names to descriptors.
type Schema struct {
	fields map[string]Descriptor
}

// NewSchema builds a schema and rejects descriptors with unknown types.
func NewSchema(descs ...Descriptor) (*Schema, error) {
	s := &Schema{fields: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: field without name", errs.ErrMalformedPolicy)
		}
		if !d.Type.Valid() {
			return nil, fmt.Errorf("%w: field %q: %w %q", errs.ErrMalformedPolicy, d.Name, errs.ErrInvalidFieldType, d.Type)
		}
		if d.SimilarityThreshold < 0 || d.SimilarityThreshold > 1 {
			return nil, fmt.Errorf("%w: field %q: threshold %v outside [0,1]", errs.ErrMalformedPolicy, d.Name, d.SimilarityThreshold)
		}
		if d.Tolerance.IsNegative() || d.YearDelta < 0 {
			return nil, fmt.Errorf("%w: field %q: negative tolerance", errs.ErrMalformedPolicy, d.Name)
		}
		if _, dup := s.fields[d.Name]; dup {
			return nil, fmt.Errorf("%w: field %q declared twice", errs.ErrMalformedPolicy, d.Name)
		}
		s.fields[d.Name] = d
	}
	return s, nil
}

// Descriptor returns the descriptor for field.
func (s *Schema) Descriptor(field string) (Descriptor, bool) {
	d, ok := s.fields[field]
	return d, ok
}

// Fields returns the field names in sorted order.
func (s *Schema) Fields() []string {
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compare classifies a difference for a named field.
func (s *Schema) Compare(field string, current, observed Value) (Result, error) {
	d, ok := s.fields[field]
	if !ok {
		return Result{Difference: Unclassified}, fmt.Errorf("%w: no descriptor for field %q", errs.ErrInvalidFieldType, field)
	}
	return Compare(d, current, observed)
}

// DefaultSchema returns the built-in numismatic field set.
func DefaultSchema() *Schema {
	grades, _ := BuiltinSynonyms("grades")
	mints, _ := BuiltinSynonyms("mints")
	materials, _ := BuiltinSynonyms("materials")
	catalogs, _ := BuiltinSynonyms("catalogs")

	s, err := NewSchema(
		Descriptor{Name: "title", Type: TypeText, Validate: "max=200"},
		Descriptor{Name: "ruler", Type: TypeText, SimilarityThreshold: 0.9},
		Descriptor{Name: "denomination", Type: TypeEnum},
		Descriptor{Name: "grade", Type: TypeEnum, Synonyms: grades},
		Descriptor{Name: "mint", Type: TypeText, Synonyms: mints},
		Descriptor{Name: "material", Type: TypeEnum, Synonyms: materials},
		Descriptor{Name: "year", Type: TypeYear, YearDelta: 5, Validate: "gte=-1000,lte=2100"},
		Descriptor{Name: "weight", Type: TypeNumeric, Tolerance: decimal.RequireFromString("0.05"), Validate: "gt=0"},
		Descriptor{Name: "diameter", Type: TypeNumeric, Tolerance: decimal.RequireFromString("0.5"), Validate: "gt=0"},
		Descriptor{Name: "reference", Type: TypeCatalogRef, Synonyms: catalogs},
	)
	if err != nil {
		panic(err)
	}
	return s
}

type schemaFile struct {
	Fields []fieldFile `yaml:"fields"`
}

type fieldFile struct {
	Name      string     `yaml:"name"`
	Type      string     `yaml:"type"`
	Tolerance string     `yaml:"tolerance"`
	YearDelta int        `yaml:"year_delta"`
	Threshold float64    `yaml:"threshold"`
	Synonyms  string     `yaml:"synonyms"`
	Aliases   [][]string `yaml:"aliases"`
	Validate  string     `yaml:"validate"`
}

// ParseSchema decodes a YAML field schema.
//
//	fields:
//	  - name: weight
//	    type: numeric
//	    tolerance: "0.05"
//	    validate: gt=0
//	  - name: grade
//	    type: enum
//	    synonyms: grades
//	    aliases: [["Choice VF", "VF"]]
func ParseSchema(data []byte) (*Schema, error) {
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrMalformedPolicy, err)
	}
	descs := make([]Descriptor, 0, len(f.Fields))
	for _, ff := range f.Fields {
		d := Descriptor{
			Name:                ff.Name,
			Type:                FieldType(ff.Type),
			YearDelta:           ff.YearDelta,
			SimilarityThreshold: ff.Threshold,
			Validate:            ff.Validate,
		}
		if ff.Tolerance != "" {
			tol, err := decimal.NewFromString(ff.Tolerance)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: tolerance: %w", errs.ErrMalformedPolicy, ff.Name, err)
			}
			d.Tolerance = tol
		}
		if ff.Synonyms != "" || len(ff.Aliases) > 0 {
			table := NewSynonymTable()
			if ff.Synonyms != "" {
				builtin, ok := BuiltinSynonyms(ff.Synonyms)
				if !ok {
					return nil, fmt.Errorf("%w: field %q: unknown synonym table %q", errs.ErrMalformedPolicy, ff.Name, ff.Synonyms)
				}
				if len(ff.Aliases) == 0 {
					table = builtin
				} else {
					table = builtin.clone()
				}
			}
			for _, g := range ff.Aliases {
				if len(g) > 0 {
					table.Add(g[0], g[1:]...)
				}
			}
			d.Synonyms = table
		}
		descs = append(descs, d)
	}
	return NewSchema(descs...)
}

// LoadSchema reads a YAML schema from path.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return ParseSchema(data)
}

func (t *SynonymTable) clone() *SynonymTable {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := &SynonymTable{groups: make(map[string]string, len(t.groups))}
	for k, v := range t.groups {
		c.groups[k] = v
	}
	return c
}

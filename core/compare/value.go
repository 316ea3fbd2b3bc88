package compare

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// FieldType identifies how a field's values are compared.
type FieldType string

const (
	TypeNumeric    FieldType = "numeric"
	TypeYear       FieldType = "year"
	TypeText       FieldType = "text"
	TypeEnum       FieldType = "enum"
	TypeCatalogRef FieldType = "catalog_ref"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case TypeNumeric, TypeYear, TypeText, TypeEnum, TypeCatalogRef:
		return true
	default:
		return false
	}
}

func (t FieldType) textual() bool {
	return t == TypeText || t == TypeEnum || t == TypeCatalogRef
}

// Presence is the tri-state of a field value.
type Presence int

const (
	Unknown Presence = iota
	Empty
	Present
)

var presenceNames = map[Presence]string{
	Unknown: "unknown",
	Empty:   "empty",
	Present: "present",
}

func (p Presence) String() string {
	if name, ok := presenceNames[p]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (p Presence) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Presence) UnmarshalText(text []byte) error {
	for k, name := range presenceNames {
		if name == string(text) {
			*p = k
			return nil
		}
	}
	return fmt.Errorf("unknown presence %q", string(text))
}

// YearRange is an inclusive span of years. A single year has From == To.
// Years before the common era are negative.
type YearRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (r YearRange) String() string {
	if r.From == r.To {
		return strconv.Itoa(r.From)
	}
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// Value is a typed field value. The zero Value is Unknown.
type Value struct {
	Type     FieldType
	Presence Presence
	Number   decimal.Decimal
	Text     string
	Years    YearRange
}

// Number returns a present numeric value.
func Number(d decimal.Decimal) Value {
	return Value{Type: TypeNumeric, Presence: Present, Number: d}
}

// NumberFromFloat returns a present numeric value from a float.
func NumberFromFloat(f float64) Value {
	return Number(decimal.NewFromFloat(f))
}

// Text returns a text value. Blank strings are Empty.
func Text(s string) Value {
	return textual(TypeText, s)
}

// Enum returns an enumerated value. Blank strings are Empty.
func Enum(s string) Value {
	return textual(TypeEnum, s)
}

// CatalogRef returns a catalog reference value. Blank strings are Empty.
func CatalogRef(s string) Value {
	return textual(TypeCatalogRef, s)
}

func textual(t FieldType, s string) Value {
	if strings.TrimSpace(s) == "" {
		return EmptyOf(t)
	}
	return Value{Type: t, Presence: Present, Text: s}
}

// Year returns a present single-year value.
func Year(y int) Value {
	return YearSpan(y, y)
}

// YearSpan returns a present year range; bounds are swapped if reversed.
func YearSpan(from, to int) Value {
	if from > to {
		from, to = to, from
	}
	return Value{Type: TypeYear, Presence: Present, Years: YearRange{From: from, To: to}}
}

// EmptyOf returns an explicitly empty value of type t.
func EmptyOf(t FieldType) Value {
	return Value{Type: t, Presence: Empty}
}

// UnknownOf returns a value whose content is not known.
func UnknownOf(t FieldType) Value {
	return Value{Type: t, Presence: Unknown}
}

func (v Value) IsPresent() bool { return v.Presence == Present }
func (v Value) IsEmpty() bool   { return v.Presence == Empty }
func (v Value) IsUnknown() bool { return v.Presence == Unknown }

// String renders the value for display and history reasons.
func (v Value) String() string {
	switch v.Presence {
	case Empty:
		return ""
	case Unknown:
		return "<unknown>"
	}
	switch v.Type {
	case TypeNumeric:
		return v.Number.String()
	case TypeYear:
		return v.Years.String()
	default:
		return v.Text
	}
}

// Key is the identity of a value used for deduplication. Two values with the same
// key are identical, not merely equivalent.
func (v Value) Key() string {
	if v.Presence != Present {
		return string(v.Type) + ":" + v.Presence.String()
	}
	return string(v.Type) + "=" + v.String()
}

type valueWire struct {
	Type     FieldType        `json:"type"`
	Presence Presence         `json:"presence"`
	Number   *decimal.Decimal `json:"number,omitempty"`
	Text     string           `json:"text,omitempty"`
	Years    *YearRange       `json:"years,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	w := valueWire{Type: v.Type, Presence: v.Presence}
	if v.Presence == Present {
		switch v.Type {
		case TypeNumeric:
			n := v.Number
			w.Number = &n
		case TypeYear:
			y := v.Years
			w.Years = &y
		default:
			w.Text = v.Text
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w valueWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*v = Value{Type: w.Type, Presence: w.Presence, Text: w.Text}
	if w.Number != nil {
		v.Number = *w.Number
	}
	if w.Years != nil {
		v.Years = *w.Years
	}
	return nil
}

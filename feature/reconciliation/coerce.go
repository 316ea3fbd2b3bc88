package reconciliation

import (
	"fmt"
	"strconv"
	"strings"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/utils"
)

// TypeValue turns a loosely typed JSON value into a compare.Value of the
// field's type. Fields outside the schema are kept as text so reconciliation
// can report them as unclassified.
func TypeValue(schema *compare.Schema, field string, presence string, raw any) (compare.Value, error) {
	t := compare.TypeText
	if desc, ok := schema.Descriptor(field); ok {
		t = desc.Type
	}

	switch presence {
	case "empty":
		return compare.EmptyOf(t), nil
	case "unknown":
		return compare.UnknownOf(t), nil
	}
	if raw == nil {
		return compare.EmptyOf(t), nil
	}

	switch t {
	case compare.TypeNumeric:
		d, err := utils.ToDecimal(raw)
		if err != nil {
			return compare.Value{}, fmt.Errorf("field %s: %w", field, err)
		}
		return compare.Number(d), nil
	case compare.TypeYear:
		return yearValue(field, raw)
	case compare.TypeEnum:
		return compare.Enum(utils.ToString(raw)), nil
	case compare.TypeCatalogRef:
		return compare.CatalogRef(utils.ToString(raw)), nil
	default:
		return compare.Text(utils.ToString(raw)), nil
	}
}

// yearValue accepts 1870, "1870", "1870-1875", "-44" and {"from":..,"to":..}.
func yearValue(field string, raw any) (compare.Value, error) {
	switch v := raw.(type) {
	case map[string]any:
		from, okFrom := v["from"]
		to, okTo := v["to"]
		if !okFrom || !okTo {
			return compare.Value{}, fmt.Errorf("field %s: year range needs from and to", field)
		}
		return compare.YearSpan(utils.ToInt(from), utils.ToInt(to)), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return compare.EmptyOf(compare.TypeYear), nil
		}
		// a leading minus is a BC year, not a range separator
		if i := strings.Index(s[1:], "-"); i >= 0 {
			from, err1 := strconv.Atoi(strings.TrimSpace(s[:i+1]))
			to, err2 := strconv.Atoi(strings.TrimSpace(s[i+2:]))
			if err1 != nil || err2 != nil {
				return compare.Value{}, fmt.Errorf("field %s: invalid year range %q", field, s)
			}
			return compare.YearSpan(from, to), nil
		}
		y, err := strconv.Atoi(s)
		if err != nil {
			return compare.Value{}, fmt.Errorf("field %s: invalid year %q", field, s)
		}
		return compare.Year(y), nil
	case float64, int, int64, int32:
		return compare.Year(utils.ToInt(v)), nil
	default:
		return compare.Value{}, fmt.Errorf("field %s: cannot read %T as a year", field, raw)
	}
}

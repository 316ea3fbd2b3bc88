package compare

import (
	"errors"
	"fmt"
	"strings"

	"catalog-reconciler/core/errs"

	"github.com/shopspring/decimal"
	"github.com/xrash/smetrics"
)

// Difference classifies how an observed value relates to the current one.
type Difference string

const (
	Exact           Difference = "exact"
	Equivalent      Difference = "equivalent"
	WithinTolerance Difference = "within_tolerance"
	Partial         Difference = "partial"
	FormatDiff      Difference = "format_diff"
	Overlapping     Difference = "overlapping"
	Adjacent        Difference = "adjacent"
	Mismatch        Difference = "mismatch"
	Missing         Difference = "missing"
	// Unclassified marks a field the comparator could not handle.
	Unclassified Difference = "unclassified"
)

// Agrees reports whether the two values need no reconciliation.
func (d Difference) Agrees() bool {
	return d == Exact || d == Equivalent
}

// Differences lists every classification.
func Differences() []Difference {
	return []Difference{Exact, Equivalent, WithinTolerance, Partial, FormatDiff, Overlapping, Adjacent, Mismatch, Missing, Unclassified}
}

// Result is the outcome of one comparison. Similarity is in [0,1].
type Result struct {
	Difference Difference `json:"difference_type"`
	Similarity float64    `json:"similarity"`
}

// ErrValueKind is returned when a value cannot be read as the descriptor's type.
var ErrValueKind = errors.New("value kind does not match field type")

// Compare classifies the difference between current and observed under desc.
// It is deterministic. Compare(d, v, v) is Exact when v is present or empty
// and readable as d.Type; two unknown values are Missing.
func Compare(desc Descriptor, current, observed Value) (Result, error) {
	if !desc.Type.Valid() {
		return Result{Difference: Unclassified}, fmt.Errorf("%w: %q", errs.ErrInvalidFieldType, desc.Type)
	}
	if r, ok := comparePresence(current, observed); ok {
		return r, nil
	}

	switch desc.Type {
	case TypeNumeric:
		a, err := numberOf(current)
		if err != nil {
			return Result{Difference: Unclassified}, err
		}
		b, err := numberOf(observed)
		if err != nil {
			return Result{Difference: Unclassified}, err
		}
		return compareNumbers(desc, a, b), nil
	case TypeYear:
		a, err := yearsOf(current)
		if err != nil {
			return Result{Difference: Unclassified}, err
		}
		b, err := yearsOf(observed)
		if err != nil {
			return Result{Difference: Unclassified}, err
		}
		return compareYears(desc, a, b), nil
	case TypeCatalogRef:
		a, err := textOf(current)
		if err != nil {
			return Result{Difference: Unclassified}, err
		}
		b, err := textOf(observed)
		if err != nil {
			return Result{Difference: Unclassified}, err
		}
		return compareRefs(desc, a, b), nil
	default:
		a, err := textOf(current)
		if err != nil {
			return Result{Difference: Unclassified}, err
		}
		b, err := textOf(observed)
		if err != nil {
			return Result{Difference: Unclassified}, err
		}
		return compareText(desc, a, b), nil
	}
}

func comparePresence(a, b Value) (Result, bool) {
	if a.IsPresent() && b.IsPresent() {
		return Result{}, false
	}
	if a.IsEmpty() && b.IsEmpty() {
		return Result{Difference: Exact, Similarity: 1}, true
	}
	return Result{Difference: Missing}, true
}

func numberOf(v Value) (decimal.Decimal, error) {
	switch {
	case v.Type == TypeNumeric:
		return v.Number, nil
	case v.Type == TypeYear && v.Years.From == v.Years.To:
		return decimal.NewFromInt(int64(v.Years.From)), nil
	case v.Type.textual():
		d, err := decimal.NewFromString(strings.TrimSpace(v.Text))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrValueKind, v.Text)
		}
		return d, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s as numeric", ErrValueKind, v.Type)
}

func yearsOf(v Value) (YearRange, error) {
	switch v.Type {
	case TypeYear:
		return v.Years, nil
	case TypeNumeric:
		if v.Number.IsInteger() {
			y := int(v.Number.IntPart())
			return YearRange{From: y, To: y}, nil
		}
	}
	return YearRange{}, fmt.Errorf("%w: %s as year", ErrValueKind, v.Type)
}

func textOf(v Value) (string, error) {
	if v.Type.textual() {
		return v.Text, nil
	}
	return "", fmt.Errorf("%w: %s as text", ErrValueKind, v.Type)
}

func compareNumbers(desc Descriptor, a, b decimal.Decimal) Result {
	if a.Equal(b) {
		return Result{Difference: Exact, Similarity: 1}
	}
	diff := a.Sub(b).Abs()
	sim := numericSimilarity(a, b, diff)
	if diff.LessThanOrEqual(desc.Tolerance) {
		return Result{Difference: WithinTolerance, Similarity: sim}
	}
	return Result{Difference: Mismatch, Similarity: sim}
}

func numericSimilarity(a, b, diff decimal.Decimal) float64 {
	scale := decimal.Max(a.Abs(), b.Abs())
	if scale.IsZero() {
		return 1
	}
	f, _ := decimal.NewFromInt(1).Sub(diff.Div(scale)).Float64()
	return clamp(f)
}

func compareYears(desc Descriptor, a, b YearRange) Result {
	if a == b {
		return Result{Difference: Exact, Similarity: 1}
	}
	if a.From <= b.To && b.From <= a.To {
		inter := min(a.To, b.To) - max(a.From, b.From) + 1
		union := max(a.To, b.To) - min(a.From, b.From) + 1
		return Result{Difference: Overlapping, Similarity: float64(inter) / float64(union)}
	}
	gap := b.From - a.To
	if a.From > b.To {
		gap = a.From - b.To
	}
	if gap <= desc.YearDelta {
		return Result{Difference: Adjacent, Similarity: clamp(1 - float64(gap)/float64(desc.YearDelta+1))}
	}
	return Result{Difference: Mismatch}
}

func compareText(desc Descriptor, a, b string) Result {
	if a == b {
		return Result{Difference: Exact, Similarity: 1}
	}
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return Result{Difference: Equivalent, Similarity: 1}
	}
	sim := similarity(na, nb)
	if desc.Synonyms.Match(a, b) {
		return Result{Difference: FormatDiff, Similarity: sim}
	}
	if sim >= desc.threshold() {
		return Result{Difference: WithinTolerance, Similarity: sim}
	}
	if na != "" && nb != "" && (strings.Contains(na, nb) || strings.Contains(nb, na)) {
		return Result{Difference: Partial, Similarity: sim}
	}
	return Result{Difference: Mismatch, Similarity: sim}
}

func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return clamp(smetrics.JaroWinkler(a, b, 0.7, 4))
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

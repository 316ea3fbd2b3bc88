package compare

import (
	"regexp"
	"strconv"

	"github.com/agnivade/levenshtein"
)

// Reference is a decomposed catalog reference such as "RIC II 207a".
type Reference struct {
	Catalog string `json:"catalog"`
	Volume  string `json:"volume,omitempty"`
	Number  int    `json:"number"`
	Suffix  string `json:"suffix,omitempty"`
}

var refPattern = regexp.MustCompile(`^([a-z]+(?: [a-z]+)*?)(?: ([ivxlc]+|\d+))? (\d+) ?([a-z]{0,3})$`)

// ParseReference decomposes a catalog reference. Volumes are roman numerals or a
// number directly preceding the catalog number.
func ParseReference(s string) (Reference, bool) {
	m := refPattern.FindStringSubmatch(Normalize(s))
	if m == nil {
		return Reference{}, false
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return Reference{}, false
	}
	return Reference{Catalog: m[1], Volume: m[2], Number: n, Suffix: m[4]}, true
}

func compareRefs(desc Descriptor, a, b string) Result {
	if a == b {
		return Result{Difference: Exact, Similarity: 1}
	}
	ra, okA := ParseReference(a)
	rb, okB := ParseReference(b)
	if !okA || !okB {
		return compareText(desc, a, b)
	}

	sameCatalog := ra.Catalog == rb.Catalog
	synonymCatalog := !sameCatalog && desc.Synonyms.Match(ra.Catalog, rb.Catalog)
	if !sameCatalog && !synonymCatalog {
		return Result{Difference: Mismatch, Similarity: similarity(Normalize(a), Normalize(b))}
	}

	sim := referenceSimilarity(ra, rb)
	if ra.Volume != "" && rb.Volume != "" && ra.Volume != rb.Volume {
		return Result{Difference: Mismatch, Similarity: sim}
	}

	if ra.Number != rb.Number {
		na, nb := strconv.Itoa(ra.Number), strconv.Itoa(rb.Number)
		if len(na) == len(nb) && levenshtein.ComputeDistance(na, nb) == 1 && ra.Suffix == rb.Suffix {
			return Result{Difference: WithinTolerance, Similarity: sim}
		}
		return Result{Difference: Mismatch, Similarity: sim}
	}

	switch {
	case ra.Suffix != rb.Suffix && ra.Suffix != "" && rb.Suffix != "":
		return Result{Difference: Mismatch, Similarity: sim}
	case ra.Suffix != rb.Suffix || ra.Volume != rb.Volume:
		return Result{Difference: Partial, Similarity: sim}
	case synonymCatalog:
		return Result{Difference: FormatDiff, Similarity: sim}
	default:
		return Result{Difference: Equivalent, Similarity: 1}
	}
}

func referenceSimilarity(a, b Reference) float64 {
	score := 0.3
	if a.Volume == b.Volume {
		score += 0.1
	} else if a.Volume == "" || b.Volume == "" {
		score += 0.05
	}
	if a.Number == b.Number {
		score += 0.5
	} else {
		na, nb := strconv.Itoa(a.Number), strconv.Itoa(b.Number)
		longest := max(len(na), len(nb))
		score += 0.5 * (1 - float64(levenshtein.ComputeDistance(na, nb))/float64(longest))
	}
	if a.Suffix == b.Suffix {
		score += 0.1
	}
	return clamp(score)
}

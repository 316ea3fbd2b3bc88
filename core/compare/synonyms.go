package compare

import (
	"fmt"
	"sort"
	"sync"
)

// SynonymTable groups terms that denote the same thing in different notations.
type SynonymTable struct {
	mu     sync.RWMutex
	groups map[string]string
}

// NewSynonymTable returns a table seeded with the given groups; the first term of
// each group is its canonical form.
func NewSynonymTable(groups ...[]string) *SynonymTable {
	t := &SynonymTable{groups: make(map[string]string)}
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		t.Add(g[0], g[1:]...)
	}
	return t
}

// Add registers canonical and its aliases as one group. When any of the terms is
// already known, the others join that existing group.
func (t *SynonymTable) Add(canonical string, aliases ...string) {
	keys := make([]string, 0, len(aliases)+1)
	for _, term := range append([]string{canonical}, aliases...) {
		if k := compact(term); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	group := keys[0]
	for _, k := range keys {
		if g, ok := t.groups[k]; ok {
			group = g
			break
		}
	}
	for _, k := range keys {
		t.groups[k] = group
	}
}

// Canonical returns the group a term belongs to.
func (t *SynonymTable) Canonical(term string) (string, bool) {
	if t == nil {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.groups[compact(term)]
	return g, ok
}

// Match reports whether a and b are both known and in the same group.
func (t *SynonymTable) Match(a, b string) bool {
	ga, ok := t.Canonical(a)
	if !ok {
		return false
	}
	gb, ok := t.Canonical(b)
	return ok && ga == gb
}

// Len returns the number of known terms.
func (t *SynonymTable) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.groups)
}

var (
	builtinOnce   sync.Once
	builtinTables map[string]*SynonymTable
)

// BuiltinSynonyms returns a named built-in table: grades, mints, materials or catalogs.
func BuiltinSynonyms(name string) (*SynonymTable, bool) {
	builtinOnce.Do(func() {
		builtinTables = map[string]*SynonymTable{
			"grades":    gradeSynonyms(),
			"mints":     mintSynonyms(),
			"materials": materialSynonyms(),
			"catalogs":  catalogSynonyms(),
		}
	})
	t, ok := builtinTables[name]
	return t, ok
}

// BuiltinSynonymNames lists the built-in table names.
func BuiltinSynonymNames() []string {
	names := []string{"grades", "mints", "materials", "catalogs"}
	sort.Strings(names)
	return names
}

type gradeBand struct {
	name    string
	codes   []string
	numeric []int
}

// gradeSynonyms maps adjectival grades, their abbreviations and the Sheldon
// numbers inside each band, so VF, VF35 and Very Fine share a group.
func gradeSynonyms() *SynonymTable {
	bands := []gradeBand{
		{"Poor", []string{"PO", "P"}, []int{1}},
		{"Fair", []string{"FR"}, []int{2}},
		{"About Good", []string{"AG"}, []int{3}},
		{"Good", []string{"G"}, []int{4, 6}},
		{"Very Good", []string{"VG"}, []int{8, 10}},
		{"Fine", []string{"F"}, []int{12, 15}},
		{"Very Fine", []string{"VF"}, []int{20, 25, 30, 35}},
		{"Extremely Fine", []string{"XF", "EF"}, []int{40, 45}},
		{"About Uncirculated", []string{"AU"}, []int{50, 53, 55, 58}},
		{"Mint State", []string{"MS", "UNC", "Uncirculated"}, []int{60, 61, 62, 63, 64, 65, 66, 67, 68, 69, 70}},
	}
	t := NewSynonymTable()
	for _, b := range bands {
		aliases := append([]string(nil), b.codes...)
		for _, code := range b.codes {
			for _, n := range b.numeric {
				aliases = append(aliases, fmt.Sprintf("%s%d", code, n))
			}
		}
		t.Add(b.name, aliases...)
	}
	return t
}

func mintSynonyms() *SynonymTable {
	return NewSynonymTable(
		[]string{"Rome", "Roma"},
		[]string{"Lugdunum", "Lyon", "Lyons"},
		[]string{"Treveri", "Trier", "Augusta Treverorum"},
		[]string{"Siscia", "Sisak"},
		[]string{"Antioch", "Antiochia", "Antakya"},
		[]string{"Alexandria", "Alexandreia"},
		[]string{"Constantinople", "Constantinopolis", "Byzantium"},
		[]string{"Londinium", "London"},
		[]string{"Mediolanum", "Milan"},
		[]string{"Ticinum", "Pavia"},
	)
}

func materialSynonyms() *SynonymTable {
	return NewSynonymTable(
		[]string{"Gold", "AV", "AU"},
		[]string{"Silver", "AR"},
		[]string{"Bronze", "AE", "Copper alloy"},
		[]string{"Billon", "BI"},
		[]string{"Electrum", "EL"},
		[]string{"Orichalcum", "OR"},
	)
}

func catalogSynonyms() *SynonymTable {
	return NewSynonymTable(
		[]string{"RIC", "Roman Imperial Coinage"},
		[]string{"RPC", "Roman Provincial Coinage"},
		[]string{"Sear", "S", "SRCV"},
		[]string{"Cohen", "C"},
		[]string{"Crawford", "Cr", "RRC"},
		[]string{"BMC", "BMCRE"},
	)
}

package trust

import "fmt"

// Level is the trust assigned to an observation's source.
type Level string

const (
	Authoritative Level = "authoritative"
	High          Level = "high"
	Medium        Level = "medium"
	Low           Level = "low"
	Untrusted     Level = "untrusted"
)

var ranks = map[Level]int{
	Authoritative: 5,
	High:          4,
	Medium:        3,
	Low:           2,
	Untrusted:     1,
}

// Levels lists the levels from most to least trusted.
func Levels() []Level {
	return []Level{Authoritative, High, Medium, Low, Untrusted}
}

// Rank orders levels; unknown levels rank zero.
func (l Level) Rank() int {
	return ranks[l]
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := ranks[l]
	return ok
}

// Outranks reports whether l is strictly more trusted than other.
func (l Level) Outranks(other Level) bool {
	return l.Rank() > other.Rank()
}

// ParseLevel parses a level name.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown trust level %q", s)
	}
	return l, nil
}

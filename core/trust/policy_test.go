package trust

import (
	"os"
	"path/filepath"
	"testing"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIsAutoAcceptable_UntrustedNever tests that no configuration makes untrusted
// observations auto-acceptable.
func TestIsAutoAcceptable_UntrustedNever(t *testing.T) {
	p := DefaultPolicy()
	p.AutoAccept[Untrusted] = compare.Differences()
	for _, d := range compare.Differences() {
		assert.False(t, p.IsAutoAcceptable(Untrusted, d), d)
	}
}

// TestIsAutoAcceptable_AuthoritativeExact tests the authoritative exact floor.
func TestIsAutoAcceptable_AuthoritativeExact(t *testing.T) {
	p := &Policy{}
	assert.True(t, p.IsAutoAcceptable(Authoritative, compare.Exact))
	assert.False(t, p.IsAutoAcceptable(High, compare.Exact))
}

func TestIsAutoAcceptable_DefaultMatrix(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		level    Level
		diff     compare.Difference
		expected bool
	}{
		{Authoritative, compare.FormatDiff, true},
		{Authoritative, compare.Mismatch, false},
		{Authoritative, compare.Unclassified, false},
		{High, compare.WithinTolerance, true},
		{High, compare.Partial, false},
		{Medium, compare.FormatDiff, true},
		{Medium, compare.Missing, false},
		{Low, compare.Equivalent, true},
		{Low, compare.FormatDiff, false},
		{Level("bogus"), compare.Equivalent, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.level)+"/"+string(tt.diff), func(t *testing.T) {
			assert.Equal(t, tt.expected, p.IsAutoAcceptable(tt.level, tt.diff))
		})
	}
}

func TestEvaluate(t *testing.T) {
	p := DefaultPolicy()
	p.BlockingFlags = []string{"ocr"}

	base := Assessment{Level: High, Difference: compare.Missing, Capability: CapabilityFill, Confidence: 0.9}
	assert.True(t, p.Evaluate(base))

	low := base
	low.Confidence = 0.5
	assert.False(t, p.Evaluate(low), "below fill threshold")

	flagged := base
	flagged.QualityFlags = []string{"ocr"}
	assert.False(t, p.Evaluate(flagged), "blocking flag")

	update := Assessment{Level: Authoritative, Difference: compare.FormatDiff, Capability: CapabilityUpdate, Confidence: 0.1}
	assert.True(t, p.Evaluate(update))
}

func TestLevel_Ordering(t *testing.T) {
	levels := Levels()
	for i := 0; i < len(levels)-1; i++ {
		assert.True(t, levels[i].Outranks(levels[i+1]))
		assert.False(t, levels[i+1].Outranks(levels[i]))
	}
	_, err := ParseLevel("trusted-ish")
	assert.Error(t, err)
	l, err := ParseLevel("medium")
	require.NoError(t, err)
	assert.Equal(t, Medium, l)
}

func TestParse(t *testing.T) {
	p, err := Parse([]byte(`
auto_accept:
  high: [equivalent]
thresholds:
  update: 0.9
blocking_flags: [ocr]
`))
	require.NoError(t, err)
	assert.True(t, p.IsAutoAcceptable(High, compare.Equivalent))
	assert.False(t, p.IsAutoAcceptable(High, compare.FormatDiff))
	assert.False(t, p.IsAutoAcceptable(Medium, compare.FormatDiff), "matrix replaced as a whole")
	assert.Equal(t, 0.8, p.AutoApplyThreshold(CapabilityFill))
	assert.Equal(t, 0.9, p.AutoApplyThreshold(CapabilityUpdate))
	assert.True(t, p.Blocks([]string{"ocr"}))
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown level", "auto_accept:\n  trusted: [exact]\n"},
		{"untrusted entries", "auto_accept:\n  untrusted: [equivalent]\n"},
		{"unknown difference", "auto_accept:\n  high: [close_enough]\n"},
		{"unclassified", "auto_accept:\n  high: [unclassified]\n"},
		{"threshold range", "thresholds:\n  fill: 2\n"},
		{"unknown capability", "thresholds:\n  delete: 0.5\n"},
		{"not yaml", "auto_accept: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, errs.IsConfiguration(err))
		})
	}
}

func TestLoad(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blocking_flags: [blurry]\n"), 0o600))
	p, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"blurry"}, p.BlockingFlags)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

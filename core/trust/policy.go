package trust

import (
	"fmt"
	"os"
	"slices"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/errs"

	"github.com/goccy/go-yaml"
)

// Capability is the kind of write an auto-applied change performs.
type Capability string

const (
	// CapabilityFill writes into an empty field.
	CapabilityFill Capability = "fill"
	// CapabilityUpdate overwrites a populated field.
	CapabilityUpdate Capability = "update"
)

// Policy holds the auto-acceptance rules.
type Policy struct {
	AutoAccept    map[Level][]compare.Difference `json:"auto_accept"`
	Thresholds    map[Capability]float64         `json:"thresholds"`
	BlockingFlags []string                       `json:"blocking_flags"`
}

// DefaultPolicy returns the built-in matrix.
func DefaultPolicy() *Policy {
	return &Policy{
		AutoAccept: map[Level][]compare.Difference{
			Authoritative: {
				compare.Equivalent, compare.FormatDiff, compare.WithinTolerance, compare.Partial,
				compare.Overlapping, compare.Adjacent, compare.Missing,
			},
			High:   {compare.Equivalent, compare.FormatDiff, compare.WithinTolerance, compare.Missing},
			Medium: {compare.Equivalent, compare.FormatDiff},
			Low:    {compare.Equivalent},
		},
		Thresholds: map[Capability]float64{
			CapabilityFill:   0.8,
			CapabilityUpdate: 0,
		},
	}
}

// IsAutoAcceptable reports whether a difference observed at level may be applied
// without review.
func (p *Policy) IsAutoAcceptable(level Level, diff compare.Difference) bool {
	if level == Untrusted || !level.Valid() {
		return false
	}
	if level == Authoritative && diff == compare.Exact {
		return true
	}
	if diff == compare.Unclassified {
		return false
	}
	return slices.Contains(p.AutoAccept[level], diff)
}

// AutoApplyThreshold returns the minimum confidence for automated writes of the
// given capability.
func (p *Policy) AutoApplyThreshold(c Capability) float64 {
	return p.Thresholds[c]
}

// Blocks reports whether any of flags prevents automation.
func (p *Policy) Blocks(flags []string) bool {
	for _, f := range flags {
		if slices.Contains(p.BlockingFlags, f) {
			return true
		}
	}
	return false
}

// Assessment is everything the policy needs about one candidate change.
type Assessment struct {
	Level        Level
	Difference   compare.Difference
	Capability   Capability
	Confidence   float64
	QualityFlags []string
}

// Evaluate combines the matrix, the capability threshold and blocking flags.
func (p *Policy) Evaluate(a Assessment) bool {
	if !p.IsAutoAcceptable(a.Level, a.Difference) {
		return false
	}
	if p.Blocks(a.QualityFlags) {
		return false
	}
	return a.Confidence >= p.AutoApplyThreshold(a.Capability)
}

// Validate rejects policies that cannot be applied consistently.
func (p *Policy) Validate() error {
	known := compare.Differences()
	for level, diffs := range p.AutoAccept {
		if !level.Valid() {
			return fmt.Errorf("%w: unknown trust level %q", errs.ErrMalformedPolicy, level)
		}
		if level == Untrusted && len(diffs) > 0 {
			return fmt.Errorf("%w: untrusted sources cannot auto-accept", errs.ErrMalformedPolicy)
		}
		for _, d := range diffs {
			if !slices.Contains(known, d) {
				return fmt.Errorf("%w: level %s: unknown difference type %q", errs.ErrMalformedPolicy, level, d)
			}
			if d == compare.Unclassified {
				return fmt.Errorf("%w: level %s: unclassified differences cannot auto-accept", errs.ErrMalformedPolicy, level)
			}
		}
	}
	for c, v := range p.Thresholds {
		if c != CapabilityFill && c != CapabilityUpdate {
			return fmt.Errorf("%w: unknown capability %q", errs.ErrMalformedPolicy, c)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: threshold %s=%v outside [0,1]", errs.ErrMalformedPolicy, c, v)
		}
	}
	return nil
}

type policyFile struct {
	AutoAccept    map[string][]string `yaml:"auto_accept"`
	Thresholds    map[string]float64  `yaml:"thresholds"`
	BlockingFlags []string            `yaml:"blocking_flags"`
}

// Parse decodes and validates a YAML policy. Omitted sections keep their defaults.
func Parse(data []byte) (*Policy, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrMalformedPolicy, err)
	}
	p := DefaultPolicy()
	if f.AutoAccept != nil {
		p.AutoAccept = make(map[Level][]compare.Difference, len(f.AutoAccept))
		for level, diffs := range f.AutoAccept {
			for _, d := range diffs {
				p.AutoAccept[Level(level)] = append(p.AutoAccept[Level(level)], compare.Difference(d))
			}
			if len(diffs) == 0 {
				p.AutoAccept[Level(level)] = nil
			}
		}
	}
	for c, v := range f.Thresholds {
		p.Thresholds[Capability(c)] = v
	}
	if f.BlockingFlags != nil {
		p.BlockingFlags = f.BlockingFlags
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads a policy file. An empty path yields the default policy.
func Load(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust policy: %w", err)
	}
	return Parse(data)
}

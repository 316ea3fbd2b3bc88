package reconcile

import (
	"fmt"
	"sort"
	"time"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/trust"
)

// proposal is a candidate the engine wants to exist after emission.
type proposal struct {
	kind           models.CandidateKind
	value          compare.Value
	source         string
	sourceRef      string
	level          trust.Level
	result         compare.Result
	confidence     float64
	observedAt     time.Time
	observationIDs []string
	autoAcceptable bool
	alternates     []models.Alternate
}

// fieldPlan is the outcome of comparing one field, computed without side effects.
type fieldPlan struct {
	field         string
	desc          compare.Descriptor
	known         bool
	current       compare.Value
	observations  []models.Observation
	enrichment    *proposal
	discrepancies []proposal
	unclassified  *FieldError
}

// obsGroup is the observations of one value from one source.
type obsGroup struct {
	latest models.Observation
	ids    []string
}

// planField compares one field's observations with its current value.
// Observations that do not assert a value carry nothing to reconcile.
func (e *Engine) planField(rec *models.Record, field string, obs []models.Observation) fieldPlan {
	plan := fieldPlan{field: field}
	for _, o := range obs {
		if o.Value.IsPresent() {
			plan.observations = append(plan.observations, o)
		}
	}

	plan.desc, plan.known = e.schema.Descriptor(field)
	if plan.known {
		plan.current = rec.Field(field, plan.desc.Type)
	} else if len(plan.observations) > 0 {
		plan.current = rec.Field(field, plan.observations[0].Value.Type)
	}
	if len(plan.observations) == 0 {
		return plan
	}

	if !plan.current.IsPresent() {
		plan.enrichment = e.planEnrichment(&plan)
		return plan
	}
	e.planDiscrepancies(&plan)
	return plan
}

func (e *Engine) planDiscrepancies(plan *fieldPlan) {
	for _, g := range groupBySource(plan.observations) {
		latest := g.latest
		var (
			res compare.Result
			err error
		)
		if plan.known {
			res, err = compare.Compare(plan.desc, plan.current, latest.Value)
		} else {
			res, err = compare.Result{Difference: compare.Unclassified}, fmt.Errorf("%w: no descriptor for field %q", errs.ErrInvalidFieldType, plan.field)
		}
		if err != nil {
			res = compare.Result{Difference: compare.Unclassified}
			plan.unclassified = &FieldError{Field: plan.field, Reason: err.Error()}
		}
		if res.Difference.Agrees() {
			continue
		}

		confidence := latest.EffectiveConfidence()
		auto := err == nil && e.policy.Evaluate(trust.Assessment{
			Level:        latest.TrustLevel,
			Difference:   res.Difference,
			Capability:   trust.CapabilityUpdate,
			Confidence:   confidence,
			QualityFlags: latest.QualityFlags,
		})
		plan.discrepancies = append(plan.discrepancies, proposal{
			kind:           models.KindDiscrepancy,
			value:          latest.Value,
			source:         latest.SourceName,
			sourceRef:      latest.SourceRef,
			level:          latest.TrustLevel,
			result:         res,
			confidence:     confidence,
			observedAt:     latest.ObservedAt,
			observationIDs: g.ids,
			autoAcceptable: auto,
		})
	}
}

// planEnrichment picks the primary value for an empty field: highest trust, then
// highest confidence, then newest. Other distinct values become ranked alternates.
func (e *Engine) planEnrichment(plan *fieldPlan) *proposal {
	ranked := append([]models.Observation(nil), plan.observations...)
	sort.SliceStable(ranked, func(i, j int) bool { return outranks(ranked[i], ranked[j]) })

	primary := ranked[0]
	primaryKey := primary.Value.Key()

	res := compare.Result{Difference: compare.Missing}
	var err error
	if !plan.known {
		err = fmt.Errorf("%w: no descriptor for field %q", errs.ErrInvalidFieldType, plan.field)
	} else {
		// a value that cannot be compared with itself does not fit the field
		_, err = compare.Compare(plan.desc, primary.Value, primary.Value)
	}
	if err != nil {
		res = compare.Result{Difference: compare.Unclassified}
		plan.unclassified = &FieldError{Field: plan.field, Reason: err.Error()}
	}

	var ids []string
	var alternates []models.Alternate
	seen := map[string]struct{}{primaryKey: {}}
	for _, o := range ranked {
		o := o
		key := o.Value.Key()
		if key == primaryKey {
			ids = append(ids, o.ID)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		alternates = append(alternates, models.Alternate{
			Value:         o.Value,
			SourceName:    o.SourceName,
			TrustLevel:    o.TrustLevel,
			Confidence:    o.EffectiveConfidence(),
			ObservationID: o.ID,
			ObservedAt:    o.ObservedAt,
		})
	}
	sort.Strings(ids)

	confidence := primary.EffectiveConfidence()
	auto := err == nil && e.policy.Evaluate(trust.Assessment{
		Level:        primary.TrustLevel,
		Difference:   res.Difference,
		Capability:   trust.CapabilityFill,
		Confidence:   confidence,
		QualityFlags: primary.QualityFlags,
	})
	return &proposal{
		kind:           models.KindEnrichment,
		value:          primary.Value,
		source:         primary.SourceName,
		sourceRef:      primary.SourceRef,
		level:          primary.TrustLevel,
		result:         res,
		confidence:     confidence,
		observedAt:     primary.ObservedAt,
		observationIDs: ids,
		autoAcceptable: auto,
		alternates:     alternates,
	}
}

// outranks orders observations by trust, confidence, recency and id.
func outranks(a, b models.Observation) bool {
	if a.TrustLevel.Rank() != b.TrustLevel.Rank() {
		return a.TrustLevel.Rank() > b.TrustLevel.Rank()
	}
	if ca, cb := a.EffectiveConfidence(), b.EffectiveConfidence(); ca != cb {
		return ca > cb
	}
	if !a.ObservedAt.Equal(b.ObservedAt) {
		return a.ObservedAt.After(b.ObservedAt)
	}
	return a.ID < b.ID
}

// groupBySource collapses observations repeating the same value from the same
// source, in a deterministic order.
func groupBySource(obs []models.Observation) []obsGroup {
	type key struct{ value, source string }
	index := make(map[key]int)
	var groups []obsGroup
	for _, o := range obs {
		k := key{o.Value.Key(), o.SourceName}
		i, ok := index[k]
		if !ok {
			index[k] = len(groups)
			groups = append(groups, obsGroup{latest: o, ids: []string{o.ID}})
			continue
		}
		g := &groups[i]
		g.ids = append(g.ids, o.ID)
		if o.ObservedAt.After(g.latest.ObservedAt) || (o.ObservedAt.Equal(g.latest.ObservedAt) && o.ID > g.latest.ID) {
			g.latest = o
		}
	}
	for i := range groups {
		sort.Strings(groups[i].ids)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].latest.SourceName != groups[j].latest.SourceName {
			return groups[i].latest.SourceName < groups[j].latest.SourceName
		}
		return groups[i].latest.Value.Key() < groups[j].latest.Value.Key()
	})
	return groups
}

// newerDifferent returns an observation that arrived after an applied candidate
// and asserts a different value, or nil.
func newerDifferent(c *models.Candidate, obs []models.Observation) *models.Observation {
	applied := make(map[string]struct{}, len(c.ObservationIDs))
	for _, id := range c.ObservationIDs {
		applied[id] = struct{}{}
	}
	key := c.ObservedValue.Key()
	for i := range obs {
		o := &obs[i]
		if _, ok := applied[o.ID]; ok {
			continue
		}
		if o.ObservedAt.After(c.ObservedAt) && o.Value.Key() != key {
			return o
		}
	}
	return nil
}

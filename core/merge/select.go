package merge

import (
	"context"
	"fmt"
	"sort"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/store"
)

// selectCandidates loads the selected candidates and keeps one per field.
func (m *Manager) selectCandidates(ctx context.Context, sel Selection) ([]models.Candidate, []Skipped, error) {
	if err := sel.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		loaded  []models.Candidate
		skipped []Skipped
	)
	if sel.Scope != nil {
		var err error
		loaded, err = m.scopeCandidates(ctx, sel)
		if err != nil {
			return nil, nil, err
		}
	} else {
		ids := dedupe(sel.CandidateIDs)
		found, err := m.store.GetCandidates(ctx, ids)
		if err != nil {
			return nil, nil, fmt.Errorf("load candidates: %w", err)
		}
		byID := make(map[string]struct{}, len(found))
		for _, c := range found {
			byID[c.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := byID[id]; !ok {
				skipped = append(skipped, Skipped{CandidateID: id, Reason: "unknown candidate"})
			}
		}
		loaded = found
	}

	var usable []models.Candidate
	for _, c := range loaded {
		c := c
		switch {
		case !c.IsOpen():
			skipped = append(skipped, skip(c, "candidate is "+string(c.Status)))
		case c.DifferenceType == compare.Unclassified:
			skipped = append(skipped, skip(c, "unclassified difference"))
		default:
			usable = append(usable, c)
		}
	}

	winners, losers := resolveConflicts(usable)
	skipped = append(skipped, losers...)
	return winners, skipped, nil
}

// scopeCandidates pages through the open auto-acceptable candidates of a scope.
func (m *Manager) scopeCandidates(ctx context.Context, sel Selection) ([]models.Candidate, error) {
	auto := true
	filter := store.CandidateFilter{
		Statuses:       models.OpenStatuses(),
		AutoAcceptable: &auto,
		Page:           store.Page{Limit: 500},
	}
	if sel.Scope.Kind != models.ScopeAll {
		filter.RecordIDs = dedupe(sel.Scope.IDs)
	}

	var out []models.Candidate
	for {
		page, err := m.store.ListCandidates(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list candidates: %w", err)
		}
		out = append(out, page...)
		if len(page) < filter.Page.Limit {
			return out, nil
		}
		filter.Page.Offset += len(page)
	}
}

// resolveConflicts keeps one candidate per record field: highest trust, then the
// newest observation, then the lowest id.
func resolveConflicts(cands []models.Candidate) ([]models.Candidate, []Skipped) {
	type fieldKey struct{ record, field string }
	best := make(map[fieldKey]int)
	for i, c := range cands {
		k := fieldKey{c.RecordID, c.FieldName}
		j, ok := best[k]
		if !ok || preferred(c, cands[j]) {
			best[k] = i
		}
	}

	var winners []models.Candidate
	var losers []Skipped
	for i, c := range cands {
		w := best[fieldKey{c.RecordID, c.FieldName}]
		if w == i {
			winners = append(winners, c)
			continue
		}
		losers = append(losers, skip(c, "conflicts with candidate "+cands[w].ID))
	}
	sort.SliceStable(winners, func(i, j int) bool {
		if winners[i].RecordID != winners[j].RecordID {
			return winners[i].RecordID < winners[j].RecordID
		}
		return winners[i].FieldName < winners[j].FieldName
	})
	return winners, losers
}

func preferred(a, b models.Candidate) bool {
	if a.TrustLevel.Rank() != b.TrustLevel.Rank() {
		return a.TrustLevel.Rank() > b.TrustLevel.Rank()
	}
	if !a.ObservedAt.Equal(b.ObservedAt) {
		return a.ObservedAt.After(b.ObservedAt)
	}
	return a.ID < b.ID
}

// groupByRecord splits ordered candidates into per-record runs.
func groupByRecord(cands []models.Candidate) [][]models.Candidate {
	var out [][]models.Candidate
	for i := 0; i < len(cands); {
		j := i
		for j < len(cands) && cands[j].RecordID == cands[i].RecordID {
			j++
		}
		out = append(out, cands[i:j])
		i = j
	}
	return out
}

// planRecord computes the changes of one record's candidates against rec as it
// is now. Preview and commit share it so both report the same diff.
func (m *Manager) planRecord(rec *models.Record, cands []models.Candidate) ([]Change, []Skipped) {
	var changes []Change
	var skipped []Skipped
	for _, c := range cands {
		current := rec.Field(c.FieldName, m.fieldType(c))
		if current.Key() == c.ObservedValue.Key() {
			skipped = append(skipped, skip(c, "record already holds this value"))
			continue
		}
		ct := models.ChangeUpdate
		if !current.IsPresent() {
			ct = models.ChangeFill
		}
		changes = append(changes, Change{
			CandidateID: c.ID,
			Kind:        c.Kind,
			RecordID:    c.RecordID,
			Field:       c.FieldName,
			ChangeType:  ct,
			OldValue:    current,
			NewValue:    c.ObservedValue,
			Source:      c.SourceName,
			TrustLevel:  c.TrustLevel,
		})
	}
	return changes, skipped
}

func (m *Manager) fieldType(c models.Candidate) compare.FieldType {
	if desc, ok := m.schema.Descriptor(c.FieldName); ok {
		return desc.Type
	}
	return c.ObservedValue.Type
}

func skip(c models.Candidate, reason string) Skipped {
	return Skipped{CandidateID: c.ID, RecordID: c.RecordID, Field: c.FieldName, Reason: reason}
}

func candidateIDs(cands []models.Candidate) []string {
	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

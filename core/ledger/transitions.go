package ledger

import (
	"catalog-reconciler/core/models"
)

// Decision is a reviewer's verdict on a candidate.
type Decision string

const (
	DecisionAccept      Decision = "accept"
	DecisionReject      Decision = "reject"
	DecisionIgnore      Decision = "ignore"
	DecisionProvisional Decision = "provisional"
	DecisionApprove     Decision = "approve"
)

var decisionTargets = map[Decision]models.Status{
	DecisionAccept:      models.StatusAccepted,
	DecisionReject:      models.StatusRejected,
	DecisionIgnore:      models.StatusIgnored,
	DecisionProvisional: models.StatusProvisional,
	DecisionApprove:     models.StatusApproved,
}

// Target returns the status a decision moves a candidate to.
func (d Decision) Target() (models.Status, bool) {
	s, ok := decisionTargets[d]
	return s, ok
}

type edges map[models.Status][]models.Status

var transitions = map[models.CandidateKind]edges{
	models.KindDiscrepancy: {
		models.StatusPending:  {models.StatusAccepted, models.StatusRejected, models.StatusIgnored},
		models.StatusAccepted: {models.StatusApplied},
		models.StatusApplied:  {models.StatusSuperseded},
	},
	models.KindEnrichment: {
		models.StatusPending:     {models.StatusProvisional, models.StatusRejected, models.StatusIgnored},
		models.StatusProvisional: {models.StatusApproved, models.StatusRejected},
		models.StatusApproved:    {models.StatusApplied},
		models.StatusApplied:     {models.StatusSuperseded},
	},
}

// CanTransition reports whether kind allows moving from one status to another.
func CanTransition(kind models.CandidateKind, from, to models.Status) bool {
	for _, s := range transitions[kind][from] {
		if s == to {
			return true
		}
	}
	return false
}

// systemOnly holds edges only the engine may take. An enrichment is ignored
// when its field gets populated by other means; reviewers reject instead.
var systemOnly = map[models.CandidateKind]edges{
	models.KindEnrichment: {
		models.StatusPending: {models.StatusIgnored},
	},
}

// CanTransitionAs reports whether actor may move kind from one status to another.
func CanTransitionAs(kind models.CandidateKind, from, to models.Status, actor string) bool {
	if !CanTransition(kind, from, to) {
		return false
	}
	if actor == ActorSystem {
		return true
	}
	for _, s := range systemOnly[kind][from] {
		if s == to {
			return false
		}
	}
	return true
}

// Decidable reports whether a candidate in status still accepts decisions.
func Decidable(status models.Status) bool {
	return status == models.StatusPending || status == models.StatusProvisional
}

// committable is the status a candidate must reach before its value is written.
func committable(kind models.CandidateKind) models.Status {
	if kind == models.KindEnrichment {
		return models.StatusApproved
	}
	return models.StatusAccepted
}

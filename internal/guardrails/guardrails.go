// Package guardrails classifies agent action kinds by risk.
//
// It is the only place that decides whether an action needs explicit human
// approval. The proposer stamps its result on every action and the applier
// consults it again before mutating anything.
package guardrails

import "github.com/houra-app/houra/internal/model"

// dangerous is the closed set of kinds that require approval.
var dangerous = map[model.ActionKind]struct{}{
	model.ActionArchiveRecord:        {},
	model.ActionShareLinkChange:      {},
	model.ActionExportGeneration:     {},
	model.ActionBulkStatusTransition: {},
}

// Classify returns the safety class of kind. Unknown kinds are safe: they
// have no registered effect and can only produce an audit record.
func Classify(kind model.ActionKind) model.SafetyClass {
	if _, ok := dangerous[kind]; ok {
		return model.SafetyDangerous
	}
	return model.SafetySafe
}

// RequiresApproval reports whether applying kind needs explicit approval.
func RequiresApproval(kind model.ActionKind) bool {
	return Classify(kind) == model.SafetyDangerous
}

// Dangerous returns the dangerous kinds among actions, in input order and
// without duplicates.
func Dangerous(actions []model.AgentAction) []model.ActionKind {
	var out []model.ActionKind
	seen := make(map[model.ActionKind]bool)
	for _, a := range actions {
		if RequiresApproval(a.ActionKind) && !seen[a.ActionKind] {
			seen[a.ActionKind] = true
			out = append(out, a.ActionKind)
		}
	}
	return out
}

package guardrails

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/houra-app/houra/internal/model"
)

func TestClassify(t *testing.T) {
	want := map[model.ActionKind]model.SafetyClass{
		model.ActionStatusNormalization:  model.SafetySafe,
		model.ActionSyncRetry:            model.SafetySafe,
		model.ActionDedupMetadata:        model.SafetySafe,
		model.ActionArchiveRecord:        model.SafetyDangerous,
		model.ActionShareLinkChange:      model.SafetyDangerous,
		model.ActionExportGeneration:     model.SafetyDangerous,
		model.ActionBulkStatusTransition: model.SafetyDangerous,
	}
	// Every known kind must be covered by this table.
	assert.Len(t, want, len(model.ActionKinds))
	for _, k := range model.ActionKinds {
		assert.Equal(t, want[k], Classify(k), k)
		assert.Equal(t, want[k] == model.SafetyDangerous, RequiresApproval(k), k)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	for _, k := range model.ActionKinds {
		first := Classify(k)
		for range 10 {
			assert.Equal(t, first, Classify(k))
		}
	}
}

func TestClassify_UnknownKindIsSafe(t *testing.T) {
	assert.Equal(t, model.SafetySafe, Classify("rename_everything"))
	assert.False(t, RequiresApproval(""))
}

func TestDangerous(t *testing.T) {
	actions := []model.AgentAction{
		{ActionKind: model.ActionSyncRetry},
		{ActionKind: model.ActionShareLinkChange},
		{ActionKind: model.ActionArchiveRecord},
		{ActionKind: model.ActionShareLinkChange},
	}
	assert.Equal(t,
		[]model.ActionKind{model.ActionShareLinkChange, model.ActionArchiveRecord},
		Dangerous(actions))
	assert.Empty(t, Dangerous(actions[:1]))
}

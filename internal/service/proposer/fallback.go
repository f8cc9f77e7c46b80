package proposer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/model"
)

// fallback derives actions from the state with fixed priorities: a pending
// entry to verify, an unsynced queue item to retry, an expired link to
// revoke. When none apply it proposes a metadata pass over the first
// organization so that every run yields at least one action.
func (p *Proposer) fallback(run model.AgentRun, state model.DomainState) []model.AgentAction {
	now := p.now()
	actions := make([]model.AgentAction, 0, MaxFallbackActions)

	for _, e := range state.Entries {
		if e.Status == model.EntryPendingReview {
			actions = append(actions, newAction(run.ID, model.ActionStatusNormalization,
				model.EntityServiceEntry, e.ID,
				"Verify "+e.ActivityName,
				"Entry has plausible duration and notes. Promote to Verified.",
				fmt.Appendf(nil, `{"status":"%s->%s"}`, model.EntryPendingReview, model.EntryVerified), now))
			break
		}
	}

	for _, it := range state.SyncQueue {
		if it.Status != model.SyncSynced {
			actions = append(actions, newAction(run.ID, model.ActionSyncRetry,
				model.EntitySyncQueueItem, it.ID,
				"Retry sync queue",
				"Unsynced mutations detected. Trigger retry to reduce queue age.",
				fmt.Appendf(nil, `{"status":"%s->%s"}`, it.Status, model.SyncUploading), now))
			break
		}
	}

	for _, l := range state.ShareLinks {
		if !l.Revoked() && l.Expired(now) {
			actions = append(actions, newAction(run.ID, model.ActionShareLinkChange,
				model.EntityShareLink, l.ID,
				"Revoke expired share link",
				"Expired links should be revoked for safety.",
				[]byte(`{"revokedAt":"set"}`), now))
			break
		}
	}

	if len(actions) == 0 {
		target := uuid.New()
		if len(state.Organizations) > 0 {
			target = state.Organizations[0].ID
		}
		actions = append(actions, newAction(run.ID, model.ActionDedupMetadata,
			model.EntityOrganization, target,
			"Normalize organization metadata",
			"No urgent actions found. Applying metadata consistency pass.",
			[]byte(`{"name":"trim_whitespace"}`), now))
	}
	return actions
}

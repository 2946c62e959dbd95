package engine

import (
	"errors"
	"time"

	"github.com/conveyr/conveyr/internal/store"
)

// ClaimRequest asks for the next piece of work for one agent.
type ClaimRequest struct {
	AgentID       string   `json:"agentId"`
	Segments      []string `json:"segments,omitempty"`
	PriorityFloor *int     `json:"priorityFloor,omitempty"`
}

// ClaimedTask is a successfully claimed item with its attached context.
type ClaimedTask struct {
	Item      store.Item           `json:"item"`
	Segment   string               `json:"segment"`
	Templates []store.ItemTemplate `json:"templates,omitempty"`
	Payload   Payload              `json:"payload"`
}

// Claim hands the agent its next task, preferring primary segments over
// fallback segments and urgent work over old work. A lost version race moves
// on to the next candidate instead of failing; (nil, nil) means there is
// genuinely nothing to do.
func (e *Engine) Claim(req ClaimRequest) (*ClaimedTask, error) {
	if req.AgentID == "" {
		return nil, errMissingField("agentId")
	}
	agent, err := e.store.RequireAgent(req.AgentID)
	if errors.Is(err, store.ErrNotFound) {
		e.countClaim("error")
		return nil, errUnknownAgentRole(req.AgentID)
	}
	if err != nil {
		return nil, err
	}
	pref, err := e.store.GetPreferenceByRole(agent.RoleKey)
	if errors.Is(err, store.ErrNotFound) {
		e.countClaim("error")
		return nil, errUnknownAgentRole(agent.RoleKey)
	}
	if err != nil {
		return nil, err
	}

	// One task in flight per agent.
	active, err := e.store.FindActiveItemForAgent(agent.ID, pref.ActiveStatuses)
	if err != nil {
		return nil, err
	}
	if active != nil {
		e.countClaim("conflict")
		return nil, errActiveTaskConflict(active.ID)
	}

	acceptID, err := e.store.RequireStatus(pref.AcceptStatus)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(pref.ClaimTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}

	for _, segments := range [][]string{
		intersect(pref.PrimarySegments, req.Segments),
		intersect(pref.FallbackSegments, req.Segments),
	} {
		task, err := e.claimFromSegments(agent, pref, segments, acceptID, ttl, req.PriorityFloor)
		if err != nil {
			return nil, err
		}
		if task != nil {
			e.countClaim("accepted")
			return task, nil
		}
	}
	e.countClaim("empty")
	return nil, nil
}

func (e *Engine) claimFromSegments(agent *store.Agent, pref *store.Preference, segments []string, acceptID string, ttl time.Duration, floor *int) (*ClaimedTask, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	candidates, err := e.store.FindCandidates(segments, pref.PickupStatuses, floor, e.candidateLimit)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		candidate := &candidates[i]
		lockedUntil := time.Now().UTC().Add(ttl)
		err := e.store.AcceptItem(candidate.ID, candidate.Version, acceptID, agent.ID, lockedUntil)
		if errors.Is(err, store.ErrVersionConflict) {
			// Someone else won this row; the next candidate is still fair game.
			continue
		}
		if errors.Is(err, store.ErrAgentBusy) {
			// A parallel claim by the same agent landed between the active
			// check and the accept.
			e.countClaim("conflict")
			if active, aerr := e.store.FindActiveItemForAgent(agent.ID, pref.ActiveStatuses); aerr == nil && active != nil {
				return nil, errActiveTaskConflict(active.ID)
			}
			return nil, errActiveTaskConflict("")
		}
		if err != nil {
			return nil, err
		}
		if err := e.store.AppendState(&store.ItemState{
			ItemID:        candidate.ID,
			StatusValueID: acceptID,
			StatusCode:    pref.AcceptStatus,
			Note:          "claimed by " + agent.RoleKey,
			ActorAgentID:  agent.ID,
		}); err != nil {
			return nil, err
		}
		e.activity.Record(agent.ID, candidate.ID, "task.claimed", "")
		e.logger.Info("task claimed", "item", candidate.ID, "agent", agent.ID, "locked_until", lockedUntil)
		return e.loadClaimedTask(candidate.ID)
	}
	return nil, nil
}

func (e *Engine) loadClaimedTask(itemID string) (*ClaimedTask, error) {
	item, err := e.store.GetItem(itemID)
	if err != nil {
		return nil, err
	}
	segment, err := e.store.ItemSegment(itemID)
	if err != nil {
		return nil, err
	}
	templates, err := e.store.ListTemplates(itemID)
	if err != nil {
		return nil, err
	}
	payload, err := ParsePayload(item.Payload)
	if err != nil {
		e.logger.Warn("stored payload is not valid JSON", "item", itemID, "error", err)
	}
	return &ClaimedTask{Item: *item, Segment: segment, Templates: templates, Payload: payload}, nil
}

// intersect filters base by requested. An empty requested list keeps base
// as-is, so agents without a segment filter roam their whole preference.
func intersect(base, requested []string) []string {
	if len(requested) == 0 {
		return base
	}
	want := make(map[string]bool, len(requested))
	for _, s := range requested {
		want[normalize(s)] = true
	}
	var out []string
	for _, s := range base {
		if want[normalize(s)] {
			out = append(out, s)
		}
	}
	return out
}

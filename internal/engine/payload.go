package engine

import (
	"encoding/json"
)

// HandoffCondition routes a completion status to a target segment.
type HandoffCondition struct {
	Status        string `json:"status"`
	TargetSegment string `json:"targetSegment"`
}

// HandoffPlan is the routing intent embedded in a task payload.
type HandoffPlan struct {
	NextSegment string             `json:"nextSegment,omitempty"`
	Conditions  []HandoffCondition `json:"conditions,omitempty"`
}

// Payload is the free-form task context. Known fields are typed; everything
// else round-trips through AdditionalContext untouched so upstream systems
// can stash whatever they need alongside the plan.
type Payload struct {
	HandoffPlan       HandoffPlan    `json:"handoffPlan"`
	AdditionalContext map[string]any `json:"-"`
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if plan, ok := raw["handoffPlan"]; ok {
		if err := json.Unmarshal(plan, &p.HandoffPlan); err != nil {
			return err
		}
		delete(raw, "handoffPlan")
	}
	if len(raw) > 0 {
		p.AdditionalContext = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			p.AdditionalContext[k] = val
		}
	}
	return nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	merged := make(map[string]any, len(p.AdditionalContext)+1)
	for k, v := range p.AdditionalContext {
		merged[k] = v
	}
	merged["handoffPlan"] = p.HandoffPlan
	return json.Marshal(merged)
}

// ParsePayload decodes a stored payload blob. An empty blob yields an empty
// payload rather than an error.
func ParsePayload(raw string) (Payload, error) {
	var p Payload
	if raw == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

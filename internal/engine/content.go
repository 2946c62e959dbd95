package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/conveyr/conveyr/internal/store"
)

// ContentNotification is a content-change event that may seed a pipeline run.
type ContentNotification struct {
	EntityID  string         `json:"entityId"`
	EventType string         `json:"eventType"`
	ActorRole string         `json:"actorRole"`
	Title     string         `json:"title,omitempty"`
	Priority  int            `json:"priority,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// ContentTask turns a content-change event into the first task of a pipeline
// run, routed through the handoff rules of the acting role's home segment.
// Returns (nil, nil) when no rule matches or the run already exists — repeated
// notifications are normal and must stay silent.
func (e *Engine) ContentTask(n ContentNotification) (*store.Item, error) {
	if n.EntityID == "" {
		return nil, errMissingField("entityId")
	}
	if n.EventType == "" {
		return nil, errMissingField("eventType")
	}
	pref, err := e.store.GetPreferenceByRole(n.ActorRole)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errUnknownAgentRole(n.ActorRole)
	}
	if err != nil {
		return nil, err
	}
	if len(pref.PrimarySegments) == 0 {
		return nil, errInvalidSegment("actorRole", n.ActorRole)
	}
	home := normalize(pref.PrimarySegments[0])

	rules, err := e.store.FindHandoffRules(home, store.StatusCompleted)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		e.logger.Debug("content event without pipeline edge", "segment", home, "event", n.EventType)
		return nil, nil
	}

	actorID := ""
	if agent, err := e.store.RequireActiveByRole(n.ActorRole); err == nil {
		actorID = agent.ID
	}
	baseRef := fmt.Sprintf("content:%s:%s", n.EntityID, n.EventType)
	title := n.Title
	if title == "" {
		title = n.EventType + " " + n.EntityID
	}

	context := make(map[string]any, len(n.Context)+2)
	for k, v := range n.Context {
		context[k] = v
	}
	context["contentId"] = n.EntityID
	context["eventType"] = n.EventType
	payload, err := json.Marshal(Payload{AdditionalContext: context})
	if err != nil {
		return nil, fmt.Errorf("encode content payload: %w", err)
	}

	var first *store.Item
	for i := range rules {
		item, err := e.contentBranch(actorID, &rules[i], baseRef, title, n.Priority, string(payload))
		if err != nil {
			return nil, err
		}
		if item != nil && first == nil {
			first = item
		}
	}
	if first != nil {
		e.countIngested()
	}
	return first, nil
}

// contentBranch creates the task for one matching rule, or returns (nil, nil)
// when this branch of the run already exists.
func (e *Engine) contentBranch(actorID string, rule *store.HandoffRule, baseRef, title string, priority int, payload string) (*store.Item, error) {
	nextSegment := normalize(rule.NextSegment)
	ref := baseRef + "::" + nextSegment

	if existing, err := e.store.GetItemByExternalRef(ref); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, nil
	}

	queue, err := e.store.EnsureQueue(nextSegment, store.StatusQueued, actorID)
	if err != nil {
		return nil, err
	}
	queuedID, err := e.store.RequireStatus(store.StatusQueued)
	if err != nil {
		return nil, err
	}
	item, err := e.store.CreateItem(&store.Item{
		QueueID:       queue.ID,
		ExternalRef:   ref,
		Title:         title,
		Priority:      priority,
		Payload:       payload,
		StatusValueID: queuedID,
		CreatedBy:     actorID,
	})
	if errors.Is(err, store.ErrDuplicateRef) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := e.store.AppendState(&store.ItemState{
		ItemID:        item.ID,
		StatusValueID: queuedID,
		StatusCode:    store.StatusQueued,
		Note:          "content change " + baseRef,
		ActorAgentID:  actorID,
	}); err != nil {
		return nil, err
	}
	if codes := rule.TemplateCodeList(); len(codes) > 0 {
		var templates []store.ItemTemplate
		for _, code := range codes {
			templates = append(templates, store.ItemTemplate{
				ItemID:       item.ID,
				TemplateCode: code,
				TemplateType: store.TemplateReference,
			})
		}
		if err := e.store.AttachTemplates(item.ID, templates); err != nil {
			return nil, err
		}
	}
	e.activity.Record(actorID, item.ID, "task.content_seeded", `{"ref":`+jsonString(ref)+`}`)
	e.logger.Info("content task created", "item", item.ID, "segment", nextSegment, "ref", ref)
	return item, nil
}

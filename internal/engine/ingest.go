package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/conveyr/conveyr/internal/store"
)

// TemplateRef names one work template to attach to a task.
type TemplateRef struct {
	Code    string `json:"code"`
	Version string `json:"version,omitempty"`
	Path    string `json:"path,omitempty"`
}

// TemplateSet groups the templates by their role on the task.
type TemplateSet struct {
	Primary    []TemplateRef `json:"primary,omitempty"`
	Checklists []TemplateRef `json:"checklists,omitempty"`
	References []TemplateRef `json:"references,omitempty"`
}

// IngestRequest is a new task entering the pipeline from an upstream system.
type IngestRequest struct {
	SourceID      string      `json:"sourceId"`
	Segment       string      `json:"segment"`
	InitialStatus string      `json:"initialStatus,omitempty"`
	Title         string      `json:"title,omitempty"`
	Summary       string      `json:"summary,omitempty"`
	Priority      int         `json:"priority,omitempty"`
	Payload       Payload     `json:"payload,omitempty"`
	Templates     TemplateSet `json:"templates,omitempty"`
}

// IngestResult reports the created task.
type IngestResult struct {
	ItemID  string `json:"itemId"`
	QueueID string `json:"queueId"`
	Segment string `json:"segment"`
	Status  string `json:"status"`
}

// Ingest creates one task, its queue if missing, its first history entry and
// its template attachments. The sourceId is the idempotency key: a second
// ingest with the same sourceId fails with a conflict instead of creating a
// sibling.
func (e *Engine) Ingest(req IngestRequest) (*IngestResult, error) {
	if req.SourceID == "" {
		return nil, errMissingField("sourceId")
	}
	segment := normalize(req.Segment)
	if segment == "" {
		return nil, errMissingField("segment")
	}
	if !e.segmentAllowed(segment) {
		return nil, errInvalidSegment("segment", segment)
	}
	status := normalize(req.InitialStatus)
	if status == "" {
		status = store.StatusQueued
	}
	statusID, err := e.store.RequireStatus(status)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errInvalidStatus("initialStatus", status)
		}
		return nil, err
	}
	if err := e.checkHandoffPlan(req.Payload.HandoffPlan); err != nil {
		return nil, err
	}

	// Early dedup for a friendly error; the UNIQUE constraint below is the
	// real guard against races.
	if existing, err := e.store.GetItemByExternalRef(req.SourceID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errDuplicateSourceID(req.SourceID)
	}

	actorID := e.systemActorID()
	queue, err := e.store.EnsureQueue(segment, status, actorID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	item, err := e.store.CreateItem(&store.Item{
		QueueID:       queue.ID,
		ExternalRef:   req.SourceID,
		Title:         req.Title,
		Priority:      req.Priority,
		Payload:       string(payload),
		StatusValueID: statusID,
		CreatedBy:     actorID,
	})
	if errors.Is(err, store.ErrDuplicateRef) {
		return nil, errDuplicateSourceID(req.SourceID)
	}
	if err != nil {
		return nil, err
	}

	if err := e.store.AppendState(&store.ItemState{
		ItemID:        item.ID,
		StatusValueID: statusID,
		StatusCode:    status,
		Note:          req.Summary,
		ActorAgentID:  actorID,
	}); err != nil {
		return nil, err
	}
	if err := e.attachTemplateSet(item.ID, req.Templates); err != nil {
		return nil, err
	}

	e.activity.Record(actorID, item.ID, "task.ingested", `{"sourceId":`+jsonString(req.SourceID)+`}`)
	e.countIngested()
	e.logger.Info("task ingested", "item", item.ID, "segment", segment, "status", status)
	return &IngestResult{ItemID: item.ID, QueueID: queue.ID, Segment: segment, Status: status}, nil
}

func (e *Engine) attachTemplateSet(itemID string, set TemplateSet) error {
	var templates []store.ItemTemplate
	add := func(refs []TemplateRef, typ string) {
		for _, ref := range refs {
			if ref.Code == "" {
				continue
			}
			templates = append(templates, store.ItemTemplate{
				ItemID:          itemID,
				TemplateCode:    ref.Code,
				TemplateType:    typ,
				TemplateVersion: ref.Version,
				SourcePath:      ref.Path,
			})
		}
	}
	add(set.Primary, store.TemplatePrimary)
	add(set.Checklists, store.TemplateChecklist)
	add(set.References, store.TemplateReference)
	if len(templates) == 0 {
		return nil
	}
	return e.store.AttachTemplates(itemID, templates)
}

// checkHandoffPlan rejects plans pointing at segments or statuses this
// pipeline does not know. Routing is still decided by handoff rules at
// submission time; the plan is advisory context carried in the payload.
func (e *Engine) checkHandoffPlan(plan HandoffPlan) error {
	if plan.NextSegment != "" && !e.segmentAllowed(normalize(plan.NextSegment)) {
		return errInvalidSegment("payload.handoffPlan.nextSegment", plan.NextSegment)
	}
	for _, cond := range plan.Conditions {
		if cond.TargetSegment != "" && !e.segmentAllowed(normalize(cond.TargetSegment)) {
			return errInvalidSegment("payload.handoffPlan.conditions.targetSegment", cond.TargetSegment)
		}
		if cond.Status != "" {
			if _, err := e.store.RequireStatus(normalize(cond.Status)); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return errInvalidStatus("payload.handoffPlan.conditions.status", cond.Status)
				}
				return err
			}
		}
	}
	return nil
}

// systemActorID resolves the configured system role to an agent id, or ""
// when no such agent is registered.
func (e *Engine) systemActorID() string {
	agent, err := e.store.RequireActiveByRole(e.systemRole)
	if err != nil {
		return ""
	}
	return agent.ID
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

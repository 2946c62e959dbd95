package engine

import (
	"errors"

	"github.com/conveyr/conveyr/internal/store"
)

// TaskDetail is the full read model of one task.
type TaskDetail struct {
	Item      store.Item           `json:"item"`
	Segment   string               `json:"segment"`
	Payload   Payload              `json:"payload"`
	States    []store.ItemState    `json:"states"`
	Templates []store.ItemTemplate `json:"templates,omitempty"`
	Artifacts []store.ItemArtifact `json:"artifacts,omitempty"`
}

// Task loads a task with its history, templates and artifacts.
func (e *Engine) Task(itemID string) (*TaskDetail, error) {
	item, err := e.store.GetItem(itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errNotFound("task " + itemID)
	}
	if err != nil {
		return nil, err
	}
	segment, err := e.store.ItemSegment(itemID)
	if err != nil {
		return nil, err
	}
	states, err := e.store.ListStates(itemID)
	if err != nil {
		return nil, err
	}
	templates, err := e.store.ListTemplates(itemID)
	if err != nil {
		return nil, err
	}
	artifacts, err := e.store.ListArtifacts(itemID)
	if err != nil {
		return nil, err
	}
	payload, err := ParsePayload(item.Payload)
	if err != nil {
		e.logger.Warn("stored payload is not valid JSON", "item", itemID, "error", err)
	}
	return &TaskDetail{
		Item:      *item,
		Segment:   segment,
		Payload:   payload,
		States:    states,
		Templates: templates,
		Artifacts: artifacts,
	}, nil
}

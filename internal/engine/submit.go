package engine

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/conveyr/conveyr/internal/engine/validation"
	"github.com/conveyr/conveyr/internal/store"
)

// SubmissionLink is a declared result link.
type SubmissionLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SubmissionFile is one uploaded result file.
type SubmissionFile struct {
	Name   string
	Reader io.Reader
}

// Submission is the agent's completed result for a claimed task.
type Submission struct {
	Notes    string           `json:"notes,omitempty"`
	Links    []SubmissionLink `json:"links,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
	Files    []SubmissionFile `json:"-"`
}

// Handoff describes one successor task created by a matching rule.
type Handoff struct {
	ItemID  string `json:"itemId"`
	Segment string `json:"segment"`
	Reused  bool   `json:"reused,omitempty"`
}

// SubmissionResult reports the closed task and its fan-out. Terminal is true
// when no handoff rule matched, which is how a pipeline branch normally ends.
type SubmissionResult struct {
	ItemID   string    `json:"itemId"`
	Status   string    `json:"status"`
	Terminal bool      `json:"terminal"`
	Handoffs []Handoff `json:"handoffs,omitempty"`
}

const closeAttempts = 3

// Submit validates and persists an agent's result, closes the task through a
// version CAS and fans out successor tasks per the handoff rules. Ownership
// and validation failures happen before any write; a rejected submission
// leaves no trace in the task history.
func (e *Engine) Submit(agentID, itemID string, sub Submission) (*SubmissionResult, error) {
	if agentID == "" {
		return nil, errMissingField("agentId")
	}
	agent, err := e.store.RequireAgent(agentID)
	if errors.Is(err, store.ErrNotFound) {
		e.countSubmission("error")
		return nil, errUnknownAgentRole(agentID)
	}
	if err != nil {
		return nil, err
	}
	pref, err := e.store.GetPreferenceByRole(agent.RoleKey)
	if errors.Is(err, store.ErrNotFound) {
		e.countSubmission("error")
		return nil, errUnknownAgentRole(agent.RoleKey)
	}
	if err != nil {
		return nil, err
	}

	item, err := e.store.GetItem(itemID)
	if errors.Is(err, store.ErrNotFound) {
		e.countSubmission("error")
		return nil, errNotFound("task " + itemID)
	}
	if err != nil {
		return nil, err
	}
	if item.AssignedTo != agent.ID {
		e.countSubmission("rejected")
		return nil, errNotOwner(item.AssignedTo)
	}
	segment, err := e.store.ItemSegment(item.ID)
	if err != nil {
		return nil, err
	}

	links, files := sanitizeArtifacts(sub)
	if len(links) == 0 && len(files) == 0 {
		e.countSubmission("rejected")
		return nil, errMissingArtifact()
	}
	if err := e.validateSubmission(segment, sub, links, files, item.ID); err != nil {
		e.countSubmission("rejected")
		return nil, err
	}

	stored, err := e.persistArtifacts(item.ID, links, files)
	if err != nil {
		return nil, err
	}

	returnStatus := pref.ReturnStatus
	returnID, err := e.store.RequireStatus(returnStatus)
	if err != nil {
		return nil, err
	}

	// Successors come first: if fan-out fails here the task is still owned
	// and open, so the agent can retry the whole submission. The derived
	// external refs make the replay reuse what the first attempt created.
	rules, err := e.store.FindHandoffRules(segment, returnStatus)
	if err != nil {
		return nil, err
	}
	var handoffs []Handoff
	for i := range rules {
		h, err := e.createSuccessor(agent.ID, item, &rules[i])
		if err != nil {
			return nil, err
		}
		handoffs = append(handoffs, *h)
		if !h.Reused {
			e.countHandoff()
		}
	}

	if err := e.closeWithRetry(item, agent.ID, returnID); err != nil {
		e.countSubmission("error")
		return nil, err
	}

	stateMeta, _ := json.Marshal(map[string]any{
		"artifacts": stored,
		"metadata":  sub.Metadata,
	})
	if err := e.store.AppendState(&store.ItemState{
		ItemID:        item.ID,
		StatusValueID: returnID,
		StatusCode:    returnStatus,
		Note:          sub.Notes,
		ActorAgentID:  agent.ID,
		Metadata:      string(stateMeta),
	}); err != nil {
		return nil, err
	}

	e.activity.Record(agent.ID, item.ID, "task.submitted", "")
	e.countSubmission("completed")
	e.logger.Info("task submitted", "item", item.ID, "agent", agent.ID,
		"status", returnStatus, "handoffs", len(handoffs))
	return &SubmissionResult{
		ItemID:   item.ID,
		Status:   returnStatus,
		Terminal: len(handoffs) == 0,
		Handoffs: handoffs,
	}, nil
}

// closeWithRetry runs the closing CAS, reloading and retrying on a lost
// version race as long as the agent still owns the task. A claim reaper
// racing the submit bumps the version without changing the assignee until it
// wins, so the retry either succeeds or surfaces the true owner.
func (e *Engine) closeWithRetry(item *store.Item, agentID, returnID string) error {
	current := item
	for attempt := 0; attempt < closeAttempts; attempt++ {
		err := e.store.CloseItem(current.ID, current.Version, returnID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		reloaded, err := e.store.GetItem(current.ID)
		if err != nil {
			return err
		}
		if reloaded.AssignedTo != agentID {
			return errNotOwner(reloaded.AssignedTo)
		}
		current = reloaded
	}
	return store.ErrVersionConflict
}

func (e *Engine) validateSubmission(segment string, sub Submission, links []SubmissionLink, files []SubmissionFile, itemID string) error {
	templates, err := e.store.ListTemplates(itemID)
	if err != nil {
		return err
	}
	ctx := validation.Context{
		Segment:  segment,
		Notes:    sub.Notes,
		Metadata: sub.Metadata,
	}
	for _, tpl := range templates {
		ctx.TemplateCodes = append(ctx.TemplateCodes, tpl.TemplateCode)
	}
	for _, l := range links {
		ctx.Links = append(ctx.Links, validation.LinkArtifact{Title: l.Title, URL: l.URL})
	}
	for _, f := range files {
		ctx.Files = append(ctx.Files, validation.File{Name: f.Name})
	}
	if err := e.validators.Validate(ctx); err != nil {
		var ve *validation.Error
		if errors.As(err, &ve) {
			return newError(400, ve.Code, ve.Message, map[string]string{"field": ve.Field})
		}
		return err
	}
	return nil
}

func (e *Engine) persistArtifacts(itemID string, links []SubmissionLink, files []SubmissionFile) ([]string, error) {
	var ids []string
	for _, l := range links {
		a, err := e.store.AddArtifact(&store.ItemArtifact{
			ItemID:       itemID,
			ArtifactType: store.ArtifactLink,
			Title:        l.Title,
			URL:          l.URL,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, a.ID)
	}
	for _, f := range files {
		if e.artifacts == nil {
			return nil, errors.New("file uploads received but no artifact storage is configured")
		}
		stored, err := e.artifacts.Store(itemID, f.Name, f.Reader)
		if err != nil {
			return nil, err
		}
		a, err := e.store.AddArtifact(&store.ItemArtifact{
			ItemID:       itemID,
			ArtifactType: store.ArtifactFile,
			Title:        stored.OriginalName,
			StoragePath:  stored.StoragePath,
			MediaType:    stored.MediaType,
			SizeBytes:    stored.SizeBytes,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// createSuccessor spawns the follow-up task for one handoff rule. Fan-out is
// idempotent: the successor's external_ref is derived from the parent's, so a
// replayed submission reuses the row the first run created.
func (e *Engine) createSuccessor(actorID string, parent *store.Item, rule *store.HandoffRule) (*Handoff, error) {
	nextSegment := normalize(rule.NextSegment)
	ref := parent.ExternalRef + "::" + nextSegment

	if existing, err := e.store.GetItemByExternalRef(ref); err != nil {
		return nil, err
	} else if existing != nil {
		return &Handoff{ItemID: existing.ID, Segment: nextSegment, Reused: true}, nil
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
		Title:         parent.Title,
		Priority:      parent.Priority,
		Payload:       parent.Payload,
		StatusValueID: queuedID,
		CreatedBy:     actorID,
	})
	if errors.Is(err, store.ErrDuplicateRef) {
		// A concurrent replay created it between our read and insert.
		existing, gerr := e.store.GetItemByExternalRef(ref)
		if gerr != nil {
			return nil, gerr
		}
		if existing == nil {
			return nil, err
		}
		return &Handoff{ItemID: existing.ID, Segment: nextSegment, Reused: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := e.store.AppendState(&store.ItemState{
		ItemID:        item.ID,
		StatusValueID: queuedID,
		StatusCode:    store.StatusQueued,
		Note:          "handoff from " + rule.Segment,
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
	e.activity.Record(actorID, item.ID, "task.handoff", `{"from":`+jsonString(parent.ID)+`}`)
	return &Handoff{ItemID: item.ID, Segment: nextSegment}, nil
}

func sanitizeArtifacts(sub Submission) ([]SubmissionLink, []SubmissionFile) {
	var links []SubmissionLink
	for _, l := range sub.Links {
		if l.Title != "" && l.URL != "" {
			links = append(links, l)
		}
	}
	var files []SubmissionFile
	for _, f := range sub.Files {
		if f.Name != "" {
			files = append(files, f)
		}
	}
	return links, files
}

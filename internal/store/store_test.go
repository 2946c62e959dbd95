package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustStatus(t *testing.T, s *Store, code string) string {
	t.Helper()
	id, err := s.RequireStatus(code)
	if err != nil {
		t.Fatalf("require status %s: %v", code, err)
	}
	return id
}

func mustItem(t *testing.T, s *Store, queueID, ref string, priority int) *Item {
	t.Helper()
	it, err := s.CreateItem(&Item{
		QueueID:       queueID,
		ExternalRef:   ref,
		Title:         "task " + ref,
		Priority:      priority,
		StatusValueID: mustStatus(t, s, StatusQueued),
	})
	if err != nil {
		t.Fatalf("create item %s: %v", ref, err)
	}
	return it
}

func TestOpenSeedsStatusValues(t *testing.T) {
	s := newTestStore(t)
	for _, code := range []string{StatusQueued, StatusInProgress, StatusReview, StatusReturned, StatusCompleted, StatusCancelled} {
		if _, err := s.RequireStatus(code); err != nil {
			t.Errorf("status %s not seeded: %v", code, err)
		}
	}
	if _, err := s.RequireStatus("bogus"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestEnsureQueueIdempotent(t *testing.T) {
	s := newTestStore(t)
	q1, err := s.EnsureQueue("Backend", StatusQueued, "")
	if err != nil {
		t.Fatalf("ensure queue: %v", err)
	}
	if q1.Segment != "backend" {
		t.Errorf("segment not normalized: %q", q1.Segment)
	}
	if q1.Title != "BACKEND :: queued" {
		t.Errorf("unexpected title: %q", q1.Title)
	}
	q2, err := s.EnsureQueue("backend", "queued", "")
	if err != nil {
		t.Fatalf("ensure queue again: %v", err)
	}
	if q1.ID != q2.ID {
		t.Errorf("second ensure created a new queue: %s vs %s", q1.ID, q2.ID)
	}
}

func TestCreateItemDuplicateRef(t *testing.T) {
	s := newTestStore(t)
	q, _ := s.EnsureQueue("backend", StatusQueued, "")
	mustItem(t, s, q.ID, "src-1", 0)

	_, err := s.CreateItem(&Item{
		QueueID:       q.ID,
		ExternalRef:   "src-1",
		StatusValueID: mustStatus(t, s, StatusQueued),
	})
	if err != ErrDuplicateRef {
		t.Fatalf("expected ErrDuplicateRef, got %v", err)
	}
}

func TestGetItemByExternalRefMissingIsNilNil(t *testing.T) {
	s := newTestStore(t)
	it, err := s.GetItemByExternalRef("does-not-exist")
	if err != nil || it != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", it, err)
	}
}

func TestAcceptItemVersionConflict(t *testing.T) {
	s := newTestStore(t)
	q, _ := s.EnsureQueue("backend", StatusQueued, "")
	it := mustItem(t, s, q.ID, "src-cas", 0)
	inProgress := mustStatus(t, s, StatusInProgress)
	until := time.Now().Add(time.Hour)

	if err := s.AcceptItem(it.ID, it.Version, inProgress, "agent-a", until); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	// Same stale version must lose.
	if err := s.AcceptItem(it.ID, it.Version, inProgress, "agent-b", until); err != ErrVersionConflict {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, err := s.GetItem(it.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.AssignedTo != "agent-a" {
		t.Errorf("loser overwrote assignment: %q", got.AssignedTo)
	}
	if got.Version != it.Version+1 {
		t.Errorf("version not bumped exactly once: %d", got.Version)
	}
}

func TestAcceptItemEnforcesOneInFlight(t *testing.T) {
	s := newTestStore(t)
	q, _ := s.EnsureQueue("backend", StatusQueued, "")
	first := mustItem(t, s, q.ID, "src-flight-1", 0)
	second := mustItem(t, s, q.ID, "src-flight-2", 0)
	inProgress := mustStatus(t, s, StatusInProgress)
	until := time.Now().Add(time.Hour)

	if err := s.AcceptItem(first.ID, first.Version, inProgress, "agent-a", until); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	// A second assignment to the same agent must bounce off the unique index
	// even though the version matches.
	if err := s.AcceptItem(second.ID, second.Version, inProgress, "agent-a", until); err != ErrAgentBusy {
		t.Fatalf("expected ErrAgentBusy, got %v", err)
	}

	got, err := s.GetItem(second.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.AssignedTo != "" {
		t.Errorf("second item got assigned anyway: %q", got.AssignedTo)
	}

	// After the first item closes, the agent can take the second.
	if err := s.CloseItem(first.ID, first.Version+1, mustStatus(t, s, StatusCompleted)); err != nil {
		t.Fatalf("close first: %v", err)
	}
	if err := s.AcceptItem(second.ID, second.Version, inProgress, "agent-a", until); err != nil {
		t.Fatalf("accept after close: %v", err)
	}
}

func TestCloseItemClearsAssignment(t *testing.T) {
	s := newTestStore(t)
	q, _ := s.EnsureQueue("backend", StatusQueued, "")
	it := mustItem(t, s, q.ID, "src-close", 0)
	inProgress := mustStatus(t, s, StatusInProgress)
	completed := mustStatus(t, s, StatusCompleted)

	if err := s.AcceptItem(it.ID, it.Version, inProgress, "agent-a", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	current, _ := s.GetItem(it.ID)
	if err := s.CloseItem(it.ID, current.Version, completed); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, _ := s.GetItem(it.ID)
	if got.AssignedTo != "" || got.LockedUntil != nil {
		t.Errorf("close left assignment: assigned=%q locked=%v", got.AssignedTo, got.LockedUntil)
	}
	if got.StatusCode != StatusCompleted {
		t.Errorf("status = %q, want completed", got.StatusCode)
	}
}

func TestFindCandidatesOrdering(t *testing.T) {
	s := newTestStore(t)
	q, _ := s.EnsureQueue("backend", StatusQueued, "")
	low := mustItem(t, s, q.ID, "src-low", 1)
	high := mustItem(t, s, q.ID, "src-high", 9)

	candidates, err := s.FindCandidates([]string{"backend"}, []string{StatusQueued}, nil, 10)
	if err != nil {
		t.Fatalf("find candidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].ID != high.ID || candidates[1].ID != low.ID {
		t.Errorf("not ordered by priority desc: %s, %s", candidates[0].ExternalRef, candidates[1].ExternalRef)
	}

	floor := 5
	candidates, err = s.FindCandidates([]string{"backend"}, []string{StatusQueued}, &floor, 10)
	if err != nil {
		t.Fatalf("find candidates with floor: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != high.ID {
		t.Errorf("priority floor not applied: %v", candidates)
	}
}

func TestFindActiveItemForAgent(t *testing.T) {
	s := newTestStore(t)
	q, _ := s.EnsureQueue("backend", StatusQueued, "")
	it := mustItem(t, s, q.ID, "src-active", 0)
	inProgress := mustStatus(t, s, StatusInProgress)

	got, err := s.FindActiveItemForAgent("agent-a", []string{StatusInProgress})
	if err != nil || got != nil {
		t.Fatalf("expected no active item, got (%v, %v)", got, err)
	}
	if err := s.AcceptItem(it.ID, it.Version, inProgress, "agent-a", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("accept: %v", err)
	}
	got, err = s.FindActiveItemForAgent("agent-a", []string{StatusInProgress})
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if got == nil || got.ID != it.ID {
		t.Errorf("active item not found")
	}
}

func TestReleaseExpiredClaims(t *testing.T) {
	s := newTestStore(t)
	q, _ := s.EnsureQueue("backend", StatusQueued, "")
	expired := mustItem(t, s, q.ID, "src-expired", 0)
	fresh := mustItem(t, s, q.ID, "src-fresh", 0)
	inProgress := mustStatus(t, s, StatusInProgress)
	queued := mustStatus(t, s, StatusQueued)

	if err := s.AcceptItem(expired.ID, expired.Version, inProgress, "agent-a", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("accept expired: %v", err)
	}
	if err := s.AcceptItem(fresh.ID, fresh.Version, inProgress, "agent-b", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("accept fresh: %v", err)
	}

	released, err := s.ReleaseExpiredClaims(time.Now(), queued)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(released) != 1 || released[0] != expired.ID {
		t.Fatalf("released = %v, want [%s]", released, expired.ID)
	}
	got, _ := s.GetItem(expired.ID)
	if got.StatusCode != StatusQueued || got.AssignedTo != "" {
		t.Errorf("expired claim not reverted: status=%s assigned=%q", got.StatusCode, got.AssignedTo)
	}
	kept, _ := s.GetItem(fresh.ID)
	if kept.AssignedTo != "agent-b" {
		t.Errorf("fresh claim was released")
	}
}

func TestPreferenceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	want := &Preference{
		RoleKey:          "backend-dev",
		PrimarySegments:  []string{"backend"},
		FallbackSegments: []string{"api"},
		PickupStatuses:   []string{StatusQueued, StatusReturned},
		ActiveStatuses:   []string{StatusInProgress, StatusReview},
		AcceptStatus:     StatusInProgress,
		ReturnStatus:     StatusCompleted,
		ClaimTTLMinutes:  45,
	}
	if err := s.UpsertPreference(want); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.GetPreferenceByRole("backend-dev")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.PrimarySegments) != 1 || got.PrimarySegments[0] != "backend" {
		t.Errorf("primary = %v", got.PrimarySegments)
	}
	if len(got.PickupStatuses) != 2 {
		t.Errorf("pickup = %v", got.PickupStatuses)
	}
	if got.ClaimTTLMinutes != 45 {
		t.Errorf("ttl = %d", got.ClaimTTLMinutes)
	}

	if _, err := s.GetPreferenceByRole("nobody"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHandoffRulesUpsertAndList(t *testing.T) {
	s := newTestStore(t)
	rule := &HandoffRule{Segment: "Backend", StatusCode: "Completed", NextSegment: "Frontend", TemplateCodes: "fe-impl"}
	if err := s.UpsertHandoffRule(rule); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Same edge again updates templates instead of erroring.
	if err := s.UpsertHandoffRule(&HandoffRule{Segment: "backend", StatusCode: "completed", NextSegment: "frontend", TemplateCodes: "fe-impl,fe-review"}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	rules, err := s.FindHandoffRules("backend", "completed")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}
	codes := rules[0].TemplateCodeList()
	if len(codes) != 2 || codes[0] != "fe-impl" || codes[1] != "fe-review" {
		t.Errorf("template codes = %v", codes)
	}

	none, err := s.FindHandoffRules("qa", "completed")
	if err != nil {
		t.Fatalf("find terminal: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no rules for terminal segment")
	}
}

func TestStatesAppendOnlyOrdering(t *testing.T) {
	s := newTestStore(t)
	q, _ := s.EnsureQueue("backend", StatusQueued, "")
	it := mustItem(t, s, q.ID, "src-hist", 0)
	queued := mustStatus(t, s, StatusQueued)
	inProgress := mustStatus(t, s, StatusInProgress)

	for _, st := range []ItemState{
		{ItemID: it.ID, StatusValueID: queued, StatusCode: StatusQueued, Note: "first"},
		{ItemID: it.ID, StatusValueID: inProgress, StatusCode: StatusInProgress, Note: "second"},
	} {
		st := st
		if err := s.AppendState(&st); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	states, err := s.ListStates(it.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("got %d states, want 2", len(states))
	}
	if states[0].Note != "first" || states[1].Note != "second" {
		t.Errorf("history out of order: %v, %v", states[0].Note, states[1].Note)
	}
}

func TestArtifactsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	q, _ := s.EnsureQueue("backend", StatusQueued, "")
	it := mustItem(t, s, q.ID, "src-art", 0)

	if _, err := s.AddArtifact(&ItemArtifact{ItemID: it.ID, ArtifactType: ArtifactLink, Title: "pr", URL: "https://example.com/pr/1"}); err != nil {
		t.Fatalf("add link: %v", err)
	}
	if _, err := s.AddArtifact(&ItemArtifact{ItemID: it.ID, ArtifactType: ArtifactFile, Title: "spec.json", StoragePath: "x/spec.json", MediaType: "application/json", SizeBytes: 12}); err != nil {
		t.Fatalf("add file: %v", err)
	}
	artifacts, err := s.ListArtifacts(it.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("got %d artifacts, want 2", len(artifacts))
	}
}

func TestAgentDirectory(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.UpsertAgent(&Agent{ID: "agent-a", Name: "A", RoleKey: "backend-dev", Active: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertAgent(&Agent{ID: "agent-b", Name: "B", RoleKey: "backend-dev", Active: false}); err != nil {
		t.Fatalf("upsert inactive: %v", err)
	}

	got, err := s.RequireActiveByRole("backend-dev")
	if err != nil {
		t.Fatalf("require by role: %v", err)
	}
	if got.ID != "agent-a" {
		t.Errorf("picked inactive agent %s", got.ID)
	}
	if _, err := s.RequireAgent("missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

package gateway

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conveyr/conveyr/internal/artifact"
	"github.com/conveyr/conveyr/internal/engine"
	"github.com/conveyr/conveyr/internal/metrics"
	"github.com/conveyr/conveyr/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	storage, err := artifact.NewStorage(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)

	eng := engine.New(st, engine.Options{Artifacts: storage})
	srv := httptest.NewServer(NewServer(eng, metrics.NewCollector(), "test").Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func seedBackendRole(t *testing.T, st *store.Store) {
	t.Helper()
	_, err := st.UpsertAgent(&store.Agent{ID: "agent-be", Name: "BE", RoleKey: "backend-dev", Active: true})
	require.NoError(t, err)
	require.NoError(t, st.UpsertPreference(&store.Preference{
		RoleKey:         "backend-dev",
		PrimarySegments: []string{"backend"},
		PickupStatuses:  []string{store.StatusQueued, store.StatusReturned},
		ActiveStatuses:  []string{store.StatusInProgress},
		AcceptStatus:    store.StatusInProgress,
		ReturnStatus:    store.StatusCompleted,
		ClaimTTLMinutes: 60,
	}))
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "conveyr", body["service"])
}

func TestIngestClaimSubmitFlow(t *testing.T) {
	srv, st := newTestServer(t)
	seedBackendRole(t, st)
	require.NoError(t, st.UpsertHandoffRule(&store.HandoffRule{
		Segment: "backend", StatusCode: store.StatusCompleted, NextSegment: "frontend",
	}))

	// Ingest.
	resp := postJSON(t, srv.URL+"/api/v1/tasks/ingest", engine.IngestRequest{
		SourceID: "story-1", Segment: "backend", Title: "Story 1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var ingested engine.IngestResult
	decode(t, resp, &ingested)

	// Duplicate ingest conflicts.
	resp = postJSON(t, srv.URL+"/api/v1/tasks/ingest", engine.IngestRequest{
		SourceID: "story-1", Segment: "backend",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var conflict engine.Error
	decode(t, resp, &conflict)
	assert.Equal(t, engine.CodeDuplicateSourceID, conflict.Code)

	// Claim.
	resp = postJSON(t, srv.URL+"/api/v1/tasks/claim", engine.ClaimRequest{AgentID: "agent-be"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var claimed engine.ClaimedTask
	decode(t, resp, &claimed)
	assert.Equal(t, ingested.ItemID, claimed.Item.ID)

	// Submit with a link artifact.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/tasks/"+ingested.ItemID+"/submit",
		bytes.NewReader(mustJSON(t, engine.Submission{Links: []engine.SubmissionLink{{Title: "pr", URL: "https://example.com"}}})))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Agent-ID", "agent-be")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result engine.SubmissionResult
	decode(t, resp, &result)
	assert.Equal(t, store.StatusCompleted, result.Status)
	require.Len(t, result.Handoffs, 1)
	assert.Equal(t, "frontend", result.Handoffs[0].Segment)

	// Task detail shows the full history.
	resp, err = http.Get(srv.URL + "/api/v1/tasks/" + ingested.ItemID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail engine.TaskDetail
	decode(t, resp, &detail)
	assert.Equal(t, store.StatusCompleted, detail.Item.StatusCode)
	assert.GreaterOrEqual(t, len(detail.States), 3)
	assert.Len(t, detail.Artifacts, 1)
}

func TestClaimEmptyReturnsNoContent(t *testing.T) {
	srv, st := newTestServer(t)
	seedBackendRole(t, st)

	resp := postJSON(t, srv.URL+"/api/v1/tasks/claim", engine.ClaimRequest{AgentID: "agent-be"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmitRequiresAgentHeader(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/tasks/whatever/submit", engine.Submission{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "submission.missing_agent", body["code"])
}

func TestSubmitMultipartUpload(t *testing.T) {
	srv, st := newTestServer(t)
	seedBackendRole(t, st)

	resp := postJSON(t, srv.URL+"/api/v1/tasks/ingest", engine.IngestRequest{
		SourceID: "story-mp", Segment: "backend",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var ingested engine.IngestResult
	decode(t, resp, &ingested)

	resp = postJSON(t, srv.URL+"/api/v1/tasks/claim", engine.ClaimRequest{AgentID: "agent-be"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("submission", `{"notes":"with file"}`))
	fw, err := mw.CreateFormFile("files", "result.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("done"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/tasks/"+ingested.ItemID+"/submit", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Agent-ID", "agent-be")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result engine.SubmissionResult
	decode(t, resp, &result)
	assert.True(t, result.Terminal)

	artifacts, err := st.ListArtifacts(ingested.ItemID)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, store.ArtifactFile, artifacts[0].ArtifactType)
	assert.Equal(t, "result.txt", artifacts[0].Title)
}

func TestContentNotifyEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	_, err := st.UpsertAgent(&store.Agent{ID: "agent-vision", RoleKey: "vision-analyst", Active: true})
	require.NoError(t, err)
	require.NoError(t, st.UpsertPreference(&store.Preference{
		RoleKey:         "vision-analyst",
		PrimarySegments: []string{"vision"},
		PickupStatuses:  []string{store.StatusQueued},
		ActiveStatuses:  []string{store.StatusInProgress},
		AcceptStatus:    store.StatusInProgress,
		ReturnStatus:    store.StatusCompleted,
		ClaimTTLMinutes: 60,
	}))
	require.NoError(t, st.UpsertHandoffRule(&store.HandoffRule{
		Segment: "vision", StatusCode: store.StatusCompleted, NextSegment: "api",
	}))

	notify := engine.ContentNotification{EntityID: "page-1", EventType: "published", ActorRole: "vision-analyst"}
	resp := postJSON(t, srv.URL+"/api/v1/content/notify", notify)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, true, body["created"])

	// Replay is absorbed.
	resp = postJSON(t, srv.URL+"/api/v1/content/notify", notify)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &body)
	assert.Equal(t, false, body["created"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// Package gateway exposes the engine over HTTP for pipeline agents.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/conveyr/conveyr/internal/engine"
	"github.com/conveyr/conveyr/internal/metrics"
)

// Server is the HTTP front of the engine.
type Server struct {
	engine  *engine.Engine
	metrics *metrics.Collector
	logger  *slog.Logger
	version string
}

func NewServer(eng *engine.Engine, collector *metrics.Collector, version string) *Server {
	return &Server{
		engine:  eng,
		metrics: collector,
		logger:  slog.Default().With("component", "gateway"),
		version: version,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("POST /api/v1/tasks/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/v1/tasks/claim", s.handleClaim)
	mux.HandleFunc("POST /api/v1/tasks/{id}/submit", s.handleSubmit)
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.handleTask)
	mux.HandleFunc("GET /api/v1/tasks/{id}/activity", s.handleTaskActivity)
	mux.HandleFunc("POST /api/v1/content/notify", s.handleContentNotify)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "conveyr",
		"version": s.version,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req engine.IngestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.engine.Ingest(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req engine.ClaimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	task, err := s.engine.Claim(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if task == nil {
		// Nothing to do is a normal outcome, not an error.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	agentID := r.Header.Get("X-Agent-ID")
	if agentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":    "submission.missing_agent",
			"message": "X-Agent-ID header is required",
		})
		return
	}

	sub, ok := s.readSubmission(w, r)
	if !ok {
		return
	}
	result, err := s.engine.Submit(agentID, itemID, sub)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// readSubmission decodes either a plain JSON submission or a multipart form
// with a "submission" JSON part plus uploaded "files" parts.
func (s *Server) readSubmission(w http.ResponseWriter, r *http.Request) (engine.Submission, bool) {
	var sub engine.Submission
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		if !decodeBody(w, r, &sub) {
			return sub, false
		}
		return sub, true
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return sub, false
	}
	if raw := r.FormValue("submission"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			http.Error(w, "invalid submission part", http.StatusBadRequest)
			return sub, false
		}
	}
	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			http.Error(w, "unreadable file part", http.StatusBadRequest)
			return sub, false
		}
		// Readers stay open until the request ends; ParseMultipartForm owns
		// the backing storage.
		sub.Files = append(sub.Files, engine.SubmissionFile{
			Name:   header.Filename,
			Reader: f,
		})
	}
	return sub, true
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	detail, err := s.engine.Task(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleTaskActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.Store().ListActivity(r.PathValue("id"), 100)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleContentNotify(w http.ResponseWriter, r *http.Request) {
	var n engine.ContentNotification
	if !decodeBody(w, r, &n) {
		return
	}
	item, err := s.engine.ContentTask(n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if item == nil {
		writeJSON(w, http.StatusOK, map[string]any{"created": false})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"created": true, "itemId": item.ID})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if engErr, ok := engine.AsEngineError(err); ok {
		writeJSON(w, engErr.HTTPStatus, engErr)
		return
	}
	s.logger.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"code":    "internal",
		"message": "internal error",
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	// Trailing garbage is a client bug worth failing loudly on.
	if dec.More() {
		http.Error(w, "unexpected trailing data", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrBodyNotAllowed) {
		slog.Warn("gateway: response encode failed", "error", err)
	}
}

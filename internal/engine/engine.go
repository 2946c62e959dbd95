// Package engine implements the task claim/submission/handoff coordinators.
// All state lives in the store; the engine is stateless per call so any
// number of agent processes can race through it against one database.
package engine

import (
	"io"
	"log/slog"
	"strings"

	"github.com/conveyr/conveyr/internal/artifact"
	"github.com/conveyr/conveyr/internal/engine/validation"
	"github.com/conveyr/conveyr/internal/metrics"
	"github.com/conveyr/conveyr/internal/store"
)

// ArtifactStore persists uploaded submission files. The engine records the
// returned pointer, it never touches the bytes again.
type ArtifactStore interface {
	Store(itemID, filename string, r io.Reader) (*artifact.StoredFile, error)
}

// ActivitySink receives audit events after each transition. Implementations
// must swallow their own failures.
type ActivitySink interface {
	Record(actor, itemID, eventCode, metadata string)
}

// Options configures an Engine. Zero values fall back to the default
// five-segment pipeline.
type Options struct {
	AllowedSegments []string
	SystemRole      string
	Artifacts       ArtifactStore
	Activity        ActivitySink
	Validators      *validation.Registry
	Metrics         *metrics.Collector
	CandidateLimit  int
}

// Engine wires the coordinators over one store.
type Engine struct {
	store      *store.Store
	artifacts  ArtifactStore
	activity   ActivitySink
	validators *validation.Registry
	metrics    *metrics.Collector
	logger     *slog.Logger

	allowedSegments map[string]bool
	systemRole      string
	candidateLimit  int
}

// DefaultSegments is the built-in content-production pipeline.
var DefaultSegments = []string{"vision", "api", "backend", "frontend", "qa"}

func New(st *store.Store, opts Options) *Engine {
	segments := opts.AllowedSegments
	if len(segments) == 0 {
		segments = DefaultSegments
	}
	allowed := make(map[string]bool, len(segments))
	for _, s := range segments {
		allowed[strings.ToLower(strings.TrimSpace(s))] = true
	}
	validators := opts.Validators
	if validators == nil {
		validators = validation.Default()
	}
	activity := opts.Activity
	if activity == nil {
		activity = nopSink{}
	}
	systemRole := opts.SystemRole
	if systemRole == "" {
		systemRole = "pipeline-system"
	}
	limit := opts.CandidateLimit
	if limit <= 0 {
		limit = 10
	}
	return &Engine{
		store:           st,
		artifacts:       opts.Artifacts,
		activity:        activity,
		validators:      validators,
		metrics:         opts.Metrics,
		logger:          slog.Default().With("component", "engine"),
		allowedSegments: allowed,
		systemRole:      systemRole,
		candidateLimit:  limit,
	}
}

// Store exposes the underlying store for read-side consumers.
func (e *Engine) Store() *store.Store { return e.store }

func (e *Engine) segmentAllowed(segment string) bool {
	return e.allowedSegments[segment]
}

func (e *Engine) countClaim(outcome string) {
	if e.metrics != nil {
		e.metrics.Claim(outcome)
	}
}

func (e *Engine) countSubmission(outcome string) {
	if e.metrics != nil {
		e.metrics.Submission(outcome)
	}
}

func (e *Engine) countIngested() {
	if e.metrics != nil {
		e.metrics.TaskIngested()
	}
}

func (e *Engine) countHandoff() {
	if e.metrics != nil {
		e.metrics.Handoff()
	}
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

type nopSink struct{}

func (nopSink) Record(actor, itemID, eventCode, metadata string) {}

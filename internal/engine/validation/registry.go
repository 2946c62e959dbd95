// Package validation holds the segment-keyed submission validators. Each
// validator is side-effect free and runs before any persistence in the
// submission coordinator; adding a pipeline segment with its own submission
// contract means registering a new validator, not touching the coordinator.
package validation

import (
	"fmt"
)

// LinkArtifact is a declared result link in a submission.
type LinkArtifact struct {
	Title string
	URL   string
}

// File is an uploaded result file in a submission.
type File struct {
	Name      string
	MediaType string
	Size      int64
}

// Context carries the full submission for validators to inspect.
type Context struct {
	Segment       string
	Notes         string
	Metadata      map[string]any
	Links         []LinkArtifact
	Files         []File
	TemplateCodes []string
}

// Error is a typed validation rejection with a stable machine-readable code.
type Error struct {
	Code    string
	Message string
	Field   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validator enforces one segment-specific submission contract.
type Validator interface {
	// Supports reports whether this validator applies to a segment.
	Supports(segment string) bool
	// Validate returns nil or a *Error.
	Validate(ctx Context) error
}

// Registry runs every matching validator against a submission.
type Registry struct {
	validators []Validator
}

func NewRegistry(validators ...Validator) *Registry {
	return &Registry{validators: validators}
}

// Register appends a validator.
func (r *Registry) Register(v Validator) {
	r.validators = append(r.validators, v)
}

// Validate runs all validators supporting ctx.Segment in registration
// order. The first failure aborts.
func (r *Registry) Validate(ctx Context) error {
	for _, v := range r.validators {
		if !v.Supports(ctx.Segment) {
			continue
		}
		if err := v.Validate(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Default returns the registry with the built-in segment validators.
func Default() *Registry {
	return NewRegistry(
		SpecArtifactValidator{},
		QAReportValidator{},
	)
}

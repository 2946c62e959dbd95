package validation

import (
	"strings"
)

// SpecArtifactValidator enforces the "api" segment contract: the submission
// must carry a machine-readable API spec artifact (json/yaml) plus metadata
// describing it.
type SpecArtifactValidator struct{}

func (SpecArtifactValidator) Supports(segment string) bool {
	return segment == "api"
}

func (SpecArtifactValidator) Validate(ctx Context) error {
	if !hasMachineReadableArtifact(ctx) {
		return &Error{
			Code:    "validation.api.spec_artifact_required",
			Message: "api submissions need a machine-readable spec artifact (.json, .yaml or .yml)",
			Field:   "artifacts",
		}
	}
	if len(ctx.Metadata) == 0 {
		return &Error{
			Code:    "validation.api.metadata_required",
			Message: "api submissions need metadata describing the spec artifact",
			Field:   "metadata",
		}
	}
	return nil
}

func hasMachineReadableArtifact(ctx Context) bool {
	for _, l := range ctx.Links {
		if isSpecName(l.URL) {
			return true
		}
	}
	for _, f := range ctx.Files {
		if isSpecName(f.Name) || isSpecMediaType(f.MediaType) {
			return true
		}
	}
	return false
}

func isSpecName(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".json") ||
		strings.HasSuffix(name, ".yaml") ||
		strings.HasSuffix(name, ".yml")
}

func isSpecMediaType(mediaType string) bool {
	mediaType = strings.ToLower(mediaType)
	return strings.Contains(mediaType, "json") || strings.Contains(mediaType, "yaml")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePipeline = `
segments: [vision, api, backend, frontend, qa]
agents:
  - id: agent-be
    name: Backend Bot
    role: backend-dev
preferences:
  - role: backend-dev
    primary: [backend]
    fallback: [api]
    pickup: [queued, returned]
    active: [in_progress, review]
    accept: in_progress
    return: completed
    claim_ttl_minutes: 45
rules:
  - segment: backend
    status: completed
    next: frontend
    templates: [fe-impl]
`

func writePipeline(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write pipeline: %v", err)
	}
	return path
}

func TestLoadPipeline(t *testing.T) {
	p, err := LoadPipeline(writePipeline(t, samplePipeline))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(p.Segments) != 5 {
		t.Errorf("segments = %v", p.Segments)
	}
	if len(p.Rules) != 1 || p.Rules[0].Next != "frontend" {
		t.Errorf("rules = %+v", p.Rules)
	}
	if p.Preferences[0].ClaimTTLMinutes != 45 {
		t.Errorf("ttl = %d", p.Preferences[0].ClaimTTLMinutes)
	}
	if p.Agents[0].Role != "backend-dev" {
		t.Errorf("agent role = %q", p.Agents[0].Role)
	}
}

func TestLoadPipelineRejectsUnknownSegment(t *testing.T) {
	bad := `
segments: [backend]
rules:
  - segment: backend
    status: completed
    next: warehouse
`
	if _, err := LoadPipeline(writePipeline(t, bad)); err == nil {
		t.Fatal("expected error for rule pointing at undeclared segment")
	}

	badPref := `
segments: [backend]
preferences:
  - role: backend-dev
    primary: [warehouse]
`
	if _, err := LoadPipeline(writePipeline(t, badPref)); err == nil {
		t.Fatal("expected error for preference with undeclared segment")
	}
}

func TestDefaultPipelineIsValid(t *testing.T) {
	p := DefaultPipeline()
	if err := p.Validate(); err != nil {
		t.Fatalf("default pipeline invalid: %v", err)
	}
	if len(p.Rules) != 4 {
		t.Errorf("expected a linear 5-segment chain, got %d rules", len(p.Rules))
	}
}

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pipeline is the declarative description of one pipeline: its segments, the
// handoff edges between them, the per-role claim policies, and the agents to
// register. It is data, not code — adding a stage means editing this file.
type Pipeline struct {
	Segments    []string             `yaml:"segments"`
	Agents      []PipelineAgent      `yaml:"agents"`
	Preferences []PipelinePreference `yaml:"preferences"`
	Rules       []PipelineRule       `yaml:"rules"`
}

// PipelineAgent is one agent directory seed entry.
type PipelineAgent struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

// PipelinePreference is one per-role claim/submit policy.
type PipelinePreference struct {
	Role            string   `yaml:"role"`
	Primary         []string `yaml:"primary"`
	Fallback        []string `yaml:"fallback"`
	Pickup          []string `yaml:"pickup"`
	Active          []string `yaml:"active"`
	Accept          string   `yaml:"accept"`
	Return          string   `yaml:"return"`
	ClaimTTLMinutes int      `yaml:"claim_ttl_minutes"`
}

// PipelineRule is one handoff edge.
type PipelineRule struct {
	Segment   string   `yaml:"segment"`
	Status    string   `yaml:"status"`
	Next      string   `yaml:"next"`
	Templates []string `yaml:"templates"`
}

// LoadPipeline reads and validates a pipeline definition file.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline %s: %w", path, err)
	}
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse pipeline %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", path, err)
	}
	return &p, nil
}

// Validate checks that every edge and preference only references declared
// segments.
func (p *Pipeline) Validate() error {
	if len(p.Segments) == 0 {
		return fmt.Errorf("at least one segment is required")
	}
	known := make(map[string]bool, len(p.Segments))
	for _, s := range p.Segments {
		known[strings.ToLower(strings.TrimSpace(s))] = true
	}
	for _, r := range p.Rules {
		if !known[strings.ToLower(strings.TrimSpace(r.Segment))] {
			return fmt.Errorf("rule references unknown segment %q", r.Segment)
		}
		if !known[strings.ToLower(strings.TrimSpace(r.Next))] {
			return fmt.Errorf("rule references unknown next segment %q", r.Next)
		}
		if strings.TrimSpace(r.Status) == "" {
			return fmt.Errorf("rule %s -> %s has no status", r.Segment, r.Next)
		}
	}
	for _, pref := range p.Preferences {
		if strings.TrimSpace(pref.Role) == "" {
			return fmt.Errorf("preference without role")
		}
		for _, s := range append(append([]string{}, pref.Primary...), pref.Fallback...) {
			if !known[strings.ToLower(strings.TrimSpace(s))] {
				return fmt.Errorf("preference %s references unknown segment %q", pref.Role, s)
			}
		}
	}
	for _, a := range p.Agents {
		if a.ID == "" || a.Role == "" {
			return fmt.Errorf("agent entries need both id and role")
		}
	}
	return nil
}

// DefaultPipeline returns the built-in five-segment content pipeline used
// when no definition file is configured.
func DefaultPipeline() *Pipeline {
	pickup := []string{"queued", "returned"}
	active := []string{"in_progress", "review"}
	pref := func(role, segment string) PipelinePreference {
		return PipelinePreference{
			Role:            role,
			Primary:         []string{segment},
			Pickup:          pickup,
			Active:          active,
			Accept:          "in_progress",
			Return:          "completed",
			ClaimTTLMinutes: 60,
		}
	}
	return &Pipeline{
		Segments: []string{"vision", "api", "backend", "frontend", "qa"},
		Preferences: []PipelinePreference{
			pref("vision-analyst", "vision"),
			pref("api-designer", "api"),
			pref("backend-dev", "backend"),
			pref("frontend-dev", "frontend"),
			pref("qa-engineer", "qa"),
		},
		Rules: []PipelineRule{
			{Segment: "vision", Status: "completed", Next: "api"},
			{Segment: "api", Status: "completed", Next: "backend"},
			{Segment: "backend", Status: "completed", Next: "frontend"},
			{Segment: "frontend", Status: "completed", Next: "qa"},
		},
	}
}

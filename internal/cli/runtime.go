package cli

import (
	"fmt"
	"strings"

	"github.com/conveyr/conveyr/internal/activity"
	"github.com/conveyr/conveyr/internal/artifact"
	"github.com/conveyr/conveyr/internal/config"
	"github.com/conveyr/conveyr/internal/engine"
	"github.com/conveyr/conveyr/internal/metrics"
	"github.com/conveyr/conveyr/internal/store"
)

// runtime bundles everything a command needs to talk to the engine.
type runtime struct {
	cfg      *config.Config
	store    *store.Store
	engine   *engine.Engine
	metrics  *metrics.Collector
	pipeline *config.Pipeline
}

func openRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	pipeline := config.DefaultPipeline()
	if cfg.Paths.Pipeline != "" {
		pipeline, err = config.LoadPipeline(cfg.Paths.Pipeline)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	storage, err := artifact.NewStorage(cfg.Paths.ArtifactDir)
	if err != nil {
		st.Close()
		return nil, err
	}
	collector := metrics.NewCollector()
	eng := engine.New(st, engine.Options{
		AllowedSegments: pipeline.Segments,
		SystemRole:      cfg.Engine.SystemRole,
		Artifacts:       storage,
		Activity:        activity.NewSink(st, cfg.Activity.SlackWebhookURL),
		Metrics:         collector,
		CandidateLimit:  cfg.Engine.CandidateLimit,
	})
	return &runtime{
		cfg:      cfg,
		store:    st,
		engine:   eng,
		metrics:  collector,
		pipeline: pipeline,
	}, nil
}

func (rt *runtime) Close() {
	rt.store.Close()
}

// applyPipeline upserts the declarative pipeline definition into the store.
// All writes are idempotent, so re-seeding on every start is safe.
func applyPipeline(st *store.Store, p *config.Pipeline) error {
	for _, a := range p.Agents {
		if _, err := st.UpsertAgent(&store.Agent{
			ID:      a.ID,
			Name:    a.Name,
			RoleKey: a.Role,
			Active:  true,
		}); err != nil {
			return err
		}
	}
	for _, pref := range p.Preferences {
		accept := pref.Accept
		if accept == "" {
			accept = store.StatusInProgress
		}
		ret := pref.Return
		if ret == "" {
			ret = store.StatusCompleted
		}
		ttl := pref.ClaimTTLMinutes
		if ttl <= 0 {
			ttl = 60
		}
		if err := st.UpsertPreference(&store.Preference{
			RoleKey:          pref.Role,
			PrimarySegments:  lowerAll(pref.Primary),
			FallbackSegments: lowerAll(pref.Fallback),
			PickupStatuses:   lowerAll(pref.Pickup),
			ActiveStatuses:   lowerAll(pref.Active),
			AcceptStatus:     accept,
			ReturnStatus:     ret,
			ClaimTTLMinutes:  ttl,
		}); err != nil {
			return err
		}
	}
	for _, r := range p.Rules {
		if err := st.UpsertHandoffRule(&store.HandoffRule{
			Segment:       r.Segment,
			StatusCode:    r.Status,
			NextSegment:   r.Next,
			TemplateCodes: strings.Join(r.Templates, ","),
		}); err != nil {
			return err
		}
	}
	return nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}

// Package activity is the fire-and-forget audit sink. A failed audit write
// must never fail the task transition that triggered it.
package activity

import (
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/conveyr/conveyr/internal/store"
)

// Sink records task events to the activity log and optionally mirrors them
// to a Slack webhook.
type Sink struct {
	store      *store.Store
	webhookURL string
	logger     *slog.Logger
}

func NewSink(st *store.Store, webhookURL string) *Sink {
	return &Sink{
		store:      st,
		webhookURL: webhookURL,
		logger:     slog.Default().With("component", "activity"),
	}
}

// Record persists one audit entry. Errors are logged and swallowed.
func (s *Sink) Record(actor, itemID, eventCode, metadata string) {
	err := s.store.RecordActivity(&store.ActivityEntry{
		Actor:     actor,
		ItemID:    itemID,
		EventCode: eventCode,
		Metadata:  metadata,
	})
	if err != nil {
		s.logger.Warn("activity record failed", "event", eventCode, "item", itemID, "error", err)
	}
	if s.webhookURL != "" {
		go s.notify(actor, itemID, eventCode)
	}
}

func (s *Sink) notify(actor, itemID, eventCode string) {
	msg := &slack.WebhookMessage{
		Text: "pipeline event `" + eventCode + "` on task " + itemID + " by " + actor,
	}
	if err := slack.PostWebhook(s.webhookURL, msg); err != nil {
		s.logger.Warn("slack notify failed", "event", eventCode, "error", err)
	}
}

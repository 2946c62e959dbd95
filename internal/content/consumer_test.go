package content

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conveyr/conveyr/internal/engine"
	"github.com/conveyr/conveyr/internal/store"
)

func TestKafkaSourceClosesChannelOnCancel(t *testing.T) {
	// No broker behind this address; the read loop just retries until the
	// context ends, then the goroutine closes the channel it owns.
	source := NewKafkaSource([]string{"127.0.0.1:1"}, "content-events", "conveyr-test")
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, source.Start(ctx))
	cancel()

	select {
	case _, ok := <-source.Messages():
		require.False(t, ok, "channel should close without delivering")
	case <-time.After(5 * time.Second):
		t.Fatal("messages channel did not close after cancel")
	}
	require.NoError(t, source.Close())
}

func TestWorkerSeedsPipelineFromEvent(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "content.db"))
	require.NoError(t, err)
	defer st.Close()

	_, err = st.UpsertAgent(&store.Agent{ID: "agent-vision", RoleKey: "vision-analyst", Active: true})
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

	eng := engine.New(st, engine.Options{})
	source := NewChannelSource()
	worker := NewWorker(source, eng)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	event, err := json.Marshal(engine.ContentNotification{
		EntityID: "page-77", EventType: "published", ActorRole: "vision-analyst",
	})
	require.NoError(t, err)
	source.Send(Message{Value: event})
	// A malformed event must not kill the worker.
	source.Send(Message{Value: []byte("not json")})
	// A replay must be absorbed.
	source.Send(Message{Value: event})

	require.Eventually(t, func() bool {
		item, err := st.GetItemByExternalRef("content:page-77:published::api")
		return err == nil && item != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancel")
	}

	item, err := st.GetItemByExternalRef("content:page-77:published::api")
	require.NoError(t, err)
	require.NotNil(t, item)
	require.Equal(t, store.StatusQueued, item.StatusCode)
}

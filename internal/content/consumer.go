// Package content feeds content-change events into the pipeline. Events
// arrive on a Kafka topic; each one may seed a new pipeline run through the
// engine's content coordinator.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/conveyr/conveyr/internal/engine"
)

// Source abstracts the message transport so tests can inject events without
// a broker.
type Source interface {
	Start(ctx context.Context) error
	Messages() <-chan Message
	Close() error
}

// Message is one raw content-change event.
type Message struct {
	Key   []byte
	Value []byte
}

// KafkaSource implements Source using segmentio/kafka-go.
type KafkaSource struct {
	reader   *kafka.Reader
	messages chan Message
}

// NewKafkaSource creates a consumer-group reader for the content topic.
func NewKafkaSource(brokers []string, topic, groupID string) *KafkaSource {
	return &KafkaSource{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		messages: make(chan Message, 100),
	}
}

// Start begins reading from the topic until ctx is cancelled or the reader
// is closed. The read goroutine is the only sender, so it owns closing the
// messages channel.
func (s *KafkaSource) Start(ctx context.Context) error {
	go func() {
		defer close(s.messages)
		for {
			msg, err := s.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				slog.Warn("content: kafka read error", "error", err)
				continue
			}
			select {
			case s.messages <- Message{Key: msg.Key, Value: msg.Value}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Messages returns the channel of consumed messages.
func (s *KafkaSource) Messages() <-chan Message { return s.messages }

// Close stops the reader; the read goroutine sees io.EOF and drains out.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

// ChannelSource is an in-process Source implementation for tests.
type ChannelSource struct {
	ch chan Message
}

func NewChannelSource() *ChannelSource {
	return &ChannelSource{ch: make(chan Message, 100)}
}

func (s *ChannelSource) Start(ctx context.Context) error { return nil }
func (s *ChannelSource) Messages() <-chan Message        { return s.ch }
func (s *ChannelSource) Close() error {
	close(s.ch)
	return nil
}

// Send pushes a message into the channel source (for testing).
func (s *ChannelSource) Send(msg Message) { s.ch <- msg }

// Worker drains a Source into the engine.
type Worker struct {
	source Source
	engine *engine.Engine
	logger *slog.Logger
}

func NewWorker(source Source, eng *engine.Engine) *Worker {
	return &Worker{
		source: source,
		engine: eng,
		logger: slog.Default().With("component", "content"),
	}
}

// Run consumes events until ctx is cancelled. Malformed events and engine
// rejections are logged and skipped; the stream must keep flowing.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.source.Start(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-w.source.Messages():
			if !ok {
				return nil
			}
			w.handle(msg)
		}
	}
}

func (w *Worker) handle(msg Message) {
	var n engine.ContentNotification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		w.logger.Warn("content: malformed event", "error", err)
		return
	}
	item, err := w.engine.ContentTask(n)
	if err != nil {
		w.logger.Warn("content: event rejected", "entity", n.EntityID, "event", n.EventType, "error", err)
		return
	}
	if item != nil {
		w.logger.Info("content: pipeline run seeded", "entity", n.EntityID, "item", item.ID)
	}
}

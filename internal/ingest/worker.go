package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/repo"
)

// Metrics receives one increment per ingested event.
type Metrics interface {
	EventRecorded(eventType string)
}

type noopMetrics struct{}

func (noopMetrics) EventRecorded(string) {}

// Worker consumes recorded events from a JetStream durable pull consumer
// and writes them to the event store. It is an alternative write path to
// the HTTP endpoint for SDKs that publish to the bus.
type Worker struct {
	cfg     Config
	logger  *slog.Logger
	events  repo.EventRepository
	metrics Metrics

	conn *nats.Conn
	js   jetstream.JetStream
	cons jetstream.Consumer

	now   func() time.Time
	newID func() string
}

func NewWorker(cfg Config, logger *slog.Logger, events repo.EventRepository, metrics Metrics) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, errors.New("event ingest is disabled")
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Worker{
		cfg:     cfg,
		logger:  logger,
		events:  events,
		metrics: metrics,
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

// Connect dials NATS and ensures the stream and durable consumer exist.
func (w *Worker) Connect(ctx context.Context) error {
	conn, err := nats.Connect(w.cfg.URL, nats.Name("variant-experiments-ingest"))
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("jetstream: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     w.cfg.Stream,
		Subjects: []string{w.cfg.Subject},
	}); err != nil {
		conn.Close()
		return fmt.Errorf("ensure stream: %w", err)
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, w.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       w.cfg.Durable,
		FilterSubject: w.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       w.cfg.AckWait,
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("ensure consumer: %w", err)
	}

	w.conn = conn
	w.js = js
	w.cons = cons
	return nil
}

func (w *Worker) Close() {
	if w.conn != nil {
		w.conn.Close()
	}
}

// Run pulls messages until the context is cancelled. Malformed payloads are
// acked and dropped with a log line; store failures are nak'd for redelivery.
func (w *Worker) Run(ctx context.Context) error {
	if w.cons == nil {
		return errors.New("not connected")
	}
	w.logger.Info("event ingest running", "stream", w.cfg.Stream, "subject", w.cfg.Subject, "durable", w.cfg.Durable)

	for {
		iter, err := w.cons.Messages(
			jetstream.PullMaxMessages(w.cfg.BatchSize),
			jetstream.PullExpiry(w.cfg.FetchTimeout),
			jetstream.PullHeartbeat(w.cfg.FetchTimeout/2),
		)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			w.logger.Error("event ingest iterator", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
				continue
			}
		}

		if err := w.consume(ctx, iter); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (w *Worker) consume(ctx context.Context, iter jetstream.MessagesContext) error {
	defer iter.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := iter.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if errors.Is(err, jetstream.ErrNoHeartbeat) {
				w.logger.Warn("event ingest: no heartbeat, recreating iterator")
				return nil
			}
			w.logger.Warn("event ingest: iterator error", "error", err)
			return nil
		}

		if err := w.process(ctx, msg.Data()); err != nil {
			var decodeErr *decodeError
			if errors.As(err, &decodeErr) {
				w.logger.Warn("event ingest: dropping malformed event", "error", err)
				_ = msg.Ack()
				continue
			}
			w.logger.Error("event ingest: store failed", "error", err)
			_ = msg.Nak()
			continue
		}
		_ = msg.Ack()
	}
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "decode event: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

type eventMessage struct {
	UserID     string         `json:"user_id"`
	EventType  string         `json:"event_type"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// process decodes and stores one event payload. Decode failures are
// terminal for the message; insert failures are retryable.
func (w *Worker) process(ctx context.Context, data []byte) error {
	event, err := w.parseEvent(data)
	if err != nil {
		return err
	}
	if err := w.events.Insert(ctx, event); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	w.metrics.EventRecorded(event.Type)
	return nil
}

func (w *Worker) parseEvent(data []byte) (domain.Event, error) {
	var msg eventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Event{}, &decodeError{err: err}
	}

	now := w.now().UTC()
	timestamp := now
	if msg.Timestamp != nil {
		timestamp = msg.Timestamp.UTC()
	}
	event := domain.Event{
		ID:         w.newID(),
		UserID:     strings.TrimSpace(msg.UserID),
		Type:       strings.TrimSpace(msg.EventType),
		Timestamp:  timestamp,
		Properties: domain.Metadata(msg.Properties),
		CreatedAt:  now,
	}
	if err := event.Validate(); err != nil {
		return domain.Event{}, &decodeError{err: err}
	}
	return event, nil
}

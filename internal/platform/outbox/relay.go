package outbox

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafkago.Writer the relay needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

type Repository interface {
	ListPending(ctx context.Context, limit int) ([]Event, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

type Relay struct {
	repo      Repository
	writer    MessageWriter
	log       *zap.Logger
	interval  time.Duration
	batchSize int
}

func NewRelay(repo Repository, writer MessageWriter, log *zap.Logger, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Relay{
		repo:      repo,
		writer:    writer,
		log:       log.Named("outbox.relay"),
		interval:  interval,
		batchSize: 50,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("outbox relay started", zap.Duration("poll_interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				r.log.Error("process outbox events failed", zap.Error(err))
			}
		}
	}
}

// Flush publishes one batch and returns how many events were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.repo.ListPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, event := range events {
		if err := r.writer.WriteMessages(ctx, message(event)); err != nil {
			r.log.Error("publish outbox event failed",
				zap.String("outbox_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.String("topic", event.Topic),
				zap.Error(err),
			)
			if markErr := r.repo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				r.log.Error("mark outbox failed", zap.String("outbox_id", event.ID), zap.Error(markErr))
			}
			continue
		}
		if err := r.repo.MarkSent(ctx, event.ID); err != nil {
			r.log.Error("mark outbox sent failed", zap.String("outbox_id", event.ID), zap.Error(err))
			continue
		}
		sent++
	}
	if sent > 0 {
		r.log.Debug("outbox events sent", zap.Int("count", sent))
	}
	return sent, nil
}

func message(event Event) kafkago.Message {
	headers := []kafkago.Header{
		{Key: "event_type", Value: []byte(event.EventType)},
		{Key: "aggregate_type", Value: []byte(event.AggregateType)},
	}
	if event.RequestID != "" {
		headers = append(headers, kafkago.Header{Key: "request_id", Value: []byte(event.RequestID)})
	}
	return kafkago.Message{
		Topic:   event.Topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
}

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"paycore/internal/platform/querier"
	"paycore/internal/requestctx"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

type Event struct {
	ID            string
	RequestID     string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	Payload       []byte
	Status        string
	RetryCount    int
	NextRetryAt   time.Time
}

// NewEvent marshals payload and stamps the request ID carried by ctx.
func NewEvent(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.NewString(),
		RequestID:     requestctx.GetRequestID(ctx),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		Status:        StatusPending,
	}, nil
}

func Validate(event Event) error {
	if event.ID == "" {
		return errors.New("outbox id is required")
	}
	if event.Topic == "" {
		return errors.New("outbox topic is required")
	}
	if len(event.Payload) == 0 {
		return errors.New("outbox payload is required")
	}
	switch event.Status {
	case StatusPending, StatusSent, StatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid outbox status: %s", event.Status)
	}
}

// Store persists events in outbox_events. Append joins the transaction
// carried by ctx so events commit with the business change.
type Store struct {
	DB    querier.Querier
	Topic string
}

func NewStore(db querier.Querier, topic string) *Store {
	return &Store{DB: db, Topic: topic}
}

func (s *Store) Append(ctx context.Context, event Event) error {
	if event.Topic == "" {
		event.Topic = s.Topic
	}
	if event.Status == "" {
		event.Status = StatusPending
	}
	if err := Validate(event); err != nil {
		return err
	}
	_, err := querier.From(ctx, s.DB).Exec(ctx, `
    INSERT INTO outbox_events (
      id, request_id, aggregate_type, aggregate_id, event_type, topic, payload, status
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
  `, event.ID, event.RequestID, event.AggregateType, event.AggregateID, event.EventType, event.Topic, event.Payload, event.Status)
	return err
}

func (s *Store) ListPending(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, request_id, aggregate_type, aggregate_id, event_type, topic, payload,
           status, retry_count, COALESCE(next_retry_at, created_at)
    FROM outbox_events
    WHERE status IN ($1, $2)
      AND (next_retry_at IS NULL OR next_retry_at <= now())
    ORDER BY created_at ASC
    LIMIT $3
  `, StatusPending, StatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.RequestID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Topic,
			&e.Payload, &e.Status, &e.RetryCount, &e.NextRetryAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) MarkSent(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE outbox_events
    SET status = $2, processed_at = now(), error_message = NULL, updated_at = now()
    WHERE id = $1
  `, id, StatusSent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE outbox_events
    SET status = $2,
        retry_count = retry_count + 1,
        error_message = LEFT($3, 500),
        next_retry_at = now() + (LEAST(retry_count + 1, 10) * INTERVAL '15 seconds'),
        updated_at = now()
    WHERE id = $1
  `, id, StatusFailed, reason)
	return err
}

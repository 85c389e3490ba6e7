package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists events in the domain_events table.
type PGStore struct {
	Pool *pgxpool.Pool
}

func (s *PGStore) InsertEvent(ctx context.Context, topic string, invoiceID int64, payload []byte) (Event, error) {
	ev := Event{ID: uuid.New(), Topic: topic, InvoiceID: invoiceID, Payload: payload}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO domain_events (id, topic, invoice_id, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING occurred_at`,
		ev.ID, topic, invoiceID, payload)
	if err := row.Scan(&ev.OccurredAt); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// MemStore is an in-memory EventStore for tests.
type MemStore struct {
	mu     sync.Mutex
	Events []Event
}

func (s *MemStore) InsertEvent(_ context.Context, topic string, invoiceID int64, payload []byte) (Event, error) {
	ev := Event{
		ID:         uuid.New(),
		Topic:      topic,
		InvoiceID:  invoiceID,
		Payload:    append([]byte(nil), payload...),
		OccurredAt: time.Now(),
	}
	s.mu.Lock()
	s.Events = append(s.Events, ev)
	s.mu.Unlock()
	return ev, nil
}

// ByTopic returns recorded events matching the topic.
func (s *MemStore) ByTopic(topic string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.Events {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

package invoice

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests and local development.
type MemStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*Invoice
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{nextID: 1, byID: map[int64]*Invoice{}}
}

func (s *MemStore) clone(inv *Invoice) *Invoice {
	cp := *inv
	cp.Notes = append([]Note(nil), inv.Notes...)
	return &cp
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, id int64) (*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(inv), nil
}

// GetByKey implements Store.
func (s *MemStore) GetByKey(_ context.Context, key string) (*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.byID {
		if inv.Key == key {
			return s.clone(inv), nil
		}
	}
	return nil, ErrNotFound
}

// Save implements Store.
func (s *MemStore) Save(_ context.Context, inv *Invoice) error {
	if inv == nil {
		return errors.New("invoice: nil invoice")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == 0 {
		inv.ID = s.nextID
		s.nextID++
		if inv.CreatedAt.IsZero() {
			inv.CreatedAt = time.Now()
		}
	}
	s.byID[inv.ID] = s.clone(inv)
	return nil
}

// SetGateway implements Store.
func (s *MemStore) SetGateway(_ context.Context, id int64, gateway string, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	inv.Gateway = gateway
	inv.Mode = mode
	return nil
}

// UpdateStatus implements Store.
func (s *MemStore) UpdateStatus(_ context.Context, id int64, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	return nil
}

// MarkPaid implements Store. Settling an already paid invoice is a no-op.
func (s *MemStore) MarkPaid(_ context.Context, id int64, transactionID string) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if inv.IsPaid() {
		return s.clone(inv), nil
	}
	inv.Status = StatusPaid
	if transactionID != "" {
		inv.TransactionID = transactionID
	}
	inv.CompletedAt = time.Now()
	return s.clone(inv), nil
}

// AddNote implements Store.
func (s *MemStore) AddNote(_ context.Context, id int64, content string, system bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	inv.Notes = append(inv.Notes, Note{Content: content, System: system, CreatedAt: time.Now()})
	return nil
}

// DueForReminder implements Store.
func (s *MemStore) DueForReminder(_ context.Context, daysBefore int, now time.Time) ([]Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	until := now.AddDate(0, 0, daysBefore)
	var out []Invoice
	for _, inv := range s.byID {
		if inv.Status != StatusPending || inv.DueDate.IsZero() {
			continue
		}
		if !inv.DueDate.Before(now.Truncate(24*time.Hour)) && inv.DueDate.Before(until) {
			out = append(out, *s.clone(inv))
		}
	}
	return out, nil
}

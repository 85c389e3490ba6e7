package invoice

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an invoice cannot be located.
var ErrNotFound = errors.New("invoice: not found")

// Store is the persistence contract consumed by checkout and notification
// handling. MarkPaid must be idempotent: settling an already paid invoice is a
// no-op that returns the stored row unchanged, so a synchronous gateway
// response and an async notification can race without double-crediting.
type Store interface {
	Get(ctx context.Context, id int64) (*Invoice, error)
	GetByKey(ctx context.Context, key string) (*Invoice, error)
	Save(ctx context.Context, inv *Invoice) error
	SetGateway(ctx context.Context, id int64, gateway string, mode Mode) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	MarkPaid(ctx context.Context, id int64, transactionID string) (*Invoice, error)
	AddNote(ctx context.Context, id int64, content string, system bool) error
	DueForReminder(ctx context.Context, daysBefore int, now time.Time) ([]Invoice, error)
}

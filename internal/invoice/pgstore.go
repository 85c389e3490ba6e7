package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store on top of Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

const invoiceColumns = `id, number, key, user_id, email, first_name, last_name,
	currency, subtotal, tax, discount, total, status, recurring,
	subscription_id, gateway, mode, transaction_id, due_date, created_at, completed_at`

func (s *PGStore) scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var dueDate, completedAt *time.Time
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.Key, &inv.UserID, &inv.Email, &inv.FirstName, &inv.LastName,
		&inv.Currency, &inv.Subtotal, &inv.Tax, &inv.Discount, &inv.Total, &inv.Status, &inv.Recurring,
		&inv.SubscriptionID, &inv.Gateway, &inv.Mode, &inv.TransactionID, &dueDate, &inv.CreatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if dueDate != nil {
		inv.DueDate = *dueDate
	}
	if completedAt != nil {
		inv.CompletedAt = *completedAt
	}
	return &inv, nil
}

// Get fetches an invoice by primary key.
func (s *PGStore) Get(ctx context.Context, id int64) (*Invoice, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return s.scanInvoice(row)
}

// GetByKey fetches an invoice by its public access key.
func (s *PGStore) GetByKey(ctx context.Context, key string) (*Invoice, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE key = $1`, key)
	return s.scanInvoice(row)
}

// Save inserts or updates an invoice. A zero ID inserts and backfills the
// generated identifier.
func (s *PGStore) Save(ctx context.Context, inv *Invoice) error {
	if inv == nil {
		return errors.New("invoice: nil invoice")
	}
	var dueDate, completedAt *time.Time
	if !inv.DueDate.IsZero() {
		dueDate = &inv.DueDate
	}
	if !inv.CompletedAt.IsZero() {
		completedAt = &inv.CompletedAt
	}
	if inv.ID == 0 {
		return s.Pool.QueryRow(ctx, `
			INSERT INTO invoices (number, key, user_id, email, first_name, last_name,
				currency, subtotal, tax, discount, total, status, recurring,
				subscription_id, gateway, mode, transaction_id, due_date, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18, now())
			RETURNING id`,
			inv.Number, inv.Key, inv.UserID, inv.Email, inv.FirstName, inv.LastName,
			inv.Currency, inv.Subtotal, inv.Tax, inv.Discount, inv.Total, inv.Status, inv.Recurring,
			inv.SubscriptionID, inv.Gateway, inv.Mode, inv.TransactionID, dueDate,
		).Scan(&inv.ID)
	}
	_, err := s.Pool.Exec(ctx, `
		UPDATE invoices SET number=$2, key=$3, user_id=$4, email=$5, first_name=$6, last_name=$7,
			currency=$8, subtotal=$9, tax=$10, discount=$11, total=$12, status=$13, recurring=$14,
			subscription_id=$15, gateway=$16, mode=$17, transaction_id=$18, due_date=$19, completed_at=$20
		WHERE id=$1`,
		inv.ID, inv.Number, inv.Key, inv.UserID, inv.Email, inv.FirstName, inv.LastName,
		inv.Currency, inv.Subtotal, inv.Tax, inv.Discount, inv.Total, inv.Status, inv.Recurring,
		inv.SubscriptionID, inv.Gateway, inv.Mode, inv.TransactionID, dueDate, completedAt,
	)
	return err
}

// SetGateway records the gateway an invoice was dispatched to.
func (s *PGStore) SetGateway(ctx context.Context, id int64, gateway string, mode Mode) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE invoices SET gateway=$2, mode=$3 WHERE id=$1`, id, gateway, mode)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions the invoice status.
func (s *PGStore) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE invoices SET status=$2 WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaid settles the invoice. The guard on the current status makes the
// operation idempotent under concurrent settlement from the synchronous
// checkout path and an async gateway notification.
func (s *PGStore) MarkPaid(ctx context.Context, id int64, transactionID string) (*Invoice, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	inv, err := s.scanInvoice(row)
	if err != nil {
		return nil, err
	}
	if inv.IsPaid() {
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return inv, nil
	}
	now := time.Now()
	if transactionID == "" {
		transactionID = inv.TransactionID
	}
	_, err = tx.Exec(ctx, `UPDATE invoices SET status=$2, transaction_id=$3, completed_at=$4 WHERE id=$1`,
		id, StatusPaid, transactionID, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	inv.Status = StatusPaid
	inv.TransactionID = transactionID
	inv.CompletedAt = now
	return inv, nil
}

// AddNote appends an audit note to the invoice.
func (s *PGStore) AddNote(ctx context.Context, id int64, content string, system bool) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO invoice_notes (invoice_id, content, system, created_at) VALUES ($1,$2,$3, now())`,
		id, content, system)
	return err
}

// DueForReminder returns pending invoices whose due date falls within the
// reminder window ending daysBefore days from now.
func (s *PGStore) DueForReminder(ctx context.Context, daysBefore int, now time.Time) ([]Invoice, error) {
	if daysBefore < 0 {
		return nil, fmt.Errorf("invoice: negative reminder window %d", daysBefore)
	}
	until := now.AddDate(0, 0, daysBefore)
	rows, err := s.Pool.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE status = $1 AND due_date IS NOT NULL AND due_date >= $2 AND due_date < $3
		ORDER BY due_date ASC`,
		StatusPending, now.Truncate(24*time.Hour), until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := s.scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

package invoice_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/currency"
	"github.com/noah-isme/backend-billing/internal/invoice"
)

func TestInvoicePredicates(t *testing.T) {
	inv := invoice.Invoice{Status: invoice.StatusPending, Total: 10}
	require.True(t, inv.NeedsPayment())
	require.False(t, inv.IsPaid())
	require.False(t, inv.IsFree())

	inv.Status = invoice.StatusFailed
	require.True(t, inv.NeedsPayment())
	inv.Status = invoice.StatusOnHold
	require.True(t, inv.NeedsPayment())

	inv.Status = invoice.StatusPaid
	require.False(t, inv.NeedsPayment())
	require.True(t, inv.IsPaid())
	inv.Status = invoice.StatusRenewal
	require.True(t, inv.IsPaid())

	inv.Total = 0
	require.True(t, inv.IsFree())
	inv.Total = -5
	require.True(t, inv.IsFree())

	require.Equal(t, "Jo Smith", (&invoice.Invoice{FirstName: "Jo", LastName: "Smith"}).FullName())
	require.Equal(t, "Jo", (&invoice.Invoice{FirstName: "Jo"}).FullName())
}

func TestMemStoreMarkPaidIdempotent(t *testing.T) {
	store := invoice.NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &invoice.Invoice{
		ID: 1, Key: "k1", Status: invoice.StatusPending, Total: 50,
	}))

	paid, err := store.MarkPaid(ctx, 1, "TX1")
	require.NoError(t, err)
	require.True(t, paid.IsPaid())
	require.Equal(t, "TX1", paid.TransactionID)
	require.False(t, paid.CompletedAt.IsZero())
	first := paid.CompletedAt

	// settling again keeps the original settlement untouched
	again, err := store.MarkPaid(ctx, 1, "TX2")
	require.NoError(t, err)
	require.Equal(t, "TX1", again.TransactionID)
	require.Equal(t, first, again.CompletedAt)

	_, err = store.MarkPaid(ctx, 99, "TX")
	require.ErrorIs(t, err, invoice.ErrNotFound)
}

func TestMemStoreDueForReminder(t *testing.T) {
	store := invoice.NewMemStore()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	add := func(id int64, status invoice.Status, due time.Time) {
		t.Helper()
		require.NoError(t, store.Save(ctx, &invoice.Invoice{
			ID: id, Key: "k", Status: status, Total: 10, DueDate: due,
		}))
	}
	add(1, invoice.StatusPending, now.Add(48*time.Hour))
	add(2, invoice.StatusPending, now.Add(14*24*time.Hour))
	add(3, invoice.StatusPaid, now.Add(48*time.Hour))
	require.NoError(t, store.Save(ctx, &invoice.Invoice{ID: 4, Key: "k4", Status: invoice.StatusPending, Total: 10}))

	due, err := store.DueForReminder(ctx, 3, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, int64(1), due[0].ID)
}

func TestHandlerGetByKey(t *testing.T) {
	store := invoice.NewMemStore()
	due := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(context.Background(), &invoice.Invoice{
		ID: 1, Number: "WPINV-1", Key: "k1",
		Currency: "EUR", Subtotal: 90, Tax: 10, Total: 100,
		Status: invoice.StatusPending, DueDate: due,
		TransactionID: "TX1",
	}))

	h := &invoice.Handler{
		Store:    store,
		Currency: currency.DefaultOptions(),
		TransactionLink: func(inv *invoice.Invoice) string {
			return "https://remote.example/tx/" + inv.TransactionID
		},
	}
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) { h.Routes(r) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/k1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `"number":"WPINV-1"`)
	require.Contains(t, body, "€100.00")
	require.Contains(t, body, "https://remote.example/tx/TX1")
	require.Contains(t, body, `"needsPayment":true`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

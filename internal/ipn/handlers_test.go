package ipn_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/gateway"
	"github.com/noah-isme/backend-billing/internal/invoice"
	"github.com/noah-isme/backend-billing/internal/ipn"
)

type verifyingGateway struct {
	desc   gateway.Descriptor
	result gateway.IPNResult
	err    error
}

func (v *verifyingGateway) Descriptor() gateway.Descriptor { return v.desc }

func (v *verifyingGateway) ProcessPayment(context.Context, *invoice.Invoice, gateway.Submission) (gateway.Outcome, error) {
	return gateway.Redirect("https://remote.example/pay"), nil
}

func (v *verifyingGateway) VerifyIPN(context.Context, []byte, map[string]string) (gateway.IPNResult, error) {
	return v.result, v.err
}

type plainGateway struct{ desc gateway.Descriptor }

func (p *plainGateway) Descriptor() gateway.Descriptor { return p.desc }

func (p *plainGateway) ProcessPayment(context.Context, *invoice.Invoice, gateway.Submission) (gateway.Outcome, error) {
	return gateway.Paid("x"), nil
}

func newHandler(t *testing.T, gw gateway.Gateway) (*ipn.Handler, *invoice.MemStore, *events.MemStore, http.Handler) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := gateway.NewRegistry("")
	reg.Register(gw)
	invoices := invoice.NewMemStore()
	eventStore := &events.MemStore{}
	h := &ipn.Handler{
		Registry:  reg,
		Invoices:  invoices,
		Events:    &events.Bus{Store: eventStore},
		Replay:    client,
		ReplayTTL: time.Hour,
	}
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) { h.Routes(r) })
	return h, invoices, eventStore, r
}

func pendingInvoice() *invoice.Invoice {
	return &invoice.Invoice{
		ID: 42, Number: "WPINV-42", Key: "k42", Email: "jo@example.com",
		Currency: "USD", Total: 100, Status: invoice.StatusPending,
		Gateway: "paypal",
	}
}

func TestIPNSettlesInvoice(t *testing.T) {
	gw := &verifyingGateway{
		desc:   gateway.Descriptor{ID: "paypal", Enabled: true},
		result: gateway.IPNResult{InvoiceID: 42, TransactionID: "TX9", Status: invoice.StatusPaid},
	}
	_, invoices, eventStore, router := newHandler(t, gw)
	require.NoError(t, invoices.Save(context.Background(), pendingInvoice()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ipn/paypal", strings.NewReader("txn_id=TX9")))
	require.Equal(t, http.StatusOK, rec.Code)

	inv, err := invoices.Get(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, inv.IsPaid())
	require.Equal(t, "TX9", inv.TransactionID)
	require.Len(t, eventStore.ByTopic(events.TopicInvoicePaid), 1)
}

func TestIPNDuplicateIsNoOp(t *testing.T) {
	gw := &verifyingGateway{
		desc:   gateway.Descriptor{ID: "paypal", Enabled: true},
		result: gateway.IPNResult{InvoiceID: 42, TransactionID: "TX9", Status: invoice.StatusPaid},
	}
	_, invoices, eventStore, router := newHandler(t, gw)
	require.NoError(t, invoices.Save(context.Background(), pendingInvoice()))

	body := "txn_id=TX9&payment_status=Completed"
	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/v1/ipn/paypal", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, first.Code)

	// the identical notification again acknowledges without re-settling
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/v1/ipn/paypal", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, second.Code)
	require.Contains(t, second.Body.String(), "duplicate")
	require.Len(t, eventStore.ByTopic(events.TopicInvoicePaid), 1)

	inv, err := invoices.Get(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, inv.IsPaid())
}

func TestIPNLegacyQueryForm(t *testing.T) {
	gw := &verifyingGateway{
		desc:   gateway.Descriptor{ID: "paypal", Enabled: true},
		result: gateway.IPNResult{InvoiceID: 42, TransactionID: "TX9", Status: invoice.StatusPaid},
	}
	_, invoices, _, router := newHandler(t, gw)
	require.NoError(t, invoices.Save(context.Background(), pendingInvoice()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ipn?listener=IPN&gateway=paypal", strings.NewReader("txn_id=TX9")))
	require.Equal(t, http.StatusOK, rec.Code)

	inv, err := invoices.Get(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, inv.IsPaid())

	// without the listener marker the endpoint does not exist
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ipn?gateway=paypal", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIPNUnverifiableIsAcknowledged(t *testing.T) {
	gw := &verifyingGateway{
		desc: gateway.Descriptor{ID: "paypal", Enabled: true},
		err:  context.DeadlineExceeded,
	}
	_, invoices, eventStore, router := newHandler(t, gw)
	require.NoError(t, invoices.Save(context.Background(), pendingInvoice()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ipn/paypal", strings.NewReader("garbage")))
	// acknowledged so the processor stops retrying, but nothing settles
	require.Equal(t, http.StatusOK, rec.Code)

	inv, err := invoices.Get(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, inv.IsPaid())
	require.Empty(t, eventStore.Events)
}

func TestIPNUnknownGateway(t *testing.T) {
	gw := &verifyingGateway{desc: gateway.Descriptor{ID: "paypal", Enabled: true}}
	_, _, _, router := newHandler(t, gw)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ipn/stripe", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIPNGatewayWithoutVerifier(t *testing.T) {
	gw := &plainGateway{desc: gateway.Descriptor{ID: "manual", Enabled: true}}
	_, _, _, router := newHandler(t, gw)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ipn/manual", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIPNFailureDoesNotClawBackSettledInvoice(t *testing.T) {
	gw := &verifyingGateway{
		desc:   gateway.Descriptor{ID: "paypal", Enabled: true},
		result: gateway.IPNResult{InvoiceID: 42, TransactionID: "TX9", Status: invoice.StatusFailed},
	}
	_, invoices, _, router := newHandler(t, gw)

	inv := pendingInvoice()
	inv.Status = invoice.StatusPaid
	require.NoError(t, invoices.Save(context.Background(), inv))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ipn/paypal", strings.NewReader("payment_status=Denied")))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := invoices.Get(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, stored.IsPaid())
}

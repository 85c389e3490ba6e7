package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/invoice"
)

type stubGateway struct {
	desc Descriptor
}

func (s stubGateway) Descriptor() Descriptor { return s.desc }

func (s stubGateway) ProcessPayment(context.Context, *invoice.Invoice, Submission) (Outcome, error) {
	return Paid("stub"), nil
}

func stub(id string, ordering int, enabled bool) stubGateway {
	return stubGateway{desc: Descriptor{ID: id, Ordering: ordering, Enabled: enabled}}
}

func TestRegistryRegisterOverwrites(t *testing.T) {
	reg := NewRegistry("")
	reg.Register(stubGateway{desc: Descriptor{ID: "paypal", AdminLabel: "old", Enabled: false}})
	reg.Register(stubGateway{desc: Descriptor{ID: "paypal", AdminLabel: "new", Enabled: true}})

	gw, err := reg.Get("paypal")
	require.NoError(t, err)
	require.Equal(t, "new", gw.Descriptor().AdminLabel)
	require.True(t, reg.IsActive("paypal"))
	require.Len(t, reg.List(false, false), 1)
}

func TestRegistryIgnoresEmptyID(t *testing.T) {
	reg := NewRegistry("")
	reg.Register(stub("", 1, true))
	reg.Register(nil)
	require.Empty(t, reg.List(false, false))
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry("manual")
	reg.Register(stub("paypal", 2, true))
	reg.Register(stub("authorizenet", 1, true))
	reg.Register(stub("bank_transfer", 11, true))
	reg.Register(stub("manual", 50, true))

	ids := listIDs(reg.List(true, true))
	// configured default leads regardless of ordering, then ordering asc
	require.Equal(t, []string{"manual", "authorizenet", "paypal", "bank_transfer"}, ids)
}

func TestRegistryListSortedLexicalTieBreak(t *testing.T) {
	reg := NewRegistry("")
	reg.Register(stub("b", 5, true))
	reg.Register(stub("a", 5, true))
	reg.Register(stub("c", 5, true))

	require.Equal(t, []string{"a", "b", "c"}, listIDs(reg.List(true, true)))
}

func TestRegistryListEnabledOnly(t *testing.T) {
	reg := NewRegistry("")
	reg.Register(stub("paypal", 1, true))
	reg.Register(stub("manual", 2, false))

	require.Equal(t, []string{"paypal"}, listIDs(reg.List(true, true)))
	require.Len(t, reg.List(false, false), 2)
}

func TestRegistryDisabledDefaultNotPromoted(t *testing.T) {
	reg := NewRegistry("manual")
	reg.Register(stub("manual", 1, false))
	reg.Register(stub("paypal", 2, true))
	reg.Register(stub("bank_transfer", 3, true))

	require.Equal(t, []string{"paypal", "bank_transfer"}, listIDs(reg.List(true, true)))
}

func TestRegistryDefault(t *testing.T) {
	t.Run("configured default wins", func(t *testing.T) {
		reg := NewRegistry("manual")
		reg.Register(stub("paypal", 1, true))
		reg.Register(stub("manual", 9, true))
		gw, err := reg.Default()
		require.NoError(t, err)
		require.Equal(t, "manual", gw.Descriptor().ID)
	})

	t.Run("disabled default falls back to first enabled", func(t *testing.T) {
		reg := NewRegistry("manual")
		reg.Register(stub("manual", 1, false))
		reg.Register(stub("paypal", 5, true))
		reg.Register(stub("authorizenet", 2, true))
		gw, err := reg.Default()
		require.NoError(t, err)
		require.Equal(t, "authorizenet", gw.Descriptor().ID)
	})

	t.Run("nothing enabled", func(t *testing.T) {
		reg := NewRegistry("manual")
		reg.Register(stub("manual", 1, false))
		_, err := reg.Default()
		require.ErrorIs(t, err, ErrNoActiveGateway)
	})
}

func listIDs(gws []Gateway) []string {
	ids := make([]string, 0, len(gws))
	for _, gw := range gws {
		ids = append(ids, gw.Descriptor().ID)
	}
	return ids
}

package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/backend-billing/internal/invoice"
)

// AuthorizeNet charges cards synchronously at checkout. The real integration
// would call the Authorize.Net API; here the charge synthesises a
// deterministic transaction id from the merchant credentials and invoice so
// the rest of the flow is exercised end to end.
type AuthorizeNet struct {
	Base

	LoginID        string
	TransactionKey string

	Tokens *TokenStore
}

var authorizeNetCurrencies = []string{"AUD", "CAD", "CHF", "DKK", "EUR", "GBP", "NOK", "NZD", "PLN", "SEK", "USD", "ZAR"}

// NewAuthorizeNet builds the descriptor and gateway.
func NewAuthorizeNet(base Base, loginID, transactionKey string, tokens *TokenStore) *AuthorizeNet {
	base.Desc.ID = "authorizenet"
	if base.Desc.AdminLabel == "" {
		base.Desc.AdminLabel = "Authorize.Net"
	}
	if base.Desc.CheckoutLabel == "" {
		base.Desc.CheckoutLabel = "Credit Card"
	}
	if base.Desc.TransactionURL == "" {
		base.Desc.TransactionURL = "https://{sandbox}authorize.net/ui/themes/anet/transaction/transactiondetail.aspx?transid=%s"
	}
	base.Desc.Currencies = authorizeNetCurrencies
	base.Desc.Supports = []Feature{
		FeatureSubscriptions, FeatureSandbox, FeatureTokens, FeatureRefunds,
	}
	return &AuthorizeNet{Base: base, LoginID: loginID, TransactionKey: transactionKey, Tokens: tokens}
}

// Submission keys read by this gateway.
const (
	keyCardNumber = "authorizenet_card_number"
	keyCardExpiry = "authorizenet_card_expiry"
	keyCardCVC    = "authorizenet_card_cvc"
	keySavedToken = "authorizenet_token"
)

// ProcessPayment charges the card in the submission, or a saved token when
// one is referenced, and settles the invoice in the same request.
func (a *AuthorizeNet) ProcessPayment(ctx context.Context, inv *invoice.Invoice, sub Submission) (Outcome, error) {
	if inv == nil {
		return Outcome{}, errors.New("authorizenet: nil invoice")
	}
	if strings.TrimSpace(a.LoginID) == "" || strings.TrimSpace(a.TransactionKey) == "" {
		return Outcome{}, errors.New("authorizenet: merchant credentials not configured")
	}
	if a.Desc.MaxAmount > 0 && inv.Total > a.Desc.MaxAmount {
		return Failed(fmt.Sprintf("amount %.2f exceeds gateway maximum %.2f", inv.Total, a.Desc.MaxAmount)), nil
	}

	tokenID := strings.TrimSpace(sub[keySavedToken])
	if tokenID == "" {
		number := digitsOnly(sub[keyCardNumber])
		if !luhnValid(number) {
			return Failed("card number failed validation"), nil
		}
		if strings.TrimSpace(sub[keyCardExpiry]) == "" || strings.TrimSpace(sub[keyCardCVC]) == "" {
			return Failed("card expiry and security code are required"), nil
		}
		if a.Tokens != nil && sub["authorizenet_save_card"] == "1" && inv.UserID != 0 {
			tok := Token{
				ID:        a.transactionID(inv, number),
				GatewayID: a.Desc.ID,
				Label:     cardLabel(number),
			}
			if err := a.Tokens.Save(ctx, inv.UserID, tok); err != nil {
				return Outcome{}, err
			}
		}
		return Paid(a.transactionID(inv, number)), nil
	}

	if a.Tokens == nil || inv.UserID == 0 {
		return Failed("saved payment methods are not available"), nil
	}
	tokens, err := a.Tokens.List(ctx, inv.UserID, a.Desc.ID)
	if err != nil {
		return Outcome{}, err
	}
	for _, t := range tokens {
		if t.ID == tokenID {
			return Paid(a.transactionID(inv, t.ID)), nil
		}
	}
	return Failed("unknown saved payment method"), nil
}

// ProcessRefund reverses a settled charge by reference. The synthesised
// implementation only checks the invoice actually settled through this
// gateway.
func (a *AuthorizeNet) ProcessRefund(_ context.Context, inv *invoice.Invoice, amount float64) error {
	if inv == nil || inv.TransactionID == "" {
		return errors.New("authorizenet: no transaction to refund")
	}
	if inv.Gateway != a.Desc.ID {
		return errors.New("authorizenet: invoice settled through a different gateway")
	}
	if amount <= 0 || amount > inv.Total {
		return fmt.Errorf("authorizenet: refund amount %.2f out of range", amount)
	}
	return nil
}

// transactionID derives a stable reference from the merchant key, invoice and
// instrument, matching what repeated test runs expect.
func (a *AuthorizeNet) transactionID(inv *invoice.Invoice, instrument string) string {
	mac := hmac.New(sha256.New, []byte(a.TransactionKey))
	fmt.Fprintf(mac, "%s:%d:%s", a.LoginID, inv.ID, instrument)
	return "anet-" + hex.EncodeToString(mac.Sum(nil))[:20]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cardLabel(number string) string {
	if len(number) < 4 {
		return "card"
	}
	return "card ending " + number[len(number)-4:]
}

func luhnValid(number string) bool {
	if len(number) < 12 {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d, err := strconv.Atoi(string(number[i]))
		if err != nil {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

package gateway

import "slices"

// Feature names a capability a gateway can advertise. The vocabulary is fixed;
// callers negotiate support through the Resolver instead of type switching on
// concrete gateways.
type Feature string

const (
	FeatureSubscriptions Feature = "subscriptions"
	FeatureSandbox       Feature = "sandbox"
	FeatureTokens        Feature = "tokens"
	FeatureRefunds       Feature = "refunds"
	FeatureBuyNow        Feature = "buy_now"
	FeatureAddons        Feature = "addons"
)

// Descriptor is the static registration record for a payment gateway plus the
// runtime toggles loaded from configuration. Descriptors are registered once
// at startup and treated as read-only while serving.
type Descriptor struct {
	// ID uniquely identifies the gateway. Registering a second descriptor
	// with the same ID overwrites the first.
	ID string

	AdminLabel    string
	CheckoutLabel string
	Description   string

	// Ordering positions the gateway in checkout lists; lower sorts first.
	Ordering int

	Enabled bool
	Sandbox bool

	// Currencies restricts the gateway to the listed ISO codes when non-empty.
	Currencies []string
	// ExcludeCurrencies always rejects the listed ISO codes, even when a code
	// also appears in Currencies.
	ExcludeCurrencies []string

	// MaxAmount caps a single transaction; zero means unbounded.
	MaxAmount float64

	// TransactionURL and SubscriptionURL are templates for linking out to the
	// remote gateway. Both take the remote identifier via %s and substitute a
	// {sandbox} token at read time.
	TransactionURL  string
	SubscriptionURL string

	CheckoutButtonText string

	Supports []Feature
}

// HasFeature reports whether the descriptor declares the feature.
func (d Descriptor) HasFeature(f Feature) bool {
	return slices.Contains(d.Supports, f)
}

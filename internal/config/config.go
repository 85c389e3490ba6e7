package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	SiteURL   string
	SiteTitle string

	DefaultGateway string
	RequireTerms   bool

	CurrencyThousandsSep string
	CurrencyDecimalSep   string
	CurrencyDecimals     int
	CurrencyPosition     string

	PayPalBusinessEmail        string
	AuthorizeNetLoginID        string
	AuthorizeNetTransactionKey string
	AuthorizeNetMaxAmount      float64

	BankAccountName   string
	BankAccountNumber string
	BankName          string
	BankIBAN          string
	BankBIC           string
	BankSortCode      string
	BankInstructions  string

	EmailEnabled bool
	EmailFrom    string

	IPNReplayTTL    time.Duration
	CheckoutLockTTL time.Duration
	PaymentTokenTTL time.Duration

	ReminderDaysBefore int

	// Gateways carries the per-gateway toggles keyed by gateway id, read
	// from GATEWAY_<ID>_ACTIVE, _SANDBOX, _TITLE and _ORDERING variables.
	Gateways map[string]GatewaySetting
}

// GatewaySetting is the operator-controlled state of one gateway. Ordering is
// -1 when the environment leaves the gateway's own default in place.
type GatewaySetting struct {
	Active   bool
	Sandbox  bool
	Title    string
	Ordering int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		SiteURL:   strings.TrimRight(strings.TrimSpace(k.String("SITE_URL")), "/"),
		SiteTitle: valueOrDefault(k.String("SITE_TITLE"), "Billing"),

		DefaultGateway: valueOrDefault(k.String("DEFAULT_GATEWAY"), "paypal"),
		RequireTerms:   parseBool(k.String("REQUIRE_TERMS")),

		CurrencyThousandsSep: valueOrDefault(k.String("CURRENCY_THOUSANDS_SEP"), ","),
		CurrencyDecimalSep:   valueOrDefault(k.String("CURRENCY_DECIMAL_SEP"), "."),
		CurrencyDecimals:     parseInt(k.String("CURRENCY_DECIMALS"), 2),
		CurrencyPosition:     valueOrDefault(k.String("CURRENCY_POSITION"), "left"),

		PayPalBusinessEmail:        k.String("PAYPAL_BUSINESS_EMAIL"),
		AuthorizeNetLoginID:        k.String("AUTHORIZENET_LOGIN_ID"),
		AuthorizeNetTransactionKey: k.String("AUTHORIZENET_TRANSACTION_KEY"),
		AuthorizeNetMaxAmount:      parseFloat(k.String("AUTHORIZENET_MAX_AMOUNT"), 0),

		BankAccountName:   k.String("BANK_ACCOUNT_NAME"),
		BankAccountNumber: k.String("BANK_ACCOUNT_NUMBER"),
		BankName:          k.String("BANK_NAME"),
		BankIBAN:          k.String("BANK_IBAN"),
		BankBIC:           k.String("BANK_BIC"),
		BankSortCode:      k.String("BANK_SORT_CODE"),
		BankInstructions:  k.String("BANK_INSTRUCTIONS"),

		EmailEnabled: parseBool(k.String("EMAIL_ENABLED")),
		EmailFrom:    k.String("EMAIL_FROM"),

		IPNReplayTTL:    parseDuration(k.String("IPN_REPLAY_TTL"), "72h"),
		CheckoutLockTTL: parseDuration(k.String("CHECKOUT_LOCK_TTL"), "30s"),
		PaymentTokenTTL: parseDuration(k.String("PAYMENT_TOKEN_TTL"), "8760h"),

		ReminderDaysBefore: parseInt(k.String("REMINDER_DAYS_BEFORE"), 3),

		Gateways: parseGatewaySettings(os.Environ()),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.SiteURL == "" {
		return nil, errors.New("SITE_URL is required")
	}

	return cfg, nil
}

// gatewaySuffixes are the recognised per-gateway variable endings. Longest
// match wins so ids containing underscores parse correctly.
var gatewaySuffixes = []string{"_ACTIVE", "_SANDBOX", "_TITLE", "_ORDERING"}

// parseGatewaySettings extracts GATEWAY_<ID>_<SUFFIX> variables. The id may
// itself contain underscores (GATEWAY_BANK_TRANSFER_ACTIVE), so the suffix is
// stripped from the right.
func parseGatewaySettings(environ []string) map[string]GatewaySetting {
	settings := map[string]GatewaySetting{}
	get := func(id string) GatewaySetting {
		if s, ok := settings[id]; ok {
			return s
		}
		return GatewaySetting{Ordering: -1}
	}
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, "GATEWAY_") {
			continue
		}
		rest := strings.TrimPrefix(key, "GATEWAY_")
		for _, suffix := range gatewaySuffixes {
			if !strings.HasSuffix(rest, suffix) || len(rest) == len(suffix) {
				continue
			}
			id := strings.ToLower(strings.TrimSuffix(rest, suffix))
			s := get(id)
			switch suffix {
			case "_ACTIVE":
				s.Active = parseBool(value)
			case "_SANDBOX":
				s.Sandbox = parseBool(value)
			case "_TITLE":
				s.Title = strings.TrimSpace(value)
			case "_ORDERING":
				s.Ordering = parseInt(value, -1)
			}
			settings[id] = s
			break
		}
	}
	return settings
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

// CurrencyOptionsPosition normalises the configured symbol position to one of
// left, left_space, right, right_space.
func (c *Config) CurrencyOptionsPosition() string {
	switch strings.ToLower(strings.TrimSpace(c.CurrencyPosition)) {
	case "left", "left_space", "right", "right_space":
		return strings.ToLower(strings.TrimSpace(c.CurrencyPosition))
	default:
		return "left"
	}
}

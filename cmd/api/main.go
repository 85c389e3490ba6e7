package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/checkout"
	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/config"
	"github.com/noah-isme/backend-billing/internal/currency"
	"github.com/noah-isme/backend-billing/internal/email"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/gateway"
	"github.com/noah-isme/backend-billing/internal/health"
	"github.com/noah-isme/backend-billing/internal/invoice"
	"github.com/noah-isme/backend-billing/internal/ipn"
	"github.com/noah-isme/backend-billing/internal/lock"
	"github.com/noah-isme/backend-billing/internal/obs"
	"github.com/noah-isme/backend-billing/internal/ratelimit"
	"github.com/noah-isme/backend-billing/internal/resilience"
	"github.com/noah-isme/backend-billing/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "billing")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "billing-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "billing-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	invoices := &invoice.PGStore{Pool: pool}

	currencyOpts := currency.Options{
		ThousandsSep: cfg.CurrencyThousandsSep,
		DecimalSep:   cfg.CurrencyDecimalSep,
		Decimals:     cfg.CurrencyDecimals,
		Position:     currency.Position(cfg.CurrencyOptionsPosition()),
	}

	composer := &email.Composer{
		SiteTitle: cfg.SiteTitle,
		SiteURL:   cfg.SiteURL,
		Currency:  currencyOpts,
	}
	var sender common.EmailSender = common.NopEmailSender{}
	if cfg.EmailEnabled {
		sender = logEmailSender{logger: logger, from: cfg.EmailFrom}
	}
	emailNotifier := &email.Notifier{
		Mail:     sender,
		Invoices: invoices,
		Composer: composer,
		Enabled:  cfg.EmailEnabled,
	}
	bus := &events.Bus{
		Store:     &events.PGStore{Pool: pool},
		Notifiers: []events.Notifier{emailNotifier},
	}

	registry := gateway.NewRegistry(cfg.DefaultGateway)
	resolver := &gateway.Resolver{Reg: registry}
	tokens := &gateway.TokenStore{R: redisClient, TTL: cfg.PaymentTokenTTL}

	newBase := func(id string) gateway.Base {
		desc := gateway.Descriptor{Ordering: -1}
		if s, ok := cfg.Gateways[id]; ok {
			desc.Enabled = s.Active
			desc.Sandbox = s.Sandbox
			desc.CheckoutLabel = s.Title
			desc.Ordering = s.Ordering
		}
		if desc.Ordering < 0 {
			desc.Ordering = 0
		}
		return gateway.Base{Desc: desc, SiteURL: cfg.SiteURL, Resolver: resolver}
	}

	ipnClient := &resilience.HTTPClient{
		Client:      &http.Client{Timeout: 10 * time.Second},
		Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("paypal-ipn").WithLogger(logger),
		MaxAttempts: 3,
		BaseBackoff: 200 * time.Millisecond,
		Jitter:      0.2,
	}
	registry.Register(gateway.NewPayPal(
		newBase("paypal"),
		cfg.PayPalBusinessEmail,
		cfg.SiteURL+"/api/v1/ipn/paypal",
		ipnClient,
	))
	authorizeNetBase := newBase("authorizenet")
	authorizeNetBase.Desc.MaxAmount = cfg.AuthorizeNetMaxAmount
	registry.Register(gateway.NewAuthorizeNet(
		authorizeNetBase,
		cfg.AuthorizeNetLoginID,
		cfg.AuthorizeNetTransactionKey,
		tokens,
	))
	registry.Register(gateway.NewBankTransfer(newBase("bank_transfer"), gateway.BankDetails{
		AccountName:   cfg.BankAccountName,
		AccountNumber: cfg.BankAccountNumber,
		BankName:      cfg.BankName,
		IBAN:          cfg.BankIBAN,
		BIC:           cfg.BankBIC,
		SortCode:      cfg.BankSortCode,
	}, cfg.BankInstructions))
	registry.Register(gateway.NewManual(newBase("manual")))

	dispatcher := &checkout.Dispatcher{
		Invoices:     invoices,
		Registry:     registry,
		Resolver:     resolver,
		Bus:          bus,
		Locker:       &lock.Locker{R: redisClient},
		Validate:     validator.New(),
		SiteURL:      cfg.SiteURL,
		RequireTerms: cfg.RequireTerms,
		LockTTL:      cfg.CheckoutLockTTL,
	}
	checkoutHandler := &checkout.Handler{Dispatcher: dispatcher}

	ipnHandler := &ipn.Handler{
		Registry:  registry,
		Invoices:  invoices,
		Events:    bus,
		Replay:    redisClient,
		ReplayTTL: cfg.IPNReplayTTL,
	}

	invoiceHandler := &invoice.Handler{
		Store:    invoices,
		Currency: currencyOpts,
		TransactionLink: func(inv *invoice.Invoice) string {
			gw, err := registry.Get(inv.Gateway)
			if err != nil {
				return ""
			}
			linker, ok := gw.(interface {
				TransactionURL(*invoice.Invoice) string
			})
			if !ok {
				return ""
			}
			return linker.TransactionURL(inv)
		},
	}

	idem := common.Idem{R: redisClient, TTL: envDurationMillis("IDEMPOTENCY_TTL_MS", 24*60*60*1000)}
	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:checkout"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return common.ClientIP(r) },
			Window: time.Minute,
			Max:    envInt("CHECKOUT_RATE_LIMIT_PER_MINUTE", 30),
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: envBool("SECURE_HEADERS", true), EnableHSTS: envBool("SECURE_HSTS", false)}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("SECURE_MAX_BODY_BYTES", 1<<20))}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", true)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/gateways", checkoutHandler.Gateways)
		invoiceHandler.Routes(v)
		v.With(limiter.Middleware, idem.Middleware).Post("/checkout/{invoiceID}", checkoutHandler.Checkout)
		v.Group(func(n chi.Router) {
			n.Use(limiter.Middleware)
			n.Post("/ipn/{gateway}", ipnHandler.Handle)
			n.Post("/ipn", ipnHandler.HandleLegacy)
			n.Get("/ipn", ipnHandler.HandleLegacy)
		})
	})

	if days := cfg.ReminderDaysBefore; days > 0 {
		go remindOverdue(logger, invoices, bus, days)
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

// logEmailSender writes outgoing mail to the application log. Deployments
// front it with a real delivery provider; the interface stays the same.
type logEmailSender struct {
	logger zerolog.Logger
	from   string
}

func (s logEmailSender) Send(to, subject, html string) error {
	s.logger.Info().
		Str("from", s.from).
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(html)).
		Msg("email dispatched")
	return nil
}

// remindOverdue periodically emits reminder events for invoices approaching
// their due date. The email notifier turns them into customer emails.
func remindOverdue(logger zerolog.Logger, invoices invoice.Store, bus *events.Bus, daysBefore int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		due, err := invoices.DueForReminder(ctx, daysBefore, time.Now())
		if err != nil {
			logger.Error().Err(err).Msg("load reminder invoices")
		}
		for i := range due {
			inv := &due[i]
			if _, err := bus.Emit(ctx, events.TopicInvoiceOverdue, inv.ID, map[string]any{
				"invoiceNumber": inv.Number,
			}); err != nil {
				logger.Warn().Err(err).Int64("invoice_id", inv.ID).Msg("emit reminder")
			}
		}
		cancel()
		<-ticker.C
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="pprof"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

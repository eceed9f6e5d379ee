package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/oakline/storefront/internal/app"
	"github.com/oakline/storefront/internal/audit"
	"github.com/oakline/storefront/internal/auth"
	"github.com/oakline/storefront/internal/cart"
	"github.com/oakline/storefront/internal/catalog"
	"github.com/oakline/storefront/internal/checkout"
	"github.com/oakline/storefront/internal/common"
	"github.com/oakline/storefront/internal/config"
	"github.com/oakline/storefront/internal/coupon"
	"github.com/oakline/storefront/internal/events"
	"github.com/oakline/storefront/internal/health"
	"github.com/oakline/storefront/internal/notify"
	"github.com/oakline/storefront/internal/obs"
	"github.com/oakline/storefront/internal/order"
	"github.com/oakline/storefront/internal/payment"
	"github.com/oakline/storefront/internal/pricing"
	"github.com/oakline/storefront/internal/queue"
	"github.com/oakline/storefront/internal/ratelimit"
	"github.com/oakline/storefront/internal/store"
)

const metricsNamespace = "storefront"

func main() {
	cfg := config.MustLoad()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "api").Logger()

	obs.MustRegisterDomainMetrics(nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := envBool("OBS_TRACING_ENABLED", false)
	if tracingEnabled {
		shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "storefront-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", "http://localhost:4318"),
			Exporter:      envOrDefault("OBS_TRACE_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACE_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("init tracer")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	st := store.New(pool)

	taskQueue := queue.Enqueuer{R: redisClient, Prefix: cfg.QueueRedisPrefix, DedupTTL: cfg.IdempotencyTTL}

	bus := &events.Bus{
		Store: st,
		Notifiers: []events.Notifier{
			notify.EmailNotifier{
				Mail:    notify.QueueSender{Q: taskQueue},
				Enabled: cfg.NotifyEmailOn,
				From:    cfg.NotifyEmailFrom,
			},
		},
	}

	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Queries:      st,
		Cache:        catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		DefaultLimit: cfg.CatalogDefaultLimit,
		MaxLimit:     cfg.CatalogMaxLimit,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init catalog service")
	}
	catalogHandler := catalog.NewHandler(catalogSvc)

	authSvc, err := auth.NewService(auth.Config{
		Queries:        st,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init auth service")
	}
	authHandler := auth.Handler{Service: authSvc}
	authMW := auth.Middleware{Service: authSvc}

	couponSvc := &coupon.Service{Q: st}
	couponHandler := &coupon.Handler{Svc: couponSvc, Admin: st, Validate: validator.New()}

	cartSvc := &cart.Service{
		Q:        st,
		Coupons:  couponSvc,
		Shipping: pricing.Money(cfg.ShippingFlatRate),
		TTL:      cfg.CartTTL,
	}
	cartHandler := &cart.Handler{Svc: cartSvc}

	auditSvc := audit.Service{Store: st, Enabled: true}

	checkoutSvc := &checkout.Service{
		Q:        st,
		Pool:     pool,
		Coupons:  couponSvc,
		Events:   bus,
		Currency: cfg.CurrencyCode,
		Shipping: pricing.Money(cfg.ShippingFlatRate),
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}

	orderSvc := &order.Service{Q: st, Events: bus, Audit: auditSvc}
	orderHandler := &order.Handler{Q: st, Svc: orderSvc}
	orderAdminHandler := &order.AdminHandler{Svc: orderSvc}

	provider, err := paymentProvider(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("init payment provider")
	}
	paymentSvc := &payment.Service{
		Q:         st,
		Provider:  provider,
		IntentTTL: cfg.PaymentIntentTTL,
		Currency:  cfg.CurrencyCode,
	}
	paymentHandler := &payment.Handler{Svc: paymentSvc}
	paymentWebhook := &payment.Webhook{
		Q:         st,
		Providers: map[string]payment.Provider{cfg.PaymentProvider: provider},
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
		Events:    bus,
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	authLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: metricsNamespace + ":rl:"},
		Config:  ratelimit.Config{Key: ratelimit.ByClientIP, Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable, failing open")
		},
	}
	limitAuth := passthrough
	if !cfg.RateLimitDisabled {
		limitAuth = authLimiter.Middleware
	}

	webhookLimiter, err := app.NewWebhookLimiter(redisClient, limiter.Rate{
		Period: time.Minute,
		Limit:  int64(envInt("WEBHOOK_RATE_LIMIT_PER_MINUTE", 120)),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init webhook limiter")
	}
	webhookThrottle := limiterstdlib.NewMiddleware(webhookLimiter)

	healthHandler := &health.Handler{Checker: readinessChecker{pool: pool, redis: redisClient}}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}

	metricsEnabled := envBool("OBS_METRICS_ENABLED", true)
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_HTTP_BUCKETS_MS", ""))
		httpMetrics := obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("OBS_PPROF_USER", "")
		pass := envOrDefault("OBS_PPROF_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", catalogHandler.Products)
		r.Get("/products/{slug}", catalogHandler.ProductDetail)

		r.Route("/auth", func(r chi.Router) {
			r.With(limitAuth).Post("/register", authHandler.Register)
			r.With(limitAuth).Post("/login", authHandler.Login)
			r.With(authMW.RequireAuth).Get("/me", authHandler.Me)
		})

		r.Route("/carts", func(r chi.Router) {
			r.Use(authMW.Authenticate)
			r.With(idem.Middleware).Post("/", cartHandler.Create)
			r.Get("/{id}", cartHandler.Get)
			r.With(idem.Middleware).Post("/{id}/items", cartHandler.AddItem)
			r.With(idem.Middleware).Patch("/{id}/items/{itemId}", cartHandler.UpdateItem)
			r.With(idem.Middleware).Delete("/{id}/items/{itemId}", cartHandler.RemoveItem)
			r.With(idem.Middleware).Post("/{id}/apply-coupon", cartHandler.ApplyCoupon)
			r.With(idem.Middleware).Delete("/{id}/coupon", cartHandler.RemoveCoupon)
		})

		r.With(limitAuth, authMW.RequireAuth).Post("/coupons/validate", couponHandler.ValidateCode)

		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireAuth)
			r.With(idem.Middleware).Post("/checkout", checkoutHandler.Create)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", orderHandler.List)
				r.Get("/{orderId}", orderHandler.Get)
				r.With(idem.Middleware).Post("/{orderId}/cancel", orderHandler.Cancel)
			})

			r.Route("/payments", func(r chi.Router) {
				r.With(idem.Middleware).Post("/intent", paymentHandler.Intent)
				r.Get("/{orderId}/status", paymentHandler.Status)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMW.RequireAuth)
			r.Use(authMW.RequireRole(auth.RoleAdmin))
			r.Post("/coupons", couponHandler.Create)
			r.Put("/coupons/{code}", couponHandler.Update)
			r.Get("/coupons", couponHandler.List)
			r.Patch("/orders/{id}/status", orderAdminHandler.PatchStatus)
		})

		r.With(webhookThrottle.Handler).Post("/webhooks/payment/{provider}", paymentWebhook.Handle)
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("api listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("api shutdown complete")
}

func paymentProvider(cfg *config.Config) (payment.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.PaymentProvider)) {
	case "", "sandbox":
		return payment.Sandbox{Secret: cfg.PaymentSecretKey}, nil
	default:
		return nil, errors.New("unsupported payment provider: " + cfg.PaymentProvider)
	}
}

func passthrough(next http.Handler) http.Handler { return next }

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "storefront-api"
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

type readinessChecker struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.pool.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func newPprofMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

func protectPprof(next http.Handler, user, pass string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user == "" || pass == "" {
			http.NotFound(w, r)
			return
		}
		gotUser, gotPass, ok := r.BasicAuth()
		if !ok || gotUser != user || gotPass != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="pprof"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
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
		parsed, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(val))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

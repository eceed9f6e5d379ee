package app

import (
	"context"
	"errors"

	"github.com/alexedwards/argon2id"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Dependencies gathers the shared handles the binaries hand to feature
// packages. Fields are populated by the cmd wiring as each concern comes up;
// a nil field simply means that binary does not use the concern.
type Dependencies struct {
	Context context.Context

	DB    *pgxpool.Pool
	Redis *redis.Client

	Validator    *validator.Validate
	Limiter      *limiter.Limiter
	LimiterStore limiter.Store

	TaskClient *asynq.Client
	TaskServer *asynq.Server

	MetricsRegistry *prometheus.Registry
	TracerProvider  trace.TracerProvider
	MeterProvider   metric.MeterProvider

	JWTBuilder   *jwt.Builder
	JWTAlgorithm jwa.SignatureAlgorithm
}

// HashPassword produces an argon2id hash with the library defaults, matching
// what the auth service writes, so seeded accounts stay loadable.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}

// NewWebhookLimiter builds a ulule limiter over Redis for blunt per-IP
// throttling of unauthenticated inbound endpoints.
func NewWebhookLimiter(rdb *redis.Client, rate limiter.Rate) (*limiter.Limiter, error) {
	if rdb == nil {
		return nil, errors.New("app: redis client required for limiter store")
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "storefront:ulimit"})
	if err != nil {
		return nil, err
	}
	return limiter.New(store, rate), nil
}

// NewLimiterStore exposes the raw limiter store for callers composing their
// own limiter instances.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{})
}

// RunMigrations applies pending migrations; an up-to-date database is not
// an error.
func RunMigrations(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// NewJWTBuilder hands out a fresh jwx token builder.
func NewJWTBuilder() *jwt.Builder {
	return jwt.NewBuilder()
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

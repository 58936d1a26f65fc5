// Package bootstrap wires the client runtime shared by the command line
// tools: session persistence, the transport and the typed API client.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/vetclinic-booking/internal/clinicapi"
	appconfig "github.com/wolfman30/vetclinic-booking/internal/config"
	"github.com/wolfman30/vetclinic-booking/internal/observability/metrics"
	"github.com/wolfman30/vetclinic-booking/internal/session"
	"github.com/wolfman30/vetclinic-booking/internal/transport"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore picks the persister named by SESSION_BACKEND. An
// unreachable Redis falls back to memory so the tools still run, only
// without a session that outlives the process.
func BuildSessionStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *session.Store {
	if logger == nil {
		logger = logging.Default()
	}
	var persister session.Persister
	switch cfg.SessionBackend {
	case "redis":
		if client := BuildRedisClient(ctx, cfg, logger, true); client != nil {
			persister = session.NewRedisPersister(client, cfg.SessionKey, cfg.SessionTTL, nil)
			logger.Info("session persistence enabled", "backend", "redis", "key", cfg.SessionKey)
		} else {
			logger.Warn("falling back to in-memory session", "backend", "redis")
		}
	case "", "memory":
	default:
		logger.Warn("unknown session backend, using memory", "backend", cfg.SessionBackend)
	}
	return session.NewStore(persister, logger)
}

// Runtime is everything a command needs to talk to the backend.
type Runtime struct {
	Store    *session.Store
	API      *clinicapi.Client
	Metrics  *metrics.ClientMetrics
	Registry *prometheus.Registry
}

// BuildRuntime assembles the session store, transport and API client.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	reg := prometheus.NewRegistry()
	m := metrics.NewClientMetrics(reg)
	store := BuildSessionStore(ctx, cfg, logger)

	httpClient, err := transport.New(transport.Config{
		BaseURL:             cfg.APIBaseURL,
		Timeout:             cfg.RequestTimeout,
		DeactivationPhrases: cfg.DeactivationPhrases,
		Metrics:             m,
	}, store, logger.With("component", "transport"))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: transport: %w", err)
	}
	return &Runtime{
		Store:    store,
		API:      clinicapi.New(httpClient, logger.With("component", "clinicapi")),
		Metrics:  m,
		Registry: reg,
	}, nil
}

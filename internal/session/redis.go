package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultRedisKey = "vetclinic:session"

// RedisPersister stores the session blob as one JSON value, so token and
// identity can never be written or removed independently.
type RedisPersister struct {
	redis  *redis.Client
	key    string
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisPersister creates a persister. A zero ttl keeps the blob until it
// is cleared.
func NewRedisPersister(client *redis.Client, key string, ttl time.Duration, tracer trace.Tracer) *RedisPersister {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if strings.TrimSpace(key) == "" {
		key = defaultRedisKey
	}
	if tracer == nil {
		tracer = otel.Tracer("vetclinic.internal.session")
	}
	return &RedisPersister{redis: client, key: key, ttl: ttl, tracer: tracer}
}

func (p *RedisPersister) Save(ctx context.Context, snap Snapshot) error {
	ctx, span := p.tracer.Start(ctx, "session.save")
	defer span.End()
	span.SetAttributes(attribute.String("session.key", p.key))

	data, err := json.Marshal(snap)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal snapshot: %w", err)
	}
	if err := p.redis.Set(ctx, p.key, data, p.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist snapshot: %w", err)
	}
	return nil
}

func (p *RedisPersister) Load(ctx context.Context) (*Snapshot, error) {
	ctx, span := p.tracer.Start(ctx, "session.load")
	defer span.End()

	data, err := p.redis.Get(ctx, p.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

func (p *RedisPersister) Clear(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "session.clear")
	defer span.End()

	if err := p.redis.Del(ctx, p.key).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to delete snapshot: %w", err)
	}
	return nil
}

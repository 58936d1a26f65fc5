package bootstrap

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/vetclinic-booking/internal/config"
	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.Discard(), false); client != nil {
		t.Fatalf("expected nil client when REDIS_ADDR is empty")
	}
	if client := BuildRedisClient(context.Background(), nil, nil, false); client != nil {
		t.Fatalf("expected nil client for nil config")
	}
}

func TestBuildSessionStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{SessionBackend: "redis", RedisAddr: mr.Addr(), SessionKey: "vetbook:test"}
	ctx := context.Background()

	store := BuildSessionStore(ctx, cfg, logging.Discard())
	require.NoError(t, store.Save(ctx, "tok", models.Identity{Document: "3001", Roles: []string{"CLIENTE"}}))
	assert.True(t, mr.Exists("vetbook:test"))

	// a second process restores the same session
	again := BuildSessionStore(ctx, cfg, logging.Discard())
	ok, err := again.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	id, _ := again.Identity()
	assert.Equal(t, "3001", id.Document)
}

func TestBuildSessionStoreFallsBackToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &appconfig.Config{SessionBackend: "redis", RedisAddr: addr}
	store := BuildSessionStore(context.Background(), cfg, logging.Discard())
	require.NotNil(t, store)
	require.NoError(t, store.Save(context.Background(), "tok", models.Identity{Document: "1000", Roles: []string{"ADMIN"}}))
	assert.True(t, store.IsAuthenticated())
}

func TestBuildRuntime(t *testing.T) {
	_, err := BuildRuntime(context.Background(), &appconfig.Config{SessionBackend: "memory"}, logging.Discard())
	require.Error(t, err, "a base url is required")

	rt, err := BuildRuntime(context.Background(), &appconfig.Config{APIBaseURL: "http://localhost:8080/api"}, logging.Discard())
	require.NoError(t, err)
	assert.NotNil(t, rt.API)
	assert.NotNil(t, rt.Store)
	assert.NotNil(t, rt.Registry)
}

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/roles"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

var customer = models.Identity{Document: "C1", Username: "cliente", Roles: []string{"ROLE_CLIENTE"}}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "C1", ExpiresAt: jwt.NewNumericDate(exp)}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

type failingPersister struct {
	MemoryPersister
	saveErr  error
	clearErr error
}

func (f *failingPersister) Save(ctx context.Context, snap Snapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryPersister.Save(ctx, snap)
}

func (f *failingPersister) Clear(ctx context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	return f.MemoryPersister.Clear(ctx)
}

func TestSaveAndClearMoveTokenAndIdentityTogether(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	s := NewStore(p, logging.Discard())

	require.NoError(t, s.Save(ctx, "opaque-token", customer))
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "opaque-token", s.Token())
	id, ok := s.Identity()
	require.True(t, ok)
	assert.Equal(t, "C1", id.Document)
	assert.True(t, roles.IsCustomer(s.Roles()))

	snap, err := p.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "opaque-token", snap.Token)

	require.NoError(t, s.Clear(ctx))
	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, "", s.Token())
	_, ok = s.Identity()
	assert.False(t, ok)
	snap, err = p.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSaveRejectsPartialSnapshot(t *testing.T) {
	s := NewStore(nil, logging.Discard())
	assert.ErrorIs(t, s.Save(context.Background(), "", customer), ErrInvalidSnapshot)
	assert.ErrorIs(t, s.Save(context.Background(), "tok", models.Identity{}), ErrInvalidSnapshot)
	assert.False(t, s.IsAuthenticated())
}

func TestSavePersistFailureLeavesStoreEmpty(t *testing.T) {
	p := &failingPersister{saveErr: errors.New("disk full")}
	s := NewStore(p, logging.Discard())
	err := s.Save(context.Background(), "tok", customer)
	require.Error(t, err)
	assert.False(t, s.IsAuthenticated())
}

func TestInvalidateClearsMemoryEvenWhenPersisterFails(t *testing.T) {
	p := &failingPersister{}
	s := NewStore(p, logging.Discard())
	require.NoError(t, s.Save(context.Background(), "tok", customer))

	p.clearErr = errors.New("redis down")
	err := s.Invalidate(context.Background(), ReasonUnauthorized)
	require.Error(t, err)
	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, "", s.Token())
}

func TestSubscribeReceivesLifecycleEvents(t *testing.T) {
	s := NewStore(nil, logging.Discard())
	var events []Event
	cancel := s.Subscribe(func(ev Event) { events = append(events, ev) })

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "tok", customer))
	require.NoError(t, s.Invalidate(ctx, ReasonDeactivated))
	// clearing an empty store is silent
	require.NoError(t, s.Clear(ctx))

	require.Len(t, events, 2)
	assert.Equal(t, ReasonLogin, events[0].Reason)
	require.NotNil(t, events[0].Identity)
	assert.Equal(t, "C1", events[0].Identity.Document)
	assert.Equal(t, ReasonDeactivated, events[1].Reason)
	assert.Nil(t, events[1].Identity)

	cancel()
	require.NoError(t, s.Save(ctx, "tok", customer))
	assert.Len(t, events, 2)
}

func TestExpiredJWTIsNotAuthenticated(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewStore(nil, logging.Discard(), WithClock(func() time.Time { return now }))

	require.NoError(t, s.Save(context.Background(), signedToken(t, now.Add(time.Hour)), customer))
	assert.True(t, s.IsAuthenticated())
	assert.False(t, s.Expired())

	now = now.Add(2 * time.Hour)
	assert.True(t, s.Expired())
	assert.False(t, s.IsAuthenticated())
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := WithClock(func() time.Time { return now })

	t.Run("empty persister", func(t *testing.T) {
		s := NewStore(NewMemoryPersister(), logging.Discard(), clock)
		ok, err := s.Restore(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("live session", func(t *testing.T) {
		p := NewMemoryPersister()
		require.NoError(t, p.Save(ctx, Snapshot{Token: signedToken(t, now.Add(time.Hour)), Identity: customer}))
		s := NewStore(p, logging.Discard(), clock)
		ok, err := s.Restore(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, s.IsAuthenticated())
	})

	t.Run("expired session is dropped", func(t *testing.T) {
		p := NewMemoryPersister()
		require.NoError(t, p.Save(ctx, Snapshot{Token: signedToken(t, now.Add(-time.Minute)), Identity: customer}))
		s := NewStore(p, logging.Discard(), clock)
		ok, err := s.Restore(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		snap, err := p.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, snap)
	})
}

func TestIdentityReturnsCopy(t *testing.T) {
	s := NewStore(nil, logging.Discard())
	require.NoError(t, s.Save(context.Background(), "tok", customer))
	id, _ := s.Identity()
	id.Roles[0] = "ADMIN"
	assert.True(t, roles.IsCustomer(s.Roles()))
}

// Package session owns the authentication token and identity of the signed-in
// user. Token and identity are written, persisted and cleared together.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/roles"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

// Reason explains why the session changed.
type Reason string

const (
	ReasonLogin        Reason = "login"
	ReasonRestored     Reason = "restored"
	ReasonLogout       Reason = "logout"
	ReasonUnauthorized Reason = "unauthorized"
	ReasonDeactivated  Reason = "deactivated"
	ReasonExpired      Reason = "expired"
)

// ErrInvalidSnapshot is returned when saving a session without token or identity.
var ErrInvalidSnapshot = errors.New("session: token and identity are required")

// Snapshot is the persisted session blob.
type Snapshot struct {
	Token    string          `json:"token"`
	Identity models.Identity `json:"identity"`
}

// Event is delivered to subscribers whenever the identity changes. Identity is
// nil once the session has been cleared.
type Event struct {
	Reason   Reason
	Identity *models.Identity
}

// Persister stores the session blob outside the process. Load returns nil, nil
// when nothing is stored.
type Persister interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Clear(ctx context.Context) error
}

// Store is the injectable owner of the session.
type Store struct {
	mu       sync.RWMutex
	token    string
	identity *models.Identity

	persister Persister
	logger    *logging.Logger
	now       func() time.Time

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a store backed by persister. A nil persister keeps the
// session in memory only.
func NewStore(persister Persister, logger *logging.Logger, opts ...Option) *Store {
	if persister == nil {
		persister = NewMemoryPersister()
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		persister: persister,
		logger:    logger,
		now:       time.Now,
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save records a fresh login.
func (s *Store) Save(ctx context.Context, token string, identity models.Identity) error {
	if token == "" || identity.Document == "" {
		return ErrInvalidSnapshot
	}
	if err := s.persister.Save(ctx, Snapshot{Token: token, Identity: identity}); err != nil {
		return fmt.Errorf("session: persist: %w", err)
	}
	s.mu.Lock()
	s.token = token
	id := identity
	s.identity = &id
	s.mu.Unlock()

	s.logger.Info("session started", "document", identity.Document, "roles", identity.Roles)
	s.publish(Event{Reason: ReasonLogin, Identity: &id})
	return nil
}

// Restore reloads a previously persisted session. It reports whether a live
// session is now active; expired blobs are cleared.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	snap, err := s.persister.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("session: load: %w", err)
	}
	if snap == nil || snap.Token == "" || snap.Identity.Document == "" {
		return false, nil
	}
	if tokenExpired(snap.Token, s.now()) {
		s.logger.Info("persisted session expired", "document", snap.Identity.Document)
		if err := s.Invalidate(ctx, ReasonExpired); err != nil {
			return false, err
		}
		return false, nil
	}
	s.mu.Lock()
	s.token = snap.Token
	id := snap.Identity
	s.identity = &id
	s.mu.Unlock()

	s.publish(Event{Reason: ReasonRestored, Identity: &id})
	return true, nil
}

// Clear ends the session on explicit logout.
func (s *Store) Clear(ctx context.Context) error {
	return s.Invalidate(ctx, ReasonLogout)
}

// Invalidate drops token and identity together, in memory and in the
// persister. Memory is always cleared, even when the persister fails.
func (s *Store) Invalidate(ctx context.Context, reason Reason) error {
	s.mu.Lock()
	had := s.token != "" || s.identity != nil
	s.token = ""
	s.identity = nil
	s.mu.Unlock()

	err := s.persister.Clear(ctx)
	if err != nil {
		s.logger.Error("failed to clear persisted session", "reason", string(reason), "error", err)
		err = fmt.Errorf("session: clear: %w", err)
	}
	if had {
		s.logger.Warn("session cleared", "reason", string(reason))
		s.publish(Event{Reason: reason})
	}
	return err
}

// Token returns the current bearer token, or "" when signed out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Identity returns a copy of the signed-in identity.
func (s *Store) Identity() (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return models.Identity{}, false
	}
	id := *s.identity
	id.Roles = append([]string(nil), s.identity.Roles...)
	return id, true
}

// Roles returns the normalized role set of the signed-in identity.
func (s *Store) Roles() roles.Set {
	id, ok := s.Identity()
	if !ok {
		return roles.Set{}
	}
	return id.RoleSet()
}

// Expired reports whether the held token carries an exp claim in the past.
func (s *Store) Expired() bool {
	token := s.Token()
	return token != "" && tokenExpired(token, s.now())
}

// IsAuthenticated is true when both token and identity are held and the
// token has not expired.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	ok := s.token != "" && s.identity != nil
	s.mu.RUnlock()
	return ok && !s.Expired()
}

// Subscribe registers fn for identity changes and returns its cancel func.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// tokenExpired inspects the exp claim without verifying the signature; the
// client does not hold the signing key. Tokens that are not JWTs never expire
// client-side.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}

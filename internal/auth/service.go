// Package auth signs users in and out on top of the session store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/vetclinic-booking/internal/clinicapi"
	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/transport"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

var (
	ErrMissingCredentials = errors.New("auth: username and password are required")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountDeactivated = errors.New("auth: account deactivated")
)

// LoginError is a rejected sign-in. Message is what the user should read;
// for a deactivated account it is the server's text unchanged.
type LoginError struct {
	Message     string
	Deactivated bool
	Err         error
}

func (e *LoginError) Error() string { return e.Message }

func (e *LoginError) Unwrap() error { return e.Err }

func (e *LoginError) Is(target error) bool {
	switch target {
	case ErrAccountDeactivated:
		return e.Deactivated
	case ErrInvalidCredentials:
		return !e.Deactivated
	}
	return false
}

// SignInAPI exchanges credentials for a token; *clinicapi.Client implements it.
type SignInAPI interface {
	SignIn(ctx context.Context, username, password string) (*clinicapi.SignInResult, error)
}

// SessionStore is the part of session.Store the flow drives.
type SessionStore interface {
	Save(ctx context.Context, token string, identity models.Identity) error
	Clear(ctx context.Context) error
	Restore(ctx context.Context) (bool, error)
	Identity() (models.Identity, bool)
}

type Service struct {
	api    SignInAPI
	store  SessionStore
	logger *logging.Logger
}

func NewService(api SignInAPI, store SessionStore, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{api: api, store: store, logger: logger}
}

// Login signs in and stores token and identity together.
func (s *Service) Login(ctx context.Context, username, password string) (models.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.Identity{}, ErrMissingCredentials
	}

	res, err := s.api.SignIn(ctx, username, password)
	if err != nil {
		switch {
		case errors.Is(err, transport.ErrDeactivated):
			s.logger.Warn("sign-in refused: account deactivated", "username", username)
			return models.Identity{}, &LoginError{
				Message:     transport.ServerMessage(err, "this account has been deactivated"),
				Deactivated: true,
				Err:         err,
			}
		case errors.Is(err, transport.ErrUnauthorized):
			s.logger.Info("sign-in refused", "username", username)
			return models.Identity{}, &LoginError{
				Message: transport.ServerMessage(err, "invalid username or password"),
				Err:     err,
			}
		}
		return models.Identity{}, fmt.Errorf("auth: login: %w", err)
	}

	identity := res.Identity
	if identity.Username == "" {
		identity.Username = username
	}
	if identity.Document == "" {
		return models.Identity{}, fmt.Errorf("auth: login: sign-in response has no user document")
	}
	if err := s.store.Save(ctx, res.Token, identity); err != nil {
		return models.Identity{}, fmt.Errorf("auth: login: %w", err)
	}
	s.logger.Info("signed in", "document", identity.Document, "roles", identity.Roles)
	return identity, nil
}

// Logout clears the session.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}
	return nil
}

// Restore rehydrates a persisted session; expired ones are dropped. It
// returns the restored identity, or false when there is none.
func (s *Service) Restore(ctx context.Context) (models.Identity, bool, error) {
	ok, err := s.store.Restore(ctx)
	if err != nil {
		return models.Identity{}, false, fmt.Errorf("auth: restore: %w", err)
	}
	if !ok {
		return models.Identity{}, false, nil
	}
	id, ok := s.store.Identity()
	return id, ok, nil
}

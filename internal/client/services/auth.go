// Package services contains application services for the Macrometric client.
// This file defines the authentication service: login, registration, logout,
// restoring a persisted session at start-up and the liveness probe.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/macrometric/internal/client/client"
	"github.com/dmitrijs2005/macrometric/internal/client/credentials"
	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/common"
	"github.com/dmitrijs2005/macrometric/internal/logging"
)

// MinPasswordLength mirrors the service's registration rule.
const MinPasswordLength = 8

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Register / Login: validate input locally, authenticate against the
//     server and persist the returned credential pair.
//   - Logout: best-effort server logout, then drop the local pair.
//   - Restore: rehydrate the persisted pair and confirm it with the server.
//   - Ping: check server liveness.
//   - Authenticated: whether a credential pair is held.
type AuthService interface {
	Register(ctx context.Context, email, password string) (models.User, error)
	Login(ctx context.Context, email, password string) (models.User, error)
	Logout(ctx context.Context) error
	Restore(ctx context.Context) (models.User, bool, error)
	Ping(ctx context.Context) error
	Authenticated() bool
}

// CredentialStore is what the service needs from credentials.Store.
type CredentialStore interface {
	Rehydrate(ctx context.Context) error
	Current() (models.Credentials, bool)
	Save(ctx context.Context, c models.Credentials) error
	Clear(ctx context.Context) error
}

type authService struct {
	remote client.AuthService
	store  CredentialStore
	log    logging.Logger
}

// NewAuthService constructs an AuthService bound to the given API client and
// credential store.
func NewAuthService(remote client.AuthService, store CredentialStore, log logging.Logger) AuthService {
	if log == nil {
		log = logging.Discard()
	}
	return &authService{remote: remote, store: store, log: log.With("component", "auth")}
}

// ValidateEmail accepts a bare address ("user@example.com").
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return common.Invalid("email", "not a valid address")
	}
	return nil
}

// ValidatePassword enforces the registration strength rule: at least
// MinPasswordLength characters with at least one letter and one digit.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return common.Invalid("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return common.Invalid("password", "must contain a letter and a digit")
	}
	return nil
}

func (a *authService) Register(ctx context.Context, email, password string) (models.User, error) {
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		return models.User{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return models.User{}, err
	}

	creds, user, err := a.remote.Register(ctx, email, password)
	if err != nil {
		return models.User{}, fmt.Errorf("register: %w", err)
	}
	if err := a.store.Save(ctx, creds); err != nil {
		return models.User{}, fmt.Errorf("save credentials: %w", err)
	}
	a.log.Info(ctx, "registered", "user", user.ID)
	return user, nil
}

// Login only checks that the fields are present; strength rules apply to new
// passwords, not existing ones.
func (a *authService) Login(ctx context.Context, email, password string) (models.User, error) {
	email = strings.TrimSpace(email)
	if err := ValidateEmail(email); err != nil {
		return models.User{}, err
	}
	if password == "" {
		return models.User{}, common.Invalid("password", "must not be empty")
	}

	creds, user, err := a.remote.Login(ctx, email, password)
	if err != nil {
		return models.User{}, fmt.Errorf("login: %w", err)
	}
	if err := a.store.Save(ctx, creds); err != nil {
		return models.User{}, fmt.Errorf("save credentials: %w", err)
	}
	a.log.Info(ctx, "logged in", "user", user.ID)
	return user, nil
}

// Logout tells the server first; its failure does not keep the local session.
func (a *authService) Logout(ctx context.Context) error {
	if _, ok := a.store.Current(); !ok {
		return common.ErrNotAuthenticated
	}
	if err := a.remote.Logout(ctx); err != nil {
		a.log.Warn(ctx, "server logout failed", "error", err)
	}
	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Restore rehydrates the persisted pair and asks the server who it belongs
// to. ok is false when there is no session or the server ended it. When the
// server cannot be reached the session is kept and the user is derived from
// the access token.
func (a *authService) Restore(ctx context.Context) (models.User, bool, error) {
	if err := a.store.Rehydrate(ctx); err != nil {
		return models.User{}, false, err
	}
	creds, ok := a.store.Current()
	if !ok {
		return models.User{}, false, nil
	}

	user, err := a.remote.Me(ctx)
	switch {
	case err == nil:
		return user, true, nil
	case errors.Is(err, common.ErrSessionExpired):
		return models.User{}, false, nil
	case errors.Is(err, common.ErrOffline), errors.Is(err, common.ErrNetwork):
		a.log.Warn(ctx, "could not verify session", "error", err)
		info, ierr := credentials.Inspect(creds.AccessToken)
		if ierr != nil {
			return models.User{}, true, nil
		}
		return models.User{ID: info.Subject}, true, nil
	default:
		return models.User{}, true, fmt.Errorf("verify session: %w", err)
	}
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.remote.Ping(ctx)
}

func (a *authService) Authenticated() bool {
	_, ok := a.store.Current()
	return ok
}

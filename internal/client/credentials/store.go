// Package credentials keeps the access/refresh token pair in memory and in the
// local metadata table, so a session survives a restart of the client.
package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/macrometric/internal/common"
	"github.com/dmitrijs2005/macrometric/internal/dbx"
)

// Store is the credential provider used by the request guard and the auth
// service. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	repo metadata.Repository

	mu    sync.RWMutex
	creds models.Credentials
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, repo: metadata.NewSQLiteRepository(db)}
}

// Rehydrate loads the persisted pair. A missing key leaves the store empty.
func (s *Store) Rehydrate(ctx context.Context) error {
	access, err := s.repo.Get(ctx, common.AccessTokenKey)
	if err != nil {
		return fmt.Errorf("rehydrate credentials: %w", err)
	}
	refresh, err := s.repo.Get(ctx, common.RefreshTokenKey)
	if err != nil {
		return fmt.Errorf("rehydrate credentials: %w", err)
	}

	c := models.Credentials{AccessToken: string(access), RefreshToken: string(refresh)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Valid() {
		s.creds = c
	} else {
		s.creds = models.Credentials{}
	}
	return nil
}

// Current returns the held pair and whether the client is authenticated.
func (s *Store) Current() (models.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.creds.Valid()
}

// Save persists both tokens atomically and then makes them current.
func (s *Store) Save(ctx context.Context, c models.Credentials) error {
	if !c.Valid() {
		return common.Invalid("credentials", "access and refresh tokens are required")
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, common.AccessTokenKey, []byte(c.AccessToken)); err != nil {
			return err
		}
		return repo.Set(ctx, common.RefreshTokenKey, []byte(c.RefreshToken))
	})
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}

	s.mu.Lock()
	s.creds = c
	s.mu.Unlock()
	return nil
}

// Clear forgets the pair. The in-memory copy is dropped even when the delete
// fails, so a broken database never keeps a dead session alive.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.creds = models.Credentials{}
	s.mu.Unlock()

	if err := s.repo.Delete(ctx, common.AccessTokenKey, common.RefreshTokenKey); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

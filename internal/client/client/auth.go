package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/common"
)

func (c *HTTPClient) authenticate(ctx context.Context, path, email, password string, want int) (models.Credentials, models.User, error) {
	var out authDTO
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   path,
		in:     credentialsDTO{Email: email, Password: password},
		out:    &out,
		want:   []int{want},
	})
	if err != nil {
		return models.Credentials{}, models.User{}, err
	}

	creds, err := out.tokenDTO.toModel()
	if err != nil {
		return models.Credentials{}, models.User{}, err
	}
	user, err := out.userDTO.toModel()
	if err != nil {
		return models.Credentials{}, models.User{}, err
	}
	return creds, user, nil
}

func (c *HTTPClient) Register(ctx context.Context, email, password string) (models.Credentials, models.User, error) {
	return c.authenticate(ctx, "/auth/register", email, password, http.StatusCreated)
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (models.Credentials, models.User, error) {
	return c.authenticate(ctx, "/auth/login", email, password, http.StatusOK)
}

// Refresh exchanges a refresh token for a new pair. It never goes through the
// authenticated transport, so it cannot recurse into the guard.
func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (models.Credentials, error) {
	var out tokenDTO
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/refresh",
		in:     refreshDTO{RefreshToken: refreshToken},
		out:    &out,
	})
	if err != nil {
		return models.Credentials{}, err
	}
	return out.toModel()
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.do(ctx, call{method: http.MethodPost, path: "/auth/logout", authed: true})
}

func (c *HTTPClient) Me(ctx context.Context) (models.User, error) {
	var out userDTO
	if err := c.do(ctx, call{method: http.MethodGet, path: "/auth/me", out: &out, authed: true}); err != nil {
		return models.User{}, err
	}
	return out.toModel()
}

// Ping checks the unauthenticated health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	var out healthDTO
	if err := c.do(ctx, call{method: http.MethodGet, path: "/health", out: &out, noPrefix: true}); err != nil {
		return err
	}
	if out.Status != "healthy" {
		return fmt.Errorf("%w: health status %q", common.ErrServer, out.Status)
	}
	return nil
}

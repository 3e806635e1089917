// Package guard attaches the bearer access token to outbound requests and
// renews it once when the service answers 401.
//
// Per request the guard moves through:
//
//	Sent -> 2xx/other                  -> done
//	Sent -> 401, not retried           -> Renewing
//	Renewing -> renewed                -> Replayed (response returned as is)
//	Renewing -> renewal refused        -> SessionCleared (ErrSessionExpired)
//	Renewing -> network or 5xx failure -> done (error returned, session kept)
//	Replayed -> 401                    -> Rejected (ErrSessionExpired)
//
// Renewal is single-flight: concurrent 401s share one refresh call, and a
// request whose token was already rotated replays with the current token.
package guard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/client/metrics"
	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/common"
	"github.com/dmitrijs2005/macrometric/internal/logging"
	"golang.org/x/sync/singleflight"
)

const defaultRenewTimeout = 15 * time.Second

// CredentialStore is the explicit credential provider.
type CredentialStore interface {
	Current() (models.Credentials, bool)
	Save(ctx context.Context, c models.Credentials) error
	Clear(ctx context.Context) error
}

// Renewer exchanges a refresh token for a fresh pair.
type Renewer interface {
	Refresh(ctx context.Context, refreshToken string) (models.Credentials, error)
}

type retriedKey struct{}

// Retried reports whether ctx belongs to a replayed request.
func Retried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

type Guard struct {
	base         http.RoundTripper
	store        CredentialStore
	renewer      Renewer
	log          logging.Logger
	onCleared    func()
	renewTimeout time.Duration

	group singleflight.Group
}

type Option func(*Guard)

func WithLogger(l logging.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

// WithSessionCleared registers a hook run after the guard destroyed the
// stored credentials. The CLI uses it to return to the login prompt.
func WithSessionCleared(fn func()) Option {
	return func(g *Guard) { g.onCleared = fn }
}

func WithRenewTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.renewTimeout = d
		}
	}
}

func New(base http.RoundTripper, store CredentialStore, renewer Renewer, opts ...Option) *Guard {
	if base == nil {
		base = http.DefaultTransport
	}
	g := &Guard{
		base:         base,
		store:        store,
		renewer:      renewer,
		log:          logging.Discard(),
		renewTimeout: defaultRenewTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) RoundTrip(req *http.Request) (*http.Response, error) {
	creds, ok := g.store.Current()
	if !ok {
		return g.base.RoundTrip(req)
	}

	req, err := rewindable(req)
	if err != nil {
		return nil, err
	}

	first, err := withBearer(req.Context(), req, creds.AccessToken)
	if err != nil {
		return nil, err
	}
	if req.GetBody != nil && req.Body != nil {
		_ = req.Body.Close()
	}
	resp, err := g.base.RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	discard(resp)

	ctx := req.Context()
	if Retried(ctx) {
		g.endSession(ctx, creds.AccessToken, "replayed request rejected")
		return nil, common.ErrSessionExpired
	}

	fresh, err := g.renew(ctx, creds)
	if err != nil {
		return nil, err
	}

	replayCtx := context.WithValue(ctx, retriedKey{}, true)
	replay, err := withBearer(replayCtx, req, fresh.AccessToken)
	if err != nil {
		return nil, err
	}
	g.log.Debug(ctx, "replaying request with renewed credentials", "method", req.Method, "path", req.URL.Path)

	resp, err = g.base.RoundTrip(replay)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	discard(resp)

	g.endSession(ctx, fresh.AccessToken, "replayed request rejected")
	return nil, common.ErrSessionExpired
}

// renew runs at most one refresh at a time. used is the pair the failed
// request carried.
func (g *Guard) renew(ctx context.Context, used models.Credentials) (models.Credentials, error) {
	v, err, _ := g.group.Do("renew", func() (any, error) {
		cur, ok := g.store.Current()
		if !ok {
			return nil, common.ErrSessionExpired
		}
		if cur.AccessToken != used.AccessToken {
			metrics.Renewals.WithLabelValues("rotated").Inc()
			return cur, nil
		}

		// Renewal outlives the request that triggered it: other requests may be
		// waiting on the same flight.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.renewTimeout)
		defer cancel()

		fresh, err := g.renewer.Refresh(rctx, cur.RefreshToken)
		if err != nil {
			if refused(err) {
				metrics.Renewals.WithLabelValues("rejected").Inc()
				g.endSession(rctx, cur.AccessToken, "renewal refused")
				return nil, fmt.Errorf("%w (renewal refused: %v)", common.ErrSessionExpired, err)
			}
			metrics.Renewals.WithLabelValues("error").Inc()
			g.log.Warn(ctx, "credential renewal failed", "error", err)
			return nil, err
		}

		if err := g.store.Save(rctx, fresh); err != nil {
			metrics.Renewals.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("persist renewed credentials: %w", err)
		}
		metrics.Renewals.WithLabelValues("ok").Inc()
		g.log.Info(ctx, "access credentials renewed")
		return fresh, nil
	})
	if err != nil {
		return models.Credentials{}, err
	}
	return v.(models.Credentials), nil
}

// refused reports whether the service itself turned the refresh token down,
// as opposed to the exchange failing in transit or on a server fault.
func refused(err error) bool {
	if errors.Is(err, common.ErrAuthExpired) {
		return true
	}
	var se *common.ServerError
	return errors.As(err, &se) && se.Status >= 400 && se.Status < 500
}

// endSession clears the store unless it already holds a different session
// (a concurrent login, or a renewal that won the race).
func (g *Guard) endSession(ctx context.Context, rejected, reason string) {
	cur, ok := g.store.Current()
	if !ok || cur.AccessToken != rejected {
		return
	}
	if err := g.store.Clear(context.WithoutCancel(ctx)); err != nil {
		g.log.Error(ctx, "failed to clear credentials", "error", err)
	}
	metrics.SessionsCleared.Inc()
	g.log.Warn(ctx, "session cleared", "reason", reason)
	if g.onCleared != nil {
		g.onCleared()
	}
}

// rewindable makes sure the request body can be produced again for a replay.
func rewindable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}
	b, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}

	out := req.Clone(req.Context())
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
	out.Body, _ = out.GetBody()
	return out, nil
}

func withBearer(ctx context.Context, req *http.Request, token string) (*http.Request, error) {
	out := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		out.Body = body
	}
	out.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	return out, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

package guard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/client/models"
	"github.com/dmitrijs2005/macrometric/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*************
 * Fakes
 *************/

type memStore struct {
	mu     sync.Mutex
	creds  models.Credentials
	saves  int
	clears int
}

func (s *memStore) Current() (models.Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, s.creds.Valid()
}

func (s *memStore) Save(_ context.Context, c models.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = c
	s.saves++
	return nil
}

func (s *memStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = models.Credentials{}
	s.clears++
	return nil
}

type fakeRenewer struct {
	calls atomic.Int32
	delay time.Duration
	next  models.Credentials
	err   error
	seen  []string
	mu    sync.Mutex
}

func (r *fakeRenewer) Refresh(_ context.Context, refresh string) (models.Credentials, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.seen = append(r.seen, refresh)
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.next, r.err
}

type sent struct {
	auth string
	body string
	ctx  context.Context
}

// fakeBackend accepts exactly the tokens in valid.
type fakeBackend struct {
	mu    sync.Mutex
	valid map[string]bool
	calls []sent
	hook  func(n int)
}

func (b *fakeBackend) RoundTrip(r *http.Request) (*http.Response, error) {
	var body string
	if r.Body != nil {
		raw, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		body = string(raw)
	}
	auth := r.Header.Get(common.AuthorizationHeaderName)

	b.mu.Lock()
	b.calls = append(b.calls, sent{auth: auth, body: body, ctx: r.Context()})
	n := len(b.calls)
	ok := b.valid[strings.TrimPrefix(auth, common.BearerPrefix)]
	hook := b.hook
	b.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusUnauthorized
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(`{}`)),
		Header:     http.Header{},
		Request:    r,
	}, nil
}

func (b *fakeBackend) sent() []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sent(nil), b.calls...)
}

func post(t *testing.T, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "http://svc/api/v1/diary/2025-01-15/entries", strings.NewReader(body))
	require.NoError(t, err)
	return req
}

func pair(a, r string) models.Credentials { return models.Credentials{AccessToken: a, RefreshToken: r} }

/*************
 * Tests
 *************/

func TestRoundTrip_NoCredentialsPassesThrough(t *testing.T) {
	backend := &fakeBackend{valid: map[string]bool{}}
	g := New(backend, &memStore{}, &fakeRenewer{})

	resp, err := g.RoundTrip(post(t, `{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Len(t, backend.sent(), 1)
	assert.Empty(t, backend.sent()[0].auth)
}

func TestRoundTrip_AttachesBearer(t *testing.T) {
	backend := &fakeBackend{valid: map[string]bool{"a1": true}}
	renewer := &fakeRenewer{}
	g := New(backend, &memStore{creds: pair("a1", "r1")}, renewer)

	resp, err := g.RoundTrip(post(t, `{"quantity":1}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	calls := backend.sent()
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer a1", calls[0].auth)
	assert.Equal(t, `{"quantity":1}`, calls[0].body)
	assert.Zero(t, renewer.calls.Load())
}

func TestRoundTrip_RenewsOnceAndReplays(t *testing.T) {
	backend := &fakeBackend{valid: map[string]bool{"a2": true}}
	store := &memStore{creds: pair("a1", "r1")}
	renewer := &fakeRenewer{next: pair("a2", "r2")}
	g := New(backend, store, renewer)

	resp, err := g.RoundTrip(post(t, `{"quantity":2}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	calls := backend.sent()
	require.Len(t, calls, 2)
	assert.Equal(t, int32(1), renewer.calls.Load())
	assert.Equal(t, []string{"r1"}, renewer.seen)

	assert.Equal(t, "Bearer a1", calls[0].auth)
	assert.Equal(t, "Bearer a2", calls[1].auth)
	assert.Equal(t, calls[0].body, calls[1].body)
	assert.False(t, Retried(calls[0].ctx))
	assert.True(t, Retried(calls[1].ctx))

	got, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, pair("a2", "r2"), got)
}

func TestRoundTrip_ReplayRejectedIsTerminal(t *testing.T) {
	backend := &fakeBackend{valid: map[string]bool{}}
	store := &memStore{creds: pair("a1", "r1")}
	renewer := &fakeRenewer{next: pair("a2", "r2")}
	var cleared atomic.Int32
	g := New(backend, store, renewer, WithSessionCleared(func() { cleared.Add(1) }))

	resp, err := g.RoundTrip(post(t, `{}`))
	assert.Nil(t, resp)
	require.ErrorIs(t, err, common.ErrSessionExpired)
	assert.ErrorIs(t, err, common.ErrAuthExpired)

	assert.Equal(t, int32(1), renewer.calls.Load(), "no second renewal")
	assert.Len(t, backend.sent(), 2)
	_, ok := store.Current()
	assert.False(t, ok)
	assert.Equal(t, int32(1), cleared.Load())
}

func TestRoundTrip_RenewalRefusedClearsSession(t *testing.T) {
	backend := &fakeBackend{valid: map[string]bool{}}
	store := &memStore{creds: pair("a1", "r1")}
	renewer := &fakeRenewer{err: &common.ServerError{Status: http.StatusUnauthorized, Detail: "Invalid refresh token"}}
	var cleared atomic.Int32
	g := New(backend, store, renewer, WithSessionCleared(func() { cleared.Add(1) }))

	_, err := g.RoundTrip(post(t, `{}`))
	require.ErrorIs(t, err, common.ErrSessionExpired)
	assert.Contains(t, err.Error(), "Invalid refresh token")

	assert.Len(t, backend.sent(), 1, "no replay after refused renewal")
	_, ok := store.Current()
	assert.False(t, ok)
	assert.Equal(t, 1, store.clears)
	assert.Equal(t, int32(1), cleared.Load())
}

func TestRoundTrip_RenewalTransportFailureKeepsSession(t *testing.T) {
	backend := &fakeBackend{valid: map[string]bool{}}
	store := &memStore{creds: pair("a1", "r1")}
	renewer := &fakeRenewer{err: fmt.Errorf("%w: connection refused", common.ErrNetwork)}
	var cleared atomic.Int32
	g := New(backend, store, renewer, WithSessionCleared(func() { cleared.Add(1) }))

	_, err := g.RoundTrip(post(t, `{}`))
	require.ErrorIs(t, err, common.ErrNetwork)
	assert.NotErrorIs(t, err, common.ErrSessionExpired)

	got, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, pair("a1", "r1"), got)
	assert.Zero(t, cleared.Load())
}

func TestRoundTrip_ServerFaultDuringRenewalKeepsSession(t *testing.T) {
	store := &memStore{creds: pair("a1", "r1")}
	renewer := &fakeRenewer{err: &common.ServerError{Status: http.StatusBadGateway}}
	g := New(&fakeBackend{valid: map[string]bool{}}, store, renewer)

	_, err := g.RoundTrip(post(t, `{}`))
	require.ErrorIs(t, err, common.ErrServer)
	_, ok := store.Current()
	assert.True(t, ok)
}

func TestRoundTrip_ConcurrentExpiryRenewsOnce(t *testing.T) {
	backend := &fakeBackend{valid: map[string]bool{"a2": true}}
	store := &memStore{creds: pair("a1", "r1")}
	renewer := &fakeRenewer{next: pair("a2", "r2"), delay: 50 * time.Millisecond}
	g := New(backend, store, renewer)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := g.RoundTrip(post(t, fmt.Sprintf(`{"i":%d}`, i)))
			if err == nil && resp.StatusCode != http.StatusOK {
				err = fmt.Errorf("status %d", resp.StatusCode)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), renewer.calls.Load())
	assert.Equal(t, 1, store.saves)
}

func TestRoundTrip_AlreadyRotatedTokenReplaysWithoutRenewal(t *testing.T) {
	store := &memStore{creds: pair("a1", "r1")}
	backend := &fakeBackend{valid: map[string]bool{"a2": true}}
	// Another request rotates the pair while ours is on the wire.
	backend.hook = func(n int) {
		if n == 1 {
			_ = store.Save(context.Background(), pair("a2", "r2"))
		}
	}
	renewer := &fakeRenewer{}
	g := New(backend, store, renewer)

	resp, err := g.RoundTrip(post(t, `{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, renewer.calls.Load())
	assert.Equal(t, "Bearer a2", backend.sent()[1].auth)
}

func TestRoundTrip_RejectedReplayDoesNotClearNewerSession(t *testing.T) {
	store := &memStore{creds: pair("a1", "r1")}
	backend := &fakeBackend{valid: map[string]bool{}}
	backend.hook = func(n int) {
		if n == 2 {
			// The user logged in again while the replay was in flight.
			_ = store.Save(context.Background(), pair("b1", "s1"))
		}
	}
	g := New(backend, store, &fakeRenewer{next: pair("a2", "r2")})

	_, err := g.RoundTrip(post(t, `{}`))
	require.ErrorIs(t, err, common.ErrSessionExpired)
	got, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, pair("b1", "s1"), got)
}

func TestRoundTrip_BuffersBodyWithoutGetBody(t *testing.T) {
	backend := &fakeBackend{valid: map[string]bool{"a2": true}}
	g := New(backend, &memStore{creds: pair("a1", "r1")}, &fakeRenewer{next: pair("a2", "r2")})

	req := post(t, "")
	req.Body = io.NopCloser(strings.NewReader(`{"quantity":1.5}`))
	req.GetBody = nil

	_, err := g.RoundTrip(req)
	require.NoError(t, err)
	calls := backend.sent()
	require.Len(t, calls, 2)
	assert.Equal(t, `{"quantity":1.5}`, calls[0].body)
	assert.Equal(t, `{"quantity":1.5}`, calls[1].body)
}

func TestRoundTrip_OtherStatusesAreNotTouched(t *testing.T) {
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusForbidden, Body: io.NopCloser(strings.NewReader(`{"detail":"no"}`))}, nil
	})
	renewer := &fakeRenewer{}
	g := New(base, &memStore{creds: pair("a1", "r1")}, renewer)

	resp, err := g.RoundTrip(post(t, `{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, renewer.calls.Load())
}

func TestRoundTrip_TransportErrorIsReturned(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) { return nil, boom })
	g := New(base, &memStore{creds: pair("a1", "r1")}, &fakeRenewer{})

	_, err := g.RoundTrip(post(t, `{}`))
	assert.ErrorIs(t, err, boom)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/logging"
)

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 30 * time.Second
)

// HTTPClient implements DiaryService, FoodService and AuthService over REST.
type HTTPClient struct {
	root    string
	timeout time.Duration
	conn    Connectivity
	log     logging.Logger
	debug   bool
	base    http.RoundTripper

	raw *http.Client

	mu     sync.RWMutex
	authed *http.Client
}

var (
	_ DiaryService = (*HTTPClient)(nil)
	_ FoodService  = (*HTTPClient)(nil)
	_ AuthService  = (*HTTPClient)(nil)
)

// New builds a client for the service at serverURL (scheme and host, without
// the /api/v1 prefix).
func New(serverURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", serverURL)
	}

	c := &HTTPClient{
		root:    strings.TrimRight(u.String(), "/"),
		timeout: defaultTimeout,
		conn:    alwaysOnline{},
		log:     logging.Discard(),
		base:    http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}

	transport := c.base
	if c.debug {
		transport = &debugTransport{base: transport, log: c.log}
	}
	c.raw = &http.Client{Transport: transport, Timeout: c.timeout}
	c.authed = &http.Client{Transport: transport, Timeout: c.timeout}
	return c, nil
}

// WrapTransport installs middleware in front of the transport used by
// authenticated calls. Auth endpoints (login, register, refresh, health) keep
// the bare transport.
func (c *HTTPClient) WrapTransport(wrap func(base http.RoundTripper) http.RoundTripper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authed = &http.Client{Transport: wrap(c.raw.Transport), Timeout: c.timeout}
}

func (c *HTTPClient) authedClient() *http.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authed
}

type call struct {
	method string
	path   string
	query  url.Values
	in     any
	out    any
	want   []int
	authed bool
	// noPrefix addresses the server root instead of the API prefix.
	noPrefix bool
}

func (c *HTTPClient) do(ctx context.Context, r call) error {
	target := c.root + apiPrefix + r.path
	if r.noPrefix {
		target = c.root + r.path
	}
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.in != nil {
		b, err := json.Marshal(r.in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.raw
	if r.authed {
		hc = c.authedClient()
	}

	resp, err := hc.Do(req)
	if err != nil {
		return c.mapTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	want := r.want
	if len(want) == 0 {
		want = []int{http.StatusOK}
	}
	if !slices.Contains(want, resp.StatusCode) {
		return mapStatus(resp, r.authed)
	}

	if r.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return malformed("decode %s %s: %v", r.method, r.path, err)
	}
	return nil
}

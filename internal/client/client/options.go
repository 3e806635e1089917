package client

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/logging"
)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithTimeout bounds every request, including a guarded replay.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithConnectivity installs the flag used to classify transport failures.
func WithConnectivity(conn Connectivity) Option {
	return func(c *HTTPClient) {
		if conn != nil {
			c.conn = conn
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *HTTPClient) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDebug dumps every request and response at debug level.
func WithDebug(on bool) Option {
	return func(c *HTTPClient) { c.debug = on }
}

// WithBaseTransport replaces http.DefaultTransport underneath everything.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *HTTPClient) {
		if rt != nil {
			c.base = rt
		}
	}
}

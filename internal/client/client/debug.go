package client

import (
	"net/http"
	"net/http/httputil"
	"regexp"

	"github.com/dmitrijs2005/macrometric/internal/logging"
)

var bearerRe = regexp.MustCompile(`(?i)(authorization: bearer )\S+`)

// debugTransport traces requests and responses. Bearer tokens are masked; JSON
// bodies (which may carry refresh tokens) are logged as-is, so keep it off
// outside development.
type debugTransport struct {
	base http.RoundTripper
	log  logging.Logger
}

func (dt *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if dump, err := httputil.DumpRequestOut(req, true); err == nil {
		dt.log.Debug(ctx, "http request", "method", req.Method, "url", req.URL.String(),
			"dump", bearerRe.ReplaceAllString(string(dump), "${1}***"))
	}

	resp, err := dt.base.RoundTrip(req)
	if err != nil {
		dt.log.Debug(ctx, "http request failed", "method", req.Method, "url", req.URL.String(), "error", err)
		return nil, err
	}

	if dump, err := httputil.DumpResponse(resp, true); err == nil {
		dt.log.Debug(ctx, "http response", "method", req.Method, "url", req.URL.String(),
			"status", resp.StatusCode, "dump", string(dump))
	}
	return resp, nil
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/macrometric/internal/common"
)

const maxErrorBody = 64 << 10

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// detailOf extracts the human-readable part of an error body. The service
// sends {"detail": "..."} or, for request validation, {"detail": [{"msg": ...}]}.
func detailOf(body []byte) string {
	var p struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &p); err != nil || len(p.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var s string
	if err := json.Unmarshal(p.Detail, &s); err == nil {
		return s
	}

	var list []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(p.Detail, &list); err == nil {
		msgs := make([]string, 0, len(list))
		for _, item := range list {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(p.Detail)
}

// mapStatus turns a non-expected response into an error. A 401 on an
// authenticated call means the access credential was rejected; on the auth
// endpoints it is an ordinary refusal (wrong password, bad refresh token).
func mapStatus(resp *http.Response, authed bool) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := detailOf(body)

	if resp.StatusCode == http.StatusUnauthorized && authed {
		if detail == "" {
			return common.ErrAuthExpired
		}
		return fmt.Errorf("%w: %s", common.ErrAuthExpired, detail)
	}
	return &common.ServerError{Status: resp.StatusCode, Detail: detail}
}

// mapTransportError classifies a failed round trip. Errors the guard already
// classified pass through, cancellation is returned as is, and everything else
// becomes ErrOffline or ErrNetwork depending on the connectivity flag.
func (c *HTTPClient) mapTransportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	inner := err
	var ue *url.Error
	if errors.As(err, &ue) {
		inner = ue.Err
	}
	switch {
	case errors.Is(inner, common.ErrAuthExpired),
		errors.Is(inner, common.ErrOffline),
		errors.Is(inner, common.ErrNetwork),
		errors.Is(inner, common.ErrServer),
		errors.Is(inner, common.ErrMalformedResponse):
		return inner
	case errors.Is(inner, context.Canceled):
		return inner
	}

	if !c.conn.Online() {
		return fmt.Errorf("%w: %v", common.ErrOffline, err)
	}
	return fmt.Errorf("%w: %v", common.ErrNetwork, err)
}

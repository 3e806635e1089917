// Package client talks to the Macrometric REST service.
//
// # Overview
//
// The package provides:
//  1. Narrow, transport-agnostic contracts for the remote service: DiaryService,
//     FoodService and AuthService.
//  2. HTTPClient, a net/http implementation of all three. Authenticated calls go
//     through a pluggable RoundTripper (see WrapTransport) so the credential
//     guard can attach and renew tokens; auth endpoints use a bare transport.
//  3. Boundary validation: every response is decoded into a wire DTO and checked
//     before it becomes a models value.
//
// # Error Handling
//
// Failures are mapped onto the sentinels in internal/common and can be matched
// with errors.Is: ErrOffline/ErrNetwork for transport failures, ErrAuthExpired
// for 401, ErrServer (and ErrNotFound for 404) for other statuses, and
// ErrMalformedResponse when a body fails validation. Context cancellation is
// returned unchanged.
//
// All methods are safe for concurrent use.
package client

// Package common contains shared constants and sentinel errors used across
// Macrometric client components.
package common

// AuthorizationHeaderName carries the bearer access token on outbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the access token in the Authorization header.
const BearerPrefix = "Bearer "

// Metadata keys the credential pair is persisted under. Absence of either key
// means the client is unauthenticated.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
)

// DateLayout is the wire and display format of diary dates.
const DateLayout = "2006-01-02"

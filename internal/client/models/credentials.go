package models

// Credentials is the short-lived access token plus the longer-lived refresh
// token used to renew it.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Valid reports whether both halves of the pair are present.
func (c Credentials) Valid() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// User is the account returned by login and registration.
type User struct {
	ID                  string
	Email               string
	OnboardingCompleted bool
}

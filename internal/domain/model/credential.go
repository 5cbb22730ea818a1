package model

import "time"

// Credential holds the secret material for one external identity plus the
// OAuth2 token state derived from it. Secret fields are plaintext at the
// domain boundary; the storage adapter encrypts them at rest.
type Credential struct {
	ID           string
	ServiceID    string
	APIKey       string
	Login        string
	Password     string
	ClientID     string
	ClientSecret string

	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTokenValid reports whether the stored access token can be reused at now:
// a token is present and it expires strictly after now.
func (c *Credential) IsTokenValid(now time.Time) bool {
	if c.AccessToken == "" || c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.After(now)
}

// TokenUpdate is the token state written back after a token-endpoint call.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

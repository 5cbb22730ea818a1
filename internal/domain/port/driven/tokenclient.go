package driven

import (
	"context"
	"fmt"
	"time"
)

// TokenRequest carries what the token endpoint needs for either grant.
type TokenRequest struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string // Used by the refresh_token grant only.
}

// Token is the token endpoint's answer. Expiry is zero when the server
// omitted expires_in.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// TokenClient performs OAuth2 token-endpoint calls. Calls are made once;
// implementations must not retry.
type TokenClient interface {
	// ClientCredentials performs the client_credentials grant.
	ClientCredentials(ctx context.Context, req TokenRequest) (*Token, error)
	// Refresh performs the refresh_token grant.
	Refresh(ctx context.Context, req TokenRequest) (*Token, error)
}

// TokenError reports a failed token-endpoint call. StatusCode is 0 when no
// response was received.
type TokenError struct {
	StatusCode int
	Err        error
}

func (e *TokenError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token endpoint returned %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token endpoint unreachable: %v", e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

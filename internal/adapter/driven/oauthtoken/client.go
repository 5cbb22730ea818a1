// Package oauthtoken implements the TokenClient port on golang.org/x/oauth2.
// Client credentials are always sent in the form body.
package oauthtoken

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TokenClient = (*Client)(nil)

// Client performs single, unretried token-endpoint calls.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// New creates a Client. A zero timeout leaves the call bounded only by ctx.
// A nil httpClient uses a fresh client without a global timeout.
func New(httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient, timeout: timeout}
}

// ClientCredentials performs the client_credentials grant.
func (c *Client) ClientCredentials(ctx context.Context, req driven.TokenRequest) (*driven.Token, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cfg := clientcredentials.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		TokenURL:     req.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	tok, err := cfg.Token(ctx)
	if err != nil {
		return nil, toTokenError(err)
	}

	return fromOAuth2(tok), nil
}

// Refresh performs the refresh_token grant. The returned refresh token is
// the previous one when the server does not rotate it.
func (c *Client) Refresh(ctx context.Context, req driven.TokenRequest) (*driven.Token, error) {
	if req.RefreshToken == "" {
		return nil, &driven.TokenError{Err: errors.New("refresh token is empty")}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cfg := oauth2.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  req.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	// A token without an access token is never valid, so the source goes
	// straight to the refresh grant.
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: req.RefreshToken}).Token()
	if err != nil {
		return nil, toTokenError(err)
	}

	return fromOAuth2(tok), nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func fromOAuth2(tok *oauth2.Token) *driven.Token {
	return &driven.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}

func toTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return &driven.TokenError{
			StatusCode: retrieveErr.Response.StatusCode,
			Err:        fmt.Errorf("retrieve token: %w", err),
		}
	}
	return &driven.TokenError{Err: fmt.Errorf("retrieve token: %w", err)}
}

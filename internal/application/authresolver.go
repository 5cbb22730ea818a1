package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// defaultTokenLifetime is assumed when the token endpoint omits expires_in.
const defaultTokenLifetime = 3600 * time.Second

// AuthResolver produces the headers a proxied call needs for a service's
// auth flow. It is the only writer of credential token state.
type AuthResolver struct {
	credentials driven.CredentialStore
	tokens      driven.TokenClient
	locks       *keyedMutex
	now         func() time.Time
}

// NewAuthResolver creates an AuthResolver.
func NewAuthResolver(credentials driven.CredentialStore, tokens driven.TokenClient) *AuthResolver {
	return &AuthResolver{
		credentials: credentials,
		tokens:      tokens,
		locks:       newKeyedMutex(),
		now:         time.Now,
	}
}

// Resolve returns a copy of headers with authentication added for svc and
// cred. A nil service or credential leaves headers unchanged. Token
// endpoint failures return a *model.AuthFlowError and leave the stored
// credential untouched.
func (r *AuthResolver) Resolve(ctx context.Context, svc *model.Service, cred *model.Credential, headers map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(headers)+2)
	maps.Copy(out, headers)

	if svc == nil || cred == nil {
		return out, nil
	}

	switch svc.AuthFlow {
	case "", model.AuthFlowNone:
		return out, nil

	case model.AuthFlowAPIKey:
		out["Authorization"] = "Bearer " + cred.APIKey
		return out, nil

	case model.AuthFlowOAuth2ClientCredentials:
		current, err := r.ensureToken(ctx, svc, cred.ID)
		if err != nil {
			return nil, err
		}
		out["Client-ID"] = current.ClientID
		out["Authorization"] = "Bearer " + current.AccessToken
		return out, nil

	case model.AuthFlowOAuth2AuthorizationCode, model.AuthFlowBasic:
		slog.Debug("auth flow not implemented, sending request without credentials",
			"flow", svc.AuthFlow, "service_id", svc.ID, "credential_id", cred.ID)
		return out, nil

	default:
		return nil, &model.AuthFlowError{
			Flow:         svc.AuthFlow,
			CredentialID: cred.ID,
			Err:          fmt.Errorf("unknown auth flow %q", svc.AuthFlow),
		}
	}
}

// ensureToken returns the credential with a usable access token, calling the
// token endpoint at most once. Resolution is serialized per credential so
// concurrent callers in this process share one refresh.
func (r *AuthResolver) ensureToken(ctx context.Context, svc *model.Service, credentialID string) (*model.Credential, error) {
	unlock := r.locks.lock(credentialID)
	defer unlock()

	// Re-read under the lock: a caller that waited sees the token the
	// previous holder stored.
	current, err := r.credentials.Get(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("load credential %q: %w", credentialID, err)
	}

	now := r.now()
	if current.IsTokenValid(now) {
		return current, nil
	}

	grant := "client_credentials"
	req := driven.TokenRequest{
		TokenURL:     svc.TokenURL,
		ClientID:     current.ClientID,
		ClientSecret: current.ClientSecret,
	}

	var tok *driven.Token
	if current.RefreshToken != "" {
		grant = "refresh_token"
		req.RefreshToken = current.RefreshToken
		tok, err = r.tokens.Refresh(ctx, req)
	} else {
		tok, err = r.tokens.ClientCredentials(ctx, req)
	}
	if err != nil {
		recordTokenFetch(grant, "error")
		authErr := &model.AuthFlowError{Flow: svc.AuthFlow, CredentialID: credentialID, Err: err}
		var tokenErr *driven.TokenError
		if errors.As(err, &tokenErr) {
			authErr.StatusCode = tokenErr.StatusCode
		}
		return nil, authErr
	}
	recordTokenFetch(grant, "ok")

	update := model.TokenUpdate{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if update.RefreshToken == "" {
		update.RefreshToken = current.RefreshToken
	}
	if update.ExpiresAt.IsZero() {
		update.ExpiresAt = now.Add(defaultTokenLifetime)
	}

	err = r.credentials.UpdateToken(ctx, credentialID, current.ExpiresAt, update)
	switch {
	case err == nil:
	case errors.Is(err, driven.ErrTokenConflict):
		// Another process stored a token first. Prefer it when still valid.
		winner, getErr := r.credentials.Get(ctx, credentialID)
		if getErr == nil && winner.IsTokenValid(r.now()) {
			slog.Debug("token refreshed concurrently, reusing stored token", "credential_id", credentialID)
			return winner, nil
		}
		slog.Warn("token refreshed concurrently, using own token without storing it", "credential_id", credentialID)
	default:
		return nil, fmt.Errorf("store token for credential %q: %w", credentialID, err)
	}

	current.AccessToken = update.AccessToken
	current.RefreshToken = update.RefreshToken
	current.ExpiresAt = &update.ExpiresAt
	return current, nil
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

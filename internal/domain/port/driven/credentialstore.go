package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// RELAYGATE_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set RELAYGATE_SECRET_KEY")

// ErrTokenConflict is returned by UpdateToken when the stored expiry no
// longer matches the expected one, meaning another writer refreshed first.
var ErrTokenConflict = errors.New("credential token was updated concurrently")

// CredentialStore defines the driven port for credential persistence.
// Secret fields cross this boundary as plaintext; the adapter encrypts them
// at rest through a SecretStore.
type CredentialStore interface {
	// Create stores a new credential. An empty ID is replaced by a new UUID.
	Create(ctx context.Context, cred model.Credential) (model.Credential, error)

	// Get returns the credential or a *model.NotFoundError.
	Get(ctx context.Context, id string) (*model.Credential, error)

	// UpdateToken writes token state only if the stored expires_at still
	// equals prevExpiresAt (nil meaning "no expiry stored"). It returns
	// ErrTokenConflict when the compare fails.
	UpdateToken(ctx context.Context, id string, prevExpiresAt *time.Time, update model.TokenUpdate) error
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Secret fields are encrypted through the SecretStore before write and decrypted after read.
type CredentialRepo struct {
	db      *DB
	secrets driven.SecretStore // nil when encryption is disabled.
}

// NewCredentialRepo creates a new CredentialRepo. secrets may be nil, in which
// case every operation returns driven.ErrEncryptionKeyNotSet.
func NewCredentialRepo(db *DB, secrets driven.SecretStore) *CredentialRepo {
	return &CredentialRepo{db: db, secrets: secrets}
}

// Create stores a new credential with all secret fields encrypted.
func (r *CredentialRepo) Create(ctx context.Context, cred model.Credential) (model.Credential, error) {
	if r.secrets == nil {
		return model.Credential{}, driven.ErrEncryptionKeyNotSet
	}
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	plain := []string{
		cred.APIKey, cred.Login, cred.Password, cred.ClientID,
		cred.ClientSecret, cred.AccessToken, cred.RefreshToken,
	}
	sealed := make([]any, len(plain))
	for i, v := range plain {
		enc, err := r.secrets.Encrypt(v)
		if err != nil {
			return model.Credential{}, fmt.Errorf("encrypt credential %q: %w", cred.ID, err)
		}
		sealed[i] = enc
	}

	const query = `
		INSERT INTO credentials (id, service_id, api_key, login, password, client_id, client_secret,
			access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	args := append([]any{cred.ID, nullString(cred.ServiceID)}, sealed...)
	args = append(args, nullTime(cred.ExpiresAt), formatTime(cred.CreatedAt), formatTime(cred.UpdatedAt))

	if _, err := r.db.Writer.ExecContext(ctx, query, args...); err != nil {
		return model.Credential{}, fmt.Errorf("create credential %q: %w", cred.ID, err)
	}

	return cred, nil
}

// Get retrieves a credential by ID with decrypted secret fields.
func (r *CredentialRepo) Get(ctx context.Context, id string) (*model.Credential, error) {
	if r.secrets == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `
		SELECT id, service_id, api_key, login, password, client_id, client_secret,
			access_token, refresh_token, expires_at, created_at, updated_at
		FROM credentials WHERE id = ?`

	var (
		cred                 model.Credential
		serviceID, expiresAt sql.NullString
		createdAt, updatedAt string
	)
	sealed := make([]string, 7)

	err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(
		&cred.ID,
		&serviceID,
		&sealed[0], &sealed[1], &sealed[2], &sealed[3], &sealed[4], &sealed[5], &sealed[6],
		&expiresAt,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Resource: "credential", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %q: %w", id, err)
	}

	targets := []*string{
		&cred.APIKey, &cred.Login, &cred.Password, &cred.ClientID,
		&cred.ClientSecret, &cred.AccessToken, &cred.RefreshToken,
	}
	for i, v := range sealed {
		plain, err := r.secrets.Decrypt(v)
		if err != nil {
			return nil, fmt.Errorf("decrypt credential %q: %w", id, err)
		}
		*targets[i] = plain
	}

	cred.ServiceID = serviceID.String
	if cred.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at for credential %q: %w", id, err)
	}
	if cred.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for credential %q: %w", id, err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for credential %q: %w", id, err)
	}

	return &cred, nil
}

// UpdateToken writes new token state if expires_at still equals prevExpiresAt.
// The comparison uses IS so a NULL expiry matches a nil prevExpiresAt.
func (r *CredentialRepo) UpdateToken(ctx context.Context, id string, prevExpiresAt *time.Time, update model.TokenUpdate) error {
	if r.secrets == nil {
		return driven.ErrEncryptionKeyNotSet
	}

	accessToken, err := r.secrets.Encrypt(update.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token for credential %q: %w", id, err)
	}
	refreshToken, err := r.secrets.Encrypt(update.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token for credential %q: %w", id, err)
	}

	const query = `
		UPDATE credentials
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
		WHERE id = ? AND expires_at IS ?`

	result, err := r.db.Writer.ExecContext(ctx, query,
		accessToken,
		refreshToken,
		formatTime(update.ExpiresAt),
		formatTime(time.Now()),
		id,
		nullTime(prevExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("update token for credential %q: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	// Distinguish a lost race from a missing row.
	var exists int
	err = r.db.Writer.QueryRowContext(ctx, `SELECT 1 FROM credentials WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.NotFoundError{Resource: "credential", ID: id}
	}
	if err != nil {
		return fmt.Errorf("check credential %q: %w", id, err)
	}

	return driven.ErrTokenConflict
}

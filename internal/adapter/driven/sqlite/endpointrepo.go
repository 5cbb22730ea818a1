package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.EndpointStore = (*EndpointRepo)(nil)

// EndpointRepo is the SQLite implementation of the EndpointStore port interface.
type EndpointRepo struct {
	db *DB
}

// NewEndpointRepo creates a new EndpointRepo backed by the given DB.
func NewEndpointRepo(db *DB) *EndpointRepo {
	return &EndpointRepo{db: db}
}

// Create inserts an endpoint. Method is stored lowercase; an empty response
// type defaults to json.
func (r *EndpointRepo) Create(ctx context.Context, ep model.Endpoint) (model.Endpoint, error) {
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if _, err := ep.Method.Verb(); err != nil {
		return model.Endpoint{}, fmt.Errorf("create endpoint %q: %w", ep.Name, err)
	}
	ep.Method = model.HTTPMethod(strings.ToLower(string(ep.Method)))
	if ep.ResponseType == "" {
		ep.ResponseType = model.ResponseTypeJSON
	}

	now := time.Now().UTC()
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = now
	}
	ep.UpdatedAt = now

	const query = `
		INSERT INTO endpoints (id, name, service_id, method, base_url, suffix, response_type, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Writer.ExecContext(ctx, query,
		ep.ID,
		ep.Name,
		nullString(ep.ServiceID),
		string(ep.Method),
		ep.BaseURL,
		ep.Suffix,
		string(ep.ResponseType),
		ep.Active,
		formatTime(ep.CreatedAt),
		formatTime(ep.UpdatedAt),
	)
	if err != nil {
		return model.Endpoint{}, fmt.Errorf("create endpoint %q: %w", ep.Name, err)
	}

	return ep, nil
}

// Get retrieves an endpoint by ID.
func (r *EndpointRepo) Get(ctx context.Context, id string) (*model.Endpoint, error) {
	const query = `
		SELECT id, name, service_id, method, base_url, suffix, response_type, active, created_at, updated_at
		FROM endpoints WHERE id = ?`

	var (
		ep                   model.Endpoint
		serviceID            sql.NullString
		method, responseType string
		createdAt, updatedAt string
	)

	err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(
		&ep.ID,
		&ep.Name,
		&serviceID,
		&method,
		&ep.BaseURL,
		&ep.Suffix,
		&responseType,
		&ep.Active,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Resource: "endpoint", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get endpoint %q: %w", id, err)
	}

	ep.ServiceID = serviceID.String
	ep.Method = model.HTTPMethod(method)
	ep.ResponseType = model.ResponseType(responseType)
	if ep.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for endpoint %q: %w", id, err)
	}
	if ep.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for endpoint %q: %w", id, err)
	}

	return &ep, nil
}

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
var _ driven.ServiceStore = (*ServiceRepo)(nil)

// ServiceRepo is the SQLite implementation of the ServiceStore port interface.
type ServiceRepo struct {
	db *DB
}

// NewServiceRepo creates a new ServiceRepo backed by the given DB.
func NewServiceRepo(db *DB) *ServiceRepo {
	return &ServiceRepo{db: db}
}

// Create inserts a service, assigning an ID and timestamps when absent.
func (r *ServiceRepo) Create(ctx context.Context, svc model.Service) (model.Service, error) {
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	if svc.AuthFlow == "" {
		svc.AuthFlow = model.AuthFlowNone
	}
	if !svc.AuthFlow.Valid() {
		return model.Service{}, fmt.Errorf("create service %q: unknown auth flow %q", svc.Name, svc.AuthFlow)
	}

	now := time.Now().UTC()
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = now
	}
	svc.UpdatedAt = now

	const query = `
		INSERT INTO services (id, name, auth_flow, token_url, trailing_slash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Writer.ExecContext(ctx, query,
		svc.ID,
		svc.Name,
		string(svc.AuthFlow),
		svc.TokenURL,
		svc.TrailingSlash,
		formatTime(svc.CreatedAt),
		formatTime(svc.UpdatedAt),
	)
	if err != nil {
		return model.Service{}, fmt.Errorf("create service %q: %w", svc.Name, err)
	}

	return svc, nil
}

// Get retrieves a service by ID.
func (r *ServiceRepo) Get(ctx context.Context, id string) (*model.Service, error) {
	const query = `
		SELECT id, name, auth_flow, token_url, trailing_slash, created_at, updated_at
		FROM services WHERE id = ?`

	var (
		svc                  model.Service
		authFlow             string
		createdAt, updatedAt string
	)

	err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(
		&svc.ID,
		&svc.Name,
		&authFlow,
		&svc.TokenURL,
		&svc.TrailingSlash,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Resource: "service", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get service %q: %w", id, err)
	}

	svc.AuthFlow = model.AuthFlow(authFlow)
	if svc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for service %q: %w", id, err)
	}
	if svc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for service %q: %w", id, err)
	}

	return &svc, nil
}

// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
)

// ServiceStore defines the driven port for reading and seeding services.
type ServiceStore interface {
	Create(ctx context.Context, svc model.Service) (model.Service, error)
	// Get returns the service or a *model.NotFoundError.
	Get(ctx context.Context, id string) (*model.Service, error)
}

// EndpointStore defines the driven port for reading and seeding endpoints.
type EndpointStore interface {
	Create(ctx context.Context, ep model.Endpoint) (model.Endpoint, error)
	// Get returns the endpoint or a *model.NotFoundError.
	Get(ctx context.Context, id string) (*model.Endpoint, error)
}

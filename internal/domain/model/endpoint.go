package model

import "time"

// Endpoint is one callable route. ServiceID is empty for unauthenticated
// endpoints that belong to no service.
type Endpoint struct {
	ID           string
	Name         string
	ServiceID    string
	Method       HTTPMethod
	BaseURL      string
	Suffix       string
	ResponseType ResponseType
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

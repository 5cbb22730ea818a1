package model

import "time"

// Service is a registered external API provider and its authentication
// configuration.
type Service struct {
	ID            string
	Name          string
	AuthFlow      AuthFlow
	TokenURL      string
	TrailingSlash bool // Whether endpoint URLs end with "/".
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// FixtureSet is the YAML document accepted by load-fixtures.
type FixtureSet struct {
	Services    []ServiceFixture    `yaml:"services"`
	Endpoints   []EndpointFixture   `yaml:"endpoints"`
	Credentials []CredentialFixture `yaml:"credentials"`
}

// ServiceFixture describes one service record.
type ServiceFixture struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	AuthFlow      string `yaml:"auth_flow"`
	TokenURL      string `yaml:"token_url"`
	TrailingSlash bool   `yaml:"trailing_slash"`
}

// EndpointFixture describes one endpoint record. Active defaults to true.
type EndpointFixture struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Service      string `yaml:"service"`
	Method       string `yaml:"method"`
	BaseURL      string `yaml:"base_url"`
	Suffix       string `yaml:"suffix"`
	ResponseType string `yaml:"response_type"`
	Active       *bool  `yaml:"active"`
}

// CredentialFixture describes one credential. Secret values may reference
// environment variables as ${NAME}.
type CredentialFixture struct {
	ID           string `yaml:"id"`
	Service      string `yaml:"service"`
	APIKey       string `yaml:"api_key"`
	Login        string `yaml:"login"`
	Password     string `yaml:"password"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// LoadSummary counts the records a fixture load created and skipped.
type LoadSummary struct {
	Created int
	Skipped int
}

// ParseFixtures decodes a fixture document. Unknown keys are rejected and
// every record must carry an ID.
func ParseFixtures(r io.Reader) (*FixtureSet, error) {
	var set FixtureSet
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}

	for i, s := range set.Services {
		if s.ID == "" {
			return nil, fmt.Errorf("service #%d: id is required", i+1)
		}
	}
	for i, e := range set.Endpoints {
		if e.ID == "" {
			return nil, fmt.Errorf("endpoint #%d: id is required", i+1)
		}
	}
	for i, c := range set.Credentials {
		if c.ID == "" {
			return nil, fmt.Errorf("credential #%d: id is required", i+1)
		}
	}

	return &set, nil
}

// FixtureLoader writes a FixtureSet through the storage ports. Records whose
// ID already exists are left untouched, so loading is repeatable.
type FixtureLoader struct {
	services    driven.ServiceStore
	endpoints   driven.EndpointStore
	credentials driven.CredentialStore
}

// NewFixtureLoader creates a FixtureLoader.
func NewFixtureLoader(services driven.ServiceStore, endpoints driven.EndpointStore, credentials driven.CredentialStore) *FixtureLoader {
	return &FixtureLoader{services: services, endpoints: endpoints, credentials: credentials}
}

// Load creates services, then endpoints, then credentials.
func (l *FixtureLoader) Load(ctx context.Context, set *FixtureSet) (LoadSummary, error) {
	var sum LoadSummary

	for _, f := range set.Services {
		created, err := createIfMissing(ctx, "service", f.ID,
			func(ctx context.Context) error {
				_, err := l.services.Get(ctx, f.ID)
				return err
			},
			func(ctx context.Context) error {
				_, err := l.services.Create(ctx, model.Service{
					ID:            f.ID,
					Name:          f.Name,
					AuthFlow:      model.AuthFlow(f.AuthFlow),
					TokenURL:      f.TokenURL,
					TrailingSlash: f.TrailingSlash,
				})
				return err
			})
		if err != nil {
			return sum, err
		}
		sum.add(created)
	}

	for _, f := range set.Endpoints {
		active := f.Active == nil || *f.Active
		created, err := createIfMissing(ctx, "endpoint", f.ID,
			func(ctx context.Context) error {
				_, err := l.endpoints.Get(ctx, f.ID)
				return err
			},
			func(ctx context.Context) error {
				_, err := l.endpoints.Create(ctx, model.Endpoint{
					ID:           f.ID,
					Name:         f.Name,
					ServiceID:    f.Service,
					Method:       model.HTTPMethod(f.Method),
					BaseURL:      f.BaseURL,
					Suffix:       f.Suffix,
					ResponseType: model.ResponseType(f.ResponseType),
					Active:       active,
				})
				return err
			})
		if err != nil {
			return sum, err
		}
		sum.add(created)
	}

	for _, f := range set.Credentials {
		created, err := createIfMissing(ctx, "credential", f.ID,
			func(ctx context.Context) error {
				_, err := l.credentials.Get(ctx, f.ID)
				return err
			},
			func(ctx context.Context) error {
				_, err := l.credentials.Create(ctx, model.Credential{
					ID:           f.ID,
					ServiceID:    f.Service,
					APIKey:       os.ExpandEnv(f.APIKey),
					Login:        os.ExpandEnv(f.Login),
					Password:     os.ExpandEnv(f.Password),
					ClientID:     os.ExpandEnv(f.ClientID),
					ClientSecret: os.ExpandEnv(f.ClientSecret),
				})
				return err
			})
		if err != nil {
			return sum, err
		}
		sum.add(created)
	}

	return sum, nil
}

func (s *LoadSummary) add(created bool) {
	if created {
		s.Created++
	} else {
		s.Skipped++
	}
}

func createIfMissing(
	ctx context.Context,
	kind, id string,
	get func(context.Context) error,
	create func(context.Context) error,
) (bool, error) {
	err := get(ctx)
	switch {
	case err == nil:
		slog.Debug("fixture already present", "kind", kind, "id", id)
		return false, nil
	case !errors.Is(err, model.ErrNotFound):
		return false, fmt.Errorf("check %s %q: %w", kind, id, err)
	}

	if err := create(ctx); err != nil {
		return false, fmt.Errorf("load %s %q: %w", kind, id, err)
	}
	slog.Info("fixture loaded", "kind", kind, "id", id)
	return true, nil
}

func newLoadFixturesCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "load-fixtures <file.yaml>",
		Short: "Load services, endpoints and credentials from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open fixtures: %w", err)
			}
			set, err := ParseFixtures(f)
			_ = f.Close()
			if err != nil {
				return err
			}

			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			s, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.close()

			sum, err := NewFixtureLoader(s.services, s.endpoints, s.credentials).Load(cmd.Context(), set)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d created, %d already present\n", sum.Created, sum.Skipped)
			return err
		},
	}
}

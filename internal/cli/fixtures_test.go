package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/relaygate/internal/config"
	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// openTestStores opens a migrated database in a temp dir. An empty secret
// disables credential storage.
func openTestStores(t *testing.T, secret string) *stores {
	t.Helper()
	cfg := &config.Config{
		DBPath:    filepath.Join(t.TempDir(), "relaygate.db"),
		SecretKey: secret,
	}
	s, err := openStores(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(s.close)
	return s
}

func TestParseFixtures_DemoFile(t *testing.T) {
	f, err := os.Open(filepath.Join("..", "..", "fixtures", "demo.yaml"))
	require.NoError(t, err)
	defer f.Close()

	set, err := ParseFixtures(f)
	require.NoError(t, err)

	assert.Len(t, set.Services, 2)
	assert.Len(t, set.Endpoints, 3)
	assert.Len(t, set.Credentials, 2)
	assert.Equal(t, "oauth2_client_credentials", set.Services[0].AuthFlow)
	assert.Nil(t, set.Endpoints[0].Active)
	assert.Empty(t, set.Endpoints[2].Service)
}

func TestParseFixtures_Empty(t *testing.T) {
	set, err := ParseFixtures(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, set.Services)
	assert.Empty(t, set.Endpoints)
	assert.Empty(t, set.Credentials)
}

func TestParseFixtures_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{name: "unknown key", doc: "services:\n  - id: a\n    flavor: x\n", wantErr: "parse fixtures"},
		{name: "service without id", doc: "services:\n  - name: a\n", wantErr: "service #1: id is required"},
		{name: "endpoint without id", doc: "endpoints:\n  - name: a\n", wantErr: "endpoint #1: id is required"},
		{name: "credential without id", doc: "credentials:\n  - api_key: a\n", wantErr: "credential #1: id is required"},
		{name: "not a mapping", doc: "- a\n- b\n", wantErr: "parse fixtures"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixtures(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

const loaderDoc = `
services:
  - id: weather
    name: Weather
    auth_flow: api_key
endpoints:
  - id: forecast
    name: Forecast
    service: weather
    method: GET
    base_url: https://api.example.com/v1
    suffix: forecast
  - id: legacy
    name: Legacy
    method: post
    base_url: https://old.example.com
    response_type: raw
    active: false
credentials:
  - id: weather-key
    service: weather
    api_key: ${RELAYGATE_TEST_WEATHER_KEY}
`

func TestFixtureLoader_Load(t *testing.T) {
	t.Setenv("RELAYGATE_TEST_WEATHER_KEY", "k-123")
	s := openTestStores(t, "test-secret")
	ctx := context.Background()

	set, err := ParseFixtures(strings.NewReader(loaderDoc))
	require.NoError(t, err)

	loader := NewFixtureLoader(s.services, s.endpoints, s.credentials)

	sum, err := loader.Load(ctx, set)
	require.NoError(t, err)
	assert.Equal(t, LoadSummary{Created: 4}, sum)

	svc, err := s.services.Get(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, model.AuthFlowAPIKey, svc.AuthFlow)

	forecast, err := s.endpoints.Get(ctx, "forecast")
	require.NoError(t, err)
	assert.True(t, forecast.Active)
	assert.Equal(t, model.MethodGet, forecast.Method)
	assert.Equal(t, model.ResponseTypeJSON, forecast.ResponseType)

	legacy, err := s.endpoints.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.False(t, legacy.Active)
	assert.Empty(t, legacy.ServiceID)
	assert.Equal(t, model.ResponseTypeRaw, legacy.ResponseType)

	cred, err := s.credentials.Get(ctx, "weather-key")
	require.NoError(t, err)
	assert.Equal(t, "k-123", cred.APIKey)
	assert.Equal(t, "weather", cred.ServiceID)

	// A second load finds every record and changes nothing.
	sum, err = loader.Load(ctx, set)
	require.NoError(t, err)
	assert.Equal(t, LoadSummary{Skipped: 4}, sum)
}

func TestFixtureLoader_CredentialsNeedSecretKey(t *testing.T) {
	s := openTestStores(t, "")

	set, err := ParseFixtures(strings.NewReader(loaderDoc))
	require.NoError(t, err)

	sum, err := NewFixtureLoader(s.services, s.endpoints, s.credentials).Load(context.Background(), set)
	require.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
	assert.Equal(t, 3, sum.Created, "services and endpoints load before credentials")
}

func TestFixtureLoader_RejectsInvalidRecord(t *testing.T) {
	s := openTestStores(t, "test-secret")

	set := &FixtureSet{Endpoints: []EndpointFixture{{ID: "bad", Name: "Bad", Method: "trace", BaseURL: "https://x"}}}

	_, err := NewFixtureLoader(s.services, s.endpoints, s.credentials).Load(context.Background(), set)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `load endpoint "bad"`)
}

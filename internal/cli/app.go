package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/relaygate/internal/adapter/driven/httpclient"
	"github.com/ericfisherdev/relaygate/internal/adapter/driven/oauthtoken"
	"github.com/ericfisherdev/relaygate/internal/adapter/driven/secretbox"
	sqliteadapter "github.com/ericfisherdev/relaygate/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/relaygate/internal/application"
	"github.com/ericfisherdev/relaygate/internal/config"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// stores holds the open database and its repositories.
type stores struct {
	db          *sqliteadapter.DB
	services    *sqliteadapter.ServiceRepo
	endpoints   *sqliteadapter.EndpointRepo
	credentials *sqliteadapter.CredentialRepo
	traces      *sqliteadapter.TraceRepo
}

// openStores opens the database, applies migrations and wires the
// repositories. Without a secret key credentials cannot be read or written.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", cfg.DBPath)

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Debug("migrations complete")

	var secrets driven.SecretStore
	if cfg.HasSecretKey() {
		box, err := secretbox.New(cfg.SecretKey)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init secret store: %w", err)
		}
		secrets = box
	} else {
		slog.Warn("RELAYGATE_SECRET_KEY not set, credentials are unavailable")
	}

	return &stores{
		db:          db,
		services:    sqliteadapter.NewServiceRepo(db),
		endpoints:   sqliteadapter.NewEndpointRepo(db),
		credentials: sqliteadapter.NewCredentialRepo(db, secrets),
		traces:      sqliteadapter.NewTraceRepo(db),
	}, nil
}

func (s *stores) close() {
	if err := s.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// newOrchestrator wires the execution pipeline on top of s. queue may be
// nil when the caller only uses Execute.
func newOrchestrator(cfg *config.Config, s *stores, queue driven.TaskQueue) *application.Orchestrator {
	policy := httpclient.DefaultRetryPolicy()
	policy.Attempts = cfg.RetryAttempts
	policy.Backoff = cfg.RetryBackoff
	policy.Jitter = cfg.RetryJitter

	executor := httpclient.New(policy, httpclient.WithLogger(slog.Default()))
	tokens := oauthtoken.New(nil, cfg.TokenTimeout)

	return application.NewOrchestrator(
		s.endpoints,
		s.services,
		s.credentials,
		application.NewAuthResolver(s.credentials, tokens),
		application.NewTraceRecorder(s.traces),
		executor,
		queue,
		cfg.RequestTimeout,
	)
}

// stallAfter is twice the longest a single retrying call can take. A trace
// pending for longer is reported as stalled by the health check.
func stallAfter(cfg *config.Config) time.Duration {
	attempts := max(cfg.RetryAttempts, 1)
	worst := time.Duration(attempts) * cfg.RequestTimeout
	for n := 1; n < attempts; n++ {
		worst += cfg.RetryBackoff<<(n-1) + cfg.RetryJitter
	}
	return 2 * worst
}

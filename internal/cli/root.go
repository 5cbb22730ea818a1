// Package cli builds the relaygate command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/relaygate/internal/config"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	dbPath    string
	logLevel  string
	logFormat string
}

// NewRootCommand creates the root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "relaygate",
		Short: "relaygate - authenticated, retrying, audited HTTP gateway",
		Long: `relaygate calls registered external endpoints on behalf of its callers.
It resolves each service's authentication flow, retries transient failures,
parses responses, and records an audit trace of every call.

Configuration is read from RELAYGATE_* environment variables; flags override
selected values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(flags.logLevel, flags.logFormat)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "Path to the SQLite database (overrides RELAYGATE_DB_PATH)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "text", "Log format: text or json")

	cmd.AddCommand(
		newServeCommand(flags),
		newMigrateCommand(flags),
		newLoadFixturesCommand(flags),
		newInvokeCommand(flags),
	)

	return cmd
}

// loadConfig reads the environment and applies global flag overrides.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.dbPath != "" {
		cfg.DBPath = f.dbPath
	}
	return cfg, nil
}

func setupLogging(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid --log-format %q: want text or json", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/relaygate/internal/adapter/driven/sqlite"
)

func newMigrateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			db, err := sqliteadapter.NewDB(cmd.Context(), cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
				return err
			}

			version, dirty, err := sqliteadapter.MigrationVersion(db.Writer)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
			return err
		},
	}
}

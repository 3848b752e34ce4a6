package cli

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rostersync/internal/logging"
	"github.com/JonMunkholm/rostersync/internal/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the development database schema",
	Long: `Create the roles, persons and access_sessions tables on DATABASE_URL and
seed the default roles.

In production the schema belongs to the access-control system; use this
only for local databases and test environments.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postgres.Migrate(cfg.Database.URL, logging.FromContext(cmd.Context())); err != nil {
			return &ExitError{Code: ExitFatal, Err: err}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

package cli

import (
	"github.com/Freeeeeet/meetup_scheduler/internal/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewMigrateCommand применяет миграции и выходит
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := setup(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			migrator, err := app.NewMigrator(rt.pool, rt.logger)
			if err != nil {
				return err
			}
			defer migrator.Close()

			if err := migrator.Run(ctx); err != nil {
				return err
			}

			version, err := migrator.Version(ctx)
			if err != nil {
				return err
			}

			rt.logger.Info("Database schema is up to date", zap.Int64("version", version))
			return nil
		},
	}
}

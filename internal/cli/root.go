// Package cli команды бинарника scheduler.
package cli

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/meetup_scheduler/internal/app"
	"github.com/Freeeeeet/meetup_scheduler/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRootCommand корневая команда scheduler
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Meetup scheduler",
		Long: `Сервис записи на встречи: владельцы публикуют свободные часы,
другие пользователи отправляют им запросы, получатель принимает или отклоняет.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewExpireCommand())

	return cmd
}

// runtime общие зависимости команд
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
}

func setup(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := app.NewLogger(cfg.Environment)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, pool: pool}, nil
}

func (rt *runtime) close() {
	rt.pool.Close()
	_ = rt.logger.Sync()
}

func (rt *runtime) migrate(ctx context.Context) error {
	migrator, err := app.NewMigrator(rt.pool, rt.logger)
	if err != nil {
		return err
	}
	defer migrator.Close()

	return migrator.Run(ctx)
}

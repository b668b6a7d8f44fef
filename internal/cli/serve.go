package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Freeeeeet/meetup_scheduler/internal/app"
	"github.com/Freeeeeet/meetup_scheduler/internal/controller"
	"github.com/Freeeeeet/meetup_scheduler/internal/controller/api"
	"github.com/Freeeeeet/meetup_scheduler/internal/notify"
	"github.com/Freeeeeet/meetup_scheduler/internal/repository"
	"github.com/Freeeeeet/meetup_scheduler/internal/service"
	"github.com/go-telegram/bot"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	notifyBuffer    = 256
	shutdownTimeout = 10 * time.Second
)

// NewServeCommand запускает HTTP API, websocket-хаб, бота и планировщик
func NewServeCommand() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, notification hub, Telegram bot and expiry scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), skipMigrate)
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply migrations on start")

	return cmd
}

func runServe(ctx context.Context, skipMigrate bool) error {
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.cfg.RequireJWT(); err != nil {
		return err
	}

	if !skipMigrate {
		if err := rt.migrate(ctx); err != nil {
			return err
		}
	}

	logger := rt.logger
	store := repository.NewStore(rt.pool)
	hub := notify.NewHub(logger)

	publishers := notify.Fanout{hub}

	var b *bot.Bot
	if rt.cfg.TelegramToken != "" {
		b, err = newBot(rt.cfg.TelegramToken)
		if err != nil {
			return err
		}
		publishers = append(publishers, notify.NewTelegram(b, store))
	} else {
		logger.Warn("TELEGRAM_TOKEN is not set, bot and telegram notifications are disabled")
	}

	notifier := notify.NewAsync(publishers, logger, notifyBuffer)
	defer notifier.Close()

	appointments := service.NewAppointmentService(store, notifier, logger)
	appointments.SetExpireAfter(rt.cfg.ExpireAfter)
	availability := service.NewAvailabilityService(store, logger)
	profiles := service.NewProfileService(store, logger)

	server := api.NewServer(api.Config{
		JWTSecret:   rt.cfg.JWTSecret,
		CreateRate:  rt.cfg.CreateRatePerSec,
		CreateBurst: rt.cfg.CreateRateBurst,
	}, api.Deps{
		Appointments: appointments,
		Availability: availability,
		Profiles:     profiles,
		Hub:          hub,
		DB:           store,
		Logger:       logger,
	})

	httpServer := &http.Server{
		Addr:              rt.cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var sweepers []app.Sweeper
	var botController *controller.BotController
	if b != nil {
		botController = controller.NewBotController(b, appointments, profiles, logger)
		if err := botController.RegisterHandlers(ctx); err != nil {
			return err
		}
		sweepers = append(sweepers, botController.States())
	}

	scheduler := app.NewScheduler(appointments, rt.cfg.ExpireInterval, logger, sweepers...)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", rt.cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	if botController != nil {
		g.Go(func() error {
			return botController.Start(gctx)
		})
	}

	err = g.Wait()
	logger.Info("Shutdown complete")
	return err
}

func newBot(token string) (*bot.Bot, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return b, nil
}

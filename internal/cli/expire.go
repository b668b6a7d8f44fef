package cli

import (
	"fmt"

	"github.com/Freeeeeet/meetup_scheduler/internal/notify"
	"github.com/Freeeeeet/meetup_scheduler/internal/repository"
	"github.com/Freeeeeet/meetup_scheduler/internal/service"
	"github.com/spf13/cobra"
)

// NewExpireCommand один проход истечения WAITING-запросов, для cron
func NewExpireCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Expire stale appointment requests once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := setup(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			store := repository.NewStore(rt.pool)

			// Без подписчиков websocket событие уходит только в Telegram
			publisher, err := telegramPublisher(rt, store)
			if err != nil {
				return err
			}

			appointments := service.NewAppointmentService(store, publisher, rt.logger)
			appointments.SetExpireAfter(rt.cfg.ExpireAfter)

			n, err := appointments.ExpireStale(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "expired: %d\n", n)
			return nil
		},
	}
}

// telegramPublisher Telegram-нотификатор или Nop без токена
func telegramPublisher(rt *runtime, store *repository.Store) (notify.Publisher, error) {
	if rt.cfg.TelegramToken == "" {
		return notify.Nop{}, nil
	}

	b, err := newBot(rt.cfg.TelegramToken)
	if err != nil {
		return nil, err
	}

	return expireNotifier(b, store), nil
}

// expireNotifier доставляет синхронно: после прохода процесс сразу завершается,
// поэтому фоновая очередь с лимитом здесь теряла бы события
func expireNotifier(sender notify.MessageSender, profiles notify.ProfileFinder) notify.Publisher {
	return notify.NewTelegram(sender, profiles)
}

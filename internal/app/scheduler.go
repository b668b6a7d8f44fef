package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Expirer переводит просроченные WAITING-запросы в EXPIRED
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Sweeper удаляет протухшие диалоги бота
type Sweeper interface {
	Sweep() int
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	expirer  Expirer
	sweepers []Sweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler создаёт новый планировщик
func NewScheduler(expirer Expirer, interval time.Duration, logger *zap.Logger, sweepers ...Sweeper) *Scheduler {
	return &Scheduler{
		expirer:  expirer,
		sweepers: sweepers,
		interval: interval,
		logger:   logger,
	}
}

// Run выполняет задачи сразу и затем по тикеру, пока не отменён ctx
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))

	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			s.logger.Info("Background scheduler stopped")
			return nil
		}
	}
}

// Tick один проход всех задач
func (s *Scheduler) Tick(ctx context.Context) {
	expired, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("Failed to expire stale appointments", zap.Error(err))
	} else if expired > 0 {
		s.logger.Info("Stale appointments expired", zap.Int("count", expired))
	}

	for _, sw := range s.sweepers {
		if n := sw.Sweep(); n > 0 {
			s.logger.Debug("Dialogs swept", zap.Int("count", n))
		}
	}
}

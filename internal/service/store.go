package service

import (
	"context"

	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/Freeeeeet/meetup_scheduler/internal/repository"
)

// Store хранилище, с которым работают сервисы.
// Реализация - repository.Store; в тестах - память.
type Store interface {
	repository.Querier
	InTx(ctx context.Context, fn func(q repository.Querier) error) error
}

// Notifier доставляет события другой стороне встречи
type Notifier interface {
	Publish(ctx context.Context, topic string, n model.Notification) error
}

var _ Store = (*repository.Store)(nil)

// Package notify доставляет события жизненного цикла встречи другой стороне.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"go.uber.org/zap"
)

// TopicPrefix префикс темы; полная тема - TopicPrefix + ID профиля
const TopicPrefix = "/topic/appointment/"

// Topic тема уведомлений профиля
func Topic(profileID int64) string {
	return fmt.Sprintf("%s%d", TopicPrefix, profileID)
}

// Publisher доставляет событие подписчикам темы
type Publisher interface {
	Publish(ctx context.Context, topic string, n model.Notification) error
}

// Nop ничего не доставляет
type Nop struct{}

func (Nop) Publish(context.Context, string, model.Notification) error {
	return nil
}

// Fanout отправляет событие во все транспорты; ошибка одного не мешает остальным
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, n model.Notification) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, topic, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrQueueFull очередь фоновой доставки переполнена, событие отброшено
var ErrQueueFull = errors.New("notification queue is full")

type job struct {
	ctx   context.Context
	topic string
	n     model.Notification
}

// Async доставляет события в фоне одним воркером
type Async struct {
	next    Publisher
	logger  *zap.Logger
	timeout time.Duration

	queue     chan job
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewAsync(next Publisher, logger *zap.Logger, buffer int) *Async {
	if buffer <= 0 {
		buffer = 100
	}

	a := &Async{
		next:    next,
		logger:  logger,
		timeout: 10 * time.Second,
		queue:   make(chan job, buffer),
	}

	a.wg.Add(1)
	go a.run()

	return a
}

// Publish ставит событие в очередь и сразу возвращается
func (a *Async) Publish(ctx context.Context, topic string, n model.Notification) error {
	select {
	case a.queue <- job{ctx: context.WithoutCancel(ctx), topic: topic, n: n}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer a.wg.Done()

	for j := range a.queue {
		ctx, cancel := context.WithTimeout(j.ctx, a.timeout)
		err := a.next.Publish(ctx, j.topic, j.n)
		cancel()

		if err != nil {
			a.logger.Warn("Failed to deliver notification",
				zap.String("topic", j.topic),
				zap.String("kind", string(j.n.Kind)),
				zap.Int64("appointment_id", j.n.AppointmentID),
				zap.Error(err),
			)
		}
	}
}

// Close дожидается доставки уже принятых событий
func (a *Async) Close() {
	a.closeOnce.Do(func() {
		close(a.queue)
	})
	a.wg.Wait()
}

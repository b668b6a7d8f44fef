package repository

import (
	"context"
	"time"

	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/Freeeeeet/meetup_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier все запросы хранилища; одинаково работает на пуле и внутри транзакции
type Querier interface {
	// Расписание
	ListOpenAvailability(ctx context.Context, ownerID int64, from time.Time) ([]model.DateAvailability, error)
	ReservedHours(ctx context.Context, ownerID int64, from time.Time) (model.Schedule, error)
	EnsureDate(ctx context.Context, ownerID int64, date string) (int64, error)
	InsertSlots(ctx context.Context, dateID int64, hours []int) (int64, error)
	DeleteSlot(ctx context.Context, ownerID, slotID int64) error
	DeleteDate(ctx context.Context, ownerID, dateID int64) error
	SlotsByIDs(ctx context.Context, ids []int64) ([]model.AvailabilitySlot, error)

	// Встречи
	LockOwner(ctx context.Context, ownerID int64) error
	CreateAppointment(ctx context.Context, appt *model.Appointment) error
	AddSlotRequests(ctx context.Context, appointmentID, receiverID int64, slotIDs []int64) error
	CountAcceptedConflicts(ctx context.Context, receiverID int64, slotIDs []int64, excludeID int64) (int, error)
	GetAppointment(ctx context.Context, id int64) (*model.Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, id int64) (*model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, status model.AppointmentStatus) error
	ReserveSlots(ctx context.Context, receiverID, appointmentID int64, slotIDs []int64) error
	SaveRejection(ctx context.Context, appointmentID int64, reason string) error
	ListSent(ctx context.Context, requesterID int64) ([]model.AppointmentView, error)
	ListReceived(ctx context.Context, receiverID int64) ([]model.AppointmentView, error)
	ListDone(ctx context.Context, requesterID int64) ([]model.AppointmentView, error)
	ListRefused(ctx context.Context, receiverID int64) ([]model.AppointmentView, error)
	ExpireWaiting(ctx context.Context, before time.Time) ([]model.Appointment, error)

	// Профили
	ProfileByID(ctx context.Context, profileID int64) (*model.Profile, error)
	ProfileByUserID(ctx context.Context, userID int64) (*model.Profile, error)
	ProfileByTelegramChatID(ctx context.Context, chatID int64) (*model.Profile, error)
	SetTelegramChatID(ctx context.Context, userID, chatID int64) error
}

// Queries собирает репозитории над одним соединением
type Queries struct {
	*AvailabilityRepository
	*AppointmentRepository
	*ProfileRepository
}

// newQueries собирает репозитории на одном соединении
func newQueries(db base.DBTX) *Queries {
	return &Queries{
		AvailabilityRepository: NewAvailabilityRepository(db),
		AppointmentRepository:  NewAppointmentRepository(db),
		ProfileRepository:      NewProfileRepository(db),
	}
}

// Store хранилище на пуле PostgreSQL
type Store struct {
	*Queries
	pool *pgxpool.Pool
}

// NewStore создаёт хранилище
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Queries: newQueries(pool),
		pool:    pool,
	}
}

// InTx выполняет fn в одной транзакции; при ошибке всё откатывается
func (s *Store) InTx(ctx context.Context, fn func(q Querier) error) error {
	return base.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newQueries(tx))
	})
}

// Ping проверяет соединение с базой
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var _ Querier = (*Queries)(nil)

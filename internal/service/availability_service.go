package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/meetup_scheduler/internal/apperr"
	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/Freeeeeet/meetup_scheduler/internal/repository"
	"go.uber.org/zap"
)

type DeleteTarget string

const (
	DeleteTargetSlot DeleteTarget = "slot"
	DeleteTargetDate DeleteTarget = "date"
)

// DeleteResult итог одной попытки удаления при сверке
type DeleteResult struct {
	Target  DeleteTarget `json:"target"`
	ID      int64        `json:"id"`
	Date    string       `json:"date"`
	Hour    int          `json:"hour,omitempty"`
	Deleted bool         `json:"deleted"`
	Reason  string       `json:"reason,omitempty"`
}

// ReconcileReport что сверка запланировала и что реально сделала
type ReconcileReport struct {
	Plan          Plan           `json:"plan"`
	Deletes       []DeleteResult `json:"deletes"`
	InsertedSlots int64          `json:"inserted_slots"`
	IgnoredDates  []string       `json:"ignored_dates,omitempty"`
}

// Skipped возвращает удаления, которые пришлось пропустить
func (r *ReconcileReport) Skipped() []DeleteResult {
	var skipped []DeleteResult
	for _, d := range r.Deletes {
		if !d.Deleted {
			skipped = append(skipped, d)
		}
	}
	return skipped
}

type AvailabilityService struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewAvailabilityService(store Store, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// GetAvailability получает открытые будущие слоты профиля
func (s *AvailabilityService) GetAvailability(ctx context.Context, profileID int64) ([]model.DateAvailability, error) {
	profile, err := s.store.ProfileByID(ctx, profileID)
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("get profile: %w", err))
	}

	if profile == nil {
		return nil, apperr.New(apperr.KindNotFound, "profile not found")
	}

	dates, err := s.store.ListOpenAvailability(ctx, profile.UserID, s.now())
	if err != nil {
		return nil, apperr.Store(err)
	}

	if len(dates) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "no available dates and times")
	}

	return dates, nil
}

// Reconcile заменяет будущее расписание владельца на schedule минимальным набором вставок и удалений
func (s *AvailabilityService) Reconcile(ctx context.Context, ownerID int64, schedule model.Schedule) (*ReconcileReport, error) {
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}

	var report *ReconcileReport
	err := s.store.InTx(ctx, func(q repository.Querier) error {
		var err error
		report, err = s.reconcile(ctx, q, ownerID, schedule)
		return err
	})
	if err != nil {
		return nil, apperr.Store(err)
	}

	s.logger.Info("Availability reconciled",
		zap.Int64("owner_id", ownerID),
		zap.Int("dates_inserted", len(report.Plan.Inserts)),
		zap.Int64("slots_inserted", report.InsertedSlots),
		zap.Int("deletes_attempted", len(report.Deletes)),
		zap.Int("deletes_skipped", len(report.Skipped())),
	)

	return report, nil
}

// reconcile сверяет расписание внутри транзакции под блокировкой владельца.
// Часы, занятые принятыми встречами, в сверке не участвуют: их не вставляют и не удаляют.
func (s *AvailabilityService) reconcile(ctx context.Context, q repository.Querier, ownerID int64, schedule model.Schedule) (*ReconcileReport, error) {
	if err := q.LockOwner(ctx, ownerID); err != nil {
		return nil, err
	}

	reserved, err := q.ReservedHours(ctx, ownerID, s.now())
	if err != nil {
		return nil, err
	}

	today := s.now().Format(model.DateLayout)
	requested := make(model.Schedule, len(schedule))
	report := &ReconcileReport{}
	for _, date := range schedule.Dates() {
		if date < today {
			report.IgnoredDates = append(report.IgnoredDates, date)
			continue
		}
		for _, h := range schedule.Hours(date) {
			if !reserved.Contains(date, h) {
				requested.Add(date, h)
			}
		}
	}

	existing, err := q.ListOpenAvailability(ctx, ownerID, s.now())
	if err != nil {
		return nil, err
	}

	report.Plan = PlanReconciliation(existing, requested)

	// Дата с занятыми часами остаётся, даже если свободных в ней больше не будет
	for i := range report.Plan.Deletes {
		if reserved.Has(report.Plan.Deletes[i].Date) {
			report.Plan.Deletes[i].DropDate = false
		}
	}

	if report.Plan.Empty() {
		return report, nil
	}

	if err := s.applyDeletes(ctx, q, ownerID, report); err != nil {
		return nil, err
	}

	if err := s.applyInserts(ctx, q, ownerID, report); err != nil {
		return nil, err
	}

	return report, nil
}

// applyDeletes удаляет сначала слоты, потом их дату.
// Слот, на который ссылается запрос на встречу, пропускается, сверка идёт дальше.
func (s *AvailabilityService) applyDeletes(ctx context.Context, q repository.Querier, ownerID int64, report *ReconcileReport) error {
	for _, del := range report.Plan.Deletes {
		emptied := true

		for i, slotID := range del.SlotIDs {
			res := DeleteResult{Target: DeleteTargetSlot, ID: slotID, Date: del.Date, Hour: del.Hours[i]}

			err := q.DeleteSlot(ctx, ownerID, slotID)
			switch {
			case err == nil:
				res.Deleted = true
			case errors.Is(err, repository.ErrReferenced):
				emptied = false
				res.Reason = "slot is referenced by an appointment request"
				s.logger.Info("Skipping referenced slot",
					zap.Int64("owner_id", ownerID),
					zap.Int64("slot_id", slotID),
					zap.String("date", del.Date),
					zap.Int("hour", res.Hour),
				)
			default:
				return err
			}

			report.Deletes = append(report.Deletes, res)
		}

		if !del.DropDate {
			continue
		}

		res := DeleteResult{Target: DeleteTargetDate, ID: del.DateID, Date: del.Date}
		if !emptied {
			res.Reason = "date still has slots"
			s.logger.Info("Skipping date with remaining slots",
				zap.Int64("owner_id", ownerID),
				zap.Int64("date_id", del.DateID),
				zap.String("date", del.Date),
			)
			report.Deletes = append(report.Deletes, res)
			continue
		}

		err := q.DeleteDate(ctx, ownerID, del.DateID)
		switch {
		case err == nil:
			res.Deleted = true
		case errors.Is(err, repository.ErrReferenced):
			res.Reason = "date still has reserved slots"
			s.logger.Info("Skipping referenced date",
				zap.Int64("owner_id", ownerID),
				zap.Int64("date_id", del.DateID),
				zap.String("date", del.Date),
			)
		default:
			return err
		}

		report.Deletes = append(report.Deletes, res)
	}

	return nil
}

// applyInserts создаёт (или находит) дату, затем одним запросом добавляет её часы
func (s *AvailabilityService) applyInserts(ctx context.Context, q repository.Querier, ownerID int64, report *ReconcileReport) error {
	for _, ins := range report.Plan.Inserts {
		dateID := ins.DateID
		if dateID == 0 {
			id, err := q.EnsureDate(ctx, ownerID, ins.Date)
			if err != nil {
				return err
			}
			dateID = id
		}

		inserted, err := q.InsertSlots(ctx, dateID, ins.Hours)
		if err != nil {
			return err
		}
		report.InsertedSlots += inserted
	}

	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Freeeeeet/meetup_scheduler/internal/apperr"
	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/Freeeeeet/meetup_scheduler/internal/notify"
	"github.com/Freeeeeet/meetup_scheduler/internal/repository"
	"go.uber.org/zap"
)

// MaxQuestionLength ограничение на длину вопроса к встрече
const MaxQuestionLength = 1000

// CreateRequest запрос на встречу от requester к владельцу профиля TargetProfileID
type CreateRequest struct {
	RequesterID     int64   `json:"-"`
	TargetProfileID int64   `json:"target_profile_id"`
	SlotIDs         []int64 `json:"slot_ids"`
	Question        string  `json:"question"`
}

type AppointmentService struct {
	store       Store
	notifier    Notifier
	guard       ConflictGuard
	logger      *zap.Logger
	now         func() time.Time
	expireAfter time.Duration
}

func NewAppointmentService(store Store, notifier Notifier, logger *zap.Logger) *AppointmentService {
	return &AppointmentService{
		store:       store,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
		expireAfter: model.ExpireAfter,
	}
}

// SetExpireAfter меняет срок ожидания ответа (по умолчанию 24 часа)
func (s *AppointmentService) SetExpireAfter(d time.Duration) {
	if d > 0 {
		s.expireAfter = d
	}
}

// Create создаёт запрос на встречу в статусе WAITING
func (s *AppointmentService) Create(ctx context.Context, req CreateRequest) (*model.Appointment, error) {
	slotIDs := uniqueIDs(req.SlotIDs)
	if len(slotIDs) == 0 {
		return nil, apperr.New(apperr.KindInvalidRequest, "choose at least one time")
	}

	question := strings.TrimSpace(req.Question)
	if len([]rune(question)) > MaxQuestionLength {
		return nil, apperr.New(apperr.KindInvalidRequest, fmt.Sprintf("question is longer than %d characters", MaxQuestionLength))
	}

	target, err := s.store.ProfileByID(ctx, req.TargetProfileID)
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("get target profile: %w", err))
	}

	if target == nil {
		return nil, apperr.New(apperr.KindNotFound, "profile not found")
	}

	if target.UserID == req.RequesterID {
		return nil, apperr.New(apperr.KindInvalidRequest, "you cannot request a meeting with yourself")
	}

	appt := &model.Appointment{
		RequesterID: req.RequesterID,
		ReceiverID:  target.UserID,
		Status:      model.AppointmentStatusWaiting,
		Question:    question,
		SlotIDs:     slotIDs,
	}

	err = s.store.InTx(ctx, func(q repository.Querier) error {
		if err := q.LockOwner(ctx, appt.ReceiverID); err != nil {
			return err
		}

		slots, err := q.SlotsByIDs(ctx, slotIDs)
		if err != nil {
			return err
		}

		if len(slots) != len(slotIDs) {
			return apperr.New(apperr.KindNotFound, "some of the chosen times no longer exist")
		}

		for _, slot := range slots {
			if slot.OwnerID != appt.ReceiverID {
				return apperr.New(apperr.KindInvalidRequest, "chosen times must belong to the requested profile")
			}
			if slot.Withdrawn {
				return apperr.New(apperr.KindNotFound, "some of the chosen times no longer exist")
			}
		}

		if err := s.guard.Check(ctx, q, appt.ReceiverID, slotIDs, 0); err != nil {
			return err
		}

		if err := q.CreateAppointment(ctx, appt); err != nil {
			return err
		}

		return q.AddSlotRequests(ctx, appt.ID, appt.ReceiverID, slotIDs)
	})
	if err != nil {
		return nil, apperr.Store(err)
	}

	s.logger.Info("Appointment created",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("requester_id", appt.RequesterID),
		zap.Int64("receiver_id", appt.ReceiverID),
		zap.Int64s("slot_ids", slotIDs),
	)

	s.publish(ctx, model.NotificationRequest, target.ID, appt)

	return appt, nil
}

// Accept принимает запрос; actorID должен быть получателем
func (s *AppointmentService) Accept(ctx context.Context, appointmentID, actorID int64) (*model.Appointment, error) {
	appt, err := s.transition(ctx, appointmentID, actorID, model.AppointmentStatusAccepted,
		func(q repository.Querier, appt *model.Appointment) error {
			if err := s.guard.Check(ctx, q, appt.ReceiverID, appt.SlotIDs, appt.ID); err != nil {
				return err
			}

			err := q.ReserveSlots(ctx, appt.ReceiverID, appt.ID, appt.SlotIDs)
			if errors.Is(err, repository.ErrSlotTaken) {
				return apperr.New(apperr.KindDuplicateSlot, "one of the chosen times is already booked")
			}
			return err
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Appointment accepted",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("receiver_id", appt.ReceiverID),
	)

	s.publishToUser(ctx, model.NotificationAccept, appt.RequesterID, appt)

	return appt, nil
}

// Reject отклоняет запрос с причиной; actorID должен быть получателем
func (s *AppointmentService) Reject(ctx context.Context, appointmentID, actorID int64, reason string) (*model.Appointment, error) {
	reason = strings.TrimSpace(reason)

	appt, err := s.transition(ctx, appointmentID, actorID, model.AppointmentStatusRejected,
		func(q repository.Querier, appt *model.Appointment) error {
			return q.SaveRejection(ctx, appt.ID, reason)
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Appointment rejected",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("receiver_id", appt.ReceiverID),
		zap.String("reason", reason),
	)

	s.publishToUser(ctx, model.NotificationReject, appt.RequesterID, appt)

	return appt, nil
}

// transition переводит WAITING-встречу в status.
// Получатель проверяется раньше статуса, поэтому чужой получает NOT_RECEIVER при любом статусе.
// Статус перечитывается под блокировкой строки: из двух одновременных ответов проходит один.
func (s *AppointmentService) transition(
	ctx context.Context,
	appointmentID, actorID int64,
	status model.AppointmentStatus,
	apply func(q repository.Querier, appt *model.Appointment) error,
) (*model.Appointment, error) {
	current, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("get appointment: %w", err))
	}

	if current == nil {
		return nil, apperr.New(apperr.KindNotFound, "appointment not found")
	}

	if err := checkActionable(current, actorID); err != nil {
		return nil, err
	}

	var appt *model.Appointment
	err = s.store.InTx(ctx, func(q repository.Querier) error {
		if err := q.LockOwner(ctx, current.ReceiverID); err != nil {
			return err
		}

		locked, err := q.GetAppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}

		if locked == nil {
			return apperr.New(apperr.KindNotFound, "appointment not found")
		}

		if err := checkActionable(locked, actorID); err != nil {
			return err
		}

		if err := apply(q, locked); err != nil {
			return err
		}

		if err := q.UpdateAppointmentStatus(ctx, locked.ID, status); err != nil {
			return err
		}

		locked.Status = status
		appt = locked
		return nil
	})
	if err != nil {
		return nil, apperr.Store(err)
	}

	return appt, nil
}

func checkActionable(appt *model.Appointment, actorID int64) error {
	if appt.ReceiverID != actorID {
		return apperr.New(apperr.KindNotReceiver, "only the receiver can answer this request")
	}

	if appt.Status.IsTerminal() {
		return apperr.New(apperr.KindNotWaiting, fmt.Sprintf("appointment is already %s", appt.Status))
	}

	return nil
}

// ListSent встречи, которые пользователь отправил и которые ещё актуальны
func (s *AppointmentService) ListSent(ctx context.Context, userID int64) ([]model.AppointmentView, error) {
	return s.list(ctx, "sent", userID, s.store.ListSent)
}

// ListReceived встречи, которые пользователю предложили
func (s *AppointmentService) ListReceived(ctx context.Context, userID int64) ([]model.AppointmentView, error) {
	return s.list(ctx, "received", userID, s.store.ListReceived)
}

// ListDone состоявшиеся встречи пользователя
func (s *AppointmentService) ListDone(ctx context.Context, userID int64) ([]model.AppointmentView, error) {
	return s.list(ctx, "done", userID, s.store.ListDone)
}

// ListRefused отклонённые и истёкшие запросы к пользователю
func (s *AppointmentService) ListRefused(ctx context.Context, userID int64) ([]model.AppointmentView, error) {
	return s.list(ctx, "refused", userID, s.store.ListRefused)
}

func (s *AppointmentService) list(
	ctx context.Context,
	name string,
	userID int64,
	fetch func(ctx context.Context, userID int64) ([]model.AppointmentView, error),
) ([]model.AppointmentView, error) {
	views, err := fetch(ctx, userID)
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("list %s appointments: %w", name, err))
	}

	if len(views) == 0 {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("no %s appointments", name))
	}

	return views, nil
}

// Detail карточка встречи с оставшимся временем на ответ; видна только участникам
func (s *AppointmentService) Detail(ctx context.Context, appointmentID, viewerID int64) (*model.AppointmentDetail, error) {
	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("get appointment: %w", err))
	}

	if appt == nil || (appt.RequesterID != viewerID && appt.ReceiverID != viewerID) {
		return nil, apperr.New(apperr.KindNotFound, "appointment not found")
	}

	requester, err := s.store.ProfileByUserID(ctx, appt.RequesterID)
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("get requester profile: %w", err))
	}

	slots, err := s.store.SlotsByIDs(ctx, appt.SlotIDs)
	if err != nil {
		return nil, apperr.Store(fmt.Errorf("get proposed slots: %w", err))
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Date != slots[j].Date {
			return slots[i].Date < slots[j].Date
		}
		return slots[i].Hour < slots[j].Hour
	})

	detail := &model.AppointmentDetail{
		Appointment:   *appt,
		ProposedSlots: slots,
	}

	if !appt.Status.IsTerminal() {
		detail.TimeLeft = model.NewTimeLeft(s.now(), appt.CreatedAt.Add(s.expireAfter))
	}

	if requester != nil {
		detail.RequesterProfileID = requester.ID
		detail.RequesterName = requester.Name
	}

	return detail, nil
}

// ExpireStale переводит просроченные WAITING-запросы в EXPIRED и уведомляет отправителей
func (s *AppointmentService) ExpireStale(ctx context.Context) (int, error) {
	expired, err := s.store.ExpireWaiting(ctx, s.now().Add(-s.expireAfter))
	if err != nil {
		return 0, apperr.Store(err)
	}

	for i := range expired {
		appt := &expired[i]

		s.logger.Info("Appointment expired",
			zap.Int64("appointment_id", appt.ID),
			zap.Int64("requester_id", appt.RequesterID),
		)

		s.publishToUser(ctx, model.NotificationExpire, appt.RequesterID, appt)
	}

	return len(expired), nil
}

// publishToUser находит профиль пользователя и отправляет ему событие
func (s *AppointmentService) publishToUser(ctx context.Context, kind model.NotificationKind, userID int64, appt *model.Appointment) {
	profile, err := s.store.ProfileByUserID(ctx, userID)
	if err != nil || profile == nil {
		s.logger.Warn("Failed to resolve profile for notification",
			zap.Int64("user_id", userID),
			zap.Int64("appointment_id", appt.ID),
			zap.Error(err),
		)
		return
	}

	s.publish(ctx, kind, profile.ID, appt)
}

// publish отправляет событие после коммита; ошибка доставки только логируется
func (s *AppointmentService) publish(ctx context.Context, kind model.NotificationKind, profileID int64, appt *model.Appointment) {
	if s.notifier == nil {
		return
	}

	n := model.NewNotification(kind, profileID, appt)
	if err := s.notifier.Publish(ctx, notify.Topic(profileID), n); err != nil {
		s.logger.Warn("Failed to publish notification",
			zap.String("kind", string(kind)),
			zap.Int64("profile_id", profileID),
			zap.Int64("appointment_id", appt.ID),
			zap.Error(err),
		)
	}
}

// uniqueIDs убирает повторы, сохраняя порядок
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

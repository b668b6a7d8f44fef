package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/Freeeeeet/meetup_scheduler/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

// ErrSlotTaken слот получателя уже закреплён за другой принятой встречей
var ErrSlotTaken = errors.New("slot already reserved")

const appointmentColumns = `id, requester_id, receiver_id, status, question, created_at, updated_at`

type AppointmentRepository struct {
	*base.Repository
}

func NewAppointmentRepository(db base.DBTX) *AppointmentRepository {
	return &AppointmentRepository{Repository: base.NewRepository(db)}
}

// LockOwner берёт advisory-блокировку владельца до конца транзакции.
// Создание, принятие и сверка расписания одного владельца идут строго по очереди.
func (r *AppointmentRepository) LockOwner(ctx context.Context, ownerID int64) error {
	if _, err := r.DB().Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ownerID); err != nil {
		return fmt.Errorf("lock owner: %w", err)
	}
	return nil
}

// CreateAppointment создаёт новую встречу
func (r *AppointmentRepository) CreateAppointment(ctx context.Context, appt *model.Appointment) error {
	query := `
		INSERT INTO appointments (requester_id, receiver_id, status, question)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		appt.RequesterID,
		appt.ReceiverID,
		appt.Status,
		appt.Question,
	).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}

	return nil
}

// AddSlotRequests сохраняет предложенные слоты встречи
func (r *AppointmentRepository) AddSlotRequests(ctx context.Context, appointmentID, receiverID int64, slotIDs []int64) error {
	query := `
		INSERT INTO appointment_slot_requests (appointment_id, slot_id, receiver_id)
		SELECT $1, slot_id, $3 FROM unnest($2::bigint[]) AS slot_id
	`

	if _, err := r.DB().Exec(ctx, query, appointmentID, slotIDs, receiverID); err != nil {
		return fmt.Errorf("add slot requests: %w", err)
	}

	return nil
}

// CountAcceptedConflicts считает принятые встречи получателя, претендующие на те же слоты.
// excludeID исключает саму встречу (0 - ничего не исключать).
func (r *AppointmentRepository) CountAcceptedConflicts(ctx context.Context, receiverID int64, slotIDs []int64, excludeID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM appointments a
		JOIN appointment_slot_requests r ON r.appointment_id = a.id
		WHERE a.receiver_id = $1
		  AND a.status = 'ACCEPTED'
		  AND r.slot_id = ANY($2)
		  AND a.id <> $3
	`

	var count int
	if err := r.QueryRow(ctx, query, receiverID, slotIDs, excludeID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count accepted conflicts: %w", err)
	}

	return count, nil
}

// GetAppointment получает встречу по ID
func (r *AppointmentRepository) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	return r.getAppointment(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
}

// GetAppointmentForUpdate получает встречу и блокирует строку до конца транзакции
func (r *AppointmentRepository) GetAppointmentForUpdate(ctx context.Context, id int64) (*model.Appointment, error) {
	return r.getAppointment(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
}

func (r *AppointmentRepository) getAppointment(ctx context.Context, query string, id int64) (*model.Appointment, error) {
	appt, err := scanAppointment(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get appointment by id: %w", err)
	}

	slots, err := r.SlotIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	appt.SlotIDs = slots

	return appt, nil
}

// SlotIDs получает слоты, предложенные во встрече
func (r *AppointmentRepository) SlotIDs(ctx context.Context, appointmentID int64) ([]int64, error) {
	rows, err := r.Query(ctx, `
		SELECT slot_id FROM appointment_slot_requests
		WHERE appointment_id = $1
		ORDER BY slot_id
	`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("get slot requests: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan slot requests: %w", err)
	}

	return ids, nil
}

// UpdateAppointmentStatus обновляет статус встречи
func (r *AppointmentRepository) UpdateAppointmentStatus(ctx context.Context, id int64, status model.AppointmentStatus) error {
	query := `
		UPDATE appointments
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`

	affected, err := r.ExecAffected(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("appointment not found")
	}

	return nil
}

// ReserveSlots закрепляет слоты за принятой встречей.
// Уникальный ключ (receiver_id, slot_id) - последний рубеж против двойного бронирования.
func (r *AppointmentRepository) ReserveSlots(ctx context.Context, receiverID, appointmentID int64, slotIDs []int64) error {
	query := `
		INSERT INTO accepted_slots (receiver_id, slot_id, appointment_id)
		SELECT $1, slot_id, $3 FROM unnest($2::bigint[]) AS slot_id
	`

	if _, err := r.DB().Exec(ctx, query, receiverID, slotIDs, appointmentID); err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("reserve slots: %w", ErrSlotTaken)
		}
		return fmt.Errorf("reserve slots: %w", err)
	}

	return nil
}

// SaveRejection сохраняет причину отказа
func (r *AppointmentRepository) SaveRejection(ctx context.Context, appointmentID int64, reason string) error {
	query := `
		INSERT INTO appointment_rejections (appointment_id, reason)
		VALUES ($1, $2)
	`

	if _, err := r.DB().Exec(ctx, query, appointmentID, reason); err != nil {
		return fmt.Errorf("save rejection: %w", err)
	}

	return nil
}

// ListSent получает ожидающие и принятые встречи, отправленные пользователем
func (r *AppointmentRepository) ListSent(ctx context.Context, requesterID int64) ([]model.AppointmentView, error) {
	return r.listViews(ctx, "requester_id", "receiver_id", requesterID,
		model.AppointmentStatusWaiting, model.AppointmentStatusAccepted)
}

// ListReceived получает ожидающие и принятые встречи, полученные пользователем
func (r *AppointmentRepository) ListReceived(ctx context.Context, receiverID int64) ([]model.AppointmentView, error) {
	return r.listViews(ctx, "receiver_id", "requester_id", receiverID,
		model.AppointmentStatusWaiting, model.AppointmentStatusAccepted)
}

// ListDone получает завершённые встречи, которые пользователь запрашивал
func (r *AppointmentRepository) ListDone(ctx context.Context, requesterID int64) ([]model.AppointmentView, error) {
	return r.listViews(ctx, "requester_id", "receiver_id", requesterID,
		model.AppointmentStatusDone)
}

// ListRefused получает отклонённые и истёкшие запросы, адресованные пользователю
func (r *AppointmentRepository) ListRefused(ctx context.Context, receiverID int64) ([]model.AppointmentView, error) {
	return r.listViews(ctx, "receiver_id", "requester_id", receiverID,
		model.AppointmentStatusRejected, model.AppointmentStatusExpired)
}

// listViews выбирает встречи по роли пользователя; roleColumn и counterpartColumn - только константы из этого файла
func (r *AppointmentRepository) listViews(ctx context.Context, roleColumn, counterpartColumn string, userID int64, statuses ...model.AppointmentStatus) ([]model.AppointmentView, error) {
	query := fmt.Sprintf(`
		SELECT a.id, a.status, a.%[2]s, COALESCE(p.id, 0), u.name, a.question,
		       COALESCE(rj.reason, ''), a.created_at
		FROM appointments a
		JOIN users u ON u.id = a.%[2]s
		LEFT JOIN profiles p ON p.user_id = a.%[2]s
		LEFT JOIN appointment_rejections rj ON rj.appointment_id = a.id
		WHERE a.%[1]s = $1
		  AND a.status = ANY($2)
		ORDER BY a.created_at DESC, a.id DESC
	`, roleColumn, counterpartColumn)

	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}

	rows, err := r.Query(ctx, query, userID, names)
	if err != nil {
		return nil, fmt.Errorf("list appointments by %s: %w", roleColumn, err)
	}
	defer rows.Close()

	var (
		views []model.AppointmentView
		ids   []int64
	)
	for rows.Next() {
		var v model.AppointmentView
		err := rows.Scan(
			&v.AppointmentID,
			&v.Status,
			&v.CounterpartUserID,
			&v.CounterpartProfileID,
			&v.CounterpartName,
			&v.Question,
			&v.RejectReason,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan appointment view: %w", err)
		}
		views = append(views, v)
		ids = append(ids, v.AppointmentID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointment views: %w", err)
	}

	if len(ids) == 0 {
		return views, nil
	}

	slots, err := r.requestedSlots(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range views {
		views[i].Slots = slots[views[i].AppointmentID]
	}

	return views, nil
}

// requestedSlots получает предложенные слоты для нескольких встреч сразу
func (r *AppointmentRepository) requestedSlots(ctx context.Context, appointmentIDs []int64) (map[int64][]model.AvailabilitySlot, error) {
	query := `
		SELECT r.appointment_id, s.id, s.date_id, s.hour, d.owner_id, to_char(d.day, 'YYYY-MM-DD')
		FROM appointment_slot_requests r
		JOIN availability_slots s ON s.id = r.slot_id
		JOIN availability_dates d ON d.id = s.date_id
		WHERE r.appointment_id = ANY($1)
		ORDER BY d.day, s.hour
	`

	rows, err := r.Query(ctx, query, appointmentIDs)
	if err != nil {
		return nil, fmt.Errorf("get requested slots: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]model.AvailabilitySlot, len(appointmentIDs))
	for rows.Next() {
		var (
			appointmentID int64
			slot          model.AvailabilitySlot
		)
		if err := rows.Scan(&appointmentID, &slot.ID, &slot.DateID, &slot.Hour, &slot.OwnerID, &slot.Date); err != nil {
			return nil, fmt.Errorf("scan requested slot: %w", err)
		}
		out[appointmentID] = append(out[appointmentID], slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requested slots: %w", err)
	}

	return out, nil
}

// ExpireWaiting переводит в EXPIRED все ожидающие встречи, созданные раньше before
func (r *AppointmentRepository) ExpireWaiting(ctx context.Context, before time.Time) ([]model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = 'EXPIRED', updated_at = NOW()
		WHERE status = 'WAITING' AND created_at < $1
		RETURNING ` + appointmentColumns

	rows, err := r.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("expire waiting appointments: %w", err)
	}
	defer rows.Close()

	var expired []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired appointment: %w", err)
		}
		expired = append(expired, *appt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired appointments: %w", err)
	}

	return expired, nil
}

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.RequesterID,
		&appt.ReceiverID,
		&appt.Status,
		&appt.Question,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/Freeeeeet/meetup_scheduler/internal/repository/base"
)

// ErrReferenced строку нельзя удалить: на неё ещё ссылаются
var ErrReferenced = errors.New("row is still referenced")

type AvailabilityRepository struct {
	*base.Repository
}

func NewAvailabilityRepository(db base.DBTX) *AvailabilityRepository {
	return &AvailabilityRepository{Repository: base.NewRepository(db)}
}

// ListOpenAvailability получает даты владельца начиная с from вместе со слотами,
// которые не заняты принятой или завершённой встречей
func (r *AvailabilityRepository) ListOpenAvailability(ctx context.Context, ownerID int64, from time.Time) ([]model.DateAvailability, error) {
	query := `
		SELECT d.id, to_char(d.day, 'YYYY-MM-DD'), s.id, s.hour
		FROM availability_dates d
		JOIN availability_slots s ON s.date_id = d.id
		WHERE d.owner_id = $1
		  AND d.day >= $2
		  AND s.withdrawn_at IS NULL
		  AND NOT EXISTS (
			SELECT 1
			FROM appointment_slot_requests r
			JOIN appointments a ON a.id = r.appointment_id
			WHERE r.slot_id = s.id
			  AND a.status IN ('ACCEPTED', 'DONE')
		  )
		ORDER BY d.day, s.hour
	`

	rows, err := r.Query(ctx, query, ownerID, truncateDay(from))
	if err != nil {
		return nil, fmt.Errorf("list open availability: %w", err)
	}
	defer rows.Close()

	var dates []model.DateAvailability
	for rows.Next() {
		var (
			dateID int64
			day    string
			slot   model.AvailabilitySlot
		)
		if err := rows.Scan(&dateID, &day, &slot.ID, &slot.Hour); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		slot.DateID = dateID
		slot.OwnerID = ownerID
		slot.Date = day

		if n := len(dates); n == 0 || dates[n-1].DateID != dateID {
			dates = append(dates, model.DateAvailability{DateID: dateID, Date: day})
		}
		last := &dates[len(dates)-1]
		last.Slots = append(last.Slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability: %w", err)
	}

	return dates, nil
}

// ReservedHours часы владельца начиная с from, занятые принятой или завершённой встречей
func (r *AvailabilityRepository) ReservedHours(ctx context.Context, ownerID int64, from time.Time) (model.Schedule, error) {
	query := `
		SELECT DISTINCT to_char(d.day, 'YYYY-MM-DD'), s.hour
		FROM availability_dates d
		JOIN availability_slots s ON s.date_id = d.id
		JOIN appointment_slot_requests r ON r.slot_id = s.id
		JOIN appointments a ON a.id = r.appointment_id
		WHERE d.owner_id = $1
		  AND d.day >= $2
		  AND a.status IN ('ACCEPTED', 'DONE')
	`

	rows, err := r.Query(ctx, query, ownerID, truncateDay(from))
	if err != nil {
		return nil, fmt.Errorf("list reserved hours: %w", err)
	}
	defer rows.Close()

	reserved := model.Schedule{}
	for rows.Next() {
		var (
			day  string
			hour int
		)
		if err := rows.Scan(&day, &hour); err != nil {
			return nil, fmt.Errorf("scan reserved hour: %w", err)
		}
		reserved.Add(day, hour)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reserved hours: %w", err)
	}

	return reserved, nil
}

// EnsureDate создаёт дату владельца или возвращает id существующей.
// Существующая строка только читается.
func (r *AvailabilityRepository) EnsureDate(ctx context.Context, ownerID int64, date string) (int64, error) {
	day, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", date, err)
	}

	query := `
		WITH ins AS (
			INSERT INTO availability_dates (owner_id, day)
			VALUES ($1, $2)
			ON CONFLICT (owner_id, day) DO NOTHING
			RETURNING id
		)
		SELECT id FROM ins
		UNION ALL
		SELECT id FROM availability_dates WHERE owner_id = $1 AND day = $2
		LIMIT 1
	`

	var id int64
	if err := r.QueryRow(ctx, query, ownerID, day).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensure availability date: %w", err)
	}

	return id, nil
}

// InsertSlots добавляет часы к дате одним запросом.
// Отозванный слот возвращается в расписание, открытые часы пропускаются.
func (r *AvailabilityRepository) InsertSlots(ctx context.Context, dateID int64, hours []int) (int64, error) {
	if len(hours) == 0 {
		return 0, nil
	}

	hs := make([]int32, 0, len(hours))
	for _, h := range hours {
		hs = append(hs, int32(h))
	}

	query := `
		INSERT INTO availability_slots (date_id, hour)
		SELECT $1, h FROM unnest($2::int[]) AS h
		ON CONFLICT (date_id, hour) DO UPDATE SET withdrawn_at = NULL
		WHERE availability_slots.withdrawn_at IS NOT NULL
	`

	inserted, err := r.ExecAffected(ctx, query, dateID, hs)
	if err != nil {
		return 0, fmt.Errorf("insert availability slots: %w", err)
	}

	return inserted, nil
}

// DeleteSlot убирает слот владельца из расписания.
// Удаление идёт в отдельном savepoint. Слот, на который ссылаются только отклонённые
// или истёкшие запросы, помечается отозванным. Ожидающий или принятый запрос даёт ErrReferenced.
func (r *AvailabilityRepository) DeleteSlot(ctx context.Context, ownerID, slotID int64) error {
	query := `
		DELETE FROM availability_slots s
		USING availability_dates d
		WHERE s.id = $1 AND s.date_id = d.id AND d.owner_id = $2
	`

	err := r.deleteInSavepoint(ctx, "delete availability slot", query, slotID, ownerID)
	if !errors.Is(err, ErrReferenced) {
		return err
	}

	return r.withdrawSlot(ctx, ownerID, slotID)
}

func (r *AvailabilityRepository) withdrawSlot(ctx context.Context, ownerID, slotID int64) error {
	query := `
		UPDATE availability_slots s
		SET withdrawn_at = NOW()
		FROM availability_dates d
		WHERE s.id = $1 AND s.date_id = d.id AND d.owner_id = $2
		  AND NOT EXISTS (
			SELECT 1
			FROM appointment_slot_requests r
			JOIN appointments a ON a.id = r.appointment_id
			WHERE r.slot_id = s.id
			  AND a.status NOT IN ('REJECTED', 'EXPIRED')
		  )
	`

	affected, err := r.ExecAffected(ctx, query, slotID, ownerID)
	if err != nil {
		return fmt.Errorf("withdraw availability slot: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("delete availability slot: %w", ErrReferenced)
	}

	return nil
}

// DeleteDate удаляет дату владельца; дата с открытыми или занятыми слотами даёт ErrReferenced.
// Дата, где остались только отозванные слоты, остаётся в таблице, но из расписания уже пропала.
func (r *AvailabilityRepository) DeleteDate(ctx context.Context, ownerID, dateID int64) error {
	query := `DELETE FROM availability_dates WHERE id = $1 AND owner_id = $2`

	err := r.deleteInSavepoint(ctx, "delete availability date", query, dateID, ownerID)
	if !errors.Is(err, ErrReferenced) {
		return err
	}

	var live bool
	err = r.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM availability_slots
			WHERE date_id = $1 AND withdrawn_at IS NULL
		)
	`, dateID).Scan(&live)
	if err != nil {
		return fmt.Errorf("check availability date slots: %w", err)
	}

	if live {
		return fmt.Errorf("delete availability date: %w", ErrReferenced)
	}

	return nil
}

func (r *AvailabilityRepository) deleteInSavepoint(ctx context.Context, op, query string, args ...any) error {
	err := r.Savepoint(ctx, func(db base.DBTX) error {
		_, err := db.Exec(ctx, query, args...)
		return err
	})

	if err != nil {
		if base.IsForeignKeyViolation(err) {
			return fmt.Errorf("%s: %w", op, ErrReferenced)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SlotsByIDs получает слоты по списку ID вместе с владельцем и датой
func (r *AvailabilityRepository) SlotsByIDs(ctx context.Context, ids []int64) ([]model.AvailabilitySlot, error) {
	if len(ids) == 0 {
		return []model.AvailabilitySlot{}, nil
	}

	query := `
		SELECT s.id, s.date_id, s.hour, d.owner_id, to_char(d.day, 'YYYY-MM-DD'), s.withdrawn_at IS NOT NULL
		FROM availability_slots s
		JOIN availability_dates d ON d.id = s.date_id
		WHERE s.id = ANY($1)
		ORDER BY d.day, s.hour
	`

	rows, err := r.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get slots by ids: %w", err)
	}
	defer rows.Close()

	var slots []model.AvailabilitySlot
	for rows.Next() {
		var slot model.AvailabilitySlot
		if err := rows.Scan(&slot.ID, &slot.DateID, &slot.Hour, &slot.OwnerID, &slot.Date, &slot.Withdrawn); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}

	return slots, nil
}

// truncateDay отбрасывает время, оставляя календарный день
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

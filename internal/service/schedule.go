package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/meetup_scheduler/internal/apperr"
	"github.com/Freeeeeet/meetup_scheduler/internal/model"
)

// DateChange изменение одной даты в плане сверки
type DateChange struct {
	Date   string `json:"date"`
	DateID int64  `json:"date_id,omitempty"`
	Hours  []int  `json:"hours"`

	// Только для удалений: ID слотов в том же порядке, что и Hours
	SlotIDs []int64 `json:"slot_ids,omitempty"`
	// Только для удалений: после слотов удалить и саму дату
	DropDate bool `json:"drop_date,omitempty"`
	// Только для вставок: даты ещё нет среди открытых
	NewDate bool `json:"new_date,omitempty"`
}

// Plan минимальный набор изменений, превращающий текущее расписание в желаемое
type Plan struct {
	Inserts []DateChange `json:"inserts"`
	Deletes []DateChange `json:"deletes"`
}

// Empty сообщает, что менять нечего
func (p Plan) Empty() bool {
	return len(p.Inserts) == 0 && len(p.Deletes) == 0
}

// InsertSet часы к добавлению в виде расписания
func (p Plan) InsertSet() model.Schedule {
	return changesToSchedule(p.Inserts)
}

// DeleteSet часы к удалению в виде расписания
func (p Plan) DeleteSet() model.Schedule {
	return changesToSchedule(p.Deletes)
}

func changesToSchedule(changes []DateChange) model.Schedule {
	s := make(model.Schedule, len(changes))
	for _, c := range changes {
		s.Add(c.Date, c.Hours...)
	}
	return s
}

// ValidateSchedule проверяет присланное расписание до любых изменений в базе:
// хотя бы одна дата, часы только 8..22, ключи дат в формате 2006-01-02
func ValidateSchedule(s model.Schedule) error {
	if len(s) == 0 {
		return apperr.New(apperr.KindInvalidTimeRange, "choose at least one available date and time")
	}

	for _, date := range s.Dates() {
		if _, err := time.Parse(model.DateLayout, date); err != nil {
			return apperr.New(apperr.KindInvalidRequest, fmt.Sprintf("date %q must look like 2024-03-15", date))
		}
		for _, h := range s.Hours(date) {
			if h < model.MinHour || h > model.MaxHour {
				return apperr.New(apperr.KindInvalidTimeRange,
					fmt.Sprintf("hour %d on %s is outside %d..%d", h, date, model.MinHour, model.MaxHour))
			}
		}
	}

	return nil
}

// PlanReconciliation сравнивает открытые слоты с желаемым расписанием.
//
// Дата есть в обоих: удаляются лишние часы, добавляются недостающие.
// Дата только в existing: удаляются все часы, затем сама дата.
// Дата только в requested: создаётся дата и все её часы.
// Дата из requested с пустым набором часов считается отсутствующей.
func PlanReconciliation(existing []model.DateAvailability, requested model.Schedule) Plan {
	plan := Plan{}
	known := make(map[string]struct{}, len(existing))

	for _, ex := range existing {
		known[ex.Date] = struct{}{}
		wanted := len(requested[ex.Date]) > 0

		del := DateChange{Date: ex.Date, DateID: ex.DateID, DropDate: !wanted}
		for _, slot := range ex.Slots {
			if !wanted || !requested.Contains(ex.Date, slot.Hour) {
				del.Hours = append(del.Hours, slot.Hour)
				del.SlotIDs = append(del.SlotIDs, slot.ID)
			}
		}
		if len(del.Hours) > 0 || del.DropDate {
			plan.Deletes = append(plan.Deletes, del)
		}

		if !wanted {
			continue
		}

		have := make(map[int]struct{}, len(ex.Slots))
		for _, slot := range ex.Slots {
			have[slot.Hour] = struct{}{}
		}
		ins := DateChange{Date: ex.Date, DateID: ex.DateID}
		for _, h := range requested.Hours(ex.Date) {
			if _, ok := have[h]; !ok {
				ins.Hours = append(ins.Hours, h)
			}
		}
		if len(ins.Hours) > 0 {
			plan.Inserts = append(plan.Inserts, ins)
		}
	}

	for _, date := range requested.Dates() {
		if _, ok := known[date]; ok {
			continue
		}
		hours := requested.Hours(date)
		if len(hours) == 0 {
			continue
		}
		plan.Inserts = append(plan.Inserts, DateChange{Date: date, Hours: hours, NewDate: true})
	}

	sortChanges(plan.Inserts)
	sortChanges(plan.Deletes)

	return plan
}

func sortChanges(changes []DateChange) {
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Date < changes[j].Date
	})
}

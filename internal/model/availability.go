package model

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	// MinHour и MaxHour ограничивают час слота включительно
	MinHour = 8
	MaxHour = 22

	// DateLayout формат ключа даты в расписании
	DateLayout = "2006-01-02"
)

// AvailabilityDate дата, которую владелец открыл для встреч
type AvailabilityDate struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// AvailabilitySlot один час внутри AvailabilityDate
type AvailabilitySlot struct {
	ID     int64 `json:"id"`
	DateID int64 `json:"date_id"`
	Hour   int   `json:"hour"`

	// Заполняются при выборке с join (не из availability_slots)
	OwnerID int64  `json:"owner_id,omitempty"`
	Date    string `json:"date,omitempty"`

	// Владелец убрал слот из расписания, новые запросы на него не принимаются
	Withdrawn bool `json:"withdrawn,omitempty"`
}

// DateAvailability дата вместе с её слотами, отсортированными по часу
type DateAvailability struct {
	DateID int64              `json:"date_id"`
	Date   string             `json:"date"`
	Slots  []AvailabilitySlot `json:"slots"`
}

// Hours возвращает часы слотов даты
func (d DateAvailability) Hours() []int {
	hours := make([]int, 0, len(d.Slots))
	for _, slot := range d.Slots {
		hours = append(hours, slot.Hour)
	}
	return hours
}

// HourSet набор часов одной даты
type HourSet map[int]struct{}

// Schedule желаемое расписание владельца: дата -> набор часов.
// Итерация всегда идёт в порядке дат и часов.
type Schedule map[string]HourSet

// NewSchedule строит расписание из обычной карты, повторы часов схлопываются
func NewSchedule(days map[string][]int) Schedule {
	s := make(Schedule, len(days))
	for date, hours := range days {
		s.Add(date, hours...)
	}
	return s
}

// Add добавляет часы к дате, создавая дату при необходимости
func (s Schedule) Add(date string, hours ...int) {
	set, ok := s[date]
	if !ok {
		set = make(HourSet, len(hours))
		s[date] = set
	}
	for _, h := range hours {
		set[h] = struct{}{}
	}
}

// Has сообщает, есть ли дата в расписании
func (s Schedule) Has(date string) bool {
	_, ok := s[date]
	return ok
}

// Contains сообщает, есть ли час в дате
func (s Schedule) Contains(date string, hour int) bool {
	_, ok := s[date][hour]
	return ok
}

// Dates возвращает даты по возрастанию
func (s Schedule) Dates() []string {
	dates := make([]string, 0, len(s))
	for date := range s {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// Hours возвращает часы даты по возрастанию
func (s Schedule) Hours(date string) []int {
	set := s[date]
	hours := make([]int, 0, len(set))
	for h := range set {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return hours
}

// MarshalJSON кодирует расписание как {"2024-03-15": [8, 9]}
func (s Schedule) MarshalJSON() ([]byte, error) {
	out := make(map[string][]int, len(s))
	for date := range s {
		out[date] = s.Hours(date)
	}
	return json.Marshal(out)
}

// UnmarshalJSON читает расписание из {"2024-03-15": [8, 9]}
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var raw map[string][]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewSchedule(raw)
	return nil
}

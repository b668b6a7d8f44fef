package model

import "time"

type AppointmentStatus string

const (
	AppointmentStatusWaiting  AppointmentStatus = "WAITING"  // Ожидает ответа получателя
	AppointmentStatusAccepted AppointmentStatus = "ACCEPTED" // Принято
	AppointmentStatusRejected AppointmentStatus = "REJECTED" // Отклонено получателем
	AppointmentStatusExpired  AppointmentStatus = "EXPIRED"  // Истекло без ответа
	AppointmentStatusDone     AppointmentStatus = "DONE"     // Встреча состоялась
)

// ExpireAfter срок ответа по умолчанию, переопределяется через EXPIRE_AFTER
const ExpireAfter = 24 * time.Hour

// IsTerminal сообщает, что из статуса больше нет переходов по действию получателя
func (s AppointmentStatus) IsTerminal() bool {
	return s != AppointmentStatusWaiting
}

type Appointment struct {
	ID          int64             `json:"id"`
	RequesterID int64             `json:"requester_id"`
	ReceiverID  int64             `json:"receiver_id"`
	Status      AppointmentStatus `json:"status"`
	Question    string            `json:"question"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	// Дополнительные поля для удобства (не из БД)
	SlotIDs []int64 `json:"slot_ids,omitempty"`
}

// AppointmentView строка списка встреч с данными собеседника
type AppointmentView struct {
	AppointmentID        int64              `json:"appointment_id"`
	Status               AppointmentStatus  `json:"status"`
	CounterpartUserID    int64              `json:"counterpart_user_id"`
	CounterpartProfileID int64              `json:"counterpart_profile_id"`
	CounterpartName      string             `json:"counterpart_name"`
	Question             string             `json:"question"`
	RejectReason         string             `json:"reject_reason,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	Slots                []AvailabilitySlot `json:"slots,omitempty"`
}

// TimeLeft сколько осталось до истечения запроса
type TimeLeft struct {
	Hours   int64 `json:"hour"`
	Minutes int64 `json:"minute"`
}

// NewTimeLeft считает остаток до expiresAt; прошедшее время даёт нули
func NewTimeLeft(now, expiresAt time.Time) TimeLeft {
	d := expiresAt.Sub(now)
	if d < 0 {
		return TimeLeft{}
	}
	hours := int64(d / time.Hour)
	minutes := int64(d/time.Minute) - hours*60
	return TimeLeft{Hours: hours, Minutes: minutes}
}

// AppointmentDetail карточка запроса для просмотра получателем
type AppointmentDetail struct {
	Appointment        Appointment        `json:"appointment"`
	RequesterProfileID int64              `json:"requester_profile_id"`
	RequesterName      string             `json:"requester_name"`
	TimeLeft           TimeLeft           `json:"lasting_time"`
	ProposedSlots      []AvailabilitySlot `json:"proposed_slots"`
}

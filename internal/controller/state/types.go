package state

import "time"

// UserState представляет текущее состояние пользователя в диалоге
type UserState string

const (
	StateNone UserState = "" // Нет активного состояния

	// Получатель вводит причину отказа
	StateRejectReason UserState = "reject_reason"
)

// Ключи временных данных диалога
const (
	DataAppointmentID = "appointment_id"
)

// UserData хранит временные данные пользователя во время диалога
type UserData struct {
	State     UserState
	Data      map[string]interface{} // Временные данные для текущего диалога
	UpdatedAt time.Time
}

package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotificationRequest NotificationKind = "request"
	NotificationAccept  NotificationKind = "accept"
	NotificationReject  NotificationKind = "reject"
	NotificationExpire  NotificationKind = "expire"
)

// Notification событие жизненного цикла встречи для другой стороны
type Notification struct {
	ID              uuid.UUID         `json:"id"`
	Kind            NotificationKind  `json:"kind"`
	TargetProfileID int64             `json:"target_profile_id"`
	AppointmentID   int64             `json:"appointment_id"`
	Status          AppointmentStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
}

// NewNotification создаёт событие с новым идентификатором
func NewNotification(kind NotificationKind, targetProfileID int64, appt *Appointment) Notification {
	return Notification{
		ID:              uuid.New(),
		Kind:            kind,
		TargetProfileID: targetProfileID,
		AppointmentID:   appt.ID,
		Status:          appt.Status,
		CreatedAt:       time.Now(),
	}
}

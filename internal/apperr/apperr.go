// Package apperr описывает типизированные ошибки бизнес-логики.
//
// Каждая ошибка несёт стабильный код (Kind) и сообщение для клиента.
// Детали хранилища остаются в обёрнутой ошибке и наружу не отдаются.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindDuplicateSlot    Kind = "DUPLICATE_SLOT"
	KindNotWaiting       Kind = "NOT_WAITING"
	KindNotReceiver      Kind = "NOT_RECEIVER"
	KindInvalidTimeRange Kind = "INVALID_TIME_RANGE"
	KindNotFound         Kind = "NOT_FOUND"
	KindStoreFailure     Kind = "STORE_FAILURE"
	KindInvalidRequest   Kind = "INVALID_REQUEST"
	KindUnauthorized     Kind = "UNAUTHORIZED"
)

// Error ошибка с кодом
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по коду, чтобы работал errors.Is(err, apperr.ErrNotWaiting)
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Эталонные ошибки для errors.Is
var (
	ErrDuplicateSlot    = &Error{Kind: KindDuplicateSlot, Message: "slot is already taken by an accepted appointment"}
	ErrNotWaiting       = &Error{Kind: KindNotWaiting, Message: "appointment is not waiting"}
	ErrNotReceiver      = &Error{Kind: KindNotReceiver, Message: "only the receiver can answer this appointment"}
	ErrInvalidTimeRange = &Error{Kind: KindInvalidTimeRange, Message: "choose at least one date; hours must be within 8..22"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "nothing found"}
	ErrStoreFailure     = &Error{Kind: KindStoreFailure, Message: "internal error"}
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
)

// New создаёт ошибку с кодом и своим сообщением
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Store оборачивает инфраструктурную ошибку в STORE_FAILURE.
// Уже типизированные ошибки возвращаются как есть.
func Store(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindStoreFailure, Message: ErrStoreFailure.Message, Err: err}
}

// KindOf возвращает код ошибки; нетипизированные считаются STORE_FAILURE
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStoreFailure
}

// MessageOf возвращает безопасное для клиента сообщение
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ErrStoreFailure.Message
}

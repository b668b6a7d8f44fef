package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/meetup_scheduler/internal/apperr"
)

// ConflictCounter считает принятые встречи получателя на тех же слотах
type ConflictCounter interface {
	CountAcceptedConflicts(ctx context.Context, receiverID int64, slotIDs []int64, excludeID int64) (int, error)
}

// ConflictGuard не даёт двум принятым встречам занять один слот получателя.
//
// Check вызывается внутри той же транзакции, что и последующая запись,
// после LockOwner(receiverID): иначе два запроса успеют пройти проверку
// до коммита друг друга. Уникальный ключ accepted_slots страхует на коммите.
type ConflictGuard struct{}

// Check возвращает DUPLICATE_SLOT, если хотя бы один слот уже занят принятой встречей.
// excludeID исключает из подсчёта саму проверяемую встречу.
func (ConflictGuard) Check(ctx context.Context, q ConflictCounter, receiverID int64, slotIDs []int64, excludeID int64) error {
	count, err := q.CountAcceptedConflicts(ctx, receiverID, slotIDs, excludeID)
	if err != nil {
		return apperr.Store(fmt.Errorf("check slot conflicts: %w", err))
	}

	if count > 0 {
		return apperr.New(apperr.KindDuplicateSlot, "one of the chosen times is already booked")
	}

	return nil
}

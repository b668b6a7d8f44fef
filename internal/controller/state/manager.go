package state

import (
	"sync"
	"time"
)

// DefaultTTL через сколько брошенный диалог забывается
const DefaultTTL = 15 * time.Minute

// Manager управляет состояниями диалогов по чатам
type Manager struct {
	mu     sync.RWMutex
	states map[int64]*UserData // chatID -> UserData
	ttl    time.Duration
	now    func() time.Time
}

// NewManager создаёт новый менеджер состояний
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		states: make(map[int64]*UserData),
		ttl:    ttl,
		now:    time.Now,
	}
}

// get возвращает живую запись; вызывать под блокировкой
func (sm *Manager) get(chatID int64) (*UserData, bool) {
	userData, exists := sm.states[chatID]
	if !exists || sm.now().Sub(userData.UpdatedAt) > sm.ttl {
		return nil, false
	}
	return userData, true
}

// GetState получает текущее состояние пользователя
func (sm *Manager) GetState(chatID int64) UserState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if userData, ok := sm.get(chatID); ok {
		return userData.State
	}
	return StateNone
}

// SetState устанавливает состояние пользователя
func (sm *Manager) SetState(chatID int64, state UserState) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if state == StateNone {
		delete(sm.states, chatID)
		return
	}

	userData, ok := sm.get(chatID)
	if !ok {
		userData = &UserData{Data: make(map[string]interface{})}
		sm.states[chatID] = userData
	}
	userData.State = state
	userData.UpdatedAt = sm.now()
}

// GetData получает временные данные пользователя
func (sm *Manager) GetData(chatID int64, key string) (interface{}, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if userData, ok := sm.get(chatID); ok {
		value, ok := userData.Data[key]
		return value, ok
	}
	return nil, false
}

// SetData устанавливает временные данные пользователя
func (sm *Manager) SetData(chatID int64, key string, value interface{}) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	userData, ok := sm.get(chatID)
	if !ok {
		userData = &UserData{State: StateNone, Data: make(map[string]interface{})}
		sm.states[chatID] = userData
	}
	userData.Data[key] = value
	userData.UpdatedAt = sm.now()
}

// ClearState очищает состояние и данные пользователя
func (sm *Manager) ClearState(chatID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.states, chatID)
}

// StartRejectDialog запоминает, какую встречу пользователь отклоняет
func (sm *Manager) StartRejectDialog(chatID, appointmentID int64) {
	sm.SetState(chatID, StateRejectReason)
	sm.SetData(chatID, DataAppointmentID, appointmentID)
}

// PendingReject ID встречи, для которой ждём причину отказа
func (sm *Manager) PendingReject(chatID int64) (int64, bool) {
	if sm.GetState(chatID) != StateRejectReason {
		return 0, false
	}
	raw, ok := sm.GetData(chatID, DataAppointmentID)
	if !ok {
		return 0, false
	}
	id, ok := raw.(int64)
	return id, ok
}

// Sweep удаляет просроченные диалоги
func (sm *Manager) Sweep() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	removed := 0
	for chatID := range sm.states {
		if _, ok := sm.get(chatID); !ok {
			delete(sm.states, chatID)
			removed++
		}
	}
	return removed
}

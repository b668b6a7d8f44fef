package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRejectDialog(t *testing.T) {
	sm := NewManager(time.Minute)

	_, ok := sm.PendingReject(1)
	assert.False(t, ok)

	sm.StartRejectDialog(1, 42)
	id, ok := sm.PendingReject(1)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = sm.PendingReject(2)
	assert.False(t, ok, "dialogs are per chat")

	sm.ClearState(1)
	assert.Equal(t, StateNone, sm.GetState(1))
}

func TestDialogExpires(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	sm := NewManager(time.Minute)
	sm.now = func() time.Time { return now }

	sm.StartRejectDialog(1, 42)
	now = now.Add(2 * time.Minute)

	_, ok := sm.PendingReject(1)
	assert.False(t, ok)
	assert.Equal(t, 1, sm.Sweep())
	assert.Equal(t, 0, sm.Sweep())
}

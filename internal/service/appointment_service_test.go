package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/meetup_scheduler/internal/apperr"
	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) create(t *testing.T, slotIDs ...int64) *model.Appointment {
	t.Helper()

	appt, err := f.appointments.Create(context.Background(), CreateRequest{
		RequesterID:     requesterID,
		TargetProfileID: f.owner.ID,
		SlotIDs:         slotIDs,
		Question:        "  Can we talk about the project?  ",
	})
	require.NoError(t, err)
	return appt
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ids := f.store.seedAvailability(ownerID, map[string][]int{"2024-03-15": {9, 10}})

	appt := f.create(t, ids["2024-03-15"][9], ids["2024-03-15"][10], ids["2024-03-15"][9])

	assert.Equal(t, model.AppointmentStatusWaiting, appt.Status)
	assert.Equal(t, ownerID, appt.ReceiverID)
	assert.Equal(t, requesterID, appt.RequesterID)
	assert.Equal(t, "Can we talk about the project?", appt.Question)
	assert.Len(t, appt.SlotIDs, 2, "duplicate slot ids are collapsed")

	stored, err := f.store.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, appt.SlotIDs, stored.SlotIDs)

	assert.Equal(t, []string{"/topic/appointment/1001"}, f.notifier.topics)
	assert.Equal(t, []model.NotificationKind{model.NotificationRequest}, f.notifier.kinds())
	assert.Equal(t, f.owner.ID, f.notifier.events[0].TargetProfileID)
}

func TestCreate_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ids := f.store.seedAvailability(ownerID, map[string][]int{"2024-03-15": {9}})
	foreign := f.store.seedAvailability(strangerID, map[string][]int{"2024-03-15": {9}})
	slot := ids["2024-03-15"][9]

	tests := []struct {
		name string
		req  CreateRequest
		kind apperr.Kind
	}{
		{
			name: "no slots",
			req:  CreateRequest{RequesterID: requesterID, TargetProfileID: f.owner.ID},
			kind: apperr.KindInvalidRequest,
		},
		{
			name: "unknown profile",
			req:  CreateRequest{RequesterID: requesterID, TargetProfileID: 42, SlotIDs: []int64{slot}},
			kind: apperr.KindNotFound,
		},
		{
			name: "self request",
			req:  CreateRequest{RequesterID: ownerID, TargetProfileID: f.owner.ID, SlotIDs: []int64{slot}},
			kind: apperr.KindInvalidRequest,
		},
		{
			name: "slot of another owner",
			req:  CreateRequest{RequesterID: requesterID, TargetProfileID: f.owner.ID, SlotIDs: []int64{foreign["2024-03-15"][9]}},
			kind: apperr.KindInvalidRequest,
		},
		{
			name: "missing slot",
			req:  CreateRequest{RequesterID: requesterID, TargetProfileID: f.owner.ID, SlotIDs: []int64{slot, 9999}},
			kind: apperr.KindNotFound,
		},
		{
			name: "question too long",
			req: CreateRequest{
				RequesterID:     requesterID,
				TargetProfileID: f.owner.ID,
				SlotIDs:         []int64{slot},
				Question:        strings.Repeat("я", MaxQuestionLength+1),
			},
			kind: apperr.KindInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.appointments.Create(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	assert.Empty(t, f.store.st.appts)
	assert.Empty(t, f.notifier.events)
}

func TestCreate_ConflictWithAccepted(t *testing.T) {
	f := newFixture(t)
	ids := f.store.seedAvailability(ownerID, map[string][]int{"2024-03-15": {9, 10}})
	nine, ten := ids["2024-03-15"][9], ids["2024-03-15"][10]

	first := f.create(t, nine)
	_, err := f.appointments.Accept(context.Background(), first.ID, ownerID)
	require.NoError(t, err)

	_, err = f.appointments.Create(context.Background(), CreateRequest{
		RequesterID:     requesterID,
		TargetProfileID: f.owner.ID,
		SlotIDs:         []int64{ten, nine},
	})
	assert.ErrorIs(t, err, apperr.ErrDuplicateSlot)
	assert.Len(t, f.store.st.appts, 1, "nothing is persisted on conflict")

	f.create(t, ten)
}

func TestCreate_StoreFailure(t *testing.T) {
	f := newFixture(t)
	ids := f.store.seedAvailability(ownerID, map[string][]int{"2024-03-15": {9}})
	f.store.failOn = "AddSlotRequests"

	_, err := f.appointments.Create(context.Background(), CreateRequest{
		RequesterID:     requesterID,
		TargetProfileID: f.owner.ID,
		SlotIDs:         []int64{ids["2024-03-15"][9]},
	})

	assert.ErrorIs(t, err, apperr.ErrStoreFailure)
	assert.NotContains(t, apperr.MessageOf(err), "connection reset")
	assert.Empty(t, f.store.st.appts, "appointment row is rolled back")
	assert.Empty(t, f.notifier.events)
}

func TestCreate_NotificationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	ids := f.store.seedAvailability(ownerID, map[string][]int{"2024-03-15": {9}})
	f.notifier.err = errors.New("broker down")

	appt := f.create(t, ids["2024-03-15"][9])

	assert.NotZero(t, appt.ID)
}

func TestAcceptReject_StateMachine(t *testing.T) {
	ctx := context.Background()

	t.Run("accept once", func(t *testing.T) {
		f := newFixture(t)
		ids := f.store.seedAvailability(ownerID, map[string][]int{"2024-03-15": {9}})
		appt := f.create(t, ids["2024-03-15"][9])

		accepted, err := f.appointments.Accept(ctx, appt.ID, ownerID)
		require.NoError(t, err)
		assert.Equal(t, model.AppointmentStatusAccepted, accepted.Status)

		_, err = f.appointments.Accept(ctx, appt.ID, ownerID)
		assert.ErrorIs(t, err, apperr.ErrNotWaiting)
		_, err = f.appointments.Reject(ctx, appt.ID, ownerID, "late")
		assert.ErrorIs(t, err, apperr.ErrNotWaiting)

		assert.Equal(t,
			[]model.NotificationKind{model.NotificationRequest, model.NotificationAccept},
			f.notifier.kinds())
		assert.Equal(t, f.requester.ID, f.notifier.events[1].TargetProfileID)
	})

	t.Run("reject once", func(t *testing.T) {
		f := newFixture(t)
		ids := f.store.seedAvailability(ownerID, map[string][]int{"2024-03-15": {9}})
		appt := f.create(t, ids["2024-03-15"][9])

		rejected, err := f.appointments.Reject(ctx, appt.ID, ownerID, " busy that week ")
		require.NoError(t, err)
		assert.Equal(t, model.AppointmentStatusRejected, rejected.Status)
		assert.Equal(t, "busy that week", f.store.st.rejections[appt.ID])

		_, err = f.appointments.Accept(ctx, appt.ID, ownerID)
		assert.ErrorIs(t, err, apperr.ErrNotWaiting)
	})

	t.Run("non receiver", func(t *testing.T) {
		f := newFixture(t)
		ids := f.store.seedAvailability(ownerID, map[string][]int{"2024-03-15": {9}})
		appt := f.create(t, ids["2024-03-15"][9])

		for _, actor := range []int64{requesterID, strangerID} {
			_, err := f.appointments.Accept(ctx, appt.ID, actor)
			assert.ErrorIs(t, err, apperr.ErrNotReceiver)
			_, err = f.appointments.Reject(ctx, appt.ID, actor, "")
			assert.ErrorIs(t, err, apperr.ErrNotReceiver)
		}

		_, err := f.appointments.Reject(ctx, appt.ID, ownerID, "")
		require.NoError(t, err)

		_, err = f.appointments.Accept(ctx, appt.ID, strangerID)
		assert.ErrorIs(t, err, apperr.ErrNotReceiver, "receiver check comes before status check")
	})

	t.Run("unknown appointment", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.appointments.Accept(ctx, 404, ownerID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestAccept_NoDoubleAllocation(t *testing.T) {
	f := newFixture(t)
	ids := f.store.seedAvailability(ownerID, map[string][]int{"2024-03-15": {9, 10, 11}})
	nine, ten, eleven := ids["2024-03-15"][9], ids["2024-03-15"][10], ids["2024-03-15"][11]

	proposals := [][]int64{
		{nine}, {nine, ten}, {ten}, {ten, eleven}, {eleven}, {nine, eleven}, {nine},
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		appts []*model.Appointment
	)
	for _, slots := range proposals {
		wg.Add(1)
		go func(slots []int64) {
			defer wg.Done()
			appt, err := f.appointments.Create(context.Background(), CreateRequest{
				RequesterID:     requesterID,
				TargetProfileID: f.owner.ID,
				SlotIDs:         slots,
			})
			if err != nil {
				return
			}
			mu.Lock()
			appts = append(appts, appt)
			mu.Unlock()
		}(slots)
	}
	wg.Wait()
	require.Len(t, appts, len(proposals))

	for _, appt := range appts {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.appointments.Accept(context.Background(), id, ownerID)
			if err != nil {
				assert.ErrorIs(t, err, apperr.ErrDuplicateSlot)
			}
		}(appt.ID)
	}
	wg.Wait()

	holders := map[int64]int{}
	accepted := 0
	for id, appt := range f.store.st.appts {
		if appt.Status != model.AppointmentStatusAccepted {
			continue
		}
		accepted++
		for _, slot := range f.store.st.requests[id] {
			holders[slot]++
		}
	}

	assert.NotZero(t, accepted)
	for slot, n := range holders {
		assert.Equal(t, 1, n, "slot %d is held by %d accepted appointments", slot, n)
	}
}

func TestAcceptReject_ConcurrentOnSameAppointment(t *testing.T) {
	f := newFixture(t)
	ids := f.store.seedAvailability(ownerID, map[string][]int{"2024-03-15": {9}})
	appt := f.create(t, ids["2024-03-15"][9])

	const attempts = 8
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = f.appointments.Accept(context.Background(), appt.ID, ownerID)
			} else {
				_, errs[i] = f.appointments.Reject(context.Background(), appt.ID, ownerID, "no")
			}
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrNotWaiting)
	}
	assert.Equal(t, 1, succeeded)
}

func TestLists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.appointments.ListSent(ctx, requesterID)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "empty list is signalled as NOT_FOUND")

	ids := f.store.seedAvailability(ownerID, map[string][]int{"2024-03-15": {9, 10}})
	waiting := f.create(t, ids["2024-03-15"][9])
	rejected := f.create(t, ids["2024-03-15"][10])
	_, err = f.appointments.Reject(ctx, rejected.ID, ownerID, "sick")
	require.NoError(t, err)

	sent, err := f.appointments.ListSent(ctx, requesterID)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, waiting.ID, sent[0].AppointmentID)
	assert.Equal(t, f.owner.ID, sent[0].CounterpartProfileID)

	received, err := f.appointments.ListReceived(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, f.requester.ID, received[0].CounterpartProfileID)

	refused, err := f.appointments.ListRefused(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, refused, 1)
	assert.Equal(t, "sick", refused[0].RejectReason)

	_, err = f.appointments.ListDone(ctx, requesterID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.appointments.ListReceived(ctx, requesterID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDetail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.store.seedAvailability(ownerID, map[string][]int{"2024-03-15": {10, 9}})
	appt := f.create(t, ids["2024-03-15"][10], ids["2024-03-15"][9])

	f.appointments.now = func() time.Time { return testNow.Add(90 * time.Minute) }

	detail, err := f.appointments.Detail(ctx, appt.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, model.TimeLeft{Hours: 22, Minutes: 30}, detail.TimeLeft)
	assert.Equal(t, f.requester.ID, detail.RequesterProfileID)
	assert.Equal(t, "Requester", detail.RequesterName)
	require.Len(t, detail.ProposedSlots, 2)
	assert.Equal(t, 9, detail.ProposedSlots[0].Hour)
	assert.Equal(t, 10, detail.ProposedSlots[1].Hour)

	_, err = f.appointments.Detail(ctx, appt.ID, requesterID)
	assert.NoError(t, err)

	_, err = f.appointments.Detail(ctx, appt.ID, strangerID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestExpireStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := f.store.seedAvailability(ownerID, map[string][]int{"2024-03-15": {9, 10}})
	stale := f.create(t, ids["2024-03-15"][9])

	n, err := f.appointments.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.appointments.now = func() time.Time { return testNow.Add(model.ExpireAfter + time.Minute) }

	n, err = f.appointments.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.AppointmentStatusExpired, f.store.st.appts[stale.ID].Status)

	_, err = f.appointments.Accept(ctx, stale.ID, ownerID)
	assert.ErrorIs(t, err, apperr.ErrNotWaiting)

	kinds := f.notifier.kinds()
	assert.Equal(t, model.NotificationExpire, kinds[len(kinds)-1])

	refused, err := f.appointments.ListRefused(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusExpired, refused[0].Status)
}

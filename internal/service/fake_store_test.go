package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/meetup_scheduler/internal/model"
	"github.com/Freeeeeet/meetup_scheduler/internal/repository"
)

// memState данные памяти-хранилища; копируется целиком для отката транзакции
type memState struct {
	seq        int64
	profiles   map[int64]model.Profile
	dates      map[int64]model.AvailabilityDate
	slots      map[int64]model.AvailabilitySlot
	appts      map[int64]model.Appointment
	requests   map[int64][]int64 // appointment -> slots
	accepted   map[[2]int64]int64
	rejections map[int64]string
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:        s.seq,
		profiles:   make(map[int64]model.Profile, len(s.profiles)),
		dates:      make(map[int64]model.AvailabilityDate, len(s.dates)),
		slots:      make(map[int64]model.AvailabilitySlot, len(s.slots)),
		appts:      make(map[int64]model.Appointment, len(s.appts)),
		requests:   make(map[int64][]int64, len(s.requests)),
		accepted:   make(map[[2]int64]int64, len(s.accepted)),
		rejections: make(map[int64]string, len(s.rejections)),
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.dates {
		c.dates[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.appts {
		c.appts[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = append([]int64(nil), v...)
	}
	for k, v := range s.accepted {
		c.accepted[k] = v
	}
	for k, v := range s.rejections {
		c.rejections[k] = v
	}
	return c
}

// memStore хранилище в памяти с той же семантикой, что у PostgreSQL-реализации.
// InTx выполняет транзакции строго по очереди и откатывает состояние при ошибке.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	st     *memState
	now    func() time.Time
	writes int
	calls  map[string]int
	failOn string
}

var _ Store = (*memStore)(nil)

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		st: &memState{
			profiles:   map[int64]model.Profile{},
			dates:      map[int64]model.AvailabilityDate{},
			slots:      map[int64]model.AvailabilitySlot{},
			appts:      map[int64]model.Appointment{},
			requests:   map[int64][]int64{},
			accepted:   map[[2]int64]int64{},
			rejections: map[int64]string{},
		},
		now:   now,
		calls: map[string]int{},
	}
}

var errInjected = errors.New("connection reset by peer")

func (m *memStore) fail(op string) error {
	m.calls[op]++
	if m.failOn == op {
		return fmt.Errorf("%s: %w", op, errInjected)
	}
	return nil
}

func (m *memStore) nextID() int64 {
	m.st.seq++
	return m.st.seq
}

func (m *memStore) InTx(ctx context.Context, fn func(q repository.Querier) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.st.clone()
	writes := m.writes
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.st = snapshot
		m.writes = writes
		m.mu.Unlock()
		return err
	}
	return nil
}

// addProfile заводит пользователя с профилем; ID профиля = userID + 1000
func (m *memStore) addProfile(userID int64, name string) model.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := model.Profile{ID: userID + 1000, UserID: userID, Name: name}
	m.st.profiles[p.ID] = p
	return p
}

// seedAvailability кладёт расписание напрямую, минуя сервис
func (m *memStore) seedAvailability(ownerID int64, days map[string][]int) map[string]map[int]int64 {
	ids := map[string]map[int]int64{}
	for _, date := range model.NewSchedule(days).Dates() {
		dateID, _ := m.EnsureDate(context.Background(), ownerID, date)
		_, _ = m.InsertSlots(context.Background(), dateID, days[date])
		ids[date] = map[int]int64{}
		for id, slot := range m.st.slots {
			if slot.DateID == dateID {
				ids[date][slot.Hour] = id
			}
		}
	}
	m.writes = 0
	m.calls = map[string]int{}
	return ids
}

// slotRefs статусы встреч, которые ссылаются на слот
func (m *memStore) slotRefs(slotID int64) []model.AppointmentStatus {
	var statuses []model.AppointmentStatus
	for apptID, slots := range m.st.requests {
		for _, id := range slots {
			if id == slotID {
				statuses = append(statuses, m.st.appts[apptID].Status)
			}
		}
	}
	return statuses
}

func (m *memStore) reservedSlots() map[int64]bool {
	reserved := map[int64]bool{}
	for apptID, slots := range m.st.requests {
		status := m.st.appts[apptID].Status
		if status == model.AppointmentStatusAccepted || status == model.AppointmentStatusDone {
			for _, id := range slots {
				reserved[id] = true
			}
		}
	}
	return reserved
}

func (m *memStore) ReservedHours(ctx context.Context, ownerID int64, from time.Time) (model.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ReservedHours"); err != nil {
		return nil, err
	}

	fromDay := from.Format(model.DateLayout)
	out := model.Schedule{}
	for id := range m.reservedSlots() {
		slot := m.st.slots[id]
		date := m.st.dates[slot.DateID]
		if date.OwnerID == ownerID && date.Date >= fromDay {
			out.Add(date.Date, slot.Hour)
		}
	}
	return out, nil
}

func (m *memStore) ListOpenAvailability(ctx context.Context, ownerID int64, from time.Time) ([]model.DateAvailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListOpenAvailability"); err != nil {
		return nil, err
	}

	reserved := m.reservedSlots()

	fromDay := from.Format(model.DateLayout)
	byDate := map[int64]*model.DateAvailability{}
	for _, slot := range m.st.slots {
		date := m.st.dates[slot.DateID]
		if date.OwnerID != ownerID || date.Date < fromDay || reserved[slot.ID] || slot.Withdrawn {
			continue
		}
		da, ok := byDate[date.ID]
		if !ok {
			da = &model.DateAvailability{DateID: date.ID, Date: date.Date}
			byDate[date.ID] = da
		}
		slot.OwnerID = ownerID
		slot.Date = date.Date
		da.Slots = append(da.Slots, slot)
	}

	var out []model.DateAvailability
	for _, da := range byDate {
		sort.Slice(da.Slots, func(i, j int) bool { return da.Slots[i].Hour < da.Slots[j].Hour })
		out = append(out, *da)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *memStore) EnsureDate(ctx context.Context, ownerID int64, date string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("EnsureDate"); err != nil {
		return 0, err
	}

	for id, d := range m.st.dates {
		if d.OwnerID == ownerID && d.Date == date {
			return id, nil
		}
	}
	id := m.nextID()
	m.st.dates[id] = model.AvailabilityDate{ID: id, OwnerID: ownerID, Date: date, CreatedAt: m.now()}
	m.writes++
	return id, nil
}

func (m *memStore) InsertSlots(ctx context.Context, dateID int64, hours []int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InsertSlots"); err != nil {
		return 0, err
	}

	var inserted int64
	for _, h := range hours {
		if h < model.MinHour || h > model.MaxHour {
			return 0, fmt.Errorf("insert availability slots: hour %d violates check", h)
		}
		exists := false
		for id, slot := range m.st.slots {
			if slot.DateID == dateID && slot.Hour == h {
				exists = true
				if slot.Withdrawn {
					slot.Withdrawn = false
					m.st.slots[id] = slot
					inserted++
					m.writes++
				}
				break
			}
		}
		if exists {
			continue
		}
		id := m.nextID()
		m.st.slots[id] = model.AvailabilitySlot{ID: id, DateID: dateID, Hour: h}
		inserted++
		m.writes++
	}
	return inserted, nil
}

func (m *memStore) DeleteSlot(ctx context.Context, ownerID, slotID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteSlot"); err != nil {
		return err
	}

	slot, ok := m.st.slots[slotID]
	if !ok || m.st.dates[slot.DateID].OwnerID != ownerID {
		return nil
	}
	refs := m.slotRefs(slotID)
	if len(refs) > 0 {
		for _, status := range refs {
			if status != model.AppointmentStatusRejected && status != model.AppointmentStatusExpired {
				return fmt.Errorf("delete availability slot: %w", repository.ErrReferenced)
			}
		}
		slot.Withdrawn = true
		m.st.slots[slotID] = slot
		m.writes++
		return nil
	}
	delete(m.st.slots, slotID)
	m.writes++
	return nil
}

func (m *memStore) DeleteDate(ctx context.Context, ownerID, dateID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteDate"); err != nil {
		return err
	}

	date, ok := m.st.dates[dateID]
	if !ok || date.OwnerID != ownerID {
		return nil
	}
	hasSlots := false
	for _, slot := range m.st.slots {
		if slot.DateID != dateID {
			continue
		}
		if !slot.Withdrawn {
			return fmt.Errorf("delete availability date: %w", repository.ErrReferenced)
		}
		hasSlots = true
	}
	if hasSlots {
		return nil
	}
	delete(m.st.dates, dateID)
	m.writes++
	return nil
}

func (m *memStore) SlotsByIDs(ctx context.Context, ids []int64) ([]model.AvailabilitySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SlotsByIDs"); err != nil {
		return nil, err
	}

	out := []model.AvailabilitySlot{}
	for _, id := range ids {
		slot, ok := m.st.slots[id]
		if !ok {
			continue
		}
		date := m.st.dates[slot.DateID]
		slot.OwnerID = date.OwnerID
		slot.Date = date.Date
		out = append(out, slot)
	}
	return out, nil
}

func (m *memStore) LockOwner(ctx context.Context, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail("LockOwner")
}

func (m *memStore) CreateAppointment(ctx context.Context, appt *model.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateAppointment"); err != nil {
		return err
	}

	appt.ID = m.nextID()
	appt.CreatedAt = m.now()
	appt.UpdatedAt = appt.CreatedAt
	stored := *appt
	stored.SlotIDs = nil
	m.st.appts[appt.ID] = stored
	m.writes++
	return nil
}

func (m *memStore) AddSlotRequests(ctx context.Context, appointmentID, receiverID int64, slotIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("AddSlotRequests"); err != nil {
		return err
	}

	m.st.requests[appointmentID] = append(m.st.requests[appointmentID], slotIDs...)
	m.writes++
	return nil
}

func (m *memStore) CountAcceptedConflicts(ctx context.Context, receiverID int64, slotIDs []int64, excludeID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CountAcceptedConflicts"); err != nil {
		return 0, err
	}

	want := map[int64]bool{}
	for _, id := range slotIDs {
		want[id] = true
	}

	count := 0
	for apptID, slots := range m.st.requests {
		appt := m.st.appts[apptID]
		if appt.ReceiverID != receiverID || appt.Status != model.AppointmentStatusAccepted || appt.ID == excludeID {
			continue
		}
		for _, id := range slots {
			if want[id] {
				count++
			}
		}
	}
	return count, nil
}

func (m *memStore) getAppointment(id int64) (*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetAppointment"); err != nil {
		return nil, err
	}

	appt, ok := m.st.appts[id]
	if !ok {
		return nil, nil
	}
	appt.SlotIDs = append([]int64(nil), m.st.requests[id]...)
	sort.Slice(appt.SlotIDs, func(i, j int) bool { return appt.SlotIDs[i] < appt.SlotIDs[j] })
	return &appt, nil
}

func (m *memStore) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	return m.getAppointment(id)
}

func (m *memStore) GetAppointmentForUpdate(ctx context.Context, id int64) (*model.Appointment, error) {
	return m.getAppointment(id)
}

func (m *memStore) UpdateAppointmentStatus(ctx context.Context, id int64, status model.AppointmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateAppointmentStatus"); err != nil {
		return err
	}

	appt, ok := m.st.appts[id]
	if !ok {
		return fmt.Errorf("update appointment status: appointment %d not found", id)
	}
	appt.Status = status
	appt.UpdatedAt = m.now()
	m.st.appts[id] = appt
	m.writes++
	return nil
}

func (m *memStore) ReserveSlots(ctx context.Context, receiverID, appointmentID int64, slotIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ReserveSlots"); err != nil {
		return err
	}

	for _, id := range slotIDs {
		if _, taken := m.st.accepted[[2]int64{receiverID, id}]; taken {
			return fmt.Errorf("reserve slots: %w", repository.ErrSlotTaken)
		}
	}
	for _, id := range slotIDs {
		m.st.accepted[[2]int64{receiverID, id}] = appointmentID
	}
	m.writes++
	return nil
}

func (m *memStore) SaveRejection(ctx context.Context, appointmentID int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SaveRejection"); err != nil {
		return err
	}

	m.st.rejections[appointmentID] = reason
	m.writes++
	return nil
}

func (m *memStore) listViews(roleIsRequester bool, userID int64, statuses ...model.AppointmentStatus) ([]model.AppointmentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("List"); err != nil {
		return nil, err
	}

	var views []model.AppointmentView
	for _, appt := range m.st.appts {
		self, other := appt.ReceiverID, appt.RequesterID
		if roleIsRequester {
			self, other = appt.RequesterID, appt.ReceiverID
		}
		if self != userID || !hasStatus(appt.Status, statuses) {
			continue
		}
		v := model.AppointmentView{
			AppointmentID:     appt.ID,
			Status:            appt.Status,
			CounterpartUserID: other,
			Question:          appt.Question,
			RejectReason:      m.st.rejections[appt.ID],
			CreatedAt:         appt.CreatedAt,
		}
		for _, p := range m.st.profiles {
			if p.UserID == other {
				v.CounterpartProfileID = p.ID
				v.CounterpartName = p.Name
			}
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].AppointmentID > views[j].AppointmentID })
	return views, nil
}

func hasStatus(s model.AppointmentStatus, statuses []model.AppointmentStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (m *memStore) ListSent(ctx context.Context, requesterID int64) ([]model.AppointmentView, error) {
	return m.listViews(true, requesterID, model.AppointmentStatusWaiting, model.AppointmentStatusAccepted)
}

func (m *memStore) ListReceived(ctx context.Context, receiverID int64) ([]model.AppointmentView, error) {
	return m.listViews(false, receiverID, model.AppointmentStatusWaiting, model.AppointmentStatusAccepted)
}

func (m *memStore) ListDone(ctx context.Context, requesterID int64) ([]model.AppointmentView, error) {
	return m.listViews(true, requesterID, model.AppointmentStatusDone)
}

func (m *memStore) ListRefused(ctx context.Context, receiverID int64) ([]model.AppointmentView, error) {
	return m.listViews(false, receiverID, model.AppointmentStatusRejected, model.AppointmentStatusExpired)
}

func (m *memStore) ExpireWaiting(ctx context.Context, before time.Time) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ExpireWaiting"); err != nil {
		return nil, err
	}

	var expired []model.Appointment
	for id, appt := range m.st.appts {
		if appt.Status != model.AppointmentStatusWaiting || !appt.CreatedAt.Before(before) {
			continue
		}
		appt.Status = model.AppointmentStatusExpired
		m.st.appts[id] = appt
		expired = append(expired, appt)
		m.writes++
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}

func (m *memStore) ProfileByID(ctx context.Context, profileID int64) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ProfileByID"); err != nil {
		return nil, err
	}

	p, ok := m.st.profiles[profileID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStore) findProfile(match func(p model.Profile) bool) *model.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.st.profiles {
		if match(p) {
			return &p
		}
	}
	return nil
}

func (m *memStore) ProfileByUserID(ctx context.Context, userID int64) (*model.Profile, error) {
	return m.findProfile(func(p model.Profile) bool { return p.UserID == userID }), nil
}

func (m *memStore) ProfileByTelegramChatID(ctx context.Context, chatID int64) (*model.Profile, error) {
	return m.findProfile(func(p model.Profile) bool {
		return p.TelegramChatID != nil && *p.TelegramChatID == chatID
	}), nil
}

func (m *memStore) SetTelegramChatID(ctx context.Context, userID, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.st.profiles {
		if p.UserID != userID && p.TelegramChatID != nil && *p.TelegramChatID == chatID {
			return fmt.Errorf("set telegram chat: %w", repository.ErrChatLinked)
		}
	}
	for id, p := range m.st.profiles {
		if p.UserID == userID {
			p.TelegramChatID = &chatID
			m.st.profiles[id] = p
			return nil
		}
	}
	return errors.New("set telegram chat: profile not found")
}

// recordingNotifier запоминает опубликованные события
type recordingNotifier struct {
	mu     sync.Mutex
	topics []string
	events []model.Notification
	err    error
}

func (n *recordingNotifier) Publish(ctx context.Context, topic string, ev model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.err != nil {
		return n.err
	}
	n.topics = append(n.topics, topic)
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) kinds() []model.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()

	kinds := make([]model.NotificationKind, 0, len(n.events))
	for _, ev := range n.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odontoapp/booking-api/internal/model"
	"github.com/odontoapp/booking-api/internal/repository"
	"github.com/odontoapp/booking-api/internal/service/notification"
	"github.com/odontoapp/booking-api/pkg/logger"
)

// sweepRepo covers only the two calls the worker makes.
type sweepRepo struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]*model.Slot
	markErrs map[uuid.UUID]error
}

func newSweepRepo(slots ...*model.Slot) *sweepRepo {
	r := &sweepRepo{
		slots:    make(map[uuid.UUID]*model.Slot),
		markErrs: make(map[uuid.UUID]error),
	}
	for _, s := range slots {
		r.slots[s.ID] = s
	}
	return r
}

func (r *sweepRepo) FindDueForReminder(_ context.Context, fromDate string) ([]*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Slot
	for _, s := range r.slots {
		if s.Status == model.SlotStatusBooked && !s.ReminderSent && s.Date >= fromDate {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *sweepRepo) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.markErrs[id]; err != nil {
		return err
	}
	s, ok := r.slots[id]
	if !ok {
		return repository.ErrNotFound
	}
	// Same guard as the conditional UPDATE: a slot no longer booked must
	// not get the flag set back.
	if s.Status != model.SlotStatusBooked {
		return nil
	}
	s.ReminderSent = true
	return nil
}

func (r *sweepRepo) cancelByPatient(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[id]
	s.Status = model.SlotStatusAvailable
	s.PatientID = nil
	s.ReminderSent = false
}

func (r *sweepRepo) rebook(id, patientID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[id]
	s.Status = model.SlotStatusBooked
	s.PatientID = &patientID
}

func (r *sweepRepo) Create(context.Context, *model.Slot) error { panic("not used") }
func (r *sweepRepo) Get(context.Context, uuid.UUID) (*model.Slot, error) {
	panic("not used")
}
func (r *sweepRepo) Exists(context.Context, uuid.UUID, string, string) (bool, error) {
	panic("not used")
}
func (r *sweepRepo) ListAvailable(context.Context, *model.SlotFilters) ([]*model.Slot, error) {
	panic("not used")
}
func (r *sweepRepo) ListByProvider(context.Context, uuid.UUID) ([]*model.Slot, error) {
	panic("not used")
}
func (r *sweepRepo) ListByPatient(context.Context, uuid.UUID) ([]*model.Slot, error) {
	panic("not used")
}
func (r *sweepRepo) Claim(context.Context, uuid.UUID, uuid.UUID) (*model.Slot, error) {
	panic("not used")
}
func (r *sweepRepo) CancelByProvider(context.Context, uuid.UUID, string) (*model.Slot, error) {
	panic("not used")
}
func (r *sweepRepo) CancelByPatient(context.Context, uuid.UUID, string) (*model.Slot, error) {
	panic("not used")
}
func (r *sweepRepo) DeleteAvailable(context.Context, uuid.UUID, uuid.UUID) error {
	panic("not used")
}

// recordingNotifier counts SendReminder attempts per appointment.
type recordingNotifier struct {
	mu          sync.Mutex
	attempts    map[uuid.UUID]int
	dispatched  map[uuid.UUID]bool
	failWith    map[uuid.UUID]error
	unreachable map[uuid.UUID]bool
	onDispatch  func(slot *model.Slot)
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		attempts:    make(map[uuid.UUID]int),
		dispatched:  make(map[uuid.UUID]bool),
		failWith:    make(map[uuid.UUID]error),
		unreachable: make(map[uuid.UUID]bool),
	}
}

func (n *recordingNotifier) SendReminder(_ context.Context, slot *model.Slot) (bool, error) {
	n.mu.Lock()
	n.attempts[slot.ID]++
	if err := n.failWith[slot.ID]; err != nil {
		n.mu.Unlock()
		return false, err
	}
	if n.unreachable[slot.ID] {
		n.mu.Unlock()
		return false, nil
	}
	n.dispatched[slot.ID] = true
	n.mu.Unlock()

	if n.onDispatch != nil {
		n.onDispatch(slot)
	}
	return true, nil
}

func (n *recordingNotifier) NotifyCanceledByProvider(context.Context, *model.Slot) (bool, error) {
	panic("not used")
}

func bookedSlot(t *testing.T, date, timeOfDay string) *model.Slot {
	t.Helper()
	patientID := uuid.New()
	return &model.Slot{
		Base:       model.Base{ID: uuid.New()},
		ProviderID: uuid.New(),
		PatientID:  &patientID,
		Date:       date,
		Time:       timeOfDay,
		Status:     model.SlotStatusBooked,
	}
}

func testWorker(repo repository.SlotRepository, notifier notification.Service, now time.Time) *ReminderWorker {
	w := NewReminderWorker(repo, notifier, time.Hour, 24*time.Hour, logger.NewLogger(nil), nil)
	w.now = func() time.Time { return now }
	return w
}

func dayOffset(now time.Time, days int) string {
	return now.AddDate(0, 0, days).Format(model.DateLayout)
}

func TestSweepWindowFilter(t *testing.T) {
	now, err := time.ParseInLocation("2006-01-02 15:04", "2025-09-21 10:00", time.Local)
	require.NoError(t, err)

	inside := bookedSlot(t, dayOffset(now, 0), "15:00")       // 5h out
	edgeTomorrow := bookedSlot(t, dayOffset(now, 1), "09:00") // 23h out
	beyond := bookedSlot(t, dayOffset(now, 1), "12:00")       // 26h out
	past := bookedSlot(t, dayOffset(now, 0), "08:00")         // same date, elapsed

	repo := newSweepRepo(inside, edgeTomorrow, beyond, past)
	notifier := newRecordingNotifier()
	w := testWorker(repo, notifier, now)

	require.NoError(t, w.Sweep(context.Background()))

	assert.True(t, notifier.dispatched[inside.ID])
	assert.True(t, notifier.dispatched[edgeTomorrow.ID])
	assert.False(t, notifier.dispatched[beyond.ID], "outside the lookahead window")
	assert.False(t, notifier.dispatched[past.ID], "already elapsed")

	// Only the dispatched ones get flagged; the others stay eligible.
	assert.True(t, repo.slots[inside.ID].ReminderSent)
	assert.True(t, repo.slots[edgeTomorrow.ID].ReminderSent)
	assert.False(t, repo.slots[beyond.ID].ReminderSent)
	assert.False(t, repo.slots[past.ID].ReminderSent)
}

func TestSweepAtMostOnce(t *testing.T) {
	now, err := time.ParseInLocation("2006-01-02 15:04", "2025-09-21 09:30", time.Local)
	require.NoError(t, err)

	slot := bookedSlot(t, dayOffset(now, 0), "10:00")
	repo := newSweepRepo(slot)
	notifier := newRecordingNotifier()
	w := testWorker(repo, notifier, now)

	require.NoError(t, w.Sweep(context.Background()))
	assert.Equal(t, 1, notifier.attempts[slot.ID])

	// Fifteen minutes later the appointment is still due; the flag keeps
	// the second run from re-dispatching.
	w.now = func() time.Time { return now.Add(15 * time.Minute) }
	require.NoError(t, w.Sweep(context.Background()))

	assert.Equal(t, 1, notifier.attempts[slot.ID], "second run must not re-dispatch")
}

func TestSweepMarksAfterFailedDispatch(t *testing.T) {
	now, err := time.ParseInLocation("2006-01-02 15:04", "2025-09-21 10:00", time.Local)
	require.NoError(t, err)

	slot := bookedSlot(t, dayOffset(now, 0), "15:00")
	repo := newSweepRepo(slot)
	notifier := newRecordingNotifier()
	notifier.failWith[slot.ID] = errors.New("push gateway down")
	w := testWorker(repo, notifier, now)

	require.NoError(t, w.Sweep(context.Background()))

	assert.True(t, repo.slots[slot.ID].ReminderSent,
		"one attempt per appointment, even on dispatch failure")

	require.NoError(t, w.Sweep(context.Background()))
	assert.Equal(t, 1, notifier.attempts[slot.ID])
}

func TestSweepMarksUnreachablePatients(t *testing.T) {
	now, err := time.ParseInLocation("2006-01-02 15:04", "2025-09-21 10:00", time.Local)
	require.NoError(t, err)

	slot := bookedSlot(t, dayOffset(now, 0), "15:00")
	repo := newSweepRepo(slot)
	notifier := newRecordingNotifier()
	notifier.unreachable[slot.ID] = true
	w := testWorker(repo, notifier, now)

	require.NoError(t, w.Sweep(context.Background()))

	assert.True(t, repo.slots[slot.ID].ReminderSent,
		"no token is still a consumed attempt")
}

func TestSweepRetriesWhenMarkFails(t *testing.T) {
	now, err := time.ParseInLocation("2006-01-02 15:04", "2025-09-21 10:00", time.Local)
	require.NoError(t, err)

	slot := bookedSlot(t, dayOffset(now, 0), "15:00")
	repo := newSweepRepo(slot)
	repo.markErrs[slot.ID] = fmt.Errorf("connection reset")
	notifier := newRecordingNotifier()
	w := testWorker(repo, notifier, now)

	require.NoError(t, w.Sweep(context.Background()))
	assert.False(t, repo.slots[slot.ID].ReminderSent)

	// Storage recovers: the next run picks the appointment up again.
	delete(repo.markErrs, slot.ID)
	require.NoError(t, w.Sweep(context.Background()))

	assert.Equal(t, 2, notifier.attempts[slot.ID])
	assert.True(t, repo.slots[slot.ID].ReminderSent)
}

func TestSweepMarkLosesToCancellation(t *testing.T) {
	now, err := time.ParseInLocation("2006-01-02 15:04", "2025-09-21 10:00", time.Local)
	require.NoError(t, err)

	slot := bookedSlot(t, dayOffset(now, 0), "15:00")
	repo := newSweepRepo(slot)
	notifier := newRecordingNotifier()
	// The patient cancels between the sweep's scan and the mark write.
	notifier.onDispatch = func(s *model.Slot) {
		repo.cancelByPatient(s.ID)
	}
	w := testWorker(repo, notifier, now)

	require.NoError(t, w.Sweep(context.Background()))

	assert.Equal(t, model.SlotStatusAvailable, repo.slots[slot.ID].Status)
	assert.False(t, repo.slots[slot.ID].ReminderSent,
		"a reverted slot must keep its reset flag")

	// The next booking of the same slot gets its own reminder.
	notifier.onDispatch = nil
	repo.rebook(slot.ID, uuid.New())
	require.NoError(t, w.Sweep(context.Background()))

	assert.Equal(t, 2, notifier.attempts[slot.ID])
	assert.True(t, repo.slots[slot.ID].ReminderSent)
}

func TestSweepSkipsMalformedSchedule(t *testing.T) {
	now, err := time.ParseInLocation("2006-01-02 15:04", "2025-09-21 10:00", time.Local)
	require.NoError(t, err)

	bad := bookedSlot(t, dayOffset(now, 0), "25:99")
	good := bookedSlot(t, dayOffset(now, 0), "15:00")
	repo := newSweepRepo(bad, good)
	notifier := newRecordingNotifier()
	w := testWorker(repo, notifier, now)

	require.NoError(t, w.Sweep(context.Background()))

	assert.False(t, repo.slots[bad.ID].ReminderSent)
	assert.True(t, notifier.dispatched[good.ID], "one bad row must not poison the pass")
}

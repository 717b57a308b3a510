package slot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odontoapp/booking-api/internal/model"
	"github.com/odontoapp/booking-api/internal/repository"
	apperrors "github.com/odontoapp/booking-api/pkg/errors"
	"github.com/odontoapp/booking-api/pkg/logger"
)

// memSlotRepo is an in-memory SlotRepository. Conditional transitions take
// the mutex for the full read-modify-write, mirroring the single-statement
// guarantees of the real store.
type memSlotRepo struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*model.Slot
}

func newMemSlotRepo() *memSlotRepo {
	return &memSlotRepo{slots: make(map[uuid.UUID]*model.Slot)}
}

func (r *memSlotRepo) Create(_ context.Context, slot *model.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.ProviderID == slot.ProviderID && s.Date == slot.Date && s.Time == slot.Time {
			return repository.ErrDuplicate
		}
	}
	slot.ID = uuid.New()
	slot.Status = model.SlotStatusAvailable
	slot.CreatedAt = time.Now()
	slot.UpdatedAt = time.Now()
	cp := *slot
	r.slots[slot.ID] = &cp
	return nil
}

func (r *memSlotRepo) Get(_ context.Context, id uuid.UUID) (*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSlotRepo) Exists(_ context.Context, providerID uuid.UUID, date, timeOfDay string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.ProviderID == providerID && s.Date == date && s.Time == timeOfDay {
			return true, nil
		}
	}
	return false, nil
}

func (r *memSlotRepo) ListAvailable(_ context.Context, filters *model.SlotFilters) ([]*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Slot
	for _, s := range r.slots {
		if s.Status != model.SlotStatusAvailable {
			continue
		}
		if filters != nil && filters.ProviderID != nil && s.ProviderID != *filters.ProviderID {
			continue
		}
		if filters != nil && filters.Date != "" && s.Date != filters.Date {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memSlotRepo) ListByProvider(_ context.Context, providerID uuid.UUID) ([]*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Slot
	for _, s := range r.slots {
		if s.ProviderID == providerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSlotRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Slot
	for _, s := range r.slots {
		if s.PatientID != nil && *s.PatientID == patientID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSlotRepo) Claim(_ context.Context, id, patientID uuid.UUID) (*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok || s.Status != model.SlotStatusAvailable {
		return nil, repository.ErrNotUpdated
	}
	s.Status = model.SlotStatusBooked
	s.PatientID = &patientID
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *memSlotRepo) CancelByProvider(_ context.Context, id uuid.UUID, reason string) (*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok || s.Status != model.SlotStatusBooked {
		return nil, repository.ErrNotUpdated
	}
	s.Status = model.SlotStatusCanceled
	s.CancellationReason = &reason
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *memSlotRepo) CancelByPatient(_ context.Context, id uuid.UUID, reason string) (*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok || s.Status != model.SlotStatusBooked {
		return nil, repository.ErrNotUpdated
	}
	s.Status = model.SlotStatusAvailable
	s.PatientID = nil
	s.ReminderSent = false
	s.CancellationReason = &reason
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *memSlotRepo) DeleteAvailable(_ context.Context, id, providerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok || s.ProviderID != providerID || s.Status != model.SlotStatusAvailable {
		return repository.ErrNotUpdated
	}
	delete(r.slots, id)
	return nil
}

func (r *memSlotRepo) FindDueForReminder(_ context.Context, fromDate string) ([]*model.Slot, error) {
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

func (r *memSlotRepo) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return repository.ErrNotFound
	}
	if s.Status != model.SlotStatusBooked {
		return nil
	}
	s.ReminderSent = true
	return nil
}

// fakeNotifier records cancellation notices.
type fakeNotifier struct {
	mu            sync.Mutex
	cancellations []uuid.UUID
}

func (f *fakeNotifier) SendReminder(_ context.Context, _ *model.Slot) (bool, error) {
	return false, nil
}

func (f *fakeNotifier) NotifyCanceledByProvider(_ context.Context, slot *model.Slot) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancellations = append(f.cancellations, slot.ID)
	return true, nil
}

func newTestService(repo repository.SlotRepository, notifier *fakeNotifier) *Service {
	return NewService(repo, notifier, nil, logger.NewLogger(nil))
}

func fixedNow(t *testing.T, value string) func() time.Time {
	t.Helper()
	now, err := time.ParseInLocation("2006-01-02 15:04", value, time.Local)
	require.NoError(t, err)
	return func() time.Time { return now }
}

func TestCreateSlotValidation(t *testing.T) {
	providerID := uuid.New()

	tests := []struct {
		name    string
		date    string
		timeStr string
		wantErr apperrors.ErrorCode
	}{
		{"malformed date", "22-09-2025", "09:00", apperrors.ErrBadRequest},
		{"malformed time", "2025-09-22", "9am", apperrors.ErrBadRequest},
		{"elapsed time today", "2025-09-21", "09:00", apperrors.ErrBadRequest},
		{"exact current minute today", "2025-09-21", "12:00", apperrors.ErrBadRequest},
		{"later today", "2025-09-21", "15:30", 0},
		{"tomorrow morning", "2025-09-22", "09:00", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(newMemSlotRepo(), &fakeNotifier{})
			svc.now = fixedNow(t, "2025-09-21 12:00")

			slot, err := svc.CreateSlot(context.Background(), providerID, &model.CreateSlotRequest{
				Date: tt.date,
				Time: tt.timeStr,
			})
			if tt.wantErr != 0 {
				require.Error(t, err)
				assert.True(t, apperrors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.SlotStatusAvailable, slot.Status)
			assert.Nil(t, slot.PatientID)
			assert.False(t, slot.ReminderSent)
		})
	}
}

func TestCreateSlotDuplicate(t *testing.T) {
	svc := newTestService(newMemSlotRepo(), &fakeNotifier{})
	svc.now = fixedNow(t, "2025-09-21 08:00")
	providerID := uuid.New()

	req := &model.CreateSlotRequest{Date: "2025-09-22", Time: "09:00"}
	_, err := svc.CreateSlot(context.Background(), providerID, req)
	require.NoError(t, err)

	_, err = svc.CreateSlot(context.Background(), providerID, req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest), "duplicate is a validation failure")

	// Another provider may offer the same instant.
	_, err = svc.CreateSlot(context.Background(), uuid.New(), req)
	assert.NoError(t, err)
}

func TestClaimSlotConcurrent(t *testing.T) {
	repo := newMemSlotRepo()
	svc := newTestService(repo, &fakeNotifier{})
	svc.now = fixedNow(t, "2025-09-21 08:00")

	slot, err := svc.CreateSlot(context.Background(), uuid.New(), &model.CreateSlotRequest{
		Date: "2025-09-22", Time: "09:00",
	})
	require.NoError(t, err)

	patients := []uuid.UUID{uuid.New(), uuid.New()}
	results := make(chan error, len(patients))

	var wg sync.WaitGroup
	for _, p := range patients {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			_, err := svc.ClaimSlot(context.Background(), slot.ID, patientID)
			results <- err
		}(p)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		if err == nil {
			wins++
		} else if apperrors.Is(err, apperrors.ErrConflict) {
			conflicts++
		}
	}
	assert.Equal(t, 1, wins, "exactly one claim must succeed")
	assert.Equal(t, 1, conflicts, "the loser must see the slot as unavailable")
}

func TestClaimSlotNotFound(t *testing.T) {
	svc := newTestService(newMemSlotRepo(), &fakeNotifier{})

	_, err := svc.ClaimSlot(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestRemoveSlot(t *testing.T) {
	repo := newMemSlotRepo()
	svc := newTestService(repo, &fakeNotifier{})
	svc.now = fixedNow(t, "2025-09-21 08:00")
	providerID := uuid.New()

	slot, err := svc.CreateSlot(context.Background(), providerID, &model.CreateSlotRequest{
		Date: "2025-09-22", Time: "09:00",
	})
	require.NoError(t, err)

	t.Run("not owner looks like not found", func(t *testing.T) {
		err := svc.RemoveSlot(context.Background(), slot.ID, uuid.New())
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("booked slots cannot be removed", func(t *testing.T) {
		_, err := svc.ClaimSlot(context.Background(), slot.ID, uuid.New())
		require.NoError(t, err)

		err = svc.RemoveSlot(context.Background(), slot.ID, providerID)
		assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
	})

	t.Run("owner removes available slot", func(t *testing.T) {
		free, err := svc.CreateSlot(context.Background(), providerID, &model.CreateSlotRequest{
			Date: "2025-09-23", Time: "10:00",
		})
		require.NoError(t, err)

		require.NoError(t, svc.RemoveSlot(context.Background(), free.ID, providerID))

		_, err = repo.Get(context.Background(), free.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestCancelByProvider(t *testing.T) {
	repo := newMemSlotRepo()
	notifier := &fakeNotifier{}
	svc := newTestService(repo, notifier)
	svc.now = fixedNow(t, "2025-09-21 08:00")

	providerID := uuid.New()
	patientID := uuid.New()

	slot, err := svc.CreateSlot(context.Background(), providerID, &model.CreateSlotRequest{
		Date: "2025-09-22", Time: "09:00",
	})
	require.NoError(t, err)
	_, err = svc.ClaimSlot(context.Background(), slot.ID, patientID)
	require.NoError(t, err)

	updated, err := svc.CancelAppointment(context.Background(), slot.ID, providerID, model.RoleProvider, "emergency")
	require.NoError(t, err)

	assert.Equal(t, model.SlotStatusCanceled, updated.Status)
	require.NotNil(t, updated.PatientID, "provider cancellation keeps the patient for history")
	assert.Equal(t, patientID, *updated.PatientID)
	require.NotNil(t, updated.CancellationReason)
	assert.Equal(t, "emergency", *updated.CancellationReason)
	assert.Len(t, notifier.cancellations, 1, "patient must be notified once")

	// Canceled is terminal: it never reappears as available nor claimable.
	available, err := svc.ListAvailable(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, available)

	_, err = svc.ClaimSlot(context.Background(), slot.ID, uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))
}

func TestCancelByPatientFreesSlot(t *testing.T) {
	repo := newMemSlotRepo()
	notifier := &fakeNotifier{}
	svc := newTestService(repo, notifier)
	svc.now = fixedNow(t, "2025-09-21 08:00")

	providerID := uuid.New()
	patientID := uuid.New()

	slot, err := svc.CreateSlot(context.Background(), providerID, &model.CreateSlotRequest{
		Date: "2025-09-22", Time: "09:00",
	})
	require.NoError(t, err)
	_, err = svc.ClaimSlot(context.Background(), slot.ID, patientID)
	require.NoError(t, err)

	// Pretend the sweep already fired for this booking.
	require.NoError(t, repo.MarkReminderSent(context.Background(), slot.ID))

	updated, err := svc.CancelAppointment(context.Background(), slot.ID, patientID, model.RolePatient, "")
	require.NoError(t, err)

	assert.Equal(t, model.SlotStatusAvailable, updated.Status)
	assert.Nil(t, updated.PatientID)
	assert.False(t, updated.ReminderSent, "a re-booking must be able to receive a fresh reminder")
	require.NotNil(t, updated.CancellationReason)
	assert.Equal(t, "canceled by patient", *updated.CancellationReason)
	assert.Empty(t, notifier.cancellations, "self-initiated cancellation sends nothing")

	// The freed slot shows up again for everyone.
	available, err := svc.ListAvailable(context.Background(), &model.SlotFilters{
		ProviderID: &providerID, Date: "2025-09-22",
	})
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, slot.ID, available[0].ID)
}

func TestCancelAuthorization(t *testing.T) {
	repo := newMemSlotRepo()
	svc := newTestService(repo, &fakeNotifier{})
	svc.now = fixedNow(t, "2025-09-21 08:00")

	providerID := uuid.New()
	patientID := uuid.New()

	slot, err := svc.CreateSlot(context.Background(), providerID, &model.CreateSlotRequest{
		Date: "2025-09-22", Time: "09:00",
	})
	require.NoError(t, err)

	t.Run("cancel before booking is invalid", func(t *testing.T) {
		_, err := svc.CancelAppointment(context.Background(), slot.ID, providerID, model.RoleProvider, "")
		assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
	})

	_, err = svc.ClaimSlot(context.Background(), slot.ID, patientID)
	require.NoError(t, err)

	t.Run("a stranger cannot cancel", func(t *testing.T) {
		_, err := svc.CancelAppointment(context.Background(), slot.ID, uuid.New(), model.RolePatient, "")
		assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	})

	t.Run("a different provider cannot cancel", func(t *testing.T) {
		_, err := svc.CancelAppointment(context.Background(), slot.ID, uuid.New(), model.RoleProvider, "")
		assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
	})

	t.Run("second cancel is rejected", func(t *testing.T) {
		_, err := svc.CancelAppointment(context.Background(), slot.ID, patientID, model.RolePatient, "")
		require.NoError(t, err)

		// The slot has reverted and dropped the patient; the former patient
		// must see an invalid state, not a membership failure.
		_, err = svc.CancelAppointment(context.Background(), slot.ID, patientID, model.RolePatient, "")
		assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

		_, err = svc.CancelAppointment(context.Background(), slot.ID, providerID, model.RoleProvider, "")
		assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
	})
}

func TestListMine(t *testing.T) {
	repo := newMemSlotRepo()
	svc := newTestService(repo, &fakeNotifier{})
	svc.now = fixedNow(t, "2025-09-21 08:00")

	providerID := uuid.New()
	patientID := uuid.New()

	first, err := svc.CreateSlot(context.Background(), providerID, &model.CreateSlotRequest{
		Date: "2025-09-22", Time: "09:00",
	})
	require.NoError(t, err)
	_, err = svc.CreateSlot(context.Background(), providerID, &model.CreateSlotRequest{
		Date: "2025-09-22", Time: "10:00",
	})
	require.NoError(t, err)
	_, err = svc.ClaimSlot(context.Background(), first.ID, patientID)
	require.NoError(t, err)

	mineProvider, err := svc.ListMine(context.Background(), providerID, model.RoleProvider)
	require.NoError(t, err)
	assert.Len(t, mineProvider, 2)

	minePatient, err := svc.ListMine(context.Background(), patientID, model.RolePatient)
	require.NoError(t, err)
	require.Len(t, minePatient, 1)
	assert.Equal(t, first.ID, minePatient[0].ID)

	_, err = svc.ListMine(context.Background(), patientID, model.Role("admin"))
	assert.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

// Full booking lifecycle as the mobile flows exercise it.
func TestBookingLifecycle(t *testing.T) {
	repo := newMemSlotRepo()
	notifier := &fakeNotifier{}
	svc := newTestService(repo, notifier)
	svc.now = fixedNow(t, "2025-09-20 08:00")

	providerID := uuid.New()
	patientA := uuid.New()
	patientB := uuid.New()

	slot, err := svc.CreateSlot(context.Background(), providerID, &model.CreateSlotRequest{
		Date: "2025-09-22", Time: "09:00",
	})
	require.NoError(t, err)

	available, err := svc.ListAvailable(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, available, 1)

	booked, err := svc.ClaimSlot(context.Background(), slot.ID, patientA)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusBooked, booked.Status)
	require.NotNil(t, booked.PatientID)
	assert.Equal(t, patientA, *booked.PatientID)

	available, err = svc.ListAvailable(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, available, "booked slot must disappear from listings")

	_, err = svc.ClaimSlot(context.Background(), slot.ID, patientB)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	canceled, err := svc.CancelAppointment(context.Background(), slot.ID, providerID, model.RoleProvider, "emergency")
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusCanceled, canceled.Status)
	assert.Len(t, notifier.cancellations, 1)
}

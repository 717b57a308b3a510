package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odontoapp/booking-api/internal/model"
)

// All repository interfaces in one file
type (
	// SlotRepository persists bookable slots and booked appointments.
	SlotRepository interface {
		Create(ctx context.Context, slot *model.Slot) error
		Get(ctx context.Context, id uuid.UUID) (*model.Slot, error)
		Exists(ctx context.Context, providerID uuid.UUID, date, timeOfDay string) (bool, error)
		ListAvailable(ctx context.Context, filters *model.SlotFilters) ([]*model.Slot, error)
		ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.Slot, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Slot, error)

		// Claim is the atomic conditional transition available -> booked.
		// It must be a single compare-and-swap write; it returns the
		// updated slot, or ErrNotUpdated when the slot was no longer
		// available.
		Claim(ctx context.Context, id, patientID uuid.UUID) (*model.Slot, error)

		// CancelByProvider transitions booked -> canceled keeping the
		// patient reference; CancelByPatient reverts booked -> available,
		// clearing the patient and the reminder flag. Both are conditional
		// on the current status and return ErrNotUpdated when it no longer
		// holds.
		CancelByProvider(ctx context.Context, id uuid.UUID, reason string) (*model.Slot, error)
		CancelByPatient(ctx context.Context, id uuid.UUID, reason string) (*model.Slot, error)

		// DeleteAvailable removes an unbooked slot owned by the provider.
		DeleteAvailable(ctx context.Context, id, providerID uuid.UUID) error

		// FindDueForReminder returns booked, un-reminded appointments on or
		// after fromDate, for the sweep to filter by due instant.
		FindDueForReminder(ctx context.Context, fromDate string) ([]*model.Slot, error)

		// MarkReminderSent sets the flag only while the appointment is
		// still booked; a concurrent patient cancellation wins and the
		// reverted slot keeps reminder_sent = false.
		MarkReminderSent(ctx context.Context, id uuid.UUID) error
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		UpdateProfile(ctx context.Context, user *model.User) error
		UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
		StoreResetCode(ctx context.Context, id uuid.UUID, codeHash string, expires time.Time) error
		ClearResetCode(ctx context.Context, id uuid.UUID) error
		ListProviders(ctx context.Context) ([]*model.ProviderSummary, error)
		GetNotificationTarget(ctx context.Context, id uuid.UUID) (*model.NotificationTarget, error)
	}
)

package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/odontoapp/booking-api/internal/model"
	"github.com/odontoapp/booking-api/internal/repository"
	"github.com/odontoapp/booking-api/internal/service/notification"
	apperrors "github.com/odontoapp/booking-api/pkg/errors"
	"github.com/odontoapp/booking-api/pkg/logger"
	"github.com/odontoapp/booking-api/pkg/messaging"
)

// Default cancellation reasons, applied when the actor supplies none.
const (
	reasonCanceledByProvider = "canceled by provider"
	reasonCanceledByPatient  = "canceled by patient"
)

// Service implements the slot lifecycle: create/list/claim/remove for
// providers and patients, plus the role-branched cancellation workflow.
// All state transitions go through conditional writes in the repository,
// so concurrent actors can never corrupt the booked/available invariants.
type Service struct {
	repo     repository.SlotRepository
	notifSvc notification.Service
	broker   messaging.Broker
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(repo repository.SlotRepository, notifSvc notification.Service, broker messaging.Broker, logger *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		notifSvc: notifSvc,
		broker:   broker,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateSlot opens a new bookable slot for the provider. Same-day slots
// must be strictly in the future of the server clock.
func (s *Service) CreateSlot(ctx context.Context, providerID uuid.UUID, req *model.CreateSlotRequest) (*model.Slot, error) {
	date, err := time.ParseInLocation(model.DateLayout, req.Date, time.Local)
	if err != nil {
		return nil, apperrors.BadRequest("invalid date, expected YYYY-MM-DD", err)
	}

	timeOfDay, err := time.ParseInLocation(model.TimeLayout, req.Time, time.Local)
	if err != nil {
		return nil, apperrors.BadRequest("invalid time, expected HH:MM", err)
	}

	now := s.now()
	if date.Format(model.DateLayout) == now.Format(model.DateLayout) {
		due := time.Date(now.Year(), now.Month(), now.Day(),
			timeOfDay.Hour(), timeOfDay.Minute(), 0, 0, time.Local)
		if !due.After(now) {
			return nil, apperrors.BadRequest("time has already passed for today", nil)
		}
	}

	exists, err := s.repo.Exists(ctx, providerID, req.Date, req.Time)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if exists {
		return nil, apperrors.BadRequest("a slot already exists at this date and time", nil)
	}

	slot := &model.Slot{
		ProviderID: providerID,
		Date:       req.Date,
		Time:       req.Time,
	}

	if err := s.repo.Create(ctx, slot); err != nil {
		// Two providers racing the same triple: the unique index wins
		// where the pre-check could not.
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.BadRequest("a slot already exists at this date and time", err)
		}
		return nil, apperrors.Internal(err)
	}

	return slot, nil
}

func (s *Service) ListAvailable(ctx context.Context, filters *model.SlotFilters) ([]*model.Slot, error) {
	slots, err := s.repo.ListAvailable(ctx, filters)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return slots, nil
}

// ClaimSlot binds the patient to an available slot. The repository performs
// the transition as a single compare-and-swap, so of two concurrent claims
// exactly one succeeds and the other sees the slot as unavailable.
func (s *Service) ClaimSlot(ctx context.Context, slotID, patientID uuid.UUID) (*model.Slot, error) {
	slot, err := s.repo.Claim(ctx, slotID, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotUpdated) {
			if _, getErr := s.repo.Get(ctx, slotID); errors.Is(getErr, repository.ErrNotFound) {
				return nil, apperrors.NotFound("slot", getErr)
			}
			return nil, apperrors.Conflict("slot is no longer available", err)
		}
		return nil, apperrors.Internal(err)
	}

	s.publish(ctx, model.EventSlotBooked, slot)
	return slot, nil
}

// RemoveSlot deletes an unbooked slot owned by the caller. Booked slots can
// only be canceled, never removed.
func (s *Service) RemoveSlot(ctx context.Context, slotID, providerID uuid.UUID) error {
	err := s.repo.DeleteAvailable(ctx, slotID, providerID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotUpdated) {
		return apperrors.Internal(err)
	}

	slot, getErr := s.repo.Get(ctx, slotID)
	if getErr != nil {
		if errors.Is(getErr, repository.ErrNotFound) {
			return apperrors.NotFound("slot", getErr)
		}
		return apperrors.Internal(getErr)
	}

	if slot.ProviderID != providerID {
		// Not the owner: indistinguishable from a missing slot on purpose.
		return apperrors.NotFound("slot", nil)
	}
	return apperrors.Conflict("booked slots cannot be removed, cancel instead", nil)
}

// ListMine returns the caller's slots or appointments depending on role,
// newest first, with the counterpart identity populated.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID, role model.Role) ([]*model.Slot, error) {
	var (
		slots []*model.Slot
		err   error
	)
	switch role {
	case model.RoleProvider:
		slots, err = s.repo.ListByProvider(ctx, userID)
	case model.RolePatient:
		slots, err = s.repo.ListByPatient(ctx, userID)
	default:
		return nil, apperrors.Forbidden("unknown role", nil)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return slots, nil
}

// CancelAppointment applies the role-dependent cancellation branch:
// providers terminate the appointment, patients free the slot back up.
func (s *Service) CancelAppointment(ctx context.Context, id, actorID uuid.UUID, actorRole model.Role, reason string) (*model.Slot, error) {
	slot, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, apperrors.Internal(err)
	}

	// State before party: a patient's second cancel finds the slot already
	// reverted with patient_id cleared, and must read as an invalid state,
	// not a membership failure.
	if slot.Status != model.SlotStatusBooked {
		return nil, apperrors.BadRequest("only booked appointments can be canceled", nil)
	}

	isProvider := actorRole == model.RoleProvider && slot.ProviderID == actorID
	isPatient := actorRole == model.RolePatient && slot.PatientID != nil && *slot.PatientID == actorID
	if !isProvider && !isPatient {
		return nil, apperrors.Forbidden("you are not a party to this appointment", nil)
	}

	var updated *model.Slot
	switch {
	case isProvider:
		if reason == "" {
			reason = reasonCanceledByProvider
		}
		updated, err = s.repo.CancelByProvider(ctx, id, reason)
	default:
		if reason == "" {
			reason = reasonCanceledByPatient
		}
		updated, err = s.repo.CancelByPatient(ctx, id, reason)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotUpdated) {
			// Lost a race with another transition since the read above.
			return nil, apperrors.BadRequest("only booked appointments can be canceled", err)
		}
		return nil, apperrors.Internal(err)
	}

	if isProvider {
		// Notification is a side effect, never a reason to fail the cancel.
		updated.ProviderName = slot.ProviderName
		if _, notifErr := s.notifSvc.NotifyCanceledByProvider(ctx, updated); notifErr != nil {
			s.logger.Error(notifErr, "failed to notify patient of cancellation",
				"appointment_id", id.String())
		}
		s.publish(ctx, model.EventAppointmentCanceled, updated)
	} else {
		s.publish(ctx, model.EventSlotReleased, updated)
	}

	return updated, nil
}

func (s *Service) publish(ctx context.Context, eventType string, slot *model.Slot) {
	if s.broker == nil {
		return
	}
	event := &model.SlotEvent{
		Type:       eventType,
		SlotID:     slot.ID,
		ProviderID: slot.ProviderID,
		PatientID:  slot.PatientID,
		Date:       slot.Date,
		Time:       slot.Time,
	}
	if err := s.broker.Publish(ctx, "slot-events", event); err != nil {
		s.logger.Error(err, "failed to publish slot event", "type", eventType)
	}
}

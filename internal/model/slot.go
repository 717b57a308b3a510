package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBooked    SlotStatus = "booked"
	SlotStatusCanceled  SlotStatus = "canceled"
)

// Slot is a single provider/date/time unit. It doubles as the appointment
// record once a patient claims it: patient_id is set iff status is booked,
// except for provider-canceled appointments, which keep the patient for
// history.
type Slot struct {
	Base
	ProviderID         uuid.UUID  `db:"provider_id" json:"provider_id"`
	PatientID          *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Date               string     `db:"date" json:"date"`
	Time               string     `db:"time" json:"time"`
	Status             SlotStatus `db:"status" json:"status"`
	ReminderSent       bool       `db:"reminder_sent" json:"reminder_sent"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`

	// Counterpart display fields, populated by list queries.
	ProviderName  *string `db:"provider_name" json:"provider_name,omitempty"`
	ProviderEmail *string `db:"provider_email" json:"provider_email,omitempty"`
	PatientName   *string `db:"patient_name" json:"patient_name,omitempty"`
	PatientEmail  *string `db:"patient_email" json:"patient_email,omitempty"`
}

// DueAt composes the naive local due instant from the date and time strings.
func (s *Slot) DueAt() (time.Time, error) {
	due, err := time.ParseInLocation(DateLayout+" "+TimeLayout, s.Date+" "+s.Time, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot date/time %q %q: %w", s.Date, s.Time, err)
	}
	return due, nil
}

type CreateSlotRequest struct {
	Date string `json:"date" validate:"required"`
	Time string `json:"time" validate:"required"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type SlotFilters struct {
	ProviderID *uuid.UUID
	Date       string
}

package model

import "github.com/google/uuid"

// PushMessage is the payload handed to the push dispatcher.
type PushMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

// SlotEvent is published on the message broker whenever a slot changes
// hands, for downstream consumers such as the in-app notification feed.
type SlotEvent struct {
	Type       string     `json:"type"`
	SlotID     uuid.UUID  `json:"slot_id"`
	ProviderID uuid.UUID  `json:"provider_id"`
	PatientID  *uuid.UUID `json:"patient_id,omitempty"`
	Date       string     `json:"date"`
	Time       string     `json:"time"`
}

const (
	EventSlotBooked          = "slot.booked"
	EventSlotReleased        = "slot.released"
	EventAppointmentCanceled = "appointment.canceled"
)

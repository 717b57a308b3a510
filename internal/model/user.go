package model

import (
	"fmt"
	"time"
)

// Role is the account type carried in the JWT and checked at the API
// boundary. Only the two values below exist; anything else is rejected
// when the token is parsed.
type Role string

const (
	RoleProvider Role = "provider"
	RolePatient  Role = "patient"
)

// ParseRole validates a raw role string coming from a token or request.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleProvider:
		return RoleProvider, nil
	case RolePatient:
		return RolePatient, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type User struct {
	Base
	Name         string `db:"name" json:"name"`
	Email        string `db:"email" json:"email"`
	PasswordHash string `db:"password_hash" json:"-"`
	Role         Role   `db:"role" json:"role"`
	Document     string `db:"document" json:"document,omitempty"`
	Phone        string `db:"phone" json:"phone,omitempty"`

	// Notification preferences, consumed by the reminder sweep and the
	// cancellation workflow.
	PushToken        *string `db:"push_token" json:"push_token,omitempty"`
	RemindersEnabled bool    `db:"reminders_enabled" json:"reminders_enabled"`

	ResetCodeHash    *string    `db:"reset_code_hash" json:"-"`
	ResetCodeExpires *time.Time `db:"reset_code_expires" json:"-"`
}

// NotificationTarget is the read-only preference view the notification
// service needs for a patient.
type NotificationTarget struct {
	PushToken        *string `db:"push_token"`
	RemindersEnabled bool    `db:"reminders_enabled"`
	Name             string  `db:"name"`
}

// Reachable reports whether a push can actually be delivered.
func (t *NotificationTarget) Reachable() bool {
	return t != nil && t.PushToken != nil && *t.PushToken != "" && t.RemindersEnabled
}

type UpdateProfileRequest struct {
	Name             *string `json:"name" validate:"omitempty,min=2,max=120"`
	Phone            *string `json:"phone" validate:"omitempty,max=20"`
	PushToken        *string `json:"push_token"`
	RemindersEnabled *bool   `json:"reminders_enabled"`
}

// ProviderSummary is the public directory entry returned to patients
// browsing providers.
type ProviderSummary struct {
	Base
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}

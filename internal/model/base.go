package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Layouts for the naive local date/time strings carried by slots. The
// mobile client sends and renders them as-is, no timezone conversion.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

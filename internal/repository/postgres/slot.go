package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/odontoapp/booking-api/internal/model"
	"github.com/odontoapp/booking-api/internal/repository"
)

const slotColumns = `
	id, provider_id, patient_id, slot_date AS "date", slot_time AS "time",
	status, reminder_sent, cancellation_reason, created_at, updated_at
`

type slotRepository struct {
	db *sqlx.DB
}

func NewSlotRepository(db *sqlx.DB) repository.SlotRepository {
	return &slotRepository{db: db}
}

func (r *slotRepository) Create(ctx context.Context, slot *model.Slot) error {
	query := `
		INSERT INTO slots (
			id, provider_id, slot_date, slot_time, status,
			reminder_sent, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	slot.ID = uuid.New()
	slot.Status = model.SlotStatusAvailable
	slot.CreatedAt = time.Now()
	slot.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		slot.ID,
		slot.ProviderID,
		slot.Date,
		slot.Time,
		slot.Status,
		slot.ReminderSent,
		slot.CreatedAt,
		slot.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create slot: %w", err)
	}
	return nil
}

func (r *slotRepository) Get(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	query := `
		SELECT s.id, s.provider_id, s.patient_id,
			   s.slot_date AS "date", s.slot_time AS "time",
			   s.status, s.reminder_sent, s.cancellation_reason,
			   s.created_at, s.updated_at,
			   pr.name AS provider_name, pr.email AS provider_email,
			   pa.name AS patient_name, pa.email AS patient_email
		FROM slots s
		JOIN users pr ON pr.id = s.provider_id
		LEFT JOIN users pa ON pa.id = s.patient_id
		WHERE s.id = $1
	`

	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) Exists(ctx context.Context, providerID uuid.UUID, date, timeOfDay string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM slots
			WHERE provider_id = $1 AND slot_date = $2 AND slot_time = $3
		)
	`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, providerID, date, timeOfDay)
	if err != nil {
		return false, fmt.Errorf("failed to check slot existence: %w", err)
	}
	return exists, nil
}

func (r *slotRepository) ListAvailable(ctx context.Context, filters *model.SlotFilters) ([]*model.Slot, error) {
	query := `
		SELECT s.id, s.provider_id, s.patient_id,
			   s.slot_date AS "date", s.slot_time AS "time",
			   s.status, s.reminder_sent, s.cancellation_reason,
			   s.created_at, s.updated_at,
			   u.name AS provider_name
		FROM slots s
		JOIN users u ON u.id = s.provider_id
		WHERE s.status = 'available'
	`
	args := []interface{}{}
	argCount := 1

	if filters != nil && filters.ProviderID != nil {
		query += fmt.Sprintf(" AND s.provider_id = $%d", argCount)
		args = append(args, *filters.ProviderID)
		argCount++
	}

	if filters != nil && filters.Date != "" {
		query += fmt.Sprintf(" AND s.slot_date = $%d", argCount)
		args = append(args, filters.Date)
		argCount++
	}

	query += " ORDER BY s.slot_date ASC, s.slot_time ASC"

	var slots []*model.Slot
	err := r.db.SelectContext(ctx, &slots, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list available slots: %w", err)
	}
	return slots, nil
}

func (r *slotRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*model.Slot, error) {
	query := `
		SELECT s.id, s.provider_id, s.patient_id,
			   s.slot_date AS "date", s.slot_time AS "time",
			   s.status, s.reminder_sent, s.cancellation_reason,
			   s.created_at, s.updated_at,
			   u.name AS patient_name, u.email AS patient_email
		FROM slots s
		LEFT JOIN users u ON u.id = s.patient_id
		WHERE s.provider_id = $1
		ORDER BY s.slot_date DESC, s.slot_time DESC
	`
	var slots []*model.Slot
	err := r.db.SelectContext(ctx, &slots, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider slots: %w", err)
	}
	return slots, nil
}

func (r *slotRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Slot, error) {
	query := `
		SELECT s.id, s.provider_id, s.patient_id,
			   s.slot_date AS "date", s.slot_time AS "time",
			   s.status, s.reminder_sent, s.cancellation_reason,
			   s.created_at, s.updated_at,
			   u.name AS provider_name, u.email AS provider_email
		FROM slots s
		JOIN users u ON u.id = s.provider_id
		WHERE s.patient_id = $1
		ORDER BY s.slot_date DESC, s.slot_time DESC
	`
	var slots []*model.Slot
	err := r.db.SelectContext(ctx, &slots, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list patient appointments: %w", err)
	}
	return slots, nil
}

// Claim is the single compare-and-swap write closing the double-booking
// race: the status predicate and the update happen in one statement, so
// of two concurrent claims exactly one sees a row.
func (r *slotRepository) Claim(ctx context.Context, id, patientID uuid.UUID) (*model.Slot, error) {
	query := `
		UPDATE slots
		SET status = 'booked', patient_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'available'
		RETURNING ` + slotColumns

	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, query, id, patientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotUpdated
		}
		return nil, fmt.Errorf("failed to claim slot: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) CancelByProvider(ctx context.Context, id uuid.UUID, reason string) (*model.Slot, error) {
	query := `
		UPDATE slots
		SET status = 'canceled', cancellation_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'booked'
		RETURNING ` + slotColumns

	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, query, id, reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotUpdated
		}
		return nil, fmt.Errorf("failed to cancel appointment: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) CancelByPatient(ctx context.Context, id uuid.UUID, reason string) (*model.Slot, error) {
	query := `
		UPDATE slots
		SET status = 'available', patient_id = NULL, reminder_sent = false,
		    cancellation_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'booked'
		RETURNING ` + slotColumns

	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, query, id, reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotUpdated
		}
		return nil, fmt.Errorf("failed to release slot: %w", err)
	}
	return &slot, nil
}

func (r *slotRepository) DeleteAvailable(ctx context.Context, id, providerID uuid.UUID) error {
	query := `
		DELETE FROM slots
		WHERE id = $1 AND provider_id = $2 AND status = 'available'
	`
	result, err := r.db.ExecContext(ctx, query, id, providerID)
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotUpdated
	}
	return nil
}

func (r *slotRepository) FindDueForReminder(ctx context.Context, fromDate string) ([]*model.Slot, error) {
	query := `
		SELECT s.id, s.provider_id, s.patient_id,
			   s.slot_date AS "date", s.slot_time AS "time",
			   s.status, s.reminder_sent, s.cancellation_reason,
			   s.created_at, s.updated_at,
			   u.name AS provider_name
		FROM slots s
		JOIN users u ON u.id = s.provider_id
		WHERE s.status = 'booked'
		  AND s.reminder_sent = false
		  AND s.slot_date >= $1
		ORDER BY s.slot_date ASC, s.slot_time ASC
	`
	var slots []*model.Slot
	err := r.db.SelectContext(ctx, &slots, query, fromDate)
	if err != nil {
		return nil, fmt.Errorf("failed to find appointments due for reminder: %w", err)
	}
	return slots, nil
}

// MarkReminderSent is guarded on status: if a patient cancellation lands
// between the sweep's scan and this write, the slot is already available
// with the flag reset, and the mark must not resurrect it.
func (r *slotRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE slots
		SET reminder_sent = true, updated_at = now()
		WHERE id = $1 AND status = 'booked'
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}

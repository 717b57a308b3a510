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

const userColumns = `
	id, name, email, password_hash, role, document, phone,
	push_token, reminders_enabled, reset_code_hash, reset_code_expires,
	created_at, updated_at
`

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			id, name, email, password_hash, role, document, phone,
			reminders_enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Document,
		user.Phone,
		user.RemindersEnabled,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user model.User
	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	var user model.User
	err := r.db.GetContext(ctx, &user, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users
		SET name = $1, phone = $2, push_token = $3, reminders_enabled = $4,
		    updated_at = $5
		WHERE id = $6
	`
	user.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		user.Name,
		user.Phone,
		user.PushToken,
		user.RemindersEnabled,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $1, reset_code_hash = NULL, reset_code_expires = NULL,
		    updated_at = now()
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, passwordHash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepository) StoreResetCode(ctx context.Context, id uuid.UUID, codeHash string, expires time.Time) error {
	query := `
		UPDATE users
		SET reset_code_hash = $1, reset_code_expires = $2, updated_at = now()
		WHERE id = $3
	`
	if _, err := r.db.ExecContext(ctx, query, codeHash, expires, id); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}
	return nil
}

func (r *userRepository) ClearResetCode(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET reset_code_hash = NULL, reset_code_expires = NULL, updated_at = now()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to clear reset code: %w", err)
	}
	return nil
}

func (r *userRepository) ListProviders(ctx context.Context) ([]*model.ProviderSummary, error) {
	query := `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE role = 'provider'
		ORDER BY name ASC
	`
	var providers []*model.ProviderSummary
	err := r.db.SelectContext(ctx, &providers, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, nil
}

func (r *userRepository) GetNotificationTarget(ctx context.Context, id uuid.UUID) (*model.NotificationTarget, error) {
	query := `
		SELECT push_token, reminders_enabled, name
		FROM users
		WHERE id = $1
	`
	var target model.NotificationTarget
	err := r.db.GetContext(ctx, &target, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification target: %w", err)
	}
	return &target, nil
}

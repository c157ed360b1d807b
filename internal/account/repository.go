package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Repository is the Postgres-backed Store.
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new account. The email column carries a unique
// constraint; violations surface as ErrDuplicateEmail.
func (r *Repository) Create(ctx context.Context, a *Account) error {
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Version == 0 {
		a.Version = 1
	}

	_, err := r.db.NewInsert().
		Model(a).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// FindByEmail retrieves an account by its lower-cased email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	a := new(Account)
	err := r.db.NewSelect().
		Model(a).
		Where("email = ?", email).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}

	return a, nil
}

// FindByID retrieves an account by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	a := new(Account)
	err := r.db.NewSelect().
		Model(a).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by id: %w", err)
	}

	return a, nil
}

// FindByResetCode retrieves the account holding a live reset code. The
// expiry predicate is part of the query, so an expired code can never
// match no matter what the code string is.
func (r *Repository) FindByResetCode(ctx context.Context, code string, now time.Time) (*Account, error) {
	a := new(Account)
	err := r.db.NewSelect().
		Model(a).
		Where("password_reset_code = ?", code).
		Where("password_reset_expires_at > ?", now).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by reset code: %w", err)
	}

	return a, nil
}

// Save writes the full record guarded by the version the caller read.
// A zero-row update means either the record is gone or someone else
// saved first; the follow-up lookup tells the two apart.
func (r *Repository) Save(ctx context.Context, a *Account) error {
	readVersion := a.Version
	a.Version = readVersion + 1
	a.UpdatedAt = time.Now()

	result, err := r.db.NewUpdate().
		Model(a).
		WherePK().
		Where("version = ?", readVersion).
		Exec(ctx)
	if err != nil {
		a.Version = readVersion
		return fmt.Errorf("failed to save account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		a.Version = readVersion
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		a.Version = readVersion
		exists, err := r.db.NewSelect().
			Model((*Account)(nil)).
			Where("id = ?", a.ID).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to check account existence: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	return nil
}

package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("account not found")
	ErrDuplicateEmail  = errors.New("email already exists")
	ErrVersionConflict = errors.New("account was modified concurrently")
)

// Store is the persistence contract for account records. Save enforces
// an optimistic version check: it fails with ErrVersionConflict when
// the stored record's version no longer matches the one the caller
// read, which is what closes the check-then-act window between
// concurrent verify/resend/reset calls.
type Store interface {
	Create(ctx context.Context, a *Account) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	// FindByResetCode matches only accounts whose reset code equals code
	// AND whose expiry is strictly after now. Expired codes are
	// unreachable by construction.
	FindByResetCode(ctx context.Context, code string, now time.Time) (*Account, error)
	Save(ctx context.Context, a *Account) error
}

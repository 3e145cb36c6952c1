// Package repository defines the storage contracts the rest of the
// application depends on. Concrete implementations live in subpackages
// (repository/sqlite); the service layer only ever sees these interfaces,
// so storage can be swapped (or faked in tests) without touching business
// logic.
package repository

import (
	"context"
	"time"

	"github.com/sakif/learnquest/internal/model"
)

// ListOptions paginates listing queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository is the credential store.
//
// SECRET-FIELD PROJECTION:
// PasswordHash, OTPCode and OTPExpiry are only populated by GetByEmail
// when includeSecrets is true. Every other read returns them zeroed, so a
// record fetched for display can never leak a credential through a
// serialization path. Only the login and reset flows ask for secrets.
//
// PLAINTEXT NEVER TOUCHES DISK:
// Create and ResetPassword take the plaintext password and hash it
// themselves before writing. No method accepts a pre-computed hash and no
// method ever stores a plaintext value, even transiently.
type UserRepository interface {
	// Create validates nothing — callers validate first. It hashes the
	// plaintext, assigns ID/CreatedAt/UpdatedAt, and inserts. A user with
	// the same email (case-insensitive) makes it fail with
	// apperror.ErrConflict.
	Create(ctx context.Context, user *model.User, plaintext string) error

	// GetByEmail looks a user up by email, case-insensitively.
	// Returns apperror.ErrNotFound if no such user exists.
	GetByEmail(ctx context.Context, email string, includeSecrets bool) (*model.User, error)

	// GetByID returns the user with the given internal ID, never including
	// secret fields. Returns apperror.ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*model.User, error)

	// UpdateName changes the display name (the only profile field users
	// may edit themselves).
	UpdateName(ctx context.Context, id, name string) error

	// RecordLogin stamps last_login after a successful credential check.
	RecordLogin(ctx context.Context, id string, at time.Time) error

	// SetOTP stores a reset code and its expiry as a pair, replacing any
	// earlier code. expiry must be in the future.
	SetOTP(ctx context.Context, id, code string, expiry time.Time) error

	// ClearOTP removes any stored reset code. Used when code delivery
	// fails, so no orphaned-but-valid code survives.
	ClearOTP(ctx context.Context, id string) error

	// ResetPassword replaces the password hash AND clears the OTP pair in
	// a single statement. The two changes must not be observable
	// separately — otherwise a concurrent confirm request could verify the
	// same code twice in the window between them.
	ResetPassword(ctx context.Context, id, newPlaintext string) error

	// List returns users ordered by creation time, secrets excluded.
	List(ctx context.Context, opts ListOptions) ([]model.User, error)
}

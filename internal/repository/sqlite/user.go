package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/learnquest/internal/apperror"
	"github.com/sakif/learnquest/internal/auth"
	"github.com/sakif/learnquest/internal/model"
	"github.com/sakif/learnquest/internal/repository"
)

// UserDB is the SQLite-backed credential store.
//
// It holds the PasswordService so hashing happens INSIDE the store: the
// plaintext arrives as a parameter, is hashed synchronously, and only the
// hash ever appears in a SQL statement. No caller can persist a plaintext
// password through this type, and no read path ever returns one.
type UserDB struct {
	conn      *sql.DB
	passwords *auth.PasswordService
}

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// NormalizeEmail lowercases and trims an email address. Every write and
// every lookup goes through this, so "Ada@X.com " and "ada@x.com" are the
// same account — and the UNIQUE index on the stored form enforces
// case-insensitive uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create hashes the plaintext and inserts the new user.
//
// The ID (xid) and lifecycle timestamps are assigned here and written back
// onto the caller's struct, so after a successful Create the *model.User
// is the canonical record.
//
// DUPLICATE DETECTION:
// We lean on the UNIQUE index instead of a SELECT-then-INSERT check — the
// check would race against a concurrent registration for the same email.
// The index can't race; a violation comes back as a constraint error which
// we map to the conflict sentinel.
func (u *UserDB) Create(ctx context.Context, user *model.User, plaintext string) error {
	hash, err := u.passwords.Hash(plaintext)
	if err != nil {
		return fmt.Errorf("sqlite: hashing password for new user: %w", err)
	}

	now := time.Now()
	user.ID = xid.New().String()
	user.Email = NormalizeEmail(user.Email)
	user.PasswordHash = hash
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.RoleStudent
	}

	_, err = u.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, is_email_verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		boolToInt(user.IsEmailVerified),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateEmail(user.Email)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	return nil
}

// GetByEmail looks a user up by (normalized) email.
//
// includeSecrets controls the projection: with false, password_hash and the
// OTP pair are never even SELECTed, so they can't end up populated on a
// record that's about to be serialized. Only login and the reset flows pass
// true.
func (u *UserDB) GetByEmail(ctx context.Context, email string, includeSecrets bool) (*model.User, error) {
	email = NormalizeEmail(email)

	columns := publicColumns
	if includeSecrets {
		columns = secretColumns
	}

	row := u.conn.QueryRowContext(ctx,
		`SELECT `+columns+` FROM users WHERE email = ?`, email,
	)

	user, err := scanUser(row, includeSecrets)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}

	return user, nil
}

// GetByID retrieves a user by internal ID, secrets always excluded.
// This is the lookup the auth middleware runs on every request.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := u.conn.QueryRowContext(ctx,
		`SELECT `+publicColumns+` FROM users WHERE id = ?`, id,
	)

	user, err := scanUser(row, false)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return user, nil
}

// UpdateName changes the display name.
func (u *UserDB) UpdateName(ctx context.Context, id, name string) error {
	return u.exec(ctx, id,
		`UPDATE users SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now(), id,
	)
}

// RecordLogin stamps last_login for a successful login.
func (u *UserDB) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return u.exec(ctx, id,
		`UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`,
		at, time.Now(), id,
	)
}

// SetOTP stores the reset code and expiry as a pair, overwriting any
// earlier pair — generating a new code is what invalidates the old one.
func (u *UserDB) SetOTP(ctx context.Context, id, code string, expiry time.Time) error {
	return u.exec(ctx, id,
		`UPDATE users SET otp_code = ?, otp_expiry = ?, updated_at = ? WHERE id = ?`,
		code, expiry, time.Now(), id,
	)
}

// ClearOTP drops the stored code. Called when mail delivery fails, so a
// code nobody received can't sit around valid.
func (u *UserDB) ClearOTP(ctx context.Context, id string) error {
	return u.exec(ctx, id,
		`UPDATE users SET otp_code = NULL, otp_expiry = NULL, updated_at = ? WHERE id = ?`,
		time.Now(), id,
	)
}

// ResetPassword replaces the hash and clears the OTP in ONE statement.
//
// WHY ONE STATEMENT?
// SQLite applies a single UPDATE atomically. If the hash replacement and
// the OTP clear were separate writes, a concurrent confirm request could
// observe the moment in between — old code still present, already-verified
// — and redeem the same code a second time. One statement means there is
// no such moment.
func (u *UserDB) ResetPassword(ctx context.Context, id, newPlaintext string) error {
	hash, err := u.passwords.Hash(newPlaintext)
	if err != nil {
		return fmt.Errorf("sqlite: hashing replacement password: %w", err)
	}

	return u.exec(ctx, id,
		`UPDATE users SET password_hash = ?, otp_code = NULL, otp_expiry = NULL, updated_at = ?
		 WHERE id = ?`,
		hash, time.Now(), id,
	)
}

// List returns users ordered oldest-first, secrets excluded.
func (u *UserDB) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := u.conn.QueryContext(ctx,
		`SELECT `+publicColumns+` FROM users ORDER BY created_at ASC LIMIT ? OFFSET ?`,
		limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		user, err := scanUser(rows, false)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}

	return users, nil
}

// exec runs an UPDATE targeting one user and converts "zero rows touched"
// into the not-found sentinel. All the small mutators above share it.
func (u *UserDB) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := u.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking update of user %s: %w", id, err)
	}
	if affected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

// Column sets for the two projections. Secret columns are appended at the
// end so scanUser can scan the public prefix identically in both cases.
const (
	publicColumns = `id, name, email, role, is_email_verified, last_login, created_at, updated_at`
	secretColumns = publicColumns + `, password_hash, otp_code, otp_expiry`
)

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanUser reads one row into a model.User.
//
// NULLABLE COLUMNS:
// last_login, otp_code and otp_expiry are NULL until set. database/sql
// can't scan NULL into time.Time or string, so they go through the Null*
// wrapper types and collapse to Go zero values — which is exactly what the
// model treats as "not set".
func scanUser(s scanner, includeSecrets bool) (*model.User, error) {
	var (
		u         model.User
		role      string
		verified  int
		lastLogin sql.NullTime
	)

	dest := []any{
		&u.ID, &u.Name, &u.Email, &role, &verified, &lastLogin,
		&u.CreatedAt, &u.UpdatedAt,
	}

	var (
		otpCode   sql.NullString
		otpExpiry sql.NullTime
	)
	if includeSecrets {
		dest = append(dest, &u.PasswordHash, &otpCode, &otpExpiry)
	}

	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	u.Role = model.Role(role)
	u.IsEmailVerified = verified != 0
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time
	}
	if otpCode.Valid {
		u.OTPCode = otpCode.String
	}
	if otpExpiry.Valid {
		u.OTPExpiry = otpExpiry.Time
	}

	return &u, nil
}

// isUniqueViolation recognises SQLite's unique-constraint error.
// The driver exposes it as a plain error whose message carries the SQLite
// error text, so matching on the constant prefix is the practical check.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

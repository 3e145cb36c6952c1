// Package model defines the data structures used throughout the application.
package model

import "time"

// Role restricts what a user is allowed to do on the platform.
//
// WHY A NAMED STRING TYPE?
// Using `type Role string` instead of bare strings means the compiler helps
// us: a function taking a Role won't silently accept any random string, and
// the valid values are enumerated right here next to the type. The zero
// value ("") is deliberately NOT a valid role — creation paths must choose
// one explicitly (or fall back to RoleStudent).
type Role string

const (
	RoleStudent Role = "student" // default for new accounts
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the three recognised roles.
// Any other value must be rejected at creation time — roles gate access
// to protected operations, so an unknown role is a bug, not a default.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// User represents a registered account.
//
// SECRET FIELDS AND `json:"-"`:
// PasswordHash, OTPCode and OTPExpiry must never leave the server through a
// generic serialization path. The `json:"-"` tag makes encoding/json skip
// them entirely, so even if a handler accidentally encodes a full User the
// secrets stay out of the response. The repository additionally leaves
// these fields zeroed unless the caller explicitly asks for them
// (see repository.UserRepository.GetByEmail).
//
// OTP LIFECYCLE:
// OTPCode/OTPExpiry are transient — set by a password-reset request,
// cleared by a successful confirmation (or simply ignored once expired).
// If OTPCode is set, OTPExpiry is always set too; the repository writes and
// clears them as a pair.
type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"` // stored lowercase + trimmed, unique
	PasswordHash    string    `json:"-"`
	Role            Role      `json:"role"`
	IsEmailVerified bool      `json:"isEmailVerified"` // tracked, not yet enforced by any flow
	OTPCode         string    `json:"-"`
	OTPExpiry       time.Time `json:"-"`
	LastLogin       time.Time `json:"lastLogin"` // zero until the first successful login
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// HasOTP reports whether a reset code is currently stored for the user.
// It does NOT check expiry or match the code — that's the OTP service's
// job, which also compares candidates in constant time.
func (u *User) HasOTP() bool {
	return u.OTPCode != "" && !u.OTPExpiry.IsZero()
}

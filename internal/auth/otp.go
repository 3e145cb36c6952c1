// Package auth — one-time password (OTP) generation and verification.
//
// The OTP is the proof-of-email-control step in the password-reset flow:
// we mail a short numeric code to the account's address, and only someone
// who can read that inbox can complete the reset.
//
// WHY crypto/rand AND NOT math/rand?
// math/rand is seeded and predictable — an attacker who observes a few
// codes could reconstruct the generator state and predict the next one.
// crypto/rand reads from the operating system's CSPRNG, so every code is
// independent of every other. Security tokens always come from crypto/rand.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/sakif/learnquest/internal/model"
)

// DefaultOTPLifetime is how long a reset code stays valid when the config
// doesn't override it. Ten minutes is long enough to check an inbox,
// short enough that a leaked code is useless soon after.
const DefaultOTPLifetime = 10 * time.Minute

// otpMin/otpMax bound the code range. Every code is exactly six digits
// (100000–999999) drawn uniformly — no leading-zero ambiguity, and all
// 900000 values are equally likely.
const (
	otpMin = 100000
	otpMax = 999999
)

// OTPService generates and verifies the numeric reset codes.
//
// Codes are NOT derived from any persistent secret — each Generate call
// produces a fresh independent value. Storing the new code over the old
// one is what invalidates the previous code: there is never more than one
// valid code per user.
type OTPService struct {
	lifetime time.Duration
}

// NewOTPService creates an OTPService with the given code lifetime.
// A non-positive lifetime falls back to DefaultOTPLifetime.
func NewOTPService(lifetime time.Duration) *OTPService {
	if lifetime <= 0 {
		lifetime = DefaultOTPLifetime
	}
	return &OTPService{lifetime: lifetime}
}

// Lifetime returns the configured code lifetime. Handlers use it to tell
// the caller how long they have to complete the reset.
func (s *OTPService) Lifetime() time.Duration {
	return s.lifetime
}

// Generate produces a fresh six-digit code and its expiry timestamp.
//
// It does not touch storage — the caller (the auth service) persists the
// pair on the user record, which atomically replaces any earlier code.
//
// rand.Int(rand.Reader, n) returns a uniform value in [0, n). We ask for
// [0, 900000) and shift by 100000, which keeps the distribution uniform —
// a naive modulo over a wider range would bias the low values.
func (s *OTPService) Generate() (code string, expiry time.Time, err error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: generating OTP: %w", err)
	}

	code = fmt.Sprintf("%06d", n.Int64()+otpMin)
	expiry = time.Now().Add(s.lifetime)
	return code, expiry, nil
}

// Verify reports whether candidate matches the code currently stored on
// the user and that code has not expired at the given instant.
//
// FAIL CLOSED, INDISTINGUISHABLY:
// A missing code, a missing expiry, an expired code and a wrong code all
// return plain false. The caller turns that single false into the single
// "invalid or expired" error — nothing in the response (or its timing,
// see below) tells an attacker WHICH check failed.
//
// CONSTANT-TIME COMPARE:
// subtle.ConstantTimeCompare takes the same time whether the first digit
// or the last digit differs. A naive == on strings short-circuits at the
// first mismatching byte, which in principle leaks how many leading
// digits were right. Six digits is a small space; don't give the attacker
// a position oracle over it.
func (s *OTPService) Verify(user *model.User, candidate string, now time.Time) bool {
	if user == nil || !user.HasOTP() {
		return false
	}
	if now.After(user.OTPExpiry) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(user.OTPCode), []byte(candidate)) == 1
}

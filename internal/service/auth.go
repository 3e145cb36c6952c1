// Package service — authentication business logic.
//
// AuthService is the business-rules layer for accounts. It sits between the
// HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), OTPService, Mailer
//
// KEY RESPONSIBILITIES:
//   - The four credential flows: register, login, request-reset, confirm-reset
//   - Input validation (shape rules live here, not in handlers)
//   - Encapsulate all auth rules in one place, away from HTTP concerns
//   - Be easily testable with fake dependencies
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sakif/learnquest/internal/apperror"
	"github.com/sakif/learnquest/internal/auth"
	"github.com/sakif/learnquest/internal/mailer"
	"github.com/sakif/learnquest/internal/model"
	"github.com/sakif/learnquest/internal/repository"
)

// Input shape rules. Name and password bounds match what the front end
// enforces; the server is the one that actually matters.
const (
	minNameLen     = 2
	maxNameLen     = 50
	minPasswordLen = 6
)

// emailPattern is the standard "something@something.tld" shape check.
// It rejects obvious typos; real deliverability is proven by the reset
// flow actually landing a code in the inbox.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthService handles the account flows.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users     repository.UserRepository → credential store
//   - tokens    *auth.TokenService        → issue/verify session JWTs
//   - passwords *auth.PasswordService     → verify hashes on login
//   - otp       *auth.OTPService          → reset codes
//   - mail      mailer.Mailer             → outbound email
//   - logger    *slog.Logger              → structured logging
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	otp       *auth.OTPService
	mail      mailer.Mailer
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
// Call this in server.go when wiring the dependency graph.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	otp *auth.OTPService,
	mail mailer.Mailer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		otp:       otp,
		mail:      mail,
		logger:    logger,
	}
}

// AuthResult is returned by the flows that establish a session.
// It bundles the user record (secrets zeroed) and the issued JWT so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// RegisterInput is the registration request after JSON decoding.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     model.Role // optional; empty means student
}

// Register creates a new account and logs it straight in.
//
// ORDER OF CHECKS:
// Shape validation first (cheap, no I/O), then the insert. Duplicate email
// detection is left to the store's unique index — a SELECT-first check
// here would race against a concurrent registration.
//
// The welcome email is best-effort: a mail-relay hiccup must not fail a
// registration that has already committed. We log it and move on.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if err := validateName(in.Name); err != nil {
		return nil, err
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = model.RoleStudent
	}
	if !role.Valid() {
		return nil, apperror.ValidationFailed("role", fmt.Sprintf("unknown role %q", in.Role))
	}

	user := &model.User{
		Name:  strings.TrimSpace(in.Name),
		Email: in.Email,
		Role:  role,
	}

	if err := s.users.Create(ctx, user, in.Password); err != nil {
		return nil, fmt.Errorf("service/auth: registering %s: %w", in.Email, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("role", string(user.Role)),
	)

	if err := s.mail.SendWelcome(user.Email, user.Name); err != nil {
		// Swallowed on purpose — see the doc comment.
		s.logger.Warn("welcome email failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}

	// Create wrote the hash back onto the struct; it stops here.
	scrubSecrets(user)
	return s.newSession(user)
}

// Login verifies email + password and issues a session token.
//
// UNIFORM FAILURE:
// "Unknown email" and "wrong password" both return the same
// InvalidCredentials error. The hash check still runs only when a user
// exists, but the RESPONSE never distinguishes the cases — distinguishing
// them would let anyone enumerate registered addresses.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, email, true)
	if err != nil {
		return nil, fmt.Errorf("service/auth: login: %w", apperror.InvalidCredentials())
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, fmt.Errorf("service/auth: login: %w", apperror.InvalidCredentials())
	}

	now := time.Now()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		// The credential check already passed; failing the login over a
		// bookkeeping column would be wrong. Log and continue.
		s.logger.Warn("recording last_login failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLogin = now
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	scrubSecrets(user)
	return s.newSession(user)
}

// RequestReset starts the password-recovery flow: generate a code, store
// it on the account, mail it.
//
// KNOWN TRADEOFF:
// An unknown email returns not-found, which reveals whether an address is
// registered. The product wants the explicit "no account with that email"
// message on the forgot-password form; the cost is enumeration through
// this endpoint. Revisit if abuse shows up (a uniform "if an account
// exists, a code was sent" response is the drop-in fix).
//
// DELIVERY FAILURE CLEANS UP:
// If the mail cannot be sent, the just-stored code is cleared before the
// error returns. A valid code the user never received is pure attack
// surface — nobody legitimate can use it, so it must not exist.
func (s *AuthService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email, false)
	if err != nil {
		return fmt.Errorf("service/auth: reset request: %w", err)
	}

	code, expiry, err := s.otp.Generate()
	if err != nil {
		return fmt.Errorf("service/auth: reset request for %s: %w", user.ID, err)
	}

	if err := s.users.SetOTP(ctx, user.ID, code, expiry); err != nil {
		return fmt.Errorf("service/auth: storing reset code for %s: %w", user.ID, err)
	}

	if err := s.mail.SendResetCode(user.Email, code, s.otp.Lifetime()); err != nil {
		s.logger.Error("reset code delivery failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		if clearErr := s.users.ClearOTP(ctx, user.ID); clearErr != nil {
			s.logger.Error("clearing undelivered reset code failed",
				slog.String("userID", user.ID),
				slog.String("error", clearErr.Error()),
			)
		}
		return fmt.Errorf("service/auth: %w", apperror.DeliveryFailed(err))
	}

	s.logger.Info("reset code issued", slog.String("userID", user.ID))
	return nil
}

// ConfirmReset completes the recovery flow: verify the code, replace the
// password, invalidate the code — the last two in one atomic store write.
//
// UNIFORM FAILURE:
// Unknown email, no pending code, expired code and wrong code all return
// the same "invalid or expired" error. The checks differ; the answer
// doesn't.
//
// No session token is issued here — the user proves the new password works
// by logging in with it.
func (s *AuthService) ConfirmReset(ctx context.Context, email, code, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email, true)
	if err != nil {
		return fmt.Errorf("service/auth: reset confirm: %w", apperror.InvalidCode())
	}

	if !s.otp.Verify(user, code, time.Now()) {
		return fmt.Errorf("service/auth: reset confirm for %s: %w", user.ID, apperror.InvalidCode())
	}

	// One repository call: hash replace + OTP clear in a single UPDATE.
	// The code cannot verify a second time after this returns.
	if err := s.users.ResetPassword(ctx, user.ID, newPassword); err != nil {
		return fmt.Errorf("service/auth: resetting password for %s: %w", user.ID, err)
	}

	s.logger.Info("password reset completed", slog.String("userID", user.ID))
	return nil
}

// OTPLifetime exposes the configured reset-code lifetime so the handler
// can tell callers how long they have to use the code.
func (s *AuthService) OTPLifetime() time.Duration {
	return s.otp.Lifetime()
}

// GetUserByID returns the user for the given internal ID, secrets excluded.
// Used by the /api/me handler after the middleware resolves the token.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}

	return user, nil
}

// UpdateProfile changes the caller's display name — the one profile field
// users may edit themselves. Role and email changes are deliberately not
// exposed.
func (s *AuthService) UpdateProfile(ctx context.Context, id, name string) (*model.User, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	if err := s.users.UpdateName(ctx, id, strings.TrimSpace(name)); err != nil {
		return nil, fmt.Errorf("service/auth: updating profile for %s: %w", id, err)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: reloading user %s: %w", id, err)
	}

	return user, nil
}

// ListUsers returns the account roster for the admin dashboard.
// The role gate lives in the middleware; this just pages through the store.
func (s *AuthService) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	users, err := s.users.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/auth: listing users: %w", err)
	}
	return users, nil
}

// LoginWithGitHub handles the OAuth callback: find the account matching
// the GitHub profile's email, or create one, then issue the same session
// token the password flow issues.
//
// OAUTH ACCOUNTS STILL HAVE A PASSWORD HASH:
// Every stored user has a non-empty hash — the invariant has no
// exceptions. Accounts born through OAuth get a random 32-byte password
// that nobody knows; if the user ever wants password login they go
// through the reset flow, which proves inbox control anyway.
func (s *AuthService) LoginWithGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}
	if ghUser.Email == "" {
		return nil, apperror.ValidationFailed("email",
			"your GitHub email is private — make it public or register with a password")
	}

	user, err := s.users.GetByEmail(ctx, ghUser.Email, false)
	if err == nil {
		now := time.Now()
		if recErr := s.users.RecordLogin(ctx, user.ID, now); recErr == nil {
			user.LastLogin = now
		}
		s.logger.Info("user logged in via GitHub", slog.String("userID", user.ID))
		return s.newSession(user)
	}

	name := ghUser.Login
	if len(name) < minNameLen {
		name = "GitHub User"
	}

	user = &model.User{
		Name:  name,
		Email: ghUser.Email,
		Role:  model.RoleStudent,
	}

	random, err := randomPassword()
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating OAuth placeholder password: %w", err)
	}

	if err := s.users.Create(ctx, user, random); err != nil {
		return nil, fmt.Errorf("service/auth: creating GitHub user %s: %w", ghUser.Email, err)
	}

	s.logger.Info("user registered via GitHub", slog.String("userID", user.ID))
	scrubSecrets(user)
	return s.newSession(user)
}

// newSession issues a token for the (already authenticated) user.
func (s *AuthService) newSession(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// scrubSecrets zeroes the secret fields on a record that was fetched with
// includeSecrets. The JSON tags already hide them from serialization; this
// keeps them from travelling any further in memory than they need to.
func scrubSecrets(user *model.User) {
	user.PasswordHash = ""
	user.OTPCode = ""
	user.OTPExpiry = time.Time{}
}

// randomPassword returns 32 random bytes hex-encoded — an unguessable
// placeholder for OAuth-created accounts.
func randomPassword() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// === INPUT VALIDATION ===

func validateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < minNameLen || len(trimmed) > maxNameLen {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("name must be between %d and %d characters", minNameLen, maxNameLen))
	}
	return nil
}

func validateEmail(email string) error {
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return apperror.ValidationFailed("email", "a valid email address is required")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	if len(password) > 72 {
		// bcrypt's input limit — reject rather than truncate.
		return apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/learnquest/internal/apperror"
	"github.com/sakif/learnquest/internal/auth"
	"github.com/sakif/learnquest/internal/model"
	"github.com/sakif/learnquest/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================

// memRepo is an in-memory UserRepository mirroring the real store's
// contract: it hashes on Create/ResetPassword and projects secrets out
// unless asked for them. Keeping the contract identical is what lets the
// login and reset flows run end-to-end without a database.
type memRepo struct {
	passwords *auth.PasswordService
	users     map[string]*model.User // keyed by ID
	nextID    int

	failRecordLogin bool
	failSetOTP      bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		passwords: auth.NewPasswordService(bcrypt.MinCost),
		users:     make(map[string]*model.User),
	}
}

func (r *memRepo) Create(_ context.Context, user *model.User, plaintext string) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range r.users {
		if existing.Email == email {
			return apperror.DuplicateEmail(email)
		}
	}

	hash, err := r.passwords.Hash(plaintext)
	if err != nil {
		return err
	}

	r.nextID++
	user.ID = fmt.Sprintf("u%d", r.nextID)
	user.Email = email
	user.PasswordHash = hash
	if user.Role == "" {
		user.Role = model.RoleStudent
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now

	stored := *user
	r.users[user.ID] = &stored

	user.PasswordHash = ""
	return nil
}

func (r *memRepo) GetByEmail(_ context.Context, email string, includeSecrets bool) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.users {
		if u.Email == email {
			return r.project(u, includeSecrets), nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (r *memRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return r.project(u, false), nil
}

func (r *memRepo) UpdateName(_ context.Context, id, name string) error {
	u, ok := r.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Name = name
	u.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) RecordLogin(_ context.Context, id string, at time.Time) error {
	if r.failRecordLogin {
		return errors.New("store: write failed")
	}
	u, ok := r.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.LastLogin = at
	return nil
}

func (r *memRepo) SetOTP(_ context.Context, id, code string, expiry time.Time) error {
	if r.failSetOTP {
		return errors.New("store: write failed")
	}
	u, ok := r.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.OTPCode, u.OTPExpiry = code, expiry
	return nil
}

func (r *memRepo) ClearOTP(_ context.Context, id string) error {
	u, ok := r.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.OTPCode, u.OTPExpiry = "", time.Time{}
	return nil
}

func (r *memRepo) ResetPassword(_ context.Context, id, newPlaintext string) error {
	u, ok := r.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	hash, err := r.passwords.Hash(newPlaintext)
	if err != nil {
		return err
	}
	// Same shape as the store's single UPDATE: new hash in, OTP pair out.
	u.PasswordHash = hash
	u.OTPCode, u.OTPExpiry = "", time.Time{}
	u.UpdatedAt = time.Now()
	return nil
}

func (r *memRepo) List(_ context.Context, opts repository.ListOptions) ([]model.User, error) {
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *r.project(u, false))
	}
	return out, nil
}

func (r *memRepo) project(u *model.User, includeSecrets bool) *model.User {
	copied := *u
	if !includeSecrets {
		copied.PasswordHash = ""
		copied.OTPCode = ""
		copied.OTPExpiry = time.Time{}
	}
	return &copied
}

// stored returns the raw record, secrets included — for assertions only.
func (r *memRepo) stored(t *testing.T, email string) *model.User {
	t.Helper()
	for _, u := range r.users {
		if u.Email == email {
			return u
		}
	}
	t.Fatalf("no stored user with email %q", email)
	return nil
}

// captureMailer records outbound mail and can be told to fail.
type captureMailer struct {
	welcomes    []string // recipient addresses
	resetCodes  []string // codes handed to SendResetCode, in order
	failWelcome bool
	failReset   bool
}

func (m *captureMailer) Send(to, subject, body string) error { return nil }

func (m *captureMailer) SendWelcome(to, name string) error {
	if m.failWelcome {
		return errors.New("smtp: connection refused")
	}
	m.welcomes = append(m.welcomes, to)
	return nil
}

func (m *captureMailer) SendResetCode(to, code string, lifetime time.Duration) error {
	if m.failReset {
		return errors.New("smtp: connection refused")
	}
	m.resetCodes = append(m.resetCodes, code)
	return nil
}

func (m *captureMailer) lastResetCode(t *testing.T) string {
	t.Helper()
	if len(m.resetCodes) == 0 {
		t.Fatal("no reset code was mailed")
	}
	return m.resetCodes[len(m.resetCodes)-1]
}

func newTestAuthService(t *testing.T) (*AuthService, *memRepo, *captureMailer) {
	t.Helper()

	repo := newMemRepo()
	mail := &captureMailer{}
	tokens, err := auth.NewTokenService("test-secret-at-least-16b", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	svc := NewAuthService(
		repo,
		tokens,
		repo.passwords,
		auth.NewOTPService(10*time.Minute),
		mail,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return svc, repo, mail
}

func mustRegister(t *testing.T, svc *AuthService, name, email, password string) *AuthResult {
	t.Helper()
	res, err := svc.Register(context.Background(), RegisterInput{
		Name: name, Email: email, Password: password,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return res
}

// =========================================================================
// REGISTER TESTS
// =========================================================================

func TestRegister_ThenLogin(t *testing.T) {
	svc, _, mail := newTestAuthService(t)

	res := mustRegister(t, svc, "Ada", "ada@x.com", "secret1")

	if res.Token == "" {
		t.Error("Register() issued no session token")
	}
	if res.User.Role != model.RoleStudent {
		t.Errorf("Role = %q, want default %q", res.User.Role, model.RoleStudent)
	}
	if len(mail.welcomes) != 1 || mail.welcomes[0] != "ada@x.com" {
		t.Errorf("welcome mail recipients = %v, want [ada@x.com]", mail.welcomes)
	}

	// The account works immediately.
	login, err := svc.Login(context.Background(), "ada@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login() after Register() error = %v", err)
	}
	if login.User.ID != res.User.ID {
		t.Errorf("Login() user = %q, want %q", login.User.ID, res.User.ID)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"name too short", RegisterInput{Name: "A", Email: "a@x.com", Password: "secret1"}},
		{"name too long", RegisterInput{Name: strings.Repeat("a", 51), Email: "a@x.com", Password: "secret1"}},
		{"email without at-sign", RegisterInput{Name: "Ada", Email: "ada.x.com", Password: "secret1"}},
		{"email without domain", RegisterInput{Name: "Ada", Email: "ada@", Password: "secret1"}},
		{"password too short", RegisterInput{Name: "Ada", Email: "ada@x.com", Password: "12345"}},
		{"password over bcrypt limit", RegisterInput{Name: "Ada", Email: "ada@x.com", Password: strings.Repeat("p", 73)}},
		{"unknown role", RegisterInput{Name: "Ada", Email: "ada@x.com", Password: "secret1", Role: "superadmin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.in)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Register() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	mustRegister(t, svc, "Ada", "ada@x.com", "secret1")

	_, err := svc.Register(context.Background(), RegisterInput{
		Name: "Imposter", Email: "ada@x.com", Password: "hunter22",
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Register() error = %v, want ErrConflict", err)
	}
}

func TestRegister_WelcomeMailFailureDoesNotFailRegistration(t *testing.T) {
	svc, _, mail := newTestAuthService(t)
	mail.failWelcome = true

	res, err := svc.Register(context.Background(), RegisterInput{
		Name: "Ada", Email: "ada@x.com", Password: "secret1",
	})
	if err != nil {
		t.Fatalf("Register() error = %v, want success despite mail failure", err)
	}
	if res.Token == "" {
		t.Error("no session issued despite successful registration")
	}
}

func TestRegister_ExplicitTeacherRole(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	res, err := svc.Register(context.Background(), RegisterInput{
		Name: "Grace", Email: "grace@x.com", Password: "secret1", Role: model.RoleTeacher,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if res.User.Role != model.RoleTeacher {
		t.Errorf("Role = %q, want %q", res.User.Role, model.RoleTeacher)
	}
}

// =========================================================================
// LOGIN TESTS
// =========================================================================

// Unknown email and wrong password must be indistinguishable to the caller.
func TestLogin_UniformFailure(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	mustRegister(t, svc, "Ada", "ada@x.com", "secret1")

	_, errUnknown := svc.Login(context.Background(), "nobody@x.com", "secret1")
	_, errWrongPw := svc.Login(context.Background(), "ada@x.com", "wrongpass")

	for _, err := range []error{errUnknown, errWrongPw} {
		if !errors.Is(err, apperror.ErrInvalidCredentials) {
			t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
		}
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Errorf("failure messages differ:\n%q\n%q", errUnknown, errWrongPw)
	}
}

func TestLogin_ScrubsSecrets(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	mustRegister(t, svc, "Ada", "ada@x.com", "secret1")

	res, err := svc.Login(context.Background(), "ada@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.User.PasswordHash != "" || res.User.OTPCode != "" {
		t.Error("Login() result carries secret fields")
	}
}

func TestLogin_RecordsLastLogin(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)
	mustRegister(t, svc, "Ada", "ada@x.com", "secret1")

	res, err := svc.Login(context.Background(), "ada@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.User.LastLogin.IsZero() {
		t.Error("result LastLogin not set")
	}
	if repo.stored(t, "ada@x.com").LastLogin.IsZero() {
		t.Error("stored LastLogin not set")
	}
}

// A last_login bookkeeping failure must not fail a correct login.
func TestLogin_SucceedsWhenRecordLoginFails(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)
	mustRegister(t, svc, "Ada", "ada@x.com", "secret1")
	repo.failRecordLogin = true

	res, err := svc.Login(context.Background(), "ada@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login() error = %v, want success", err)
	}
	if res.Token == "" {
		t.Error("no session token issued")
	}
}

// =========================================================================
// PASSWORD RESET TESTS
// =========================================================================

func TestRequestReset_StoresAndMailsCode(t *testing.T) {
	svc, repo, mail := newTestAuthService(t)
	mustRegister(t, svc, "Ada", "ada@x.com", "secret1")

	if err := svc.RequestReset(context.Background(), "ada@x.com"); err != nil {
		t.Fatalf("RequestReset() error = %v", err)
	}

	mailed := mail.lastResetCode(t)
	stored := repo.stored(t, "ada@x.com")
	if stored.OTPCode != mailed {
		t.Errorf("stored code %q != mailed code %q", stored.OTPCode, mailed)
	}
	if !stored.OTPExpiry.After(time.Now()) {
		t.Error("stored code already expired")
	}
}

func TestRequestReset_UnknownEmail(t *testing.T) {
	svc, _, mail := newTestAuthService(t)

	err := svc.RequestReset(context.Background(), "nobody@x.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("RequestReset() error = %v, want ErrNotFound", err)
	}
	if len(mail.resetCodes) != 0 {
		t.Error("a code was mailed for an unknown address")
	}
}

// A code nobody received must not stay valid in the store.
func TestRequestReset_DeliveryFailureClearsCode(t *testing.T) {
	svc, repo, mail := newTestAuthService(t)
	mustRegister(t, svc, "Ada", "ada@x.com", "secret1")
	mail.failReset = true

	err := svc.RequestReset(context.Background(), "ada@x.com")
	if !errors.Is(err, apperror.ErrDelivery) {
		t.Fatalf("RequestReset() error = %v, want ErrDelivery", err)
	}
	if repo.stored(t, "ada@x.com").HasOTP() {
		t.Error("undelivered reset code left in the store")
	}
}

func TestConfirmReset_FullFlow(t *testing.T) {
	svc, _, mail := newTestAuthService(t)
	mustRegister(t, svc, "Ada", "ada@x.com", "oldpass1")
	ctx := context.Background()

	if err := svc.RequestReset(ctx, "ada@x.com"); err != nil {
		t.Fatalf("RequestReset() error = %v", err)
	}
	code := mail.lastResetCode(t)

	if err := svc.ConfirmReset(ctx, "ada@x.com", code, "newpass1"); err != nil {
		t.Fatalf("ConfirmReset() error = %v", err)
	}

	// Old password dead, new password live.
	if _, err := svc.Login(ctx, "ada@x.com", "oldpass1"); !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Errorf("old password login error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "ada@x.com", "newpass1"); err != nil {
		t.Errorf("new password login error = %v", err)
	}
}

// The code is single-use: confirming consumed it, replaying it fails.
func TestConfirmReset_CodeIsSingleUse(t *testing.T) {
	svc, _, mail := newTestAuthService(t)
	mustRegister(t, svc, "Ada", "ada@x.com", "oldpass1")
	ctx := context.Background()

	if err := svc.RequestReset(ctx, "ada@x.com"); err != nil {
		t.Fatalf("RequestReset() error = %v", err)
	}
	code := mail.lastResetCode(t)

	if err := svc.ConfirmReset(ctx, "ada@x.com", code, "newpass1"); err != nil {
		t.Fatalf("first ConfirmReset() error = %v", err)
	}

	err := svc.ConfirmReset(ctx, "ada@x.com", code, "evenewer1")
	if !errors.Is(err, apperror.ErrInvalidCode) {
		t.Errorf("replayed ConfirmReset() error = %v, want ErrInvalidCode", err)
	}
}

// Wrong code, expired code and unknown email all collapse into the same
// invalid-code answer.
func TestConfirmReset_UniformFailure(t *testing.T) {
	svc, repo, mail := newTestAuthService(t)
	mustRegister(t, svc, "Ada", "ada@x.com", "oldpass1")
	ctx := context.Background()

	if err := svc.RequestReset(ctx, "ada@x.com"); err != nil {
		t.Fatalf("RequestReset() error = %v", err)
	}
	code := mail.lastResetCode(t)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if err := svc.ConfirmReset(ctx, "ada@x.com", wrong, "newpass1"); !errors.Is(err, apperror.ErrInvalidCode) {
		t.Errorf("wrong code: error = %v, want ErrInvalidCode", err)
	}

	if err := svc.ConfirmReset(ctx, "nobody@x.com", code, "newpass1"); !errors.Is(err, apperror.ErrInvalidCode) {
		t.Errorf("unknown email: error = %v, want ErrInvalidCode", err)
	}

	// Force the stored code past its expiry, then try the right digits.
	repo.stored(t, "ada@x.com").OTPExpiry = time.Now().Add(-time.Second)
	if err := svc.ConfirmReset(ctx, "ada@x.com", code, "newpass1"); !errors.Is(err, apperror.ErrInvalidCode) {
		t.Errorf("expired code: error = %v, want ErrInvalidCode", err)
	}

	// None of the failed attempts may have touched the password.
	if _, err := svc.Login(ctx, "ada@x.com", "oldpass1"); err != nil {
		t.Errorf("original password no longer works after failed resets: %v", err)
	}
}

// The new password is validated BEFORE the code is checked or consumed, so
// a weak password doesn't burn a valid code.
func TestConfirmReset_WeakPasswordKeepsCode(t *testing.T) {
	svc, repo, mail := newTestAuthService(t)
	mustRegister(t, svc, "Ada", "ada@x.com", "oldpass1")
	ctx := context.Background()

	if err := svc.RequestReset(ctx, "ada@x.com"); err != nil {
		t.Fatalf("RequestReset() error = %v", err)
	}
	code := mail.lastResetCode(t)

	err := svc.ConfirmReset(ctx, "ada@x.com", code, "123")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("ConfirmReset() error = %v, want ErrValidation", err)
	}
	if !repo.stored(t, "ada@x.com").HasOTP() {
		t.Error("valid code consumed by a rejected password")
	}

	// The code still works with an acceptable password.
	if err := svc.ConfirmReset(ctx, "ada@x.com", code, "newpass1"); err != nil {
		t.Errorf("ConfirmReset() retry error = %v", err)
	}
}

// =========================================================================
// PROFILE / ADMIN TESTS
// =========================================================================

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	res := mustRegister(t, svc, "Ada", "ada@x.com", "secret1")

	updated, err := svc.UpdateProfile(context.Background(), res.User.ID, "  Ada Lovelace  ")
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.Name != "Ada Lovelace" {
		t.Errorf("Name = %q, want trimmed %q", updated.Name, "Ada Lovelace")
	}

	_, err = svc.UpdateProfile(context.Background(), res.User.ID, "A")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("UpdateProfile() error = %v, want ErrValidation", err)
	}
}

func TestListUsers(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	mustRegister(t, svc, "Ada", "ada@x.com", "secret1")
	mustRegister(t, svc, "Grace", "grace@x.com", "secret1")

	users, err := svc.ListUsers(context.Background(), repository.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 2 {
		t.Errorf("len = %d, want 2", len(users))
	}
	for _, u := range users {
		if u.PasswordHash != "" {
			t.Error("roster entry carries a password hash")
		}
	}
}

// =========================================================================
// GITHUB LOGIN TESTS
// =========================================================================

func TestLoginWithGitHub_CreatesAccount(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)

	res, err := svc.LoginWithGitHub(context.Background(), &auth.GitHubUser{
		ID: 42, Login: "octoada", Email: "ada@x.com",
	})
	if err != nil {
		t.Fatalf("LoginWithGitHub() error = %v", err)
	}
	if res.Token == "" {
		t.Error("no session issued")
	}
	if res.User.Role != model.RoleStudent {
		t.Errorf("Role = %q, want %q", res.User.Role, model.RoleStudent)
	}

	// Even an OAuth-born account holds a (random) password hash.
	if repo.stored(t, "ada@x.com").PasswordHash == "" {
		t.Error("OAuth account stored without a password hash")
	}
}

func TestLoginWithGitHub_MatchesExistingAccount(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	registered := mustRegister(t, svc, "Ada", "ada@x.com", "secret1")

	res, err := svc.LoginWithGitHub(context.Background(), &auth.GitHubUser{
		ID: 42, Login: "octoada", Email: "ada@x.com",
	})
	if err != nil {
		t.Fatalf("LoginWithGitHub() error = %v", err)
	}
	if res.User.ID != registered.User.ID {
		t.Errorf("GitHub login resolved to %q, want existing account %q", res.User.ID, registered.User.ID)
	}
}

func TestLoginWithGitHub_PrivateEmailRejected(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	_, err := svc.LoginWithGitHub(context.Background(), &auth.GitHubUser{
		ID: 42, Login: "octoada",
	})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("LoginWithGitHub() error = %v, want ErrValidation", err)
	}
}

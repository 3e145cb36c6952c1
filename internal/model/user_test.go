package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRoleValid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleStudent, true},
		{RoleTeacher, true},
		{RoleAdmin, true},
		{Role(""), false},
		{Role("superadmin"), false},
		{Role("Student"), false}, // case matters — roles are stored lowercase
	}

	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.want {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}

// The json:"-" tags are a security control, not a formatting choice:
// a fully populated User marshalled by any generic path must not leak
// the hash or the reset code.
func TestUserJSON_ExcludesSecrets(t *testing.T) {
	u := User{
		ID:           "u1",
		Name:         "Ada",
		Email:        "ada@x.com",
		PasswordHash: "$2a$10$somethingsecret",
		Role:         RoleStudent,
		OTPCode:      "123456",
		OTPExpiry:    time.Now().Add(10 * time.Minute),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	raw, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	body := string(raw)

	for _, secret := range []string{"somethingsecret", "123456", "passwordHash", "otpCode", "otpExpiry"} {
		if strings.Contains(body, secret) {
			t.Errorf("marshalled user contains %q:\n%s", secret, body)
		}
	}

	// And the public fields ARE there
	for _, public := range []string{`"id":"u1"`, `"name":"Ada"`, `"email":"ada@x.com"`, `"role":"student"`} {
		if !strings.Contains(body, public) {
			t.Errorf("marshalled user missing %s:\n%s", public, body)
		}
	}
}

func TestHasOTP(t *testing.T) {
	var u User
	if u.HasOTP() {
		t.Error("zero user reports a pending OTP")
	}

	u.OTPCode = "123456"
	if u.HasOTP() {
		t.Error("code without expiry reports a pending OTP")
	}

	u.OTPExpiry = time.Now().Add(time.Minute)
	if !u.HasOTP() {
		t.Error("code+expiry pair not reported as pending")
	}
}

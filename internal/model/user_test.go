package model

import (
	"testing"
	"time"
)

func TestAccount_FullName(t *testing.T) {
	a := &Account{FirstName: "Jane", LastName: "Doe"}
	if got := a.FullName(); got != "Jane Doe" {
		t.Errorf("FullName() = %q, want %q", got, "Jane Doe")
	}
}

func TestAccount_VerificationCodeLifecycle(t *testing.T) {
	a := &Account{}
	if a.HasPendingCode() {
		t.Fatal("new account should have no pending code")
	}

	expiresAt := time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)
	a.SetVerificationCode("482913", expiresAt)
	if !a.HasPendingCode() {
		t.Fatal("HasPendingCode() = false after SetVerificationCode")
	}
	if *a.VerificationCode != "482913" {
		t.Errorf("VerificationCode = %q, want %q", *a.VerificationCode, "482913")
	}
	if !a.VerificationExpiresAt.Equal(expiresAt) {
		t.Errorf("VerificationExpiresAt = %v, want %v", *a.VerificationExpiresAt, expiresAt)
	}

	a.ClearVerificationCode()
	if a.VerificationCode != nil || a.VerificationExpiresAt != nil {
		t.Error("ClearVerificationCode should clear both fields")
	}
}

func TestToIdentity(t *testing.T) {
	a := &Account{Email: "jane@example.com", Enabled: true}

	id := ToIdentity(a)
	if id.Subject != "jane@example.com" {
		t.Errorf("Subject = %q, want %q", id.Subject, "jane@example.com")
	}
	if !id.Enabled {
		t.Error("Enabled = false, want true")
	}
	if id.Authorities == nil || len(id.Authorities) != 0 {
		t.Errorf("Authorities = %v, want empty non-nil slice", id.Authorities)
	}
}

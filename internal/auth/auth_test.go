package auth

import (
	"testing"
	"time"

	"collabd/pkg/types"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret-0123456789abcdef")
	want := types.Identity{UserID: "alice", DisplayName: "Alice", Role: types.RoleAssessor}

	tok, err := v.Sign(want, time.Hour)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	got, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got != want {
		t.Errorf("identity mismatch: got %+v, want %+v", got, want)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer := NewVerifier("secret-one-0123456789abcdef")
	tok, err := signer.Sign(types.Identity{UserID: "alice", DisplayName: "Alice", Role: types.RoleAssessor}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	other := NewVerifier("secret-two-0123456789abcdef")
	if _, err := other.Verify(tok); err == nil {
		t.Error("expected verification failure with wrong secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewVerifier("test-secret-0123456789abcdef")
	tok, err := v.Sign(types.Identity{UserID: "alice", DisplayName: "Alice", Role: types.RoleAssessor}, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(tok); err == nil {
		t.Error("expected verification failure for expired token")
	}
}

func TestVerifyRejectsInvalidIdentity(t *testing.T) {
	v := NewVerifier("test-secret-0123456789abcdef")

	cases := []types.Identity{
		{UserID: "alice", DisplayName: "Alice", Role: "superuser"},
		{UserID: "not a valid id!", DisplayName: "Alice", Role: types.RoleAssessor},
		{UserID: "alice", DisplayName: "", Role: types.RoleAssessor},
	}
	for _, identity := range cases {
		tok, err := v.Sign(identity, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := v.Verify(tok); err == nil {
			t.Errorf("expected rejection for identity %+v", identity)
		}
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewVerifier("test-secret-0123456789abcdef")
	if _, err := v.Verify("not.a.token"); err == nil {
		t.Error("expected failure for malformed token")
	}
}

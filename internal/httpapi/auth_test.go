package httpapi

import (
	"strings"
	"testing"
	"time"

	"capslock/backend/internal/domain"
)

func TestLoginIssuesParsableToken(t *testing.T) {
	auth := NewAuthManager("secret", time.Hour)
	auth.SeedUser("Admin", "rahasia1", "admin")

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "rahasia1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsUnknownAndWrongPassword(t *testing.T) {
	auth := NewAuthManager("secret", time.Hour)
	auth.SeedUser("admin", "rahasia1", "admin")

	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "x"}); err == nil {
		t.Fatal("unknown user must not log in")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "salah"}); err == nil {
		t.Fatal("wrong password must not log in")
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	auth := NewAuthManager("secret", time.Hour)
	auth.SeedUser("admin", "rahasia1", "admin")
	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "rahasia1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Flip a character in the signature segment.
	parts := strings.Split(resp.AccessToken, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if _, err := auth.ParseToken(tampered); err == nil {
		t.Fatal("tampered token must be rejected")
	}

	other := NewAuthManager("different-secret", time.Hour)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	auth := NewAuthManager("secret", time.Hour)
	token, err := auth.sign("admin", "admin", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestSeedUserIgnoresBlankPassword(t *testing.T) {
	auth := NewAuthManager("secret", time.Hour)
	auth.SeedUser("admin", "  ", "admin")
	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "  "}); err == nil {
		t.Fatal("blank-password account must not exist")
	}
}

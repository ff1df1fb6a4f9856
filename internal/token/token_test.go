package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"pagegate.org/internal/apperr"
)

const testSecret = "c3VwZXItc2VjcmV0LXNpZ25pbmcta2V5LWZvci10ZXN0cw=="

func testAuthority(t *testing.T, now time.Time) *Authority {
	t.Helper()
	a, err := NewAuthority(testSecret, 12*time.Hour, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	return a
}

func testSnapshot() Snapshot {
	return Snapshot{
		UserID:         "6cbdb51d-59a9-4a6f-9571-dd12a7b8a13c",
		Mail:           "user@example.org",
		Admin:          true,
		Active:         true,
		PrivatePageIDs: []string{"wiki", "grafana"},
	}
}

func TestMintVerifyRoundtrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	a := testAuthority(t, now)

	signed, minted, err := a.Mint(testSnapshot(), "203.0.113.7")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	got, err := a.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if got.Issuer != "203.0.113.7" {
		t.Fatalf("issuer = %q", got.Issuer)
	}
	if got.UserMail != "user@example.org" || !got.Admin || !got.Active {
		t.Fatalf("claims mismatch: %+v", got)
	}
	if got.PrivateAccess != "wiki&&grafana" {
		t.Fatalf("private access = %q", got.PrivateAccess)
	}
	if !got.IssuedAt.Equal(minted.IssuedAt) || !got.ExpiresAt.Equal(minted.ExpiresAt) {
		t.Fatalf("timestamps drifted: got %v/%v want %v/%v",
			got.IssuedAt, got.ExpiresAt, minted.IssuedAt, minted.ExpiresAt)
	}
	if want := now.Add(12 * time.Hour); !got.ExpiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want %v", got.ExpiresAt, want)
	}
}

func TestMintIsDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	a := testAuthority(t, now)

	first, _, err := a.Mint(testSnapshot(), "203.0.113.7")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	second, _, err := a.Mint(testSnapshot(), "203.0.113.7")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if first != second {
		t.Fatal("identical claims produced different tokens")
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	a := testAuthority(t, time.Now())
	signed, _, err := a.Mint(testSnapshot(), "203.0.113.7")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	parts := strings.Split(signed, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d parts", len(parts))
	}
	forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString(
		[]byte(`{"user_id":"x","user_mail":"x@x","admin":true,"active":true,"private_access":"","iss":"203.0.113.7","iat":1,"exp":99999999999}`),
	) + "." + parts[2]

	if _, err := a.Verify(forged); !errors.Is(err, &apperr.Error{Kind: apperr.KindUnauthorized}) {
		t.Fatalf("tampered token error = %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	a := testAuthority(t, time.Now())
	for _, raw := range []string{"", "   ", "not-a-token", "a.b.c"} {
		if _, err := a.Verify(raw); err == nil {
			t.Fatalf("Verify(%q) accepted", raw)
		}
	}
}

func TestVerifyKeepsExpiredTokenParseable(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	a := testAuthority(t, now)
	signed, _, err := a.Mint(testSnapshot(), "203.0.113.7")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	later, err := NewAuthority(testSecret, 12*time.Hour,
		WithClock(func() time.Time { return now.Add(13 * time.Hour) }))
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	tok, err := later.Verify(signed)
	if err != nil {
		t.Fatalf("expired token must still verify: %v", err)
	}
	err = later.Validate(tok, "203.0.113.7", true)
	var app *apperr.Error
	if !errors.As(err, &app) || app.ClientDetail != "token expired" {
		t.Fatalf("expected token expired, got %v", err)
	}
}

func TestValidateIssuerBinding(t *testing.T) {
	now := time.Now()
	a := testAuthority(t, now)
	_, tok, err := a.Mint(testSnapshot(), "203.0.113.7")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if err := a.Validate(tok, "203.0.113.7", true); err != nil {
		t.Fatalf("matching issuer rejected: %v", err)
	}
	err = a.Validate(tok, "198.51.100.9", true)
	var app *apperr.Error
	if !errors.As(err, &app) || app.Kind != apperr.KindUnauthorized {
		t.Fatalf("issuer mismatch error = %v", err)
	}
	if !strings.Contains(app.ServerDetail, "203.0.113.7 changed to 198.51.100.9") {
		t.Fatalf("server detail = %q", app.ServerDetail)
	}
}

func TestValidateInactiveUser(t *testing.T) {
	a := testAuthority(t, time.Now())
	snap := testSnapshot()
	snap.Active = false
	_, tok, err := a.Mint(snap, "203.0.113.7")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	err = a.Validate(tok, "203.0.113.7", true)
	var app *apperr.Error
	if !errors.As(err, &app) || app.Kind != apperr.KindInactiveUser {
		t.Fatalf("inactive user error = %v", err)
	}
	if err := a.Validate(tok, "203.0.113.7", false); err != nil {
		t.Fatalf("activation check must be skippable: %v", err)
	}
}

func TestValidateNilToken(t *testing.T) {
	a := testAuthority(t, time.Now())
	if err := a.Validate(nil, "203.0.113.7", true); err == nil {
		t.Fatal("nil token accepted")
	}
}

func TestGrantsAccess(t *testing.T) {
	tok := &SecurityToken{PrivateAccess: "wiki&&grafana&&notes"}

	cases := []struct {
		pageID string
		want   bool
	}{
		{"wiki", true},
		{"grafana", true},
		{"notes", true},
		{"wik", false},
		{"iki", false},
		{"wiki&&grafana", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := tok.GrantsAccess(tc.pageID); got != tc.want {
			t.Fatalf("GrantsAccess(%q) = %v, want %v", tc.pageID, got, tc.want)
		}
	}

	var nilTok *SecurityToken
	if nilTok.GrantsAccess("wiki") {
		t.Fatal("nil token granted access")
	}
	if (&SecurityToken{}).GrantsAccess("wiki") {
		t.Fatal("empty access claim granted access")
	}
}

func TestNewAuthorityRejectsBadKeys(t *testing.T) {
	if _, err := NewAuthority("", time.Hour); err == nil {
		t.Fatal("empty key accepted")
	}
	if _, err := NewAuthority("!!!not-base64!!!", time.Hour); err == nil {
		t.Fatal("invalid base64 accepted")
	}
	if _, err := NewAuthority(testSecret, 0); err == nil {
		t.Fatal("zero lifetime accepted")
	}
}

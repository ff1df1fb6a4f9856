package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pagegate.org/internal/apperr"
)

// AccessDelimiter joins the private page ids inside the private_access
// claim. Page ids must not contain it.
const AccessDelimiter = "&&"

// SecurityToken is the verified claim set of a session token. It is a
// capability snapshot taken at mint time and is never refreshed from
// the store; identity changes become visible only once the token
// expires or is replaced.
type SecurityToken struct {
	Issuer        string
	IssuedAt      time.Time
	UserID        string
	UserMail      string
	Admin         bool
	Active        bool
	PrivateAccess string
	ExpiresAt     time.Time
}

// GrantsAccess reports whether the snapshot contains an explicit grant
// for the page id.
func (t *SecurityToken) GrantsAccess(pageID string) bool {
	if t == nil || t.PrivateAccess == "" || pageID == "" {
		return false
	}
	return slices.Contains(strings.Split(t.PrivateAccess, AccessDelimiter), pageID)
}

// Snapshot is the slice of an identity copied into a token at mint time.
type Snapshot struct {
	UserID         string
	Mail           string
	Admin          bool
	Active         bool
	PrivatePageIDs []string
}

type claims struct {
	UserID        string `json:"user_id"`
	UserMail      string `json:"user_mail"`
	Admin         bool   `json:"admin"`
	Active        bool   `json:"active"`
	PrivateAccess string `json:"private_access"`
	jwt.RegisteredClaims
}

// Authority mints and verifies session tokens with one symmetric key
// loaded at startup.
type Authority struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// Option configures an Authority.
type Option func(*Authority)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(a *Authority) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewAuthority decodes the base64 signing secret and builds an
// Authority with the configured token lifetime.
func NewAuthority(secretB64 string, ttl time.Duration, opts ...Option) (*Authority, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(secretB64))
	if err != nil {
		return nil, fmt.Errorf("token: decode signing key: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("token: signing key is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("token: lifetime must be positive")
	}
	a := &Authority{key: key, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// TTL returns the configured token lifetime.
func (a *Authority) TTL() time.Duration { return a.ttl }

// Mint signs a token binding the identity snapshot to the originating
// network address. Signing is deterministic for identical claims.
func (a *Authority) Mint(snap Snapshot, remoteAddr string) (string, *SecurityToken, error) {
	now := a.now().UTC().Truncate(time.Second)
	tok := &SecurityToken{
		Issuer:        remoteAddr,
		IssuedAt:      now,
		UserID:        snap.UserID,
		UserMail:      snap.Mail,
		Admin:         snap.Admin,
		Active:        snap.Active,
		PrivateAccess: strings.Join(snap.PrivatePageIDs, AccessDelimiter),
		ExpiresAt:     now.Add(a.ttl),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims{
		UserID:        tok.UserID,
		UserMail:      tok.UserMail,
		Admin:         tok.Admin,
		Active:        tok.Active,
		PrivateAccess: tok.PrivateAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tok.Issuer,
			IssuedAt:  jwt.NewNumericDate(tok.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt),
		},
	}).SignedString(a.key)
	if err != nil {
		return "", nil, fmt.Errorf("token: sign: %w", err)
	}
	return signed, tok, nil
}

// Verify checks the signature before trusting any claim and rejects
// malformed tokens or tokens missing required claims. Expiry is not
// checked here: it is a Validate concern with its own failure reason.
func (a *Authority) Verify(raw string) (*SecurityToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.Unauthorized("got empty token", "invalid token provided")
	}
	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS512 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.key, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, apperr.Unauthorized(
			fmt.Sprintf("caught invalid token: %v", err), "invalid token provided", err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, apperr.Unauthorized("token claims have unexpected shape", "invalid token provided")
	}
	if c.Issuer == "" || c.IssuedAt == nil || c.ExpiresAt == nil || c.UserID == "" || c.UserMail == "" {
		return nil, apperr.Unauthorized("token is missing required claims", "invalid token provided")
	}
	return &SecurityToken{
		Issuer:        c.Issuer,
		IssuedAt:      c.IssuedAt.Time,
		UserID:        c.UserID,
		UserMail:      c.UserMail,
		Admin:         c.Admin,
		Active:        c.Active,
		PrivateAccess: c.PrivateAccess,
		ExpiresAt:     c.ExpiresAt.Time,
	}, nil
}

// Validate runs the three request-time checks: issuer binding, expiry
// and activation. It is a pure function of the token and the request
// origin; the store is never consulted.
func (a *Authority) Validate(tok *SecurityToken, remoteAddr string, requireActive bool) error {
	if tok == nil {
		return apperr.Unauthorized(
			fmt.Sprintf("got request from %s, with no token provided", remoteAddr), "unauthorized")
	}
	if tok.Issuer != remoteAddr {
		return apperr.Unauthorized(
			fmt.Sprintf("invalid issuer in request: %s changed to %s, associated user: %s",
				tok.Issuer, remoteAddr, tok.UserMail),
			"unauthorized request")
	}
	if tok.ExpiresAt.Before(a.now()) {
		return apperr.Unauthorized(
			fmt.Sprintf("token for %s expired", tok.UserMail), "token expired")
	}
	if requireActive && !tok.Active {
		return apperr.InactiveUser(tok.UserMail)
	}
	return nil
}

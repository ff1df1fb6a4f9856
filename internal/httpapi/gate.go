package httpapi

import (
	"fmt"
	"net/http"

	"pagegate.org/internal/apperr"
	"pagegate.org/internal/obs"
	"pagegate.org/internal/token"
)

// currentToken extracts and verifies the session cookie. It does not
// validate issuer binding or expiry; callers do that against the
// request address.
func (a *API) currentToken(r *http.Request) (*token.SecurityToken, error) {
	c, err := r.Cookie(bearerCookie)
	if err != nil || c.Value == "" {
		return nil, apperr.Unauthorized(
			fmt.Sprintf("got request without auth cookie, from: %s", clientIP(r)),
			"unauthorized request",
		)
	}
	return a.tokens.Verify(c.Value)
}

// withAdminGate guards the management surface. Anonymous page listing
// stays open so the frontend can render the catalog before login.
func (a *API) withAdminGate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/pages" {
			next(w, r)
			return
		}

		tok, err := a.currentToken(r)
		if err != nil {
			obs.CountAuthDecision("denied", "invalid_token")
			writeAppError(w, r, err)
			return
		}
		if err := a.tokens.Validate(tok, clientIP(r), true); err != nil {
			obs.CountAuthDecision("denied", "invalid_session")
			writeAppError(w, r, err)
			return
		}
		if !tok.Admin {
			obs.CountAuthDecision("denied", "not_admin")
			writeAppError(w, r, apperr.Forbidden(
				fmt.Sprintf("%s tried to access the admin api", tok.UserMail),
				"not allowed",
			))
			return
		}

		obs.CountAuthDecision("admitted", "admin")
		next(w, r)
	}
}

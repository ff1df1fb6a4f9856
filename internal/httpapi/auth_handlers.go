package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"pagegate.org/internal/apperr"
	"pagegate.org/internal/notify"
	"pagegate.org/internal/obs"
	"pagegate.org/internal/store"
)

type credentials struct {
	Mail        string `json:"mail"`
	Password    string `json:"password"`
	OldPassword string `json:"old_password,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	user, err := a.verifyCredentials(r, req.Mail, req.Password)
	if err != nil {
		obs.CountAuthDecision("denied", "bad_credentials")
		writeAppError(w, r, err)
		return
	}

	if err := a.establishSession(w, r, user, true); err != nil {
		writeAppError(w, r, err)
		return
	}
	obs.CountAuthDecision("admitted", "login")
	w.WriteHeader(http.StatusNoContent)
}

// verifyCredentials resolves the user and checks the password. Both
// failure modes answer with the same client message so the response
// does not leak which mails exist.
func (a *API) verifyCredentials(r *http.Request, mail, password string) (*store.User, error) {
	user, err := a.store.UserByMail(r.Context(), mail)
	if err != nil {
		return nil, apperr.Forbidden(
			fmt.Sprintf("login denied for unknown mail %s, from: %s", mail, clientIP(r)),
			"invalid credentials",
		)
	}
	if !store.VerifyPassword(user.PasswordHash, password, user.Salt) {
		return nil, apperr.Forbidden(
			fmt.Sprintf("login denied for %s (wrong password), from: %s", mail, clientIP(r)),
			"invalid credentials",
		)
	}
	return user, nil
}

// establishSession mints a token bound to the caller address and sets
// the session cookie. Login notifications are skipped during the
// activation flow, which emits its own event.
func (a *API) establishSession(w http.ResponseWriter, r *http.Request, user *store.User, notifyLogin bool) error {
	signed, tok, err := a.tokens.Mint(user.Snapshot(), clientIP(r))
	if err != nil {
		return apperr.Internal("could not mint session token", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     bearerCookie,
		Value:    signed,
		Path:     "/",
		Domain:   a.cfg.CookieDomain,
		Expires:  tok.ExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})

	if err := a.store.TouchLastLogin(r.Context(), user.ID); err != nil {
		obs.Warn("could not update last login", map[string]any{
			"user": user.Mail, "error": err.Error(),
		})
	}
	if notifyLogin {
		a.notifyq.Enqueue(notify.Event{
			Kind:      notify.KindLoginGrant,
			Recipient: a.cfg.NotifyMail,
			Token:     tok,
		})
	}
	return nil
}

func (a *API) handleWhoami(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	tok, err := a.currentToken(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	// Inactive users still get their profile, so the frontend can
	// route them into the activation flow.
	if err := a.tokens.Validate(tok, clientIP(r), false); err != nil {
		writeAppError(w, r, err)
		return
	}

	id, err := uuid.Parse(tok.UserID)
	if err != nil {
		writeAppError(w, r, apperr.Unauthorized(
			fmt.Sprintf("token carries malformed user id %q", tok.UserID),
			"unauthorized request",
		))
		return
	}
	user, err := a.store.UserByID(r.Context(), id)
	if err != nil {
		// Token outlived the account.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handlePageAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	pageID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/security/auth/"), "/")
	if pageID == "" {
		writeAppError(w, r, apperr.BadRequest(
			fmt.Sprintf("missing page parameter at auth request, from: %s", clientIP(r)),
			"missing parameter",
		))
		return
	}

	page, err := a.store.PageByID(r.Context(), pageID)
	if err != nil {
		obs.CountAuthDecision("denied", "unknown_page")
		writeAppError(w, r, apperr.Forbidden(
			fmt.Sprintf("access to unknown page %s denied, from: %s", pageID, clientIP(r)),
			"not allowed",
		))
		return
	}
	if !page.Private {
		obs.CountAuthDecision("admitted", "public_page")
		a.admit(w)
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
	if !tok.GrantsAccess(pageID) {
		obs.CountAuthDecision("denied", "no_grant")
		writeAppError(w, r, apperr.Forbidden(
			fmt.Sprintf("access to private page %s refused for %s", pageID, tok.UserMail),
			"not allowed",
		))
		return
	}

	obs.CountAuthDecision("admitted", "private_page")
	a.admit(w)
}

func (a *API) admit(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("enjoy!"))
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if req.Password == "" {
		writeAppError(w, r, apperr.BadRequest(
			"password change request without new password", "missing password",
		))
		return
	}

	user, err := a.verifyCredentials(r, req.Mail, req.OldPassword)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := a.requireSelfOrAdmin(r, user); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := a.changePassword(w, r, user, req.Password, true); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireSelfOrAdmin lets users rotate their own password and admins
// rotate anyone's.
func (a *API) requireSelfOrAdmin(r *http.Request, target *store.User) error {
	tok, err := a.currentToken(r)
	if err != nil {
		return err
	}
	if err := a.tokens.Validate(tok, clientIP(r), false); err != nil {
		return err
	}
	if tok.UserID == target.ID.String() || tok.Admin {
		return nil
	}
	return apperr.Forbidden(
		fmt.Sprintf("%s tried to change the password of %s", tok.UserMail, target.Mail),
		"not allowed",
	)
}

// changePassword persists the new hash and re-establishes the session
// with a fresh token.
func (a *API) changePassword(w http.ResponseWriter, r *http.Request, user *store.User, password string, notifyLogin bool) error {
	hash := store.HashPassword(password, user.Salt)
	if err := a.store.UpdateUser(r.Context(), user.ID, hash, user.Admin, user.Active, nil, nil); err != nil {
		return apperr.Internal(
			fmt.Sprintf("could not change password for %s", user.Mail), err,
		)
	}
	user, err := a.store.UserByID(r.Context(), user.ID)
	if err != nil {
		return err
	}
	return a.establishSession(w, r, user, notifyLogin)
}

func (a *API) handleActivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if req.Password == "" {
		writeAppError(w, r, apperr.BadRequest(
			"activation request without new password", "missing password",
		))
		return
	}

	user, err := a.verifyCredentials(r, req.Mail, req.OldPassword)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if user.Active {
		writeAppError(w, r, apperr.BadRequest(
			fmt.Sprintf("tried to activate already active user %s", user.Mail),
			"already active",
		))
		return
	}
	if err := a.store.SetActive(r.Context(), user.ID, true); err != nil {
		writeAppError(w, r, apperr.Internal(
			fmt.Sprintf("could not activate %s", user.Mail), err,
		))
		return
	}
	user, err = a.store.UserByID(r.Context(), user.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := a.changePassword(w, r, user, req.Password, false); err != nil {
		writeAppError(w, r, err)
		return
	}

	a.notifyq.Enqueue(notify.Event{
		Kind:      notify.KindUserActivated,
		Recipient: a.cfg.NotifyMail,
		Activation: &notify.Activation{
			Mail:        user.Mail,
			ActivatedAt: a.now(),
		},
	})
	w.WriteHeader(http.StatusNoContent)
}

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

type editUser struct {
	ID          uuid.UUID `json:"id,omitempty"`
	Mail        string    `json:"mail"`
	Password    string    `json:"password,omitempty"`
	Admin       bool      `json:"admin"`
	Active      bool      `json:"active"`
	AllowPages  []string  `json:"pages_to_allow,omitempty"`
	RevokePages []string  `json:"pages_to_revoke,omitempty"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	case http.MethodPut:
		a.updateUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPut)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.Users(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req editUser
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if req.Mail == "" || req.Password == "" {
		writeAppError(w, r, apperr.BadRequest(
			"user create request without mail or password", "mail and password required",
		))
		return
	}
	if _, err := a.store.UserByMail(r.Context(), req.Mail); err == nil {
		writeAppError(w, r, apperr.BadRequest(
			fmt.Sprintf("user %s already exists", req.Mail), "user already exists",
		))
		return
	}

	salt, err := store.GenerateSalt()
	if err != nil {
		writeAppError(w, r, apperr.Internal("could not generate salt", err))
		return
	}
	u := &store.User{
		ID:           req.ID,
		Mail:         req.Mail,
		PasswordHash: store.HashPassword(req.Password, salt),
		Salt:         salt,
		Admin:        req.Admin,
		// New accounts start inactive and are activated by their
		// owner on first login.
		Active: false,
	}
	if err := a.store.InsertUser(r.Context(), u, req.AllowPages); err != nil {
		writeAppError(w, r, apperr.Internal(
			fmt.Sprintf("could not insert user %s", req.Mail), err,
		))
		return
	}

	a.notifyq.Enqueue(notify.Event{
		Kind:       notify.KindPageInvitation,
		Recipient:  req.Mail,
		Invitation: &notify.Invitation{Mail: req.Mail, Admin: req.Admin},
	})
	obs.Info("user created", map[string]any{"mail": req.Mail, "admin": req.Admin})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	var req editUser
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if req.ID == uuid.Nil {
		writeAppError(w, r, apperr.BadRequest("user update request without id", "missing user id"))
		return
	}

	existing, err := a.store.UserByID(r.Context(), req.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := a.guardLastAdmin(r, existing, req.Admin && req.Active); err != nil {
		writeAppError(w, r, err)
		return
	}

	hash := existing.PasswordHash
	if req.Password != "" {
		hash = store.HashPassword(req.Password, existing.Salt)
	}
	if err := a.store.UpdateUser(r.Context(), req.ID, hash, req.Admin, req.Active, req.AllowPages, req.RevokePages); err != nil {
		writeAppError(w, r, apperr.Internal(
			fmt.Sprintf("could not update user %s", existing.Mail), err,
		))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/users/"), "/")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeAppError(w, r, apperr.BadRequest(
			fmt.Sprintf("malformed user id %q in delete request", raw), "malformed user id",
		))
		return
	}

	existing, err := a.store.UserByID(r.Context(), id)
	if err != nil {
		// Already gone, delete stays idempotent.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := a.guardLastAdmin(r, existing, false); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := a.store.DeleteUser(r.Context(), id); err != nil {
		writeAppError(w, r, apperr.Internal(
			fmt.Sprintf("could not delete user %s", existing.Mail), err,
		))
		return
	}
	obs.Info("user deleted", map[string]any{"mail": existing.Mail})
	w.WriteHeader(http.StatusNoContent)
}

// guardLastAdmin refuses a change that would leave the system without
// an active admin. stillAdmin is whether the user keeps active admin
// rights after the change.
func (a *API) guardLastAdmin(r *http.Request, existing *store.User, stillAdmin bool) error {
	if !existing.Admin || !existing.Active || stillAdmin {
		return nil
	}
	n, err := a.store.CountAdmins(r.Context())
	if err != nil {
		return apperr.Internal("could not count admin users", err)
	}
	if n <= 1 {
		return apperr.BadRequest(
			fmt.Sprintf("refused to remove the last admin %s", existing.Mail),
			"at least one admin user is required",
		)
	}
	return nil
}

package httpapi

import (
	"net/http"

	"pagegate.org/internal/apperr"
	"pagegate.org/internal/notify"
)

type contactRequest struct {
	Mail    string `json:"mail"`
	Message string `json:"message"`
}

func (a *API) handleContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if req.Mail == "" || req.Message == "" {
		writeAppError(w, r, apperr.BadRequest(
			"contact request without mail or message", "mail and message required",
		))
		return
	}

	a.notifyq.Enqueue(notify.Event{
		Kind:      notify.KindContactRequest,
		Recipient: a.cfg.NotifyMail,
		Contact:   &notify.Contact{Mail: req.Mail, Message: req.Message},
	})
	w.WriteHeader(http.StatusCreated)
}

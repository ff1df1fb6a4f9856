package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"pagegate.org/internal/apperr"
	"pagegate.org/internal/obs"
	"pagegate.org/internal/store"
	"pagegate.org/internal/token"
)

func (a *API) handlePages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listPages(w, r)
	case http.MethodPost:
		a.upsertPage(w, r, false)
	case http.MethodPut:
		a.upsertPage(w, r, true)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPut)
	}
}

func (a *API) listPages(w http.ResponseWriter, r *http.Request) {
	pages, err := a.store.Pages(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pages)
}

func (a *API) upsertPage(w http.ResponseWriter, r *http.Request, update bool) {
	var page store.Page
	if err := decodeJSON(r, &page); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := validatePageID(page.ID); err != nil {
		writeAppError(w, r, err)
		return
	}
	if page.URL == "" {
		writeAppError(w, r, apperr.BadRequest(
			fmt.Sprintf("page %s submitted without url", page.ID), "page url required",
		))
		return
	}

	var err error
	if update {
		err = a.store.UpdatePage(r.Context(), &page)
	} else {
		err = a.store.InsertPage(r.Context(), &page)
	}
	if err != nil {
		writeAppError(w, r, apperr.Internal(
			fmt.Sprintf("could not store page %s", page.ID), err,
		))
		return
	}
	obs.Info("page stored", map[string]any{"page": page.ID, "private": page.Private})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePageByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	pageID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/pages/"), "/")
	if pageID == "" {
		writeAppError(w, r, apperr.BadRequest("page delete request without id", "missing page id"))
		return
	}
	if err := a.store.DeletePage(r.Context(), pageID); err != nil {
		writeAppError(w, r, apperr.Internal(
			fmt.Sprintf("could not delete page %s", pageID), err,
		))
		return
	}
	obs.Info("page deleted", map[string]any{"page": pageID})
	w.WriteHeader(http.StatusNoContent)
}

// validatePageID rejects ids that would break the claim encoding or
// the path based routes.
func validatePageID(id string) error {
	switch {
	case id == "":
		return apperr.BadRequest("page submitted without id", "page id required")
	case strings.Contains(id, token.AccessDelimiter):
		return apperr.BadRequest(
			fmt.Sprintf("page id %q contains the access delimiter", id), "invalid page id",
		)
	case strings.Contains(id, "/"):
		return apperr.BadRequest(
			fmt.Sprintf("page id %q contains a path separator", id), "invalid page id",
		)
	}
	return nil
}

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"pagegate.org/internal/apperr"
	"pagegate.org/internal/obs"
)

// bearerCookie carries the signed session token.
const bearerCookie = "Bearer"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error":      msg,
		"request_id": RequestIDFromContext(r.Context()),
	})
}

// writeAppError maps the error to its HTTP status, logging the server
// detail and answering with only the client detail.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	app := apperr.From(err)
	fields := map[string]any{
		"request_id": RequestIDFromContext(r.Context()),
		"remote":     clientIP(r),
		"path":       r.URL.Path,
		"status":     app.Status(),
	}
	if app.Kind == apperr.KindInternal {
		obs.Error(app.ServerDetail, fields)
	} else {
		obs.Info(app.ServerDetail, fields)
	}
	writeError(w, r, app.Status(), app.ClientDetail)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.BadRequest("request body too large", "request body too large")
		}
		return apperr.BadRequest("malformed request body: "+err.Error(), "malformed request body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return apperr.BadRequest("trailing data after request body", "malformed request body")
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// clientIP resolves the caller address behind a reverse proxy.
// X-Real-IP wins, then the first X-Forwarded-For hop, then the socket.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

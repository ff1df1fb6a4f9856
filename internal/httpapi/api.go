// Package httpapi is the HTTP boundary: route wiring, the access gate
// in front of the admin surface, and the middleware chain that feeds
// the audit pipeline.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"pagegate.org/internal/audit"
	"pagegate.org/internal/notify"
	"pagegate.org/internal/obs"
	"pagegate.org/internal/store"
	"pagegate.org/internal/token"
)

// ReadyProbe reports whether the service can reach its database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the boundary tunables.
type Config struct {
	CookieDomain   string
	NotifyMail     string
	FrontendOrigin string
	RateBurst      int
	RatePerSec     int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	store      *store.Store
	tokens     *token.Authority
	notifyq    *notify.Queue
	auditq     *audit.Queue
	readyProbe ReadyProbe
	cfg        Config
	now        func() time.Time
}

// New wires routes. The admin CRUD surface sits behind the access
// gate; GET /pages stays open for anonymous page discovery.
func New(st *store.Store, tokens *token.Authority, notifyq *notify.Queue, auditq *audit.Queue, rp ReadyProbe, cfg Config) *API {
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	a := &API{
		mux:        http.NewServeMux(),
		store:      st,
		tokens:     tokens,
		notifyq:    notifyq,
		auditq:     auditq,
		readyProbe: rp,
		cfg:        cfg,
		now:        time.Now,
	}

	a.mux.HandleFunc("/security/login", a.handleLogin)
	a.mux.HandleFunc("/security/auth", a.handleWhoami)
	a.mux.HandleFunc("/security/auth/", a.handlePageAuth)
	a.mux.HandleFunc("/security/change-pw", a.handleChangePassword)
	a.mux.HandleFunc("/security/activate", a.handleActivate)

	a.mux.HandleFunc("/users", a.withAdminGate(a.handleUsers))
	a.mux.HandleFunc("/users/", a.withAdminGate(a.handleUserByID))
	a.mux.HandleFunc("/pages", a.withAdminGate(a.handlePages))
	a.mux.HandleFunc("/pages/", a.withAdminGate(a.handlePageByID))

	a.mux.HandleFunc("/contact", a.handleContact)

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.observe(h)
	h = RequestID(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.cfg.RateBurst, a.cfg.RatePerSec)
	h = a.cors(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "pagegate",
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

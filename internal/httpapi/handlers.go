// Package httpapi exposes the HTTP surface: auth endpoints, the request
// guard middleware, and operational probes.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"pelayanan.org/internal/auth"
	"pelayanan.org/internal/obs"
)

// Pinger is anything that can verify connectivity for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the principal database and the revocation ledger.
type ReadyProbe struct {
	DB     *sql.DB
	Ledger Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Ledger != nil {
		return rp.Ledger.Ping(ctx)
	}
	return nil
}

// API is the HTTP layer.
type API struct {
	mux         *http.ServeMux
	auth        *auth.Service
	principals  auth.PrincipalStore
	readyProbe  ReadyProbe
	version     string
	log         *zap.Logger
	corsOrigins []string
	rateBurst   int
	ratePerSec  int
}

func New(rp ReadyProbe, version string, svc *auth.Service, principals auth.PrincipalStore, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	a := &API{
		mux:        http.NewServeMux(),
		auth:       svc,
		principals: principals,
		readyProbe: rp,
		version:    version,
		log:        log,
		rateBurst:  20,
		ratePerSec: 10,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/auth/register", a.handleRegister)
	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/staff/login", a.handleStaffLogin)
	a.mux.HandleFunc("/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/auth/refresh", a.handleRefresh)

	a.mux.HandleFunc("/v1/profile", a.handleProfile)
	a.mux.Handle("/v1/devices/revoke",
		RequireRole(auth.RolePetugas, auth.RoleAdmin)(http.HandlerFunc(a.handleDeviceRevoke)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// SetCORSOrigins configures the exact origins allowed besides localhost.
func (a *API) SetCORSOrigins(origins []string) { a.corsOrigins = origins }

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = Logging(a.log, h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- probes ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "pelayanan-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
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

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "pelayanan-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"

	"notenest.app/internal/accounts"
	"notenest.app/internal/auth"
	"notenest.app/internal/billing"
	"notenest.app/internal/config"
	"notenest.app/internal/notes"
	"notenest.app/internal/obs"
	"notenest.app/internal/quota"
	"notenest.app/internal/stream"
)

const (
	serviceName  = "notenest-api"
	maxBodyBytes = 1 << 20
)

// ReadyProbe pings the backing stores that are configured.
type ReadyProbe struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Deps are the collaborators the HTTP layer is wired to.
type Deps struct {
	Config     config.Config
	Accounts   accounts.Directory
	Notes      *notes.Service
	Codec      *auth.TokenCodec
	Reconciler *billing.Reconciler
	Stream     *stream.Stream
	Ready      ReadyProbe
	Version    string
}

// API is the HTTP layer.
type API struct {
	cfg        config.Config
	accounts   accounts.Directory
	notes      *notes.Service
	codec      *auth.TokenCodec
	authn      *auth.Authenticator
	guard      *quota.Guard
	reconciler *billing.Reconciler
	stream     *stream.Stream
	readyProbe ReadyProbe
	version    string

	rateBurst  int
	ratePerSec float64
}

func New(d Deps) *API {
	return &API{
		cfg:        d.Config,
		accounts:   d.Accounts,
		notes:      d.Notes,
		codec:      d.Codec,
		authn:      auth.NewAuthenticator(d.Codec, d.Accounts),
		guard:      quota.NewGuard(d.Notes, d.Config.FreeNoteLimit),
		reconciler: d.Reconciler,
		stream:     d.Stream,
		readyProbe: d.Ready,
		version:    d.Version,
		rateBurst:  d.Config.RateBurst,
		ratePerSec: d.Config.RatePerSec,
	}
}

// Handler builds the router with the full middleware chain.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, LoggingJSON, SecurityHeaders, CORS(a.cfg.ClientURL))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/", a.Info)
	r.Get("/healthz", a.Healthz)
	r.Get("/health", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return RateLimit(next, a.rateBurst, a.ratePerSec)
		})
		r.Use(func(next http.Handler) http.Handler {
			return MaxBodyBytes(next, maxBodyBytes)
		})
		r.Post("/auth/login", a.login)
		r.Post("/webhook", a.webhook)

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)
			r.Get("/auth/me", a.me)
			r.Get("/notes", a.listNotes)
			r.Post("/notes", a.createNote)
			r.Delete("/notes/{id}", a.deleteNote)
			r.Get("/subscribe", a.subscribe)
			r.Get("/events", a.Events)
		})
	})

	return obs.Instrument(r)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		obs.Error("readiness check failed", err, map[string]any{"request_id": RequestIDFromContext(r.Context())})
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"version": a.version,
		"status":  "online",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"endpoints": map[string]any{
			"auth": map[string]string{
				"login": "POST /api/auth/login",
				"me":    "GET /api/auth/me",
			},
			"notes": map[string]string{
				"list":   "GET /api/notes",
				"create": "POST /api/notes",
				"delete": "DELETE /api/notes/:id",
			},
			"subscription": map[string]string{
				"checkout": "GET /api/subscribe",
			},
			"events":  "GET /api/events",
			"webhook": "POST /api/webhook",
			"health":  []string{"GET /health", "GET /healthz"},
		},
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorWith(w, r, code, msg, nil)
}

func writeErrorWith(w http.ResponseWriter, r *http.Request, code int, msg string, extra map[string]any) {
	payload := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		payload[k] = v
	}
	payload["error"] = msg
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// decodeBody decodes the request body into dst. On failure it logs the
// decoder detail and answers 400 with msg.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, msg string) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		obs.Warn("request body rejected", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusBadRequest, msg)
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// internalError logs err and answers with a generic 500.
func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	obs.Error(msg, err, map[string]any{
		"request_id": RequestIDFromContext(r.Context()),
		"path":       r.URL.Path,
	})
	writeError(w, r, http.StatusInternalServerError, msg)
}

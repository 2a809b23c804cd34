// internal/httpserver/server.go
//
// HTTP server wiring for the Battleground game API.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs, access log).
//   - Public endpoints: /api/py/healthcheck.
//   - Authenticated endpoints: /api/py/protected and the per-kind game routes
//     (see routes_game.go).
//   - Mapping domain errors onto status codes.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled for the configured frontends.
//   - Every game route requires a NextAuth bearer token.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/llmbattles/battleground/apps/go-server/internal/auth"
	"github.com/llmbattles/battleground/apps/go-server/internal/game"
	"github.com/llmbattles/battleground/apps/go-server/internal/history"
	"github.com/llmbattles/battleground/apps/go-server/internal/kv"
)

const (
	apiPrefix         = "/api/py"
	handlerTimeout    = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Deps are the collaborators the server needs.
type Deps struct {
	Store    kv.Store
	Verifier *auth.Verifier
	History  *history.Store // nil disables /history
	Origins  []string
}

// Server bundles router and collaborators.
type Server struct {
	r        *chi.Mux
	store    kv.Store
	verifier *auth.Verifier
	history  *history.Store
	now      func() time.Time
}

// New constructs a Server, installs middleware, and registers routes for games.
func New(d Deps, games ...Game) *Server {
	s := &Server{
		r:        chi.NewRouter(),
		store:    d.Store,
		verifier: d.Verifier,
		history:  d.History,
		now:      time.Now,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)               // add X-Request-ID
	s.r.Use(chimw.RealIP)                  // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(accessLog)                     // zerolog line per request
	s.r.Use(chimw.Recoverer)               // recover from panics
	s.r.Use(chimw.Timeout(handlerTimeout)) // bound handler time
	s.r.Use(jsonContentType)               // default JSON responses
	s.r.Use(cors(d.Origins))               // credentials-friendly CORS

	s.r.Route(apiPrefix, func(r chi.Router) {
		r.Get("/healthcheck", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.verifier))
			r.Get("/protected", s.handleProtected)
			for _, g := range games {
				r.Route("/game/"+string(g.Kind()), func(r chi.Router) { g.mount(r, s) })
			}
		})
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	return s
}

// Run serves HTTP on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	hs := &http.Server{Addr: addr, Handler: s.r, ReadHeaderTimeout: readHeaderTimeout}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down http server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the listed origins.
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			if origin := r.Header.Get("Origin"); allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// accessLog writes one zerolog line per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("http request")
	})
}

// ------------------------------ handlers -----------------------------------

type healthRes struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Store     bool      `json:"store"`
}

// handleHealth reports process liveness and store reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := healthRes{Status: "OK", Timestamp: s.now().UTC(), Store: s.store.Ping(r.Context())}
	status := http.StatusOK
	if !res.Store {
		res.Status = "DEGRADED"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

type protectedRes struct {
	Message   string        `json:"message"`
	User      auth.Identity `json:"user"`
	Timestamp time.Time     `json:"timestamp"`
}

// handleProtected echoes the verified identity.
func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	me, _ := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, protectedRes{
		Message:   "This is a protected route!",
		User:      me,
		Timestamp: s.now().UTC(),
	})
}

// ------------------------------ responses ----------------------------------

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorRes struct {
	Error      string `json:"error"`
	Detail     string `json:"detail,omitempty"`
	GameID     string `json:"game_id,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// writeError maps domain and store errors to status codes.
func writeError(w http.ResponseWriter, r *http.Request, kind game.Kind, err error) {
	me, _ := auth.FromContext(r.Context())
	var inProgress *game.InProgressError
	var limited *game.RateLimitError

	switch {
	case errors.As(err, &inProgress):
		writeJSON(w, http.StatusConflict, errorRes{
			Error: "game_in_progress", Detail: "Game already in progress", GameID: inProgress.SessionID,
		})
	case errors.As(err, &limited):
		secs := int((limited.RetryAfter + time.Second - 1) / time.Second) // round up
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, errorRes{Error: "rate_limited", Detail: err.Error(), RetryAfter: secs})
	case errors.Is(err, game.ErrGameLimitExceeded):
		writeJSON(w, http.StatusTooManyRequests, errorRes{
			Error: "game_limit_exceeded", Detail: "User has exceeded the maximum number of active games.",
		})
	case errors.Is(err, game.ErrGameNotFound):
		writeJSON(w, http.StatusNotFound, errorRes{Error: "not_found", Detail: "No active game found for user."})
	case errors.Is(err, kv.ErrUnavailable):
		log.Error().Err(err).Str("user", me.Email).Str("kind", string(kind)).Msg("store unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorRes{Error: "store_unavailable"})
	default:
		log.Error().Err(err).Str("user", me.Email).Str("kind", string(kind)).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorRes{Error: "internal"})
	}
}

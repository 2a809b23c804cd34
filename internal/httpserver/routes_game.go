// internal/httpserver/routes_game.go
//
// HTTP routes for one game kind, mounted under /api/py/game/{kind}:
//   - GET|POST /create → start a session (201), or 409 with the live session id
//   - GET      /state  → decoded state of the live session
//   - PUT      /state  → replace the live session's fields
//   - GET|POST /end    → end the live session (204)
//   - GET      /history → archived sessions for the caller
//
// Sessions are keyed by the caller's email.

package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/llmbattles/battleground/apps/go-server/internal/auth"
	"github.com/llmbattles/battleground/apps/go-server/internal/game"
	"github.com/llmbattles/battleground/apps/go-server/internal/history"
	"github.com/llmbattles/battleground/apps/go-server/internal/session"
)

const maxHistoryLimit = 100

// Game is a kind the server exposes routes for.
type Game interface {
	Kind() game.Kind
	mount(r chi.Router, s *Server)
}

// GameRoutes adapts a registry into a mountable Game.
func GameRoutes[T any](reg *session.Registry[T]) Game {
	return &gameServer[T]{reg: reg}
}

// gameServer wraps the registry for one kind.
type gameServer[T any] struct {
	reg *session.Registry[T]
	srv *Server
}

func (g *gameServer[T]) Kind() game.Kind { return g.reg.Kind() }

func (g *gameServer[T]) mount(r chi.Router, s *Server) {
	g.srv = s
	r.Get("/create", g.handleCreate)
	r.Post("/create", g.handleCreate)
	r.Get("/state", g.handleState)
	r.Put("/state", g.handleSave)
	r.Get("/end", g.handleEnd)
	r.Post("/end", g.handleEnd)
	r.Get("/history", g.handleHistory)
}

// createRes is returned by /create.
type createRes struct {
	GameID string `json:"game_id"`
}

// handleCreate starts a session for the caller.
func (g *gameServer[T]) handleCreate(w http.ResponseWriter, r *http.Request) {
	me, _ := auth.FromContext(r.Context())
	id, err := g.reg.Create(r.Context(), me.Email)
	if err != nil {
		writeError(w, r, g.Kind(), err)
		return
	}
	writeJSON(w, http.StatusCreated, createRes{GameID: id})
}

// handleState returns the caller's decoded state.
func (g *gameServer[T]) handleState(w http.ResponseWriter, r *http.Request) {
	me, _ := auth.FromContext(r.Context())
	st, err := g.reg.State(r.Context(), me.Email)
	if err != nil {
		writeError(w, r, g.Kind(), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleSave replaces the caller's state fields.
// Body: a JSON object of string values; id and host are ignored.
func (g *gameServer[T]) handleSave(w http.ResponseWriter, r *http.Request) {
	me, _ := auth.FromContext(r.Context())
	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || len(fields) == 0 {
		writeJSON(w, http.StatusBadRequest, errorRes{Error: "bad_json", Detail: "expected an object of string fields"})
		return
	}
	if err := g.reg.Save(r.Context(), me.Email, game.Record(fields)); err != nil {
		writeError(w, r, g.Kind(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEnd ends the caller's session.
func (g *gameServer[T]) handleEnd(w http.ResponseWriter, r *http.Request) {
	me, _ := auth.FromContext(r.Context())
	if err := g.reg.End(r.Context(), me.Email); err != nil {
		writeError(w, r, g.Kind(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// historyRes is returned by /history.
type historyRes struct {
	Kind  game.Kind      `json:"kind"`
	Games []history.Game `json:"games"`
}

// handleHistory lists the caller's archived sessions (newest first).
func (g *gameServer[T]) handleHistory(w http.ResponseWriter, r *http.Request) {
	if g.srv.history == nil {
		writeJSON(w, http.StatusNotFound, errorRes{Error: "history_disabled"})
		return
	}
	me, _ := auth.FromContext(r.Context())
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorRes{Error: "bad_limit"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	rows, err := g.srv.history.Recent(r.Context(), me.Email, g.Kind(), limit)
	if err != nil {
		writeError(w, r, g.Kind(), err)
		return
	}
	writeJSON(w, http.StatusOK, historyRes{Kind: g.Kind(), Games: rows})
}

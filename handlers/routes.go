package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/didip/tollbooth/v7"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"battleship-backend/store"
)

type RouteOptions struct {
	Socket        SocketSettings
	// RatePerSecond caps websocket upgrades per remote address. Zero turns
	// the limiter off.
	RatePerSecond float64
}

// GameRoutes mounts the game server: /ws, /health and /games/{gameId}.
func GameRoutes(r *mux.Router, hub *GameHub, st store.GameStore, opts RouteOptions, logger zerolog.Logger) {
	ep := Endpoint{router: hub, settings: opts.Socket, logger: logger}
	games := GameEndpoint{hub: hub, store: st, logger: logger}

	r.Handle("/ws", limit(http.HandlerFunc(ep.WSEndpoint), opts.RatePerSecond))
	r.HandleFunc("/health", games.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/games/{gameId}", games.GetGame).Methods(http.MethodGet)
}

// ChatRoutes mounts the chat server: /ws and /health.
func ChatRoutes(r *mux.Router, hub *ChatHub, opts RouteOptions, logger zerolog.Logger) {
	ep := Endpoint{router: hub, settings: opts.Socket, logger: logger}

	r.Handle("/ws", limit(http.HandlerFunc(ep.WSEndpoint), opts.RatePerSecond))
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		sessions, observers := hub.Stats()
		fmt.Fprintf(w, "OK: total sessions %d, connections %d", sessions, observers)
	}).Methods(http.MethodGet)
}

func limit(h http.Handler, perSecond float64) http.Handler {
	if perSecond <= 0 {
		return h
	}
	lmt := tollbooth.NewLimiter(perSecond, nil)
	lmt.SetMessage("too many connection attempts")
	return tollbooth.LimitHandler(lmt, h)
}

type Endpoint struct {
	router   Router
	settings SocketSettings
	logger   zerolog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (ep Endpoint) WSEndpoint(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		ep.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	if _, err := CreateNewSocketUser(ep.router, ws, ep.settings, ep.logger); err != nil {
		ep.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("connection dropped during handshake")
	}
}

type GameEndpoint struct {
	hub    *GameHub
	store  store.GameStore
	logger zerolog.Logger
}

func (ep GameEndpoint) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	games, connections := ep.hub.Stats()
	fmt.Fprintf(w, "OK: total games %d, connections %d", games, connections)
}

// GetGame returns the persisted metadata of a game.
func (ep GameEndpoint) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameId"]

	rec, err := ep.store.GetGame(r.Context(), gameID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		ep.logger.Error().Err(err).Str("game_id", gameID).Msg("store lookup")
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		ep.logger.Debug().Err(err).Msg("write game record")
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battleship-backend/auth"
	"battleship-backend/battleship"
	"battleship-backend/protocol"
	"battleship-backend/store"
)

func newGameServer(t *testing.T) (*httptest.Server, *GameHub, store.GameStore) {
	t.Helper()
	st := newMemoryStore(t)
	hub := NewGameHub(st, GameHubOptions{SweepInterval: time.Hour}, zerolog.Nop())
	r := mux.NewRouter()
	GameRoutes(r, hub, st, RouteOptions{Socket: DefaultSocketSettings}, zerolog.Nop())

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub, st
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	env := readEnvelope(t, conn)
	require.Equal(t, protocol.TypeHello, env.Type)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg protocol.Message) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame(t, msg)))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

// readUntil skips frames until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.Type) protocol.Envelope {
	t.Helper()
	for {
		env := readEnvelope(t, conn)
		if env.Type == want {
			return env
		}
	}
}

func TestGameRoutes_EndToEnd(t *testing.T) {
	srv, hub, _ := newGameServer(t)

	alice := dial(t, srv)
	send(t, alice, &protocol.JoinGame{PlayerID: "alice", GameID: "g1"})
	snap := decodePayload[battleship.Snapshot](t, readUntil(t, alice, protocol.TypeGameUpdate))
	assert.Equal(t, battleship.WaitingForPlayers, snap.State)

	bob := dial(t, srv)
	send(t, bob, &protocol.JoinGame{PlayerID: "bob", GameID: "g1"})
	snap = decodePayload[battleship.Snapshot](t, readUntil(t, bob, protocol.TypeGameUpdate))
	assert.Equal(t, battleship.ShipPlacement, snap.State)

	send(t, alice, &protocol.PlaceShip{PlayerID: "alice", GameID: "g1", ShipType: battleship.Destroyer, X: 0, Y: 0, Horizontal: true})
	require.Eventually(t, func() bool {
		g := hub.Game("g1")
		return g != nil && len(g.Snapshot().Players[0].Board.Ships) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// leaving resets the game for the opponent
	send(t, bob, &protocol.LeaveGame{PlayerID: "bob", GameID: "g1"})
	require.Eventually(t, func() bool {
		g := hub.Game("g1")
		return g != nil && g.State() == battleship.WaitingForPlayers && len(g.Players()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// closing the last socket deletes the game
	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool { return hub.Game("g1") == nil }, 2*time.Second, 10*time.Millisecond)
}

func TestGameRoutes_HealthAndGameRecord(t *testing.T) {
	srv, _, st := newGameServer(t)
	require.NoError(t, st.CreateGame(context.Background(), store.GameRecord{ID: "g7", State: "WAITING_FOR_PLAYERS"}))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "OK: total games 0")

	resp, err = http.Get(srv.URL + "/games/g7")
	require.NoError(t, err)
	var rec store.GameRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "g7", rec.ID)

	resp, err = http.Get(srv.URL + "/games/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatRoutes_EndToEnd(t *testing.T) {
	hub := NewChatHub(auth.StaticVerifier{"T1": "alice", "T2": "bob"}, zerolog.Nop())
	r := mux.NewRouter()
	ChatRoutes(r, hub, RouteOptions{Socket: DefaultSocketSettings}, zerolog.Nop())
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	c1 := dial(t, srv)
	send(t, c1, &protocol.ClientMessage{Content: "/join room42", ChatID: "room42", Token: "T1"})
	c2 := dial(t, srv)
	send(t, c2, &protocol.ClientMessage{Content: "/join room42", ChatID: "room42", Token: "T2"})

	require.Eventually(t, func() bool {
		_, observers := hub.Stats()
		return observers == 2
	}, 2*time.Second, 10*time.Millisecond)

	send(t, c1, &protocol.ClientMessage{Content: "hi all", ChatID: "room42", Token: "T1"})
	for _, conn := range []*websocket.Conn{c1, c2} {
		msg := decodePayload[protocol.ServerMessage](t, readUntil(t, conn, protocol.TypeServerMessage))
		assert.Equal(t, "alice", msg.SenderID)
		assert.Equal(t, "hi all", msg.Content)
	}
}

func TestRoutes_RateLimitedUpgrade(t *testing.T) {
	hub := NewChatHub(auth.StaticVerifier{}, zerolog.Nop())
	r := mux.NewRouter()
	ChatRoutes(r, hub, RouteOptions{Socket: DefaultSocketSettings, RatePerSecond: 1}, zerolog.Nop())
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	var limited bool
	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL + "/ws")
		require.NoError(t, err)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited)
}

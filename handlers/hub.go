package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"battleship-backend/battleship"
	"battleship-backend/protocol"
	"battleship-backend/store"
)

const storeTimeout = 2 * time.Second

var ErrWrongActor = errors.New("message names another player or game")

type GameHubOptions struct {
	SweepInterval    time.Duration
	// RebroadcastDelay schedules a second copy of the join snapshot for peers
	// whose socket was not ready for the first one. Zero disables it.
	RebroadcastDelay time.Duration
}

// gameRoom is a game plus the connections attached to it. seq is held from
// a mutation until its frames are written, so every connection sees
// snapshots in the order the game changed.
type gameRoom struct {
	seq   sync.Mutex
	game  *battleship.Game
	conns map[string]*Client // playerID -> Client

	// latest record not yet written to the store
	persistMu sync.Mutex
	pending   *store.GameRecord
	flushing  bool
}

// GameHub owns every running game and the connections attached to it.
type GameHub struct {
	mu    sync.RWMutex
	rooms map[string]*gameRoom

	store    store.GameStore
	persists sync.WaitGroup
	opts     GameHubOptions
	logger   zerolog.Logger
}

var _ Router = (*GameHub)(nil)

func NewGameHub(st store.GameStore, opts GameHubOptions, logger zerolog.Logger) *GameHub {
	return &GameHub{
		rooms:  make(map[string]*gameRoom),
		store:  st,
		opts:   opts,
		logger: logger.With().Str("component", "game-hub").Logger(),
	}
}

// Run sweeps dead connections on every tick until ctx is done.
func (hub *GameHub) Run(ctx context.Context) {
	ticker := time.NewTicker(hub.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hub.sweep()
		case <-ctx.Done():
			return
		}
	}
}

// RegisterGame creates the game if absent and returns it.
func (hub *GameHub) RegisterGame(gameID string) *battleship.Game {
	return hub.room(gameID).game
}

func (hub *GameHub) room(gameID string) *gameRoom {
	hub.mu.Lock()
	r, ok := hub.rooms[gameID]
	if !ok {
		r = &gameRoom{
			game:  battleship.NewGame(gameID),
			conns: make(map[string]*Client),
		}
		hub.rooms[gameID] = r
	}
	hub.mu.Unlock()

	if !ok {
		hub.logger.Info().Str("game_id", gameID).Msg("game created")
		hub.createRecord(r.game)
	}
	return r
}

func (hub *GameHub) lookup(gameID string) *gameRoom {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return hub.rooms[gameID]
}

func (hub *GameHub) Game(gameID string) *battleship.Game {
	if r := hub.lookup(gameID); r != nil {
		return r.game
	}
	return nil
}

// HandlePlayerConnection attaches c as the one connection of playerID in
// gameID, closing any connection it replaces, seats the player and
// broadcasts the resulting snapshot. It reports whether the player got a
// seat; otherwise c stays attached as a spectator.
func (hub *GameHub) HandlePlayerConnection(gameID, playerID string, c *Client) bool {
	r := hub.room(gameID)

	r.seq.Lock()
	hub.mu.Lock()
	if hub.rooms[gameID] != r {
		// deleted while we waited for seq
		hub.mu.Unlock()
		r.seq.Unlock()
		return hub.HandlePlayerConnection(gameID, playerID, c)
	}
	old := r.conns[playerID]
	r.conns[playerID] = c
	hub.mu.Unlock()

	// c is already mapped, so the old connection's Leave is a no-op.
	if old != nil && old != c {
		hub.logger.Info().Str("game_id", gameID).Str("player_id", playerID).Msg("replacing stale connection")
		old.Close()
	}

	seated := r.game.AddPlayer(playerID)
	if !seated {
		hub.logger.Info().Str("game_id", gameID).Str("player_id", playerID).Msg("game full, attached as spectator")
		if err := c.Send(protocol.Error{Message: "game is full"}); err != nil {
			hub.logger.Debug().Err(err).Msg("full-game notice not delivered")
		}
	}
	hub.persist(r)
	hub.broadcastLocked(r, protocol.GameUpdate{Snapshot: r.game.Snapshot()})
	r.seq.Unlock()

	hub.scheduleRebroadcast(gameID)
	return seated
}

// HandleBattleshipMessage applies a game action and rebroadcasts the
// snapshot. Rejected actions are only logged; players see the unchanged
// state in the snapshot that follows.
func (hub *GameHub) HandleBattleshipMessage(gameID string, msg protocol.Message) {
	r := hub.lookup(gameID)
	if r == nil {
		hub.logger.Warn().Str("game_id", gameID).Msg("message for unknown game dropped")
		return
	}
	log := hub.logger.With().Str("game_id", gameID).Str("type", string(msg.Type())).Logger()

	r.seq.Lock()
	defer r.seq.Unlock()

	var frames []protocol.Message
	switch m := msg.(type) {
	case *protocol.PlaceShip:
		if err := r.game.PlaceShip(m.PlayerID, m.ShipType, m.X, m.Y, m.Horizontal); err != nil {
			log.Debug().Err(err).Str("player_id", m.PlayerID).Msg("placement rejected")
		}
	case *protocol.PlayerReady:
		if err := r.game.SetPlayerReady(m.PlayerID); err != nil {
			log.Debug().Err(err).Str("player_id", m.PlayerID).Msg("ready rejected")
		}
	case *protocol.TakeShot:
		result, sunk := r.game.TakeShot(m.PlayerID, m.X, m.Y)
		log.Debug().Str("player_id", m.PlayerID).Str("result", string(result)).Int("x", m.X).Int("y", m.Y).Msg("shot")
		frames = append(frames, protocol.ShotResult{
			ShooterID: m.PlayerID,
			GameID:    gameID,
			Result:    result,
			X:         m.X,
			Y:         m.Y,
		})
		if sunk != nil {
			frames = append(frames, protocol.ShipSunk{ShooterID: m.PlayerID, GameID: gameID, Positions: sunk})
		}
	default:
		log.Warn().Msg("not a game action, dropped")
		return
	}

	hub.persist(r)
	frames = append(frames, protocol.GameUpdate{Snapshot: r.game.Snapshot()})
	hub.broadcastLocked(r, frames...)
}

// LeaveGame frees the player's seat, tells the remaining connections and
// closes the leaving connection.
func (hub *GameHub) LeaveGame(gameID, playerID string, c *Client) {
	if r := hub.lookup(gameID); r != nil {
		r.seq.Lock()
		hub.mu.Lock()
		if r.conns[playerID] == c {
			delete(r.conns, playerID)
		}
		hub.mu.Unlock()
		if r.game.RemovePlayer(playerID) {
			hub.logger.Info().Str("game_id", gameID).Str("player_id", playerID).Msg("player left")
			hub.persist(r)
			hub.broadcastLocked(r, protocol.GameUpdate{Snapshot: r.game.Snapshot()})
		}
		r.seq.Unlock()
	}
	// Removes the game too if c was its last connection.
	hub.RemovePlayerFromGame(gameID, playerID, c)
	c.Close()
}

// RemovePlayerFromGame detaches c. The game is deleted as soon as its last
// connection is gone.
func (hub *GameHub) RemovePlayerFromGame(gameID, playerID string, c *Client) {
	hub.mu.Lock()
	r, ok := hub.rooms[gameID]
	if !ok {
		hub.mu.Unlock()
		return
	}
	attached := r.conns[playerID] == c
	if attached {
		delete(r.conns, playerID)
	}
	empty := len(r.conns) == 0
	if empty {
		delete(hub.rooms, gameID)
	}
	hub.mu.Unlock()

	if attached {
		hub.logger.Info().Str("game_id", gameID).Str("player_id", playerID).Msg("connection removed")
	}
	if empty {
		hub.logger.Info().Str("game_id", gameID).Msg("game removed")
	}
}

func (hub *GameHub) BroadcastGameState(gameID string) {
	r := hub.lookup(gameID)
	if r == nil {
		return
	}
	r.seq.Lock()
	defer r.seq.Unlock()
	hub.broadcastLocked(r, protocol.GameUpdate{Snapshot: r.game.Snapshot()})
}

func (hub *GameHub) scheduleRebroadcast(gameID string) {
	if hub.opts.RebroadcastDelay <= 0 {
		return
	}
	time.AfterFunc(hub.opts.RebroadcastDelay, func() {
		hub.BroadcastGameState(gameID)
	})
}

// broadcastLocked writes frames, in order, to every connection of the room.
// Connections are written in parallel so one slow peer costs at most one
// write deadline. The caller holds r.seq.
func (hub *GameHub) broadcastLocked(r *gameRoom, msgs ...protocol.Message) {
	frames := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		data, err := protocol.Encode(m)
		if err != nil {
			hub.logger.Error().Err(err).Str("type", string(m.Type())).Msg("encode broadcast")
			return
		}
		frames = append(frames, data)
	}

	hub.mu.RLock()
	clients := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		clients = append(clients, c)
	}
	hub.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			for _, data := range frames {
				if err := c.sendRaw(data); err != nil {
					hub.logger.Debug().Err(err).Str("conn_id", c.ID()).Msg("broadcast send failed")
					return
				}
			}
		}(c)
	}
	wg.Wait()
}

// sweep drops connections that are no longer alive, deletes games left
// without connections and re-sends the snapshot to the survivors.
func (hub *GameHub) sweep() {
	var dead []*Client
	var alive []string
	removed := 0

	hub.mu.Lock()
	for gameID, r := range hub.rooms {
		for playerID, c := range r.conns {
			if !c.IsConnected() {
				delete(r.conns, playerID)
				dead = append(dead, c)
			}
		}
		if len(r.conns) == 0 {
			delete(hub.rooms, gameID)
			removed++
			continue
		}
		alive = append(alive, gameID)
	}
	hub.mu.Unlock()

	for _, c := range dead {
		c.Close()
	}
	for _, gameID := range alive {
		hub.BroadcastGameState(gameID)
	}
	if len(dead) > 0 || removed > 0 {
		hub.logger.Info().Int("dead_connections", len(dead)).Int("games_removed", removed).Msg("sweep")
	}
}

// Stats returns the number of games and attached connections.
func (hub *GameHub) Stats() (games, connections int) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for _, r := range hub.rooms {
		connections += len(r.conns)
	}
	return len(hub.rooms), connections
}

// Close tears down every connection and waits for queued store writes.
func (hub *GameHub) Close() {
	hub.mu.RLock()
	var all []*Client
	for _, r := range hub.rooms {
		for _, c := range r.conns {
			all = append(all, c)
		}
	}
	hub.mu.RUnlock()

	for _, c := range all {
		c.Close()
	}
	hub.persists.Wait()
}

// Join handles JOIN_GAME, the handshake of the game port.
func (hub *GameHub) Join(c *Client, msg protocol.Message) error {
	join, ok := msg.(*protocol.JoinGame)
	if !ok {
		return ErrNotJoined
	}
	c.bind(join.PlayerID, join.GameID, join.ChatID)
	hub.HandlePlayerConnection(join.GameID, join.PlayerID, c)
	return nil
}

// Dispatch routes a joined connection's messages to its bound game. Actions
// naming another player or game are dropped.
func (hub *GameHub) Dispatch(c *Client, msg protocol.Message) {
	gameID, playerID := c.GameID(), c.PlayerID()

	var err error
	switch m := msg.(type) {
	case *protocol.PlaceShip:
		err = checkActor(m.PlayerID, m.GameID, playerID, gameID)
	case *protocol.PlayerReady:
		err = checkActor(m.PlayerID, m.GameID, playerID, gameID)
	case *protocol.TakeShot:
		err = checkActor(m.PlayerID, m.GameID, playerID, gameID)
	case *protocol.LeaveGame:
		if err = checkActor(m.PlayerID, m.GameID, playerID, gameID); err == nil {
			hub.LeaveGame(gameID, playerID, c)
			return
		}
	case *protocol.JoinGame:
		c.log().Debug().Msg("already joined, repeated join ignored")
		return
	default:
		c.log().Warn().Str("type", string(msg.Type())).Msg("unsupported on the game port")
		return
	}
	if err != nil {
		c.log().Warn().Err(err).Str("type", string(msg.Type())).Msg("action dropped")
		return
	}
	hub.HandleBattleshipMessage(gameID, msg)
}

func (hub *GameHub) Leave(c *Client) {
	hub.RemovePlayerFromGame(c.GameID(), c.PlayerID(), c)
}

func checkActor(msgPlayer, msgGame, boundPlayer, boundGame string) error {
	if msgPlayer != boundPlayer || msgGame != boundGame {
		return fmt.Errorf("%w: got %s/%s, bound to %s/%s", ErrWrongActor, msgGame, msgPlayer, boundGame, boundPlayer)
	}
	return nil
}

func recordOf(game *battleship.Game) store.GameRecord {
	snap := game.Snapshot()
	players := make([]string, 0, len(snap.Players))
	for _, p := range snap.Players {
		players = append(players, p.PlayerID)
	}
	now := time.Now().UTC()
	return store.GameRecord{
		ID:        snap.GameID,
		State:     string(snap.State),
		Players:   players,
		Winner:    snap.Winner,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (hub *GameHub) createRecord(game *battleship.Game) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := hub.store.CreateGame(ctx, recordOf(game)); err != nil {
		hub.logger.Error().Err(err).Str("game_id", game.ID()).Msg("store create")
	}
}

// persist queues the game's current record for the store. The caller holds
// r.seq, so records are queued in the order the game changed; a single
// writer per room drains them and only the newest pending one is written.
func (hub *GameHub) persist(r *gameRoom) {
	rec := recordOf(r.game)

	r.persistMu.Lock()
	r.pending = &rec
	start := !r.flushing
	r.flushing = true
	r.persistMu.Unlock()

	if start {
		hub.persists.Add(1)
		go hub.flush(r)
	}
}

func (hub *GameHub) flush(r *gameRoom) {
	defer hub.persists.Done()

	for {
		r.persistMu.Lock()
		rec := r.pending
		r.pending = nil
		if rec == nil {
			r.flushing = false
			r.persistMu.Unlock()
			return
		}
		r.persistMu.Unlock()

		hub.updateRecord(*rec)
	}
}

func (hub *GameHub) updateRecord(rec store.GameRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := hub.store.UpdateGame(ctx, rec); err != nil {
		hub.logger.Error().Err(err).Str("game_id", rec.ID).Msg("store update")
	}
}

package battleship

import (
	"errors"
	"sync"
)

type State string

const (
	WaitingForPlayers State = "WAITING_FOR_PLAYERS"
	ShipPlacement     State = "SHIP_PLACEMENT"
	Playing           State = "PLAYING"
	Finished          State = "FINISHED"
)

const maxPlayers = 2

var (
	ErrWrongState      = errors.New("action not allowed in the current game state")
	ErrUnknownPlayer   = errors.New("player is not part of this game")
	ErrFleetIncomplete = errors.New("not every ship type has been placed")
)

// Game is one match between two players. All methods lock the game, so a
// shot and a concurrent snapshot never observe a half-applied move.
type Game struct {
	mu sync.Mutex

	id            string
	players       []string
	boards        map[string]*Board
	ready         map[string]bool
	state         State
	currentPlayer string
	winner        string
}

func NewGame(id string) *Game {
	return &Game{
		id:      id,
		players: make([]string, 0, maxPlayers),
		boards:  make(map[string]*Board, maxPlayers),
		ready:   make(map[string]bool, maxPlayers),
		state:   WaitingForPlayers,
	}
}

func (g *Game) ID() string { return g.id }

// AddPlayer seats a player in the next free slot. Re-adding a seated player
// is a successful no-op so a reconnecting client keeps its board. A third
// distinct player is refused. Filling a seat freed after the game finished
// starts a new round.
func (g *Game) AddPlayer(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hasPlayer(playerID) {
		return true
	}
	if len(g.players) >= maxPlayers {
		return false
	}

	if g.state == Finished {
		g.reset()
	}
	g.players = append(g.players, playerID)
	g.boards[playerID] = NewBoard()
	g.ready[playerID] = false
	if len(g.players) == maxPlayers && g.state == WaitingForPlayers {
		g.state = ShipPlacement
	}
	return true
}

// RemovePlayer frees the player's slot. Unless the game is already finished
// it is reset: the remaining player keeps its seat with a fresh board and the
// game waits for a new opponent.
func (g *Game) RemovePlayer(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := -1
	for i, p := range g.players {
		if p == playerID {
			idx = i
		}
	}
	if idx < 0 {
		return false
	}

	g.players = append(g.players[:idx], g.players[idx+1:]...)
	delete(g.boards, playerID)
	delete(g.ready, playerID)

	if g.state == Finished {
		return true
	}
	g.reset()
	return true
}

// reset gives the seated players fresh boards and waits for an opponent.
func (g *Game) reset() {
	for _, p := range g.players {
		g.boards[p] = NewBoard()
		g.ready[p] = false
	}
	g.state = WaitingForPlayers
	g.currentPlayer = ""
	g.winner = ""
}

func (g *Game) PlaceShip(playerID string, t ShipType, x, y int, horizontal bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != ShipPlacement {
		return ErrWrongState
	}
	board, ok := g.boards[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	return board.PlaceShip(t, x, y, horizontal)
}

func (g *Game) SetPlayerReady(playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != ShipPlacement {
		return ErrWrongState
	}
	board, ok := g.boards[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	if !board.AllShipsPlaced() {
		return ErrFleetIncomplete
	}

	g.ready[playerID] = true
	for _, p := range g.players {
		if !g.ready[p] {
			return nil
		}
	}
	g.state = Playing
	g.currentPlayer = g.players[0]
	return nil
}

// TakeShot fires at the opponent's board. The turn passes only on a miss.
// When the shot sinks a ship its cells are returned alongside the result.
func (g *Game) TakeShot(playerID string, x, y int) (ShotResult, []Coord) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != Playing || playerID != g.currentPlayer {
		return Invalid, nil
	}
	opponent := g.opponentOf(playerID)
	board, ok := g.boards[opponent]
	if !ok {
		return Invalid, nil
	}

	result := board.ReceiveShot(x, y)
	var sunk []Coord
	switch result {
	case Miss:
		g.currentPlayer = opponent
	case Sunk:
		sunk = board.ShipAt(x, y).Cells()
	case GameOver:
		sunk = board.ShipAt(x, y).Cells()
		g.state = Finished
		g.winner = playerID
	}
	return result, sunk
}

func (g *Game) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Game) CurrentPlayer() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentPlayer
}

func (g *Game) Winner() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.winner
}

// Players returns the seated players in join order.
func (g *Game) Players() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.players...)
}

func (g *Game) HasPlayer(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasPlayer(playerID)
}

func (g *Game) IsReady(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready[playerID]
}

func (g *Game) hasPlayer(playerID string) bool {
	for _, p := range g.players {
		if p == playerID {
			return true
		}
	}
	return false
}

func (g *Game) opponentOf(playerID string) string {
	for _, p := range g.players {
		if p != playerID {
			return p
		}
	}
	return ""
}

package battleship

type ShipView struct {
	Type  ShipType `json:"type"`
	Cells []Coord  `json:"cells"`
	Hits  int      `json:"hits"`
	Sunk  bool     `json:"sunk"`
}

type BoardView struct {
	Grid  []string   `json:"grid"`
	Ships []ShipView `json:"ships"`
}

type PlayerView struct {
	PlayerID string    `json:"playerId"`
	Ready    bool      `json:"ready"`
	Board    BoardView `json:"board"`
}

// Snapshot is the full state of a game as sent to its connections.
type Snapshot struct {
	GameID        string       `json:"gameId"`
	State         State        `json:"state"`
	CurrentPlayer string       `json:"currentPlayer,omitempty"`
	Winner        string       `json:"winner,omitempty"`
	Players       []PlayerView `json:"players"`
}

func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := Snapshot{
		GameID:        g.id,
		State:         g.state,
		CurrentPlayer: g.currentPlayer,
		Winner:        g.winner,
		Players:       make([]PlayerView, 0, len(g.players)),
	}
	for _, p := range g.players {
		snap.Players = append(snap.Players, PlayerView{
			PlayerID: p,
			Ready:    g.ready[p],
			Board:    g.boards[p].view(),
		})
	}
	return snap
}

func (b *Board) view() BoardView {
	v := BoardView{Grid: b.Grid(), Ships: make([]ShipView, 0, len(b.ships))}
	for _, s := range b.Ships() {
		v.Ships = append(v.Ships, ShipView{
			Type:  s.Type,
			Cells: s.Cells(),
			Hits:  s.hits,
			Sunk:  s.sunk,
		})
	}
	return v
}

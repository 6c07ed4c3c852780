package battleship

import (
	"errors"
	"strings"
)

const Size = 10

var (
	ErrUnknownShipType   = errors.New("unknown ship type")
	ErrShipAlreadyPlaced = errors.New("ship type already placed")
	ErrOutOfBounds       = errors.New("ship does not fit on the board")
	ErrShipsTouching     = errors.New("ship overlaps or touches another ship")
)

type ShotResult string

const (
	Miss        ShotResult = "MISS"
	Hit         ShotResult = "HIT"
	Sunk        ShotResult = "SUNK"
	GameOver    ShotResult = "GAME_OVER"
	AlreadyShot ShotResult = "ALREADY_SHOT"
	Invalid     ShotResult = "INVALID"
)

type cell struct {
	ship *Ship
	shot bool
}

// Board is one player's 10x10 grid. It is not safe for concurrent use; the
// owning Game serializes access.
type Board struct {
	cells [Size][Size]cell
	ships map[ShipType]*Ship
}

func NewBoard() *Board {
	return &Board{ships: make(map[ShipType]*Ship, len(Fleet))}
}

// PlaceShip validates the whole placement before touching the grid, so a
// rejected ship leaves the board unchanged.
func (b *Board) PlaceShip(t ShipType, x, y int, horizontal bool) error {
	if !t.Valid() {
		return ErrUnknownShipType
	}
	if _, ok := b.ships[t]; ok {
		return ErrShipAlreadyPlaced
	}

	ship := &Ship{Type: t, X: x, Y: y, Horizontal: horizontal}
	cells := ship.Cells()
	for _, c := range cells {
		if !c.inBounds() {
			return ErrOutOfBounds
		}
	}
	for _, c := range cells {
		for _, n := range neighborhood(c) {
			if b.cells[n.X][n.Y].ship != nil {
				return ErrShipsTouching
			}
		}
	}

	for _, c := range cells {
		b.cells[c.X][c.Y].ship = ship
	}
	b.ships[t] = ship
	return nil
}

func (b *Board) ReceiveShot(x, y int) ShotResult {
	target := Coord{X: x, Y: y}
	if !target.inBounds() {
		return Invalid
	}

	c := &b.cells[x][y]
	if c.shot {
		return AlreadyShot
	}
	c.shot = true
	if c.ship == nil {
		return Miss
	}

	ship := c.ship
	ship.hits++
	if ship.hits < ship.Length() {
		return Hit
	}

	ship.sunk = true
	b.revealBorder(ship)
	if b.AllShipsSunk() {
		return GameOver
	}
	return Sunk
}

// revealBorder marks every cell around a sunk ship as shot. No ship can sit
// there, so no hits are recorded.
func (b *Board) revealBorder(ship *Ship) {
	for _, c := range ship.Cells() {
		for _, n := range neighborhood(c) {
			b.cells[n.X][n.Y].shot = true
		}
	}
}

func (b *Board) AllShipsPlaced() bool {
	for _, t := range Fleet {
		if _, ok := b.ships[t]; !ok {
			return false
		}
	}
	return true
}

// AllShipsSunk reports false for a board without ships.
func (b *Board) AllShipsSunk() bool {
	if len(b.ships) == 0 {
		return false
	}
	for _, s := range b.ships {
		if !s.sunk {
			return false
		}
	}
	return true
}

func (b *Board) ShipAt(x, y int) *Ship {
	if !(Coord{X: x, Y: y}).inBounds() {
		return nil
	}
	return b.cells[x][y].ship
}

func (b *Board) IsShot(x, y int) bool {
	if !(Coord{X: x, Y: y}).inBounds() {
		return false
	}
	return b.cells[x][y].shot
}

// Ships returns the placed ships in fleet order.
func (b *Board) Ships() []*Ship {
	ships := make([]*Ship, 0, len(b.ships))
	for _, t := range Fleet {
		if s, ok := b.ships[t]; ok {
			ships = append(ships, s)
		}
	}
	return ships
}

// Grid renders the board one string per row: '.' water, 'S' ship,
// 'X' hit ship, 'o' shot water.
func (b *Board) Grid() []string {
	rows := make([]string, Size)
	var sb strings.Builder
	for x := 0; x < Size; x++ {
		sb.Reset()
		for y := 0; y < Size; y++ {
			c := b.cells[x][y]
			switch {
			case c.ship != nil && c.shot:
				sb.WriteByte('X')
			case c.ship != nil:
				sb.WriteByte('S')
			case c.shot:
				sb.WriteByte('o')
			default:
				sb.WriteByte('.')
			}
		}
		rows[x] = sb.String()
	}
	return rows
}

// neighborhood returns c and its in-bounds 8-neighbors.
func neighborhood(c Coord) []Coord {
	out := make([]Coord, 0, 9)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			n := Coord{X: c.X + dx, Y: c.Y + dy}
			if n.inBounds() {
				out = append(out, n)
			}
		}
	}
	return out
}

package battleship

import "fmt"

type ShipType string

const (
	Carrier    ShipType = "CARRIER"
	Battleship ShipType = "BATTLESHIP"
	Cruiser    ShipType = "CRUISER"
	Submarine  ShipType = "SUBMARINE"
	Destroyer  ShipType = "DESTROYER"
)

// Fleet lists every ship type a board must hold before its player can be ready.
var Fleet = []ShipType{Carrier, Battleship, Cruiser, Submarine, Destroyer}

var shipLengths = map[ShipType]int{
	Carrier:    5,
	Battleship: 4,
	Cruiser:    3,
	Submarine:  3,
	Destroyer:  2,
}

// Length returns the number of cells the ship type occupies, or 0 for an
// unknown type.
func (t ShipType) Length() int {
	return shipLengths[t]
}

func (t ShipType) Valid() bool {
	_, ok := shipLengths[t]
	return ok
}

func ParseShipType(s string) (ShipType, error) {
	t := ShipType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownShipType, s)
	}
	return t, nil
}

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coord) inBounds() bool {
	return c.X >= 0 && c.X < Size && c.Y >= 0 && c.Y < Size
}

// Ship is a placed vessel. X is the row and Y the column of its first cell;
// a horizontal ship extends along Y.
type Ship struct {
	Type       ShipType
	X, Y       int
	Horizontal bool

	hits int
	sunk bool
}

func (s *Ship) Cells() []Coord {
	cells := make([]Coord, 0, s.Type.Length())
	for i := 0; i < s.Type.Length(); i++ {
		if s.Horizontal {
			cells = append(cells, Coord{X: s.X, Y: s.Y + i})
		} else {
			cells = append(cells, Coord{X: s.X + i, Y: s.Y})
		}
	}
	return cells
}

func (s *Ship) Hits() int   { return s.hits }
func (s *Ship) Sunk() bool  { return s.sunk }
func (s *Ship) Length() int { return s.Type.Length() }

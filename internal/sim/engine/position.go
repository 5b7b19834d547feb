package engine

import "fmt"

// Position addresses one floor cell. Column grows rightward, row grows
// upward; the output pushes finished products off the bottom edge (row -1).
type Position struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

func (p Position) String() string { return fmt.Sprintf("(%d, %d)", p.Col, p.Row) }

func (p Position) Shift(d Direction) Position {
	switch d {
	case Right:
		p.Col++
	case Up:
		p.Row++
	case Down:
		p.Row--
	case Left:
		p.Col--
	}
	return p
}

// Less orders positions column-major for deterministic iteration.
func (p Position) Less(q Position) bool {
	if p.Col != q.Col {
		return p.Col < q.Col
	}
	return p.Row < q.Row
}

// OffGrid marks entities that are not on the floor (inside a stacker, or
// already delivered).
var OffGrid = Position{Col: -1, Row: -1}

// Direction is one of the four cardinal floor directions.
type Direction uint8

const (
	Right Direction = iota
	Up
	Down
	Left
)

var directionNames = [...]string{"RIGHT", "UP", "DOWN", "LEFT"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return "?"
}

func (d Direction) Opposite() Direction {
	switch d {
	case Right:
		return Left
	case Left:
		return Right
	case Up:
		return Down
	default:
		return Up
	}
}

// RightOf is a quarter turn clockwise when looking down at the floor.
func (d Direction) RightOf() Direction {
	switch d {
	case Up:
		return Right
	case Right:
		return Down
	case Down:
		return Left
	default:
		return Up
	}
}

func (d Direction) LeftOf() Direction { return d.RightOf().Opposite() }

// ParseDirection accepts the names used in solution files.
func ParseDirection(s string) (Direction, error) {
	for i, name := range directionNames {
		if s == name {
			return Direction(i), nil
		}
	}
	return Right, fmt.Errorf("unknown direction %q", s)
}

// pullPriority ranks simultaneous unforced moves into the same free cell by
// incoming travel direction: from the top first, then from the left, the
// right, and the bottom. Lower rank wins.
func pullPriority(d Direction) int {
	switch d {
	case Down:
		return 0
	case Right:
		return 1
	case Left:
		return 2
	default: // Up
		return 3
	}
}

// intentFallbacks lists candidate directions for an unforced transport cell,
// relative to its primary push direction: straight through first, then the
// right hand side, the left hand side, and finally back the way it points
// from.
func intentFallbacks(primary Direction) [4]Direction {
	return [4]Direction{primary, primary.RightOf(), primary.LeftOf(), primary.Opposite()}
}

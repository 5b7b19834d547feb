package engine

// Floor dimensions. Fixed by the reference machine geometry.
const (
	FloorCols = 6
	FloorRows = 7
)

// Cell is one static floor cell: an optional directional floor (the floor
// itself pushes resident entities, machine or not) and wall flags per edge.
type Cell struct {
	// HasFloorDir + FloorDir describe a painted transport floor.
	HasFloorDir bool
	FloorDir    Direction
	// Walls blocks exit through an edge. Indexed by Direction.
	Walls [4]bool
}

// Grid is the static topology of the factory floor. It answers geometric
// queries only and never touches entities.
type Grid struct {
	cells [FloorCols][FloorRows]Cell
}

func NewGrid() *Grid { return &Grid{} }

func (g *Grid) InBounds(p Position) bool {
	return p.Col >= 0 && p.Col < FloorCols && p.Row >= 0 && p.Row < FloorRows
}

// CellAt returns the cell at p, or ErrOutOfBounds.
func (g *Grid) CellAt(p Position) (*Cell, error) {
	if !g.InBounds(p) {
		return nil, ErrOutOfBounds
	}
	return &g.cells[p.Col][p.Row], nil
}

// SetFloorDir paints a directional floor on a cell. Layout-load time only.
func (g *Grid) SetFloorDir(p Position, d Direction) error {
	c, err := g.CellAt(p)
	if err != nil {
		return err
	}
	c.HasFloorDir = true
	c.FloorDir = d
	return nil
}

// SetWall raises a wall on one edge of a cell and the matching edge of the
// neighbor, so CanExit and CanEnter stay symmetric.
func (g *Grid) SetWall(p Position, d Direction) error {
	c, err := g.CellAt(p)
	if err != nil {
		return err
	}
	c.Walls[d] = true
	if n, err := g.CellAt(p.Shift(d)); err == nil {
		n.Walls[d.Opposite()] = true
	}
	return nil
}

// CanExit reports whether an entity at p may leave through edge d.
// The floor boundary never permits exit; the output's delivery edge is
// handled by the resolver, not the grid.
func (g *Grid) CanExit(p Position, d Direction) bool {
	c, err := g.CellAt(p)
	if err != nil {
		return false
	}
	if c.Walls[d] {
		return false
	}
	return g.InBounds(p.Shift(d))
}

// CanEnter reports whether an entity traveling in direction d may enter the
// cell at p (i.e. cross p's rear edge relative to d).
func (g *Grid) CanEnter(p Position, d Direction) bool {
	c, err := g.CellAt(p)
	if err != nil {
		return false
	}
	return !c.Walls[d.Opposite()]
}

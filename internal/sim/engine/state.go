package engine

import (
	"fmt"
	"sort"

	"foodcourt.dev/internal/sim/tuning"
)

// State is the complete mutable simulation state for one (solution, order)
// run. It is exclusively owned by the simulation loop; nothing in here is
// shared across runs.
type State struct {
	cfg        LevelConfig
	policy     tuning.Policy
	grid       *Grid
	modules    []*Module
	bus        *signalBus
	arena      *Arena
	orderIndex int

	// byPos holds floor entities per cell. Only stacker cells may hold
	// more than one handle after movement resolution.
	byPos map[Position][]Handle
	// modAt indexes floor modules by cell.
	modAt map[Position]*Module

	tick      int
	delivered bool
	// touched guards the one-mutation-per-tick invariant: entity handle ->
	// module index that already mutated it this tick.
	touched map[Handle]int
}

// Layout is the parsed solution the engine consumes once at start: placed
// modules, wires and optional floor geometry. Produced by the solution
// package, never re-parsed mid-run.
type Layout struct {
	Modules    []*Module
	Wires      []Wire
	FloorDirs  map[Position]Direction
	InnerWalls []WallSpec
}

// WallSpec raises a wall on one edge of a cell.
type WallSpec struct {
	Pos Position  `json:"pos"`
	Dir Direction `json:"dir"`
}

// NewState builds a run-ready state from a layout. The level configuration
// and policy are explicit parameters by design; there is no ambient level
// registry.
func NewState(cfg LevelConfig, pol tuning.Policy, layout Layout, orderIndex int) (*State, error) {
	if orderIndex < 0 || orderIndex >= len(cfg.Orders) {
		return nil, fmt.Errorf("order index %d out of range (level has %d orders)", orderIndex, len(cfg.Orders))
	}

	grid := NewGrid()
	for pos, dir := range layout.FloorDirs {
		if err := grid.SetFloorDir(pos, dir); err != nil {
			return nil, fmt.Errorf("floor direction at %s: %w", pos, err)
		}
	}
	for _, ws := range layout.InnerWalls {
		if err := grid.SetWall(ws.Pos, ws.Dir); err != nil {
			return nil, fmt.Errorf("wall at %s: %w", ws.Pos, err)
		}
	}

	s := &State{
		cfg:        cfg,
		policy:     pol,
		grid:       grid,
		arena:      NewArena(),
		orderIndex: orderIndex,
		byPos:      make(map[Position][]Handle),
		modAt:      make(map[Position]*Module),
		touched:    make(map[Handle]int),
	}

	var mainCount, outputCount int
	for i, src := range layout.Modules {
		m := new(Module)
		*m = *src // runs never share module state with the layout
		m.Index = i
		if !cfg.moduleLegal(m.Kind) {
			return nil, fmt.Errorf("module kind %s is not legal in level %s", m.Kind, cfg.ID)
		}
		jacks, err := buildJacks(m, cfg)
		if err != nil {
			return nil, fmt.Errorf("module %d (%s): %w", i, m.Kind, err)
		}
		m.Jacks = jacks
		m.resetRuntime()
		if m.OnFloor() {
			if !grid.InBounds(m.Pos) {
				return nil, fmt.Errorf("module %d (%s) placed off the floor at %s", i, m.Kind, m.Pos)
			}
			if prev, taken := s.modAt[m.Pos]; taken {
				return nil, fmt.Errorf("modules %d and %d share cell %s", prev.Index, i, m.Pos)
			}
			s.modAt[m.Pos] = m
		}
		switch m.Kind {
		case KindMainDispenser:
			mainCount++
		case KindOutput:
			outputCount++
		}
		s.modules = append(s.modules, m)
	}
	if mainCount != 1 {
		return nil, fmt.Errorf("layout needs exactly one main dispenser, has %d", mainCount)
	}
	if outputCount != 1 {
		return nil, fmt.Errorf("layout needs exactly one output, has %d", outputCount)
	}

	bus, err := buildSignalBus(s.modules, layout.Wires)
	if err != nil {
		return nil, err
	}
	s.bus = bus
	return s, nil
}

func (s *State) Tick() int { return s.tick }

func (s *State) order() Order { return s.cfg.Orders[s.orderIndex] }

func (s *State) moduleAt(p Position) *Module { return s.modAt[p] }

func (s *State) findModule(kind ModuleKind) *Module {
	for _, m := range s.modules {
		if m.Kind == kind {
			return m
		}
	}
	return nil
}

// entitiesAt returns the handles at p in arrival order.
func (s *State) entitiesAt(p Position) []Handle { return s.byPos[p] }

// entityAt returns the single entity at p. More than one entity outside a
// stacker cell is an engine bug.
func (s *State) entityAt(p Position) (Handle, *Entity, error) {
	hs := s.byPos[p]
	switch len(hs) {
	case 0:
		return NoHandle, nil, nil
	case 1:
		return hs[0], s.arena.Get(hs[0]), nil
	default:
		if m := s.modAt[p]; m != nil && m.Kind == KindStacker {
			return hs[0], s.arena.Get(hs[0]), nil
		}
		return NoHandle, nil, newStop(StopInternal, "unhandled entity collision", p)
	}
}

func (s *State) addEntity(h Handle) {
	e := s.arena.Get(h)
	s.byPos[e.Pos] = append(s.byPos[e.Pos], h)
}

// removeEntity takes h off the floor and parks it at OffGrid. The entity
// stays allocated: stackers and outputs decide what happens to it next.
func (s *State) removeEntity(h Handle) {
	e := s.arena.Get(h)
	hs := s.byPos[e.Pos]
	for i, other := range hs {
		if other == h {
			hs = append(hs[:i], hs[i+1:]...)
			break
		}
	}
	if len(hs) == 0 {
		delete(s.byPos, e.Pos)
	} else {
		s.byPos[e.Pos] = hs
	}
	e.Pos = OffGrid
}

// placeEntity puts an off-floor entity at p.
func (s *State) placeEntity(h Handle, p Position) {
	e := s.arena.Get(h)
	e.Pos = p
	s.addEntity(h)
}

// mutate records a composition mutation by module m and enforces the
// one-module-per-tick mutation invariant.
func (s *State) mutate(h Handle, m *Module) error {
	if prev, ok := s.touched[h]; ok && prev != m.Index {
		return newStop(StopInternal,
			fmt.Sprintf("entity mutated by modules %d and %d in one tick", prev, m.Index), m.Pos)
	}
	s.touched[h] = m.Index
	return nil
}

// occupiedPositions returns all occupied cells, sorted, for deterministic
// sweeps.
func (s *State) occupiedPositions() []Position {
	out := make([]Position, 0, len(s.byPos))
	for p := range s.byPos {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

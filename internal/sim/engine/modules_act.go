package engine

import "fmt"

// actPhase is the only phase that may mutate compositions or declare moves.
// Modules run in placement order; floor cells without a module contribute
// their directional-floor intent afterwards. All decisions read the frozen
// positions from the end of the previous tick.
func (s *State) actPhase() ([]MoveIntent, error) {
	var moves []MoveIntent

	for _, m := range s.modules {
		switch m.Kind {
		case KindMainDispenser:
			mv, err := s.actMainDispenser(m)
			if err != nil {
				return nil, err
			}
			moves = append(moves, mv...)
		case KindSolidDispenser:
			if err := s.actSolidDispenser(m); err != nil {
				return nil, err
			}
			if mv, ok, err := s.transportIntent(m, m.Dir, false); err != nil {
				return nil, err
			} else if ok {
				moves = append(moves, mv)
			}
		case KindFluidDispenser:
			if err := s.actFluidDispenser(m); err != nil {
				return nil, err
			}
		case KindToppingDispenser:
			if err := s.actToppingDispenser(m); err != nil {
				return nil, err
			}
		case KindFluidCoater:
			mv, ok, err := s.actFluidCoater(m)
			if err != nil {
				return nil, err
			}
			if ok {
				moves = append(moves, mv)
			}
		case KindConveyor:
			dir := m.Dir
			if m.Reversible && m.reversed {
				dir = m.Dir.Opposite()
			}
			if mv, ok, err := s.transportIntent(m, dir, false); err != nil {
				return nil, err
			} else if ok {
				moves = append(moves, mv)
			}
		case KindRouter:
			if mv, ok, err := s.transportIntent(m, m.routerDir, false); err != nil {
				return nil, err
			} else if ok {
				moves = append(moves, mv)
			}
		case KindGate:
			if !m.gateOpen {
				continue
			}
			if mv, ok, err := s.transportIntent(m, m.Dir, false); err != nil {
				return nil, err
			} else if ok {
				moves = append(moves, mv)
			}
		case KindSlicer:
			mv, ok, err := s.actSlicer(m)
			if err != nil {
				return nil, err
			}
			if ok {
				moves = append(moves, mv)
			}
		case KindCooker:
			mv, ok, err := s.actCooker(m)
			if err != nil {
				return nil, err
			}
			if ok {
				moves = append(moves, mv)
			}
		case KindStacker:
			mv, ok, err := s.actStacker(m)
			if err != nil {
				return nil, err
			}
			if ok {
				moves = append(moves, mv)
			}
		case KindOutput:
			mv, ok, err := s.actOutput(m)
			if err != nil {
				return nil, err
			}
			if ok {
				moves = append(moves, mv)
			}
		case KindWasteBin:
			if err := s.actWasteBin(m); err != nil {
				return nil, err
			}
		case KindMultimixer, KindCounter, KindSequencer, KindSensor:
			// These modules act in the signal phase only.
		default:
			return nil, newStop(StopInternal, fmt.Sprintf("no behavior for module kind %s", m.Kind))
		}
	}

	// Directional floors on module-less cells.
	for _, pos := range s.occupiedPositions() {
		if s.modAt[pos] != nil {
			continue
		}
		cell, err := s.grid.CellAt(pos)
		if err != nil || !cell.HasFloorDir {
			continue
		}
		h, _, err := s.entityAt(pos)
		if err != nil {
			return nil, err
		}
		if h != NoHandle {
			moves = append(moves, MoveIntent{Ent: h, From: pos, Dir: cell.FloorDir})
		}
	}
	return moves, nil
}

// transportIntent emits the unforced carry move for the entity resting on a
// transport-style module, if any.
func (s *State) transportIntent(m *Module, dir Direction, force bool) (MoveIntent, bool, error) {
	h, _, err := s.entityAt(m.Pos)
	if err != nil || h == NoHandle {
		return MoveIntent{}, false, err
	}
	return MoveIntent{Ent: h, From: m.Pos, Dir: dir, Force: force}, true, nil
}

func (s *State) actMainDispenser(m *Module) ([]MoveIntent, error) {
	if m.cooldown > 0 {
		m.cooldown--
	}
	h, _, err := s.entityAt(m.Pos)
	if err != nil {
		return nil, err
	}
	canSpawn := !m.spawned || (s.cfg.DispenseInterval > 0 && m.cooldown == 0)
	if canSpawn && h == NoHandle {
		nh := s.arena.Spawn(s.cfg.BaseKind, m.Pos, m.Dir)
		s.addEntity(nh)
		m.spawned = true
		m.cooldown = s.cfg.DispenseInterval
		h = nh
	}
	if h == NoHandle {
		return nil, nil
	}
	return []MoveIntent{{Ent: h, From: m.Pos, Dir: m.Dir}}, nil
}

func (s *State) actSolidDispenser(m *Module) error {
	for j, jack := range m.Jacks {
		if jack.Dir != JackIn || !s.bus.read(m.Index, j) {
			continue
		}
		if _, e, err := s.entityAt(m.Pos); err != nil {
			return err
		} else if e != nil {
			return errCollision(m.Pos)
		}
		h := s.arena.Spawn(s.cfg.SolidInputs[m.InputID][j], m.Pos, m.Dir)
		s.addEntity(h)
	}
	return nil
}

func (s *State) actFluidDispenser(m *Module) error {
	var active []string
	for j, jack := range m.Jacks {
		if jack.Dir == JackIn && s.bus.read(m.Index, j) {
			active = append(active, s.cfg.ToppingInputs[m.InputID][j])
		}
	}
	if len(active) == 0 {
		return nil
	}
	if len(active) > 2 {
		return errTooManyInputs(m.Pos)
	}
	target := m.Pos.Shift(m.Dir)
	h, e, err := s.entityAt(target)
	if err != nil {
		return err
	}
	if e == nil {
		return newStop(StopIllegalEntity, "This fluid was dispensed onto the floor.", target, m.Pos)
	}
	if err := s.mutate(h, m); err != nil {
		return err
	}
	if len(active) == 2 {
		e.Ops = append(e.Ops, MixFluids(active[0], active[1]))
	} else {
		e.Ops = append(e.Ops, Operation{Kind: OpDispenseFluid, Topping: active[0]})
	}
	return nil
}

func (s *State) actToppingDispenser(m *Module) error {
	var active []string
	for j, jack := range m.Jacks {
		if jack.Dir == JackIn && s.bus.read(m.Index, j) {
			active = append(active, s.cfg.ToppingInputs[m.InputID][j])
		}
	}
	if len(active) == 0 {
		return nil
	}
	if len(active) > 1 {
		return errTooManyInputs(m.Pos)
	}
	target := m.Pos.Shift(m.Dir)
	h, e, err := s.entityAt(target)
	if err != nil {
		return err
	}
	if e == nil {
		return newStop(StopIllegalEntity, "This topping was dispensed onto the floor.", target, m.Pos)
	}
	if err := s.mutate(h, m); err != nil {
		return err
	}
	e.Ops = append(e.Ops, Operation{Kind: OpTopping, Topping: active[0]})
	return nil
}

func (s *State) actFluidCoater(m *Module) (MoveIntent, bool, error) {
	h, e, err := s.entityAt(m.Pos)
	if err != nil || h == NoHandle {
		return MoveIntent{}, false, err
	}
	if err := s.mutate(h, m); err != nil {
		return MoveIntent{}, false, err
	}
	e.Ops = append(e.Ops, Operation{Kind: OpCoatFluid, Topping: s.cfg.ToppingInputs[m.InputID][0]})
	return MoveIntent{Ent: h, From: m.Pos, Dir: m.Dir}, true, nil
}

func (s *State) actSlicer(m *Module) (MoveIntent, bool, error) {
	h, e, err := s.entityAt(m.Pos)
	if err != nil || h == NoHandle {
		return MoveIntent{}, false, err
	}
	rule, ok := s.cfg.SliceRules[e.Kind]
	if !ok {
		return MoveIntent{}, false, newStop(StopIllegalEntity, "This product cannot be sliced.", m.Pos)
	}
	if err := s.mutate(h, m); err != nil {
		return MoveIntent{}, false, err
	}
	if rule.Into != "" {
		e.Kind = rule.Into
	}
	if !rule.KeepOps {
		e.Ops = nil
	}
	e.Ops = append(e.Ops, Operation{Kind: OpSlice})
	return MoveIntent{Ent: h, From: m.Pos, Dir: m.Dir}, true, nil
}

func (s *State) actCooker(m *Module) (MoveIntent, bool, error) {
	h, e, err := s.entityAt(m.Pos)
	if err != nil || h == NoHandle {
		return MoveIntent{}, false, err
	}
	op, err := m.Flavor.op()
	if err != nil {
		return MoveIntent{}, false, newStop(StopInternal, err.Error(), m.Pos)
	}
	if s.bus.read(m.Index, 1) { // EJECT: forced, no further cooking this tick
		return MoveIntent{Ent: h, From: m.Pos, Dir: m.Dir, Force: true}, true, nil
	}
	if err := s.mutate(h, m); err != nil {
		return MoveIntent{}, false, err
	}
	e.Ops = append(e.Ops, op)
	return MoveIntent{}, false, nil
}

// actStacker merges the accumulated pile bottom-up into one entity when
// EJECT fires, then pushes it out. Pile order is arrival order.
func (s *State) actStacker(m *Module) (MoveIntent, bool, error) {
	if !s.bus.read(m.Index, 1) {
		return MoveIntent{}, false, nil
	}
	pile := append([]Handle(nil), s.entitiesAt(m.Pos)...)
	if len(pile) == 0 {
		return MoveIntent{}, false, nil
	}
	base := pile[0]
	for _, top := range pile[1:] {
		if err := s.stackOnto(base, top, m.Pos); err != nil {
			return MoveIntent{}, false, err
		}
	}
	if err := s.mutate(base, m); err != nil {
		return MoveIntent{}, false, err
	}
	return MoveIntent{Ent: base, From: m.Pos, Dir: m.Dir, Force: true}, true, nil
}

// stackOnto attaches top to the composition rooted at base, trying the
// deepest stacked child first so piles grow upward.
func (s *State) stackOnto(base, top Handle, at Position) error {
	be := s.arena.Get(base)
	te := s.arena.Get(top)
	if n := len(be.Stack); n > 0 {
		if err := s.stackOnto(be.Stack[n-1], top, at); err == nil {
			return nil
		}
	}
	if !s.cfg.canStack(be.Kind, te.Kind) {
		return newStop(StopIllegalComposition,
			fmt.Sprintf("A %s cannot be stacked onto a %s.", te.Kind, be.Kind), at)
	}
	if cap := s.cfg.StackCapacity[be.Kind]; cap > 0 && len(be.Stack) >= cap {
		return newStop(StopIllegalComposition,
			fmt.Sprintf("This %s is already full.", be.Kind), at)
	}
	s.removeEntity(top)
	be.Stack = append(be.Stack, top)
	return nil
}

func (s *State) actOutput(m *Module) (MoveIntent, bool, error) {
	h, e, err := s.entityAt(m.Pos)
	if err != nil || h == NoHandle {
		return MoveIntent{}, false, err
	}
	want := s.order().Product
	if e.Kind != want.Kind {
		return MoveIntent{}, false, newStop(StopIllegalEntity,
			fmt.Sprintf("A %s is not what was ordered.", e.Kind), m.Pos)
	}
	if !s.arena.Matches(h, want, s.cfg.Compare) {
		return MoveIntent{}, false, newStop(StopMismatch, "This is not what was ordered.", m.Pos)
	}
	// Delivery: the output pushes the product off the bottom edge. The
	// resolver treats Exit moves as removal, not as a bounds violation.
	return MoveIntent{Ent: h, From: m.Pos, Dir: Down, Force: true, Exit: true}, true, nil
}

func (s *State) actWasteBin(m *Module) error {
	h, _, err := s.entityAt(m.Pos)
	if err != nil || h == NoHandle {
		return err
	}
	if m.binUsed {
		return newStop(StopIllegalEntity, "This waste bin has already been used.", m.Pos)
	}
	m.binUsed = true
	s.removeEntity(h)
	s.arena.FreeTree(h)
	return nil
}

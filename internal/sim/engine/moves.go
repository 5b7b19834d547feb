package engine

import "sort"

// MoveIntent is one entity's candidate move for the current tick, declared
// during the act phase from frozen positions.
type MoveIntent struct {
	Ent  Handle
	From Position
	Dir  Direction
	// Force marks module-mandated moves: they override transport priority
	// and turn otherwise-absorbed conflicts into emergency stops.
	Force bool
	// Exit marks the output's delivery push off the floor edge.
	Exit bool
	// FromReversed marks moves emitted by an actively reversed conveyor,
	// which are exempt from the against-the-flow machine entry rule.
	FromReversed bool
}

type blockClass int

const (
	blockNone blockClass = iota
	blockWall
	blockMachine
	blockBounds
)

// movePhase is the single authoritative movement pass: candidate selection
// with priority fallback, per-destination conflict resolution, vacancy-
// ordered application (moves off a cell land before moves onto it), and the
// final occupancy check. Deterministic by construction: every iteration is
// over sorted positions or slot-ordered handles.
func (s *State) movePhase(intents []MoveIntent) error {
	chosen := make([]MoveIntent, 0, len(intents))
	for _, in := range intents {
		if in.Exit {
			chosen = append(chosen, in)
			continue
		}
		if in.Force {
			if err := s.checkForced(in); err != nil {
				return err
			}
			chosen = append(chosen, in)
			continue
		}
		mv, ok, err := s.selectUnforced(in)
		if err != nil {
			return err
		}
		if ok {
			chosen = append(chosen, mv)
		}
	}

	// Deliveries vacate the output cell before anything else lands.
	pending := chosen[:0]
	for _, mv := range chosen {
		if !mv.Exit {
			pending = append(pending, mv)
			continue
		}
		if !s.arena.Matches(mv.Ent, s.order().Product, s.cfg.Compare) {
			return newStop(StopInternal, "unverified delivery", mv.From)
		}
		s.removeEntity(mv.Ent)
		s.arena.FreeTree(mv.Ent)
		s.delivered = true
	}

	winners, err := s.pickWinners(pending)
	if err != nil {
		return err
	}
	return s.applyMoves(winners)
}

// selectUnforced picks the first viable candidate direction for an unforced
// move, falling through right, left, back when the policy allows. A move
// whose primary candidate leaves the floor is fatal before any fallback; a
// move with no viable candidate is silently absorbed (the entity holds).
func (s *State) selectUnforced(in MoveIntent) (MoveIntent, bool, error) {
	candidates := [4]Direction{in.Dir, in.Dir, in.Dir, in.Dir}
	n := 1
	if s.policy.IntentFallback {
		candidates = intentFallbacks(in.Dir)
		n = len(candidates)
	}
	for i := 0; i < n; i++ {
		dir := candidates[i]
		dest := in.From.Shift(dir)
		switch s.classify(in, dir, dest) {
		case blockBounds:
			if i == 0 {
				return MoveIntent{}, false, errOffFloor(in.From)
			}
			// Fallback candidates stop at the boundary silently.
		case blockNone:
			out := in
			out.Dir = dir
			return out, true, nil
		}
	}
	return MoveIntent{}, false, nil
}

// checkForced applies the static collision checks to a forced move in the
// policy's precedence order. Forced moves never fall back; any static block
// is an emergency stop. Entity-entity conflicts are dynamic and resolved
// during application.
func (s *State) checkForced(in MoveIntent) error {
	dest := in.From.Shift(in.Dir)
	if !s.grid.InBounds(dest) {
		return errOffFloor(in.From)
	}
	for _, check := range s.policy.Precedence {
		switch check {
		case "wall":
			if !s.grid.CanExit(in.From, in.Dir) || !s.grid.CanEnter(dest, in.Dir) {
				return newStop(StopWallCollision, "This product has hit a wall.", in.From, dest)
			}
		case "machine":
			if !s.acceptsEntry(in, dest) {
				return errCollision(dest, in.From)
			}
		case "entity":
			// Deferred: the occupant may vacate this tick.
		}
	}
	return nil
}

// classify applies the static checks to one unforced candidate.
func (s *State) classify(in MoveIntent, dir Direction, dest Position) blockClass {
	if !s.grid.InBounds(dest) {
		if s.policy.BoundsFatal {
			return blockBounds
		}
		return blockWall
	}
	probe := in
	probe.Dir = dir
	for _, check := range s.policy.Precedence {
		switch check {
		case "wall":
			if !s.grid.CanExit(in.From, dir) || !s.grid.CanEnter(dest, dir) {
				return blockWall
			}
		case "machine":
			if !s.acceptsEntry(probe, dest) {
				return blockMachine
			}
		}
	}
	return blockNone
}

// acceptsEntry reports whether the module at dest (if any) lets an entity
// enter while traveling in in.Dir.
func (s *State) acceptsEntry(in MoveIntent, dest Position) bool {
	m := s.moduleAt(dest)
	if m == nil {
		return true
	}
	switch m.Kind {
	case KindConveyor:
		flow := m.Dir
		if m.Reversible && m.reversed {
			flow = m.Dir.Opposite()
		}
		if in.Dir == flow.Opposite() {
			// Entering against the belt: rejected, unless the entity was
			// pushed here by a reversed belt and the policy exempts it.
			return s.policy.ReversingExempt && in.FromReversed
		}
		return true
	case KindGate:
		return m.gateOpen
	default:
		return true
	}
}

// pickWinners resolves per-destination contention: a single forced move
// wins outright, several forced moves collide fatally, and unforced moves
// are ranked by the floor's pull priority. Stacker cells accept everyone.
func (s *State) pickWinners(moves []MoveIntent) ([]MoveIntent, error) {
	byDest := make(map[Position][]MoveIntent)
	for _, mv := range moves {
		dest := mv.From.Shift(mv.Dir)
		byDest[dest] = append(byDest[dest], mv)
	}
	dests := make([]Position, 0, len(byDest))
	for d := range byDest {
		dests = append(dests, d)
	}
	sort.Slice(dests, func(i, j int) bool { return dests[i].Less(dests[j]) })

	var winners []MoveIntent
	for _, dest := range dests {
		group := byDest[dest]
		if m := s.moduleAt(dest); m != nil && m.Kind == KindStacker && s.policy.StackerExempt {
			winners = append(winners, group...)
			continue
		}
		var forced []MoveIntent
		for _, mv := range group {
			if mv.Force {
				forced = append(forced, mv)
			}
		}
		switch {
		case len(forced) > 1:
			positions := []Position{dest}
			for _, mv := range forced {
				positions = append(positions, mv.From)
			}
			return nil, errCollision(positions...)
		case len(forced) == 1:
			winners = append(winners, forced[0])
		default:
			best := group[0]
			for _, mv := range group[1:] {
				if pullPriority(mv.Dir) < pullPriority(best.Dir) {
					best = mv
				}
			}
			winners = append(winners, best)
		}
	}
	return winners, nil
}

// applyMoves lands the winning moves. Moves into cells being vacated this
// tick succeed (chains advance together), closed loops rotate in lockstep,
// and a move stuck behind a stationary entity is absorbed (fatal when
// forced). No entity ever observes another's post-move position while
// deciding; this phase only places what was already decided.
func (s *State) applyMoves(winners []MoveIntent) error {
	sort.Slice(winners, func(i, j int) bool { return winners[i].From.Less(winners[j].From) })

	apply := func(mv MoveIntent) {
		dest := mv.From.Shift(mv.Dir)
		s.removeEntity(mv.Ent)
		e := s.arena.Get(mv.Ent)
		e.Facing = mv.Dir
		s.placeEntity(mv.Ent, dest)
	}

	pending := append([]MoveIntent(nil), winners...)
	for {
		progress := false
		rest := pending[:0]
		for _, mv := range pending {
			dest := mv.From.Shift(mv.Dir)
			destStacker := false
			if m := s.moduleAt(dest); m != nil && m.Kind == KindStacker && s.policy.StackerExempt {
				destStacker = true
			}
			if destStacker || len(s.byPos[dest]) == 0 {
				apply(mv)
				progress = true
				continue
			}
			rest = append(rest, mv)
		}
		pending = rest
		if !progress {
			break
		}
	}

	// Closed loops: every remaining move's destination is the source of
	// another remaining move. Rotate each loop atomically.
	bySource := make(map[Position]int, len(pending))
	for i, mv := range pending {
		bySource[mv.From] = i
	}
	inLoop := make([]bool, len(pending))
	for start := range pending {
		if inLoop[start] {
			continue
		}
		path := []int{start}
		seen := map[int]bool{start: true}
		cur := start
		for {
			dest := pending[cur].From.Shift(pending[cur].Dir)
			next, ok := bySource[dest]
			if !ok || len(s.byPos[dest]) != 1 {
				path = nil
				break
			}
			if next == start {
				break
			}
			if seen[next] {
				path = nil
				break
			}
			seen[next] = true
			path = append(path, next)
			cur = next
		}
		if path == nil {
			continue
		}
		// Lift every loop member, then land them all.
		for _, i := range path {
			s.removeEntity(pending[i].Ent)
		}
		for _, i := range path {
			mv := pending[i]
			e := s.arena.Get(mv.Ent)
			e.Facing = mv.Dir
			s.placeEntity(mv.Ent, mv.From.Shift(mv.Dir))
			inLoop[i] = true
		}
	}

	for i, mv := range pending {
		if inLoop[i] {
			continue
		}
		if mv.Force {
			return errCollision(mv.From.Shift(mv.Dir), mv.From)
		}
		// Unforced move behind a stationary entity: absorbed.
	}

	// Invariant: at most one entity per non-stacker cell.
	for _, pos := range s.occupiedPositions() {
		if len(s.byPos[pos]) <= 1 {
			continue
		}
		if m := s.moduleAt(pos); m != nil && m.Kind == KindStacker {
			continue
		}
		return newStop(StopInternal, "unhandled entity collision", pos)
	}
	return nil
}

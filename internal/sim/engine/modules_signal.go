package engine

// signalPhase runs at the top of every tick, strictly before movement:
// physical emissions are derived from the frozen end-of-last-tick state,
// mixers propagate combinationally, stateful rack modules latch, and gates,
// routers and reversible conveyors commit their control state for this
// tick's movement resolution. Nothing here survives into the next tick.
func (s *State) signalPhase() error {
	s.bus.reset()

	// Physical emissions.
	for _, m := range s.modules {
		switch m.Kind {
		case KindMainDispenser:
			// Order signals stay lit until the order is delivered; START
			// pulses on the first tick only.
			if !s.delivered {
				for i, on := range s.order().Signals {
					if i+1 < len(m.Jacks) {
						s.bus.emit(m.Index, i+1, on)
					}
				}
			}
			if s.tick == 1 {
				s.bus.emit(m.Index, 0, true)
			}
		case KindSensor:
			_, e, err := s.entityAt(m.Pos.Shift(m.Dir))
			if err != nil {
				return err
			}
			s.bus.emit(m.Index, 0, e != nil)
		case KindCooker:
			_, e, err := s.entityAt(m.Pos)
			if err != nil {
				return err
			}
			s.bus.emit(m.Index, 0, e != nil)
		case KindStacker:
			s.bus.emit(m.Index, 0, len(s.entitiesAt(m.Pos)) > 0)
		}
	}

	// Combinational propagation through multimixers. Bounded fixpoint: a
	// mixer wired to itself does not latch, because every round recomputes
	// from this tick's emissions only.
	for round := 0; round <= len(s.modules); round++ {
		changed := false
		for _, m := range s.modules {
			if m.Kind != KindMultimixer {
				continue
			}
			any := false
			for j, jack := range m.Jacks {
				if jack.Dir == JackIn && s.bus.read(m.Index, j) {
					any = true
					break
				}
			}
			if !any {
				continue
			}
			for j, jack := range m.Jacks {
				if jack.Dir != JackOut {
					continue
				}
				ref := jackRef{m.Index, j}
				if !s.bus.out[ref] {
					s.bus.out[ref] = true
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	// Stateful rack modules: emit from the state they entered the tick
	// with, then latch this tick's inputs.
	for _, m := range s.modules {
		switch m.Kind {
		case KindCounter:
			s.bus.emit(m.Index, 0, m.count == 0)
			for j := 0; j < 2; j++ {
				if s.bus.read(m.Index, 1+j) {
					m.count += m.CounterValues[j]
				}
			}
		case KindSequencer:
			if m.seqRow >= 0 && m.seqRow < len(m.SequencerRows) {
				row := m.SequencerRows[m.seqRow]
				for j := 0; j < 4; j++ {
					s.bus.emit(m.Index, 2+j, row[j])
				}
			}
			switch {
			case s.bus.read(m.Index, 1): // STOP
				m.seqRow = -1
			case m.seqRow >= 0:
				m.seqRow++
				if m.seqRow >= len(m.SequencerRows) {
					m.seqRow = -1
				}
			case s.bus.read(m.Index, 0): // START
				m.seqRow = 0
			}
		}
	}

	// Control latches for movement resolution.
	for _, m := range s.modules {
		switch m.Kind {
		case KindGate:
			m.gateOpen = s.bus.read(m.Index, 0)
		case KindConveyor:
			if m.Reversible {
				m.reversed = s.bus.read(m.Index, 0)
			}
		case KindRouter:
			active := 0
			dir := m.Dir
			for j := 0; j < 3; j++ {
				if !s.bus.read(m.Index, j) {
					continue
				}
				active++
				switch j {
				case 0:
					dir = m.Dir.LeftOf()
				case 1:
					dir = m.Dir
				case 2:
					dir = m.Dir.RightOf()
				}
			}
			if active > 1 {
				return errTooManyInputs(m.Pos)
			}
			m.routerDir = dir
		}
	}
	return nil
}

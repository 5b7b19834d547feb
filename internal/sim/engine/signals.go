package engine

import "fmt"

// JackDir distinguishes signal producers from consumers.
type JackDir uint8

const (
	JackIn JackDir = iota + 1
	JackOut
)

// Jack is one named signal port on a module.
type Jack struct {
	Name string
	Dir  JackDir
}

func inJack(name string) Jack  { return Jack{Name: name, Dir: JackIn} }
func outJack(name string) Jack { return Jack{Name: name, Dir: JackOut} }

// Wire connects two jacks by module index and jack index within the module.
type Wire struct {
	Module1 int `json:"module1"`
	Jack1   int `json:"jack1"`
	Module2 int `json:"module2"`
	Jack2   int `json:"jack2"`
}

type jackRef struct {
	module int
	jack   int
}

// signalBus delivers per-tick signals between wired modules. The adjacency
// table is built once at load and validated eagerly; values live for exactly
// one tick and are rebuilt from scratch each signal phase.
type signalBus struct {
	peers map[jackRef]jackRef
	// out holds the value of every OUT jack for the current tick.
	out map[jackRef]bool
}

// buildSignalBus validates the wire list against the placed modules and
// returns the adjacency table. Dangling references fail here, not mid-run.
func buildSignalBus(modules []*Module, wires []Wire) (*signalBus, error) {
	bus := &signalBus{
		peers: make(map[jackRef]jackRef, 2*len(wires)),
		out:   make(map[jackRef]bool),
	}
	jackAt := func(m, j int) (Jack, error) {
		if m < 0 || m >= len(modules) {
			return Jack{}, fmt.Errorf("wire references module %d of %d", m, len(modules))
		}
		jacks := modules[m].Jacks
		if j < 0 || j >= len(jacks) {
			return Jack{}, fmt.Errorf("wire references jack %d of module %d (%s has %d jacks)",
				j, m, modules[m].Kind, len(jacks))
		}
		return jacks[j], nil
	}
	for _, w := range wires {
		j1, err := jackAt(w.Module1, w.Jack1)
		if err != nil {
			return nil, err
		}
		j2, err := jackAt(w.Module2, w.Jack2)
		if err != nil {
			return nil, err
		}
		if j1.Dir == j2.Dir {
			return nil, fmt.Errorf("wire connects two %s jacks (%d.%d - %d.%d)",
				dirName(j1.Dir), w.Module1, w.Jack1, w.Module2, w.Jack2)
		}
		r1 := jackRef{w.Module1, w.Jack1}
		r2 := jackRef{w.Module2, w.Jack2}
		if _, dup := bus.peers[r1]; dup {
			return nil, fmt.Errorf("jack %d.%d has more than one wire", w.Module1, w.Jack1)
		}
		if _, dup := bus.peers[r2]; dup {
			return nil, fmt.Errorf("jack %d.%d has more than one wire", w.Module2, w.Jack2)
		}
		bus.peers[r1] = r2
		bus.peers[r2] = r1
	}
	return bus, nil
}

func dirName(d JackDir) string {
	if d == JackIn {
		return "IN"
	}
	return "OUT"
}

// reset clears all values at the start of a tick's signal phase.
func (b *signalBus) reset() {
	for k := range b.out {
		delete(b.out, k)
	}
}

// emit sets the value of an OUT jack for the current tick. Emitting false is
// a no-op: absent and false are indistinguishable by design.
func (b *signalBus) emit(module, jack int, v bool) {
	if v {
		b.out[jackRef{module, jack}] = true
	}
}

// read returns the value arriving at an IN jack this tick. Unwired jacks and
// jacks whose peer never emitted read as false, never an error.
func (b *signalBus) read(module, jack int) bool {
	peer, ok := b.peers[jackRef{module, jack}]
	if !ok {
		return false
	}
	return b.out[peer]
}

// wired reports whether a jack has a wire at all.
func (b *signalBus) wired(module, jack int) bool {
	_, ok := b.peers[jackRef{module, jack}]
	return ok
}

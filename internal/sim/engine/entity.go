package engine

import (
	"sort"
	"strings"
)

// Handle is a stable entity reference: arena slot plus generation. Handles
// survive snapshotting and keep tie-breaks independent of pointer identity.
type Handle struct {
	Index uint32 `json:"index"`
	Gen   uint32 `json:"gen"`
}

// NoHandle is the zero Handle; arena generations start at 1 so it never
// refers to a live entity.
var NoHandle = Handle{}

// Entity is a food item riding the floor. Its composition (operation stack
// plus stacked sub-entities) is mutated only by module behaviors, never by
// movement code.
type Entity struct {
	Kind   string      `json:"kind"`
	Ops    []Operation `json:"ops,omitempty"`
	Stack  []Handle    `json:"stack,omitempty"`
	Pos    Position    `json:"pos"`
	Facing Direction   `json:"facing"`
}

type arenaSlot struct {
	gen  uint32
	live bool
	ent  Entity
}

// Arena owns every entity of one simulation run. Slots are reused
// generationally; iteration order is slot order, which is spawn order for a
// deterministic run and therefore itself deterministic.
type Arena struct {
	slots []arenaSlot
	free  []uint32
	count int
}

func NewArena() *Arena { return &Arena{} }

func (a *Arena) Len() int { return a.count }

func (a *Arena) Spawn(kind string, pos Position, facing Direction) Handle {
	e := Entity{Kind: kind, Pos: pos, Facing: facing}
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.gen++
		s.live = true
		s.ent = e
		a.count++
		return Handle{Index: idx, Gen: s.gen}
	}
	a.slots = append(a.slots, arenaSlot{gen: 1, live: true, ent: e})
	a.count++
	return Handle{Index: uint32(len(a.slots) - 1), Gen: 1}
}

// Get returns the entity for h, or nil if h is stale or free.
func (a *Arena) Get(h Handle) *Entity {
	if int(h.Index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.Index]
	if !s.live || s.gen != h.Gen {
		return nil
	}
	return &s.ent
}

// Free releases h. Stacked sub-entities stay allocated; they are owned by
// their parent's composition and freed with it via FreeTree.
func (a *Arena) Free(h Handle) {
	if int(h.Index) >= len(a.slots) {
		return
	}
	s := &a.slots[h.Index]
	if !s.live || s.gen != h.Gen {
		return
	}
	s.live = false
	a.free = append(a.free, h.Index)
	a.count--
}

func (a *Arena) FreeTree(h Handle) {
	e := a.Get(h)
	if e == nil {
		return
	}
	for _, child := range e.Stack {
		a.FreeTree(child)
	}
	a.Free(h)
}

// Live returns all live handles in slot order.
func (a *Arena) Live() []Handle {
	out := make([]Handle, 0, a.count)
	for i := range a.slots {
		if a.slots[i].live {
			out = append(out, Handle{Index: uint32(i), Gen: a.slots[i].gen})
		}
	}
	return out
}

// Product is the expected shape of a finished entity, what the output
// compares deliveries against.
type Product struct {
	Kind  string      `json:"kind" yaml:"kind"`
	Ops   []Operation `json:"ops,omitempty" yaml:"ops,omitempty"`
	Parts []Product   `json:"parts,omitempty" yaml:"parts,omitempty"`
}

// CompareRules configure order-independence per product kind. A kind listed
// in UnorderedOps compares its operation stack as a multiset (cups of mixed
// fluids); a kind in UnorderedParts compares stacked sub-entities as a
// multiset (trays); everything else is order-sensitive (burgers).
type CompareRules struct {
	UnorderedOps   map[string]bool
	UnorderedParts map[string]bool
}

// canonicalKey flattens a product tree into a comparable string under the
// given rules. A byte-stable encoding beats walking two trees in lockstep.
func (p Product) canonicalKey(rules CompareRules) string {
	var b strings.Builder
	b.WriteString(p.Kind)
	b.WriteString("\x01")
	ops := make([]string, len(p.Ops))
	for i, op := range p.Ops {
		ops[i] = op.key()
	}
	if rules.UnorderedOps[p.Kind] {
		sort.Strings(ops)
	}
	b.WriteString(strings.Join(ops, "\x02"))
	b.WriteString("\x01")
	parts := make([]string, len(p.Parts))
	for i, part := range p.Parts {
		parts[i] = part.canonicalKey(rules)
	}
	if rules.UnorderedParts[p.Kind] {
		sort.Strings(parts)
	}
	b.WriteString(strings.Join(parts, "\x03"))
	return b.String()
}

// productOf reifies an entity tree into a Product for comparison and
// reporting. Pure read; shares nothing with the arena afterwards.
func (a *Arena) productOf(h Handle) Product {
	e := a.Get(h)
	if e == nil {
		return Product{}
	}
	p := Product{Kind: e.Kind}
	if len(e.Ops) > 0 {
		p.Ops = append([]Operation(nil), e.Ops...)
	}
	for _, child := range e.Stack {
		p.Parts = append(p.Parts, a.productOf(child))
	}
	return p
}

// Matches reports whether the delivered entity equals the ordered product
// under the level's comparison rules.
func (a *Arena) Matches(h Handle, want Product, rules CompareRules) bool {
	return a.productOf(h).canonicalKey(rules) == want.canonicalKey(rules)
}

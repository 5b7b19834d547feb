package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

// TickReport is a byte-stable snapshot of one tick's end state. Entity and
// module lists are sorted, so encoding the same state twice yields the same
// bytes and the same digest.
type TickReport struct {
	Tick      int            `json:"tick"`
	Delivered bool           `json:"delivered"`
	Cost      int            `json:"cost"`
	Entities  []EntityReport `json:"entities"`
	Modules   []ModuleReport `json:"modules"`
	Digest    string         `json:"digest"`
}

// EntityReport describes one floor entity and, recursively, its stack.
type EntityReport struct {
	Kind   string         `json:"kind"`
	Pos    Position       `json:"pos"`
	Facing string         `json:"facing"`
	Ops    []string       `json:"ops,omitempty"`
	Stack  []EntityReport `json:"stack,omitempty"`
}

// ModuleReport carries the runtime state a viewer needs; static placement
// is in the solution, not repeated every tick.
type ModuleReport struct {
	Index     int    `json:"index"`
	Kind      string `json:"kind"`
	GateOpen  bool   `json:"gate_open,omitempty"`
	Reversed  bool   `json:"reversed,omitempty"`
	RouterDir string `json:"router_dir,omitempty"`
	BinUsed   bool   `json:"bin_used,omitempty"`
	Count     int    `json:"count,omitempty"`
	SeqRow    int    `json:"seq_row,omitempty"`
}

// Snapshot captures the current end-of-tick state.
func (s *State) Snapshot() *TickReport {
	r := &TickReport{
		Tick:      s.tick,
		Delivered: s.delivered,
	}
	for _, m := range s.modules {
		r.Cost += m.Price(s.cfg)
	}

	for _, pos := range s.occupiedPositions() {
		for _, h := range s.byPos[pos] {
			r.Entities = append(r.Entities, s.entityReport(h))
		}
	}

	for _, m := range s.modules {
		mr := ModuleReport{Index: m.Index, Kind: string(m.Kind), SeqRow: m.seqRow}
		switch m.Kind {
		case KindGate:
			mr.GateOpen = m.gateOpen
		case KindConveyor:
			mr.Reversed = m.reversed
		case KindRouter:
			mr.RouterDir = m.routerDir.String()
		case KindWasteBin:
			mr.BinUsed = m.binUsed
		case KindCounter:
			mr.Count = m.count
		}
		r.Modules = append(r.Modules, mr)
	}

	r.Digest = r.digest()
	return r
}

func (s *State) entityReport(h Handle) EntityReport {
	e := s.arena.Get(h)
	er := EntityReport{
		Kind:   e.Kind,
		Pos:    e.Pos,
		Facing: e.Facing.String(),
	}
	for _, op := range e.Ops {
		er.Ops = append(er.Ops, op.String())
	}
	for _, child := range e.Stack {
		er.Stack = append(er.Stack, s.entityReport(child))
	}
	return er
}

// digest hashes the report's semantic content. JSON encoding details (field
// order, whitespace) never enter the hash; two snapshots of identical state
// always agree.
func (r *TickReport) digest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteI64(h, &tmp, int64(r.Tick))
	h.Write([]byte{boolByte(r.Delivered)})
	digestWriteI64(h, &tmp, int64(r.Cost))

	digestWriteI64(h, &tmp, int64(len(r.Entities)))
	for i := range r.Entities {
		digestEntity(h, &tmp, &r.Entities[i])
	}

	digestWriteI64(h, &tmp, int64(len(r.Modules)))
	for _, m := range r.Modules {
		digestWriteI64(h, &tmp, int64(m.Index))
		digestString(h, &tmp, m.Kind)
		h.Write([]byte{boolByte(m.GateOpen), boolByte(m.Reversed), boolByte(m.BinUsed)})
		digestString(h, &tmp, m.RouterDir)
		digestWriteI64(h, &tmp, int64(m.Count))
		digestWriteI64(h, &tmp, int64(m.SeqRow))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestEntity(h hashWriter, tmp *[8]byte, e *EntityReport) {
	digestString(h, tmp, e.Kind)
	digestWriteI64(h, tmp, int64(e.Pos.Col))
	digestWriteI64(h, tmp, int64(e.Pos.Row))
	digestString(h, tmp, e.Facing)
	digestStrings(h, tmp, e.Ops)
	digestWriteI64(h, tmp, int64(len(e.Stack)))
	for i := range e.Stack {
		digestEntity(h, tmp, &e.Stack[i])
	}
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteI64(h, tmp, int64(len(s)))
	h.Write([]byte(s))
}

func digestStrings(h hashWriter, tmp *[8]byte, ss []string) {
	digestWriteI64(h, tmp, int64(len(ss)))
	for _, s := range ss {
		digestString(h, tmp, s)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// sortReports orders entity reports by position then kind. Snapshot output
// is already sorted; this exists for callers reassembling reports from
// external sources.
func sortReports(es []EntityReport) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].Pos != es[j].Pos {
			return es[i].Pos.Less(es[j].Pos)
		}
		return es[i].Kind < es[j].Kind
	})
}

package engine

import (
	"context"
	"testing"

	"foodcourt.dev/internal/sim/tuning"
)

// trayLevel is the smallest useful level: the dispenser hands out trays and
// order 0 wants a plain tray delivered.
func trayLevel() LevelConfig {
	return LevelConfig{
		ID:               "test-tray",
		OrderSignalNames: []string{"ORDER_1"},
		Orders: []Order{
			{Signals: []bool{true}, Product: Product{Kind: "tray"}},
		},
		BaseKind:  "tray",
		TickLimit: 100,
	}
}

// lineLayout is a straight belt from the dispenser to the output across the
// middle row.
func lineLayout() Layout {
	return Layout{Modules: []*Module{
		{Kind: KindMainDispenser, Pos: Position{0, 3}, Dir: Right},
		{Kind: KindConveyor, Pos: Position{1, 3}, Dir: Right},
		{Kind: KindConveyor, Pos: Position{2, 3}, Dir: Right},
		{Kind: KindConveyor, Pos: Position{3, 3}, Dir: Right},
		{Kind: KindConveyor, Pos: Position{4, 3}, Dir: Right},
		{Kind: KindOutput, Pos: Position{5, 3}, Dir: Down},
	}}
}

func mustState(t *testing.T, cfg LevelConfig, layout Layout) *State {
	t.Helper()
	s, err := NewState(cfg, tuning.Defaults().Policy, layout, 0)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return s
}

// spawnAt drops a test entity onto the floor directly, bypassing dispensers.
func spawnAt(s *State, kind string, pos Position) Handle {
	h := s.arena.Spawn(kind, pos, Right)
	s.addEntity(h)
	return h
}

func TestStraightLine_Delivers(t *testing.T) {
	out, err := SimulateOrder(context.Background(), trayLevel(), tuning.Defaults().Policy, lineLayout(), 0, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !out.Solved() {
		t.Fatalf("expected delivery, got %+v", out)
	}
	if out.Ticks != 6 {
		t.Fatalf("delivery tick = %d, want 6", out.Ticks)
	}
	if out.Cost != 4*5 {
		t.Fatalf("cost = %d, want 20", out.Cost)
	}
}

func TestStraightLine_SameDigestsEveryRun(t *testing.T) {
	run := func() []string {
		var digests []string
		rep := ReporterFunc(func(r *TickReport) error {
			digests = append(digests, r.Digest)
			return nil
		})
		out, err := SimulateOrder(context.Background(), trayLevel(), tuning.Defaults().Policy, lineLayout(), 0, rep)
		if err != nil || !out.Solved() {
			t.Fatalf("simulate: %v %+v", err, out)
		}
		return digests
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("tick counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("digest mismatch at tick %d:\n%s\n%s", i+1, a[i], b[i])
		}
	}
}

// Delivery with leftovers on the floor is not success: the run keeps
// ticking and times out with the debris still in place.
func TestRun_LeftoverEntityBlocksSuccess(t *testing.T) {
	cfg := trayLevel()
	cfg.TickLimit = 12
	cfg.SolidInputs = [][]string{{"patty"}}
	layout := lineLayout()
	layout.Modules = append(layout.Modules,
		&Module{Kind: KindSolidDispenser, Pos: Position{0, 1}, Dir: Right}) // 6
	// START pulses once, the dispenser drops a patty nothing ever collects.
	layout.Wires = []Wire{{Module1: 0, Jack1: 0, Module2: 6, Jack2: 0}}

	out, err := SimulateOrder(context.Background(), cfg, tuning.Defaults().Policy, layout, 0, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if out.Success {
		t.Fatalf("stranded patty should prevent success, got %+v", out)
	}
	if !out.Timeout || out.Ticks != 12 {
		t.Fatalf("want timeout at tick 12, got %+v", out)
	}
	if out.Stop == nil || out.Stop.Kind != StopTimeout {
		t.Fatalf("want %s stop, got %+v", StopTimeout, out.Stop)
	}
}

// Full round trip through a transformation module: dispense dough, carry it
// to a slicer, deliver the sliced papdi. Same line length as the plain belt,
// so the delivery tick must not shift.
func TestSliceLine_DeliversSlicedProduct(t *testing.T) {
	cfg := LevelConfig{
		ID:               "test-slice",
		OrderSignalNames: []string{"ORDER_1"},
		Orders: []Order{
			{Signals: []bool{true}, Product: Product{Kind: "papdi", Ops: []Operation{{Kind: OpSlice}}}},
		},
		BaseKind:   "dough",
		SliceRules: map[string]SliceRule{"dough": {Into: "papdi"}},
		TickLimit:  100,
	}
	layout := lineLayout()
	layout.Modules[2] = &Module{Kind: KindSlicer, Pos: Position{2, 3}, Dir: Right}

	out, err := SimulateOrder(context.Background(), cfg, tuning.Defaults().Policy, layout, 0, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !out.Solved() {
		t.Fatalf("expected sliced delivery, got %+v", out)
	}
	if out.Ticks != 6 {
		t.Fatalf("delivery tick = %d, want 6", out.Ticks)
	}
}

// Snapshot capture is observation only: a run with a reporter attached must
// end exactly like the bare run.
func TestSimulateOrder_ReporterDoesNotPerturbRun(t *testing.T) {
	reported := 0
	rep := ReporterFunc(func(r *TickReport) error {
		reported++
		return nil
	})
	with, err := SimulateOrder(context.Background(), trayLevel(), tuning.Defaults().Policy, lineLayout(), 0, rep)
	if err != nil {
		t.Fatalf("simulate with reporter: %v", err)
	}
	bare, err := SimulateOrder(context.Background(), trayLevel(), tuning.Defaults().Policy, lineLayout(), 0, nil)
	if err != nil {
		t.Fatalf("simulate without reporter: %v", err)
	}
	if with != bare {
		t.Fatalf("outcomes differ:\nwith    %+v\nwithout %+v", with, bare)
	}
	if reported != with.Ticks {
		t.Fatalf("reported %d ticks, run took %d", reported, with.Ticks)
	}
}

func TestOutput_WrongKindStops(t *testing.T) {
	cfg := trayLevel()
	cfg.Orders[0].Product = Product{Kind: "plate"}
	out, err := SimulateOrder(context.Background(), cfg, tuning.Defaults().Policy, lineLayout(), 0, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if out.Stop == nil || out.Stop.Kind != StopIllegalEntity {
		t.Fatalf("want %s stop, got %+v", StopIllegalEntity, out)
	}
	if out.Stop.Message != "A tray is not what was ordered." {
		t.Fatalf("message = %q", out.Stop.Message)
	}
}

func TestOutput_WrongCompositionStops(t *testing.T) {
	cfg := trayLevel()
	cfg.Orders[0].Product = Product{Kind: "tray", Ops: []Operation{{Kind: OpCookGrill}}}
	out, err := SimulateOrder(context.Background(), cfg, tuning.Defaults().Policy, lineLayout(), 0, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if out.Stop == nil || out.Stop.Kind != StopMismatch {
		t.Fatalf("want %s stop, got %+v", StopMismatch, out)
	}
	if out.Stop.Message != "This is not what was ordered." {
		t.Fatalf("message = %q", out.Stop.Message)
	}
}

func TestRun_TimesOutWithoutProgress(t *testing.T) {
	cfg := trayLevel()
	cfg.TickLimit = 10
	// No belts: the tray sits on the dispenser pushing into a plain cell,
	// then strands on a bare floor cell with no transport.
	layout := Layout{Modules: []*Module{
		{Kind: KindMainDispenser, Pos: Position{0, 3}, Dir: Right},
		{Kind: KindOutput, Pos: Position{5, 3}, Dir: Down},
	}}
	out, err := SimulateOrder(context.Background(), cfg, tuning.Defaults().Policy, layout, 0, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !out.Timeout || out.Ticks != 10 {
		t.Fatalf("want timeout at tick 10, got %+v", out)
	}
	if out.Stop == nil || out.Stop.Kind != StopTimeout {
		t.Fatalf("want %s stop, got %+v", StopTimeout, out.Stop)
	}
}

// A gate on the belt, held open by two sensors through a multimixer: one
// watching the approach cell, one watching the gate itself. Exercises
// same-tick sensing, mixer propagation and gate latching in one run.
func TestGate_SensorMixerHoldOpen(t *testing.T) {
	layout := Layout{
		Modules: []*Module{
			{Kind: KindMainDispenser, Pos: Position{0, 3}, Dir: Right}, // 0
			{Kind: KindConveyor, Pos: Position{1, 3}, Dir: Right},      // 1
			{Kind: KindGate, Pos: Position{2, 3}, Dir: Right},          // 2
			{Kind: KindConveyor, Pos: Position{3, 3}, Dir: Right},      // 3
			{Kind: KindConveyor, Pos: Position{4, 3}, Dir: Right},      // 4
			{Kind: KindOutput, Pos: Position{5, 3}, Dir: Down},         // 5
			{Kind: KindSensor, Pos: Position{1, 2}, Dir: Up},           // 6
			{Kind: KindSensor, Pos: Position{2, 2}, Dir: Up},           // 7
			{Kind: KindMultimixer},                                     // 8
		},
		Wires: []Wire{
			{Module1: 6, Jack1: 0, Module2: 8, Jack2: 0}, // SENSE -> IN_1
			{Module1: 7, Jack1: 0, Module2: 8, Jack2: 1}, // SENSE -> IN_2
			{Module1: 8, Jack1: 4, Module2: 2, Jack2: 0}, // OUT_1 -> OPEN
		},
	}
	out, err := SimulateOrder(context.Background(), trayLevel(), tuning.Defaults().Policy, layout, 0, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !out.Solved() {
		t.Fatalf("expected delivery through the gate, got %+v", out)
	}
}

func TestGate_ClosedHoldsEntity(t *testing.T) {
	pol := tuning.Defaults().Policy
	pol.IntentFallback = false // keep the tray on the straight line
	cfg := trayLevel()
	cfg.TickLimit = 20
	layout := Layout{Modules: []*Module{
		{Kind: KindMainDispenser, Pos: Position{0, 3}, Dir: Right},
		{Kind: KindConveyor, Pos: Position{1, 3}, Dir: Right},
		{Kind: KindGate, Pos: Position{2, 3}, Dir: Right},
		{Kind: KindConveyor, Pos: Position{3, 3}, Dir: Right},
		{Kind: KindOutput, Pos: Position{5, 3}, Dir: Down},
	}}
	out, err := SimulateOrder(context.Background(), cfg, pol, layout, 0, nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !out.Timeout {
		t.Fatalf("unwired gate should strand the tray, got %+v", out)
	}
}

func TestSimulateSolution_AggregatesOrders(t *testing.T) {
	cfg := trayLevel()
	cfg.Orders = append(cfg.Orders, Order{
		Signals: []bool{false},
		Product: Product{Kind: "tray"},
	})
	rm, err := SimulateSolution(context.Background(), cfg, tuning.Defaults().Policy, lineLayout(), nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !rm.Solved || len(rm.Orders) != 2 {
		t.Fatalf("metrics = %+v", rm)
	}
	if rm.MaxTicks != 6 || rm.Cost != 20 {
		t.Fatalf("metrics = %+v", rm)
	}
}

func TestSnapshot_ReportsEntitiesAndDigest(t *testing.T) {
	s := mustState(t, trayLevel(), lineLayout())
	spawnAt(s, "tray", Position{2, 3})
	s.tick = 7

	r1 := s.Snapshot()
	r2 := s.Snapshot()
	if r1.Digest == "" || r1.Digest != r2.Digest {
		t.Fatalf("digest not stable: %q vs %q", r1.Digest, r2.Digest)
	}
	if len(r1.Entities) != 1 || r1.Entities[0].Kind != "tray" {
		t.Fatalf("entities = %+v", r1.Entities)
	}
	if r1.Entities[0].Pos != (Position{2, 3}) {
		t.Fatalf("pos = %v", r1.Entities[0].Pos)
	}

	// Any state change must change the digest.
	e := s.arena.Get(s.byPos[Position{2, 3}][0])
	e.Ops = append(e.Ops, Operation{Kind: OpCookGrill})
	if s.Snapshot().Digest == r1.Digest {
		t.Fatal("digest unchanged after mutation")
	}
}

func TestNewState_RejectsBadLayouts(t *testing.T) {
	cfg := trayLevel()

	noMain := Layout{Modules: []*Module{
		{Kind: KindOutput, Pos: Position{5, 3}, Dir: Down},
	}}
	if _, err := NewState(cfg, tuning.Defaults().Policy, noMain, 0); err == nil {
		t.Fatal("layout without a main dispenser accepted")
	}

	shared := lineLayout()
	shared.Modules = append(shared.Modules, &Module{Kind: KindConveyor, Pos: Position{1, 3}, Dir: Up})
	if _, err := NewState(cfg, tuning.Defaults().Policy, shared, 0); err == nil {
		t.Fatal("two modules on one cell accepted")
	}

	offFloor := lineLayout()
	offFloor.Modules[1].Pos = Position{9, 9}
	if _, err := NewState(cfg, tuning.Defaults().Policy, offFloor, 0); err == nil {
		t.Fatal("module off the floor accepted")
	}

	badWire := lineLayout()
	badWire.Wires = []Wire{{Module1: 0, Jack1: 0, Module2: 42, Jack2: 0}}
	if _, err := NewState(cfg, tuning.Defaults().Policy, badWire, 0); err == nil {
		t.Fatal("dangling wire accepted")
	}

	illegal := lineLayout()
	cfg.LegalModules = []ModuleKind{KindMainDispenser, KindOutput}
	if _, err := NewState(cfg, tuning.Defaults().Policy, illegal, 0); err == nil {
		t.Fatal("illegal module kind accepted")
	}
}

func TestProduct_UnorderedOpsCompare(t *testing.T) {
	rules := CompareRules{UnorderedOps: map[string]bool{"cup": true}}
	a := Product{Kind: "cup", Ops: []Operation{
		{Kind: OpDispenseFluid, Topping: "cola"},
		{Kind: OpDispenseFluid, Topping: "lemonade"},
	}}
	b := Product{Kind: "cup", Ops: []Operation{
		{Kind: OpDispenseFluid, Topping: "lemonade"},
		{Kind: OpDispenseFluid, Topping: "cola"},
	}}
	if a.canonicalKey(rules) != b.canonicalKey(rules) {
		t.Fatal("cup fills should compare order-independently")
	}
	if a.canonicalKey(CompareRules{}) == b.canonicalKey(CompareRules{}) {
		t.Fatal("ordered compare should distinguish fill order")
	}
}

package engine

import "fmt"

// ModuleKind is the closed set of machine kinds. Behavior is dispatched by
// kind in the engine's tick phases; kindTraits is the single registry and a
// test asserts every kind has an entry.
type ModuleKind string

const (
	KindConveyor         ModuleKind = "CONVEYOR"
	KindMainDispenser    ModuleKind = "MAIN_DISPENSER"
	KindSolidDispenser   ModuleKind = "SOLID_DISPENSER"
	KindFluidDispenser   ModuleKind = "FLUID_DISPENSER"
	KindFluidCoater      ModuleKind = "FLUID_COATER"
	KindToppingDispenser ModuleKind = "TOPPING_DISPENSER"
	KindSlicer           ModuleKind = "SLICER"
	KindCooker           ModuleKind = "COOKER"
	KindStacker          ModuleKind = "STACKER"
	KindSensor           ModuleKind = "SENSOR"
	KindGate             ModuleKind = "GATE"
	KindRouter           ModuleKind = "ROUTER"
	KindOutput           ModuleKind = "OUTPUT"
	KindWasteBin         ModuleKind = "WASTE_BIN"
	KindMultimixer       ModuleKind = "MULTIMIXER"
	KindCounter          ModuleKind = "COUNTER"
	KindSequencer        ModuleKind = "SEQUENCER"
)

// CookFlavor selects which cook operation a cooker applies.
type CookFlavor string

const (
	CookGrill     CookFlavor = "GRILL"
	CookFryer     CookFlavor = "FRYER"
	CookMicrowave CookFlavor = "MICROWAVE"
)

func (f CookFlavor) op() (Operation, error) {
	switch f {
	case CookGrill:
		return Operation{Kind: OpCookGrill}, nil
	case CookFryer:
		return Operation{Kind: OpCookFryer}, nil
	case CookMicrowave:
		return Operation{Kind: OpCookMicrowave}, nil
	default:
		return Operation{}, fmt.Errorf("unknown cook flavor %q", f)
	}
}

type kindTrait struct {
	onFloor bool
	price   int
}

// kindTraits is the closed registry: floor placement and default price per
// kind. Prices may be overridden per level via LevelConfig.Prices.
var kindTraits = map[ModuleKind]kindTrait{
	KindConveyor:         {onFloor: true, price: 5},
	KindMainDispenser:    {onFloor: true, price: 0},
	KindSolidDispenser:   {onFloor: true, price: 10},
	KindFluidDispenser:   {onFloor: true, price: 10},
	KindFluidCoater:      {onFloor: true, price: 10},
	KindToppingDispenser: {onFloor: true, price: 10},
	KindSlicer:           {onFloor: true, price: 20},
	KindCooker:           {onFloor: true, price: 20},
	KindStacker:          {onFloor: true, price: 20},
	KindSensor:           {onFloor: true, price: 5},
	KindGate:             {onFloor: true, price: 10},
	KindRouter:           {onFloor: true, price: 10},
	KindOutput:           {onFloor: true, price: 0},
	KindWasteBin:         {onFloor: true, price: 20},
	KindMultimixer:       {onFloor: false, price: 1},
	KindCounter:          {onFloor: false, price: 3},
	KindSequencer:        {onFloor: false, price: 5},
}

// Module is one placed machine. Settings come from the solution file;
// runtime state is owned by the simulation and reset per run.
type Module struct {
	Kind  ModuleKind
	Index int // position in the solution's module list; wires refer to it
	Pos   Position
	Dir   Direction
	Jacks []Jack

	// Kind-specific settings.
	InputID       int        // dispenser slot into the level's input tables
	Flavor        CookFlavor // cooker
	Reversible    bool       // conveyor with a REVERSE jack
	CounterValues []int      // per-IN-jack increments
	SequencerRows [][]bool   // 12 rows x 4 outputs

	// Runtime state.
	gateOpen  bool
	reversed  bool // reversible conveyor state for the current tick
	routerDir Direction
	binUsed   bool
	count     int
	seqRow    int // -1 when idle
	spawned   bool
	cooldown  int
}

// OnFloor reports whether this kind occupies a floor cell (signal-only
// modules live on the rack).
func (m *Module) OnFloor() bool { return kindTraits[m.Kind].onFloor }

// Price returns the module cost, honoring level overrides.
func (m *Module) Price(cfg LevelConfig) int {
	if p, ok := cfg.Prices[m.Kind]; ok {
		return p
	}
	return kindTraits[m.Kind].price
}

// buildJacks derives the jack list for a module from its kind, settings and
// the level's input tables. Jack order is part of the wire format.
func buildJacks(m *Module, cfg LevelConfig) ([]Jack, error) {
	switch m.Kind {
	case KindMainDispenser:
		jacks := []Jack{outJack("START")}
		for _, name := range cfg.OrderSignalNames {
			jacks = append(jacks, outJack(name))
		}
		return jacks, nil
	case KindSolidDispenser:
		if m.InputID < 0 || m.InputID >= len(cfg.SolidInputs) {
			return nil, fmt.Errorf("solid dispenser input id %d out of range", m.InputID)
		}
		jacks := make([]Jack, 0, len(cfg.SolidInputs[m.InputID]))
		for _, kind := range cfg.SolidInputs[m.InputID] {
			jacks = append(jacks, inJack(kind))
		}
		return jacks, nil
	case KindFluidDispenser, KindToppingDispenser:
		if m.InputID < 0 || m.InputID >= len(cfg.ToppingInputs) {
			return nil, fmt.Errorf("topping input id %d out of range", m.InputID)
		}
		jacks := make([]Jack, 0, len(cfg.ToppingInputs[m.InputID]))
		for _, topping := range cfg.ToppingInputs[m.InputID] {
			jacks = append(jacks, inJack(topping))
		}
		return jacks, nil
	case KindFluidCoater:
		if m.InputID < 0 || m.InputID >= len(cfg.ToppingInputs) {
			return nil, fmt.Errorf("coater input id %d out of range", m.InputID)
		}
		if n := len(cfg.ToppingInputs[m.InputID]); n != 1 {
			return nil, fmt.Errorf("coater input %d must have exactly one topping, has %d", m.InputID, n)
		}
		return nil, nil
	case KindSensor:
		return []Jack{outJack("SENSE")}, nil
	case KindCooker:
		return []Jack{outJack("SENSE"), inJack("EJECT")}, nil
	case KindStacker:
		return []Jack{outJack("STACK"), inJack("EJECT")}, nil
	case KindGate:
		return []Jack{inJack("OPEN")}, nil
	case KindRouter:
		return []Jack{inJack("LEFT"), inJack("THRU"), inJack("RIGHT")}, nil
	case KindConveyor:
		if m.Reversible {
			return []Jack{inJack("REVERSE")}, nil
		}
		return nil, nil
	case KindMultimixer:
		jacks := make([]Jack, 0, 8)
		for i := 0; i < 4; i++ {
			jacks = append(jacks, inJack(fmt.Sprintf("IN_%d", i+1)))
		}
		for i := 0; i < 4; i++ {
			jacks = append(jacks, outJack(fmt.Sprintf("OUT_%d", i+1)))
		}
		return jacks, nil
	case KindCounter:
		if len(m.CounterValues) != 2 {
			return nil, fmt.Errorf("counter needs 2 values, has %d", len(m.CounterValues))
		}
		return []Jack{outJack("ZERO"), inJack("IN_1"), inJack("IN_2")}, nil
	case KindSequencer:
		if len(m.SequencerRows) != 12 {
			return nil, fmt.Errorf("sequencer needs 12 rows, has %d", len(m.SequencerRows))
		}
		for i, row := range m.SequencerRows {
			if len(row) != 4 {
				return nil, fmt.Errorf("sequencer row %d needs 4 entries, has %d", i, len(row))
			}
		}
		return []Jack{inJack("START"), inJack("STOP"),
			outJack("A"), outJack("B"), outJack("C"), outJack("D")}, nil
	case KindOutput, KindWasteBin, KindSlicer:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown module kind %q", m.Kind)
	}
}

// resetRuntime clears per-run mutable state before a simulation starts.
func (m *Module) resetRuntime() {
	m.gateOpen = false
	m.reversed = false
	m.routerDir = m.Dir
	m.binUsed = false
	m.count = 0
	m.seqRow = -1
	m.spawned = false
	m.cooldown = 0
}

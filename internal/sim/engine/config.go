package engine

// LevelConfig is everything the engine needs to know about the level being
// validated. It is passed explicitly into NewState, never ambient, and is
// read-only throughout a run.
type LevelConfig struct {
	ID string

	// OrderSignalNames name the scanner/dispenser order jacks, in jack
	// order after START.
	OrderSignalNames []string
	// Orders holds one entry per order: which order signals light up and
	// the product expected at the output.
	Orders []Order

	// BaseKind is the entity the main dispenser spawns (tray, cup, ...).
	BaseKind string
	// DispenseInterval re-arms the main dispenser every N ticks while its
	// cell is free. 0 means a single spawn per run.
	DispenseInterval int

	// SolidInputs and ToppingInputs list the jack-selectable products per
	// input module slot, indexed by the module's input id.
	SolidInputs   [][]string
	ToppingInputs [][]string

	// SliceRules maps an entity kind to what a slicer turns it into.
	// A kind missing from the map cannot be sliced (fatal).
	SliceRules map[string]SliceRule

	// StackWhitelist maps a base kind to the kinds that may be stacked
	// onto it. StackCapacity limits direct children (0 = unlimited).
	StackWhitelist map[string][]string
	StackCapacity  map[string]int

	// Compare configures order-independent matching per kind.
	Compare CompareRules

	// LegalModules restricts which module kinds a solution may place.
	// Empty means all kinds are legal.
	LegalModules []ModuleKind

	// Prices overrides the default per-kind module cost table.
	Prices map[ModuleKind]int

	// TickLimit is the default ceiling for unsolved runs. <=0 disables.
	TickLimit int
}

// Order pairs an order-signal pattern with the expected product.
type Order struct {
	Signals []bool  `json:"signals" yaml:"signals"`
	Product Product `json:"product" yaml:"product"`
}

// SliceRule describes one slicer transformation.
type SliceRule struct {
	// Into replaces the entity kind; empty keeps the kind.
	Into string `json:"into,omitempty" yaml:"into,omitempty"`
	// KeepOps false clears the composition stack (a fresh part).
	KeepOps bool `json:"keep_ops,omitempty" yaml:"keep_ops,omitempty"`
}

func (c LevelConfig) moduleLegal(kind ModuleKind) bool {
	if len(c.LegalModules) == 0 {
		return true
	}
	for _, k := range c.LegalModules {
		if k == kind {
			return true
		}
	}
	return false
}

func (c LevelConfig) canStack(base, top string) bool {
	for _, k := range c.StackWhitelist[base] {
		if k == top {
			return true
		}
	}
	return false
}

package levels

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"foodcourt.dev/internal/sim/engine"
)

// Def is the YAML form of a level. It mirrors engine.LevelConfig closely
// but keeps the file format decoupled from the engine types, so catalogs
// can evolve without touching engine code.
type Def struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	OrderSignalNames []string `yaml:"order_signal_names"`

	BaseKind         string `yaml:"base_kind"`
	DispenseInterval int    `yaml:"dispense_interval"`

	Orders []OrderDef `yaml:"orders"`

	SolidInputs   [][]string `yaml:"solid_inputs"`
	ToppingInputs [][]string `yaml:"topping_inputs"`

	SliceRules map[string]engine.SliceRule `yaml:"slice_rules"`

	StackWhitelist map[string][]string `yaml:"stack_whitelist"`
	StackCapacity  map[string]int      `yaml:"stack_capacity"`

	UnorderedOps   []string `yaml:"unordered_ops"`
	UnorderedParts []string `yaml:"unordered_parts"`

	LegalModules []string       `yaml:"legal_modules"`
	Prices       map[string]int `yaml:"prices"`

	TickLimit int `yaml:"tick_limit"`
}

// OrderDef pairs the order-signal pattern with the expected product.
type OrderDef struct {
	Signals []bool         `yaml:"signals"`
	Product engine.Product `yaml:"product"`
}

// Config converts the file form into the engine's runtime config.
func (d Def) Config() (engine.LevelConfig, error) {
	if d.ID == "" {
		return engine.LevelConfig{}, fmt.Errorf("level has no id")
	}
	if d.BaseKind == "" {
		return engine.LevelConfig{}, fmt.Errorf("level %s has no base_kind", d.ID)
	}
	if len(d.Orders) == 0 {
		return engine.LevelConfig{}, fmt.Errorf("level %s has no orders", d.ID)
	}
	cfg := engine.LevelConfig{
		ID:               d.ID,
		OrderSignalNames: d.OrderSignalNames,
		BaseKind:         d.BaseKind,
		DispenseInterval: d.DispenseInterval,
		SolidInputs:      d.SolidInputs,
		ToppingInputs:    d.ToppingInputs,
		SliceRules:       d.SliceRules,
		StackWhitelist:   d.StackWhitelist,
		StackCapacity:    d.StackCapacity,
		TickLimit:        d.TickLimit,
	}
	for i, o := range d.Orders {
		if len(o.Signals) != len(d.OrderSignalNames) {
			return engine.LevelConfig{}, fmt.Errorf(
				"level %s order %d has %d signals, level defines %d names",
				d.ID, i, len(o.Signals), len(d.OrderSignalNames))
		}
		cfg.Orders = append(cfg.Orders, engine.Order{Signals: o.Signals, Product: o.Product})
	}
	cfg.Compare = engine.CompareRules{
		UnorderedOps:   toSet(d.UnorderedOps),
		UnorderedParts: toSet(d.UnorderedParts),
	}
	for _, k := range d.LegalModules {
		cfg.LegalModules = append(cfg.LegalModules, engine.ModuleKind(k))
	}
	if len(d.Prices) > 0 {
		cfg.Prices = make(map[engine.ModuleKind]int, len(d.Prices))
		for k, p := range d.Prices {
			cfg.Prices[engine.ModuleKind(k)] = p
		}
	}
	return cfg, nil
}

func toSet(ks []string) map[string]bool {
	if len(ks) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ks))
	for _, k := range ks {
		m[k] = true
	}
	return m
}

// Catalog is a loaded level set, indexed by id.
type Catalog struct {
	byID map[string]engine.LevelConfig
}

// LoadDir reads every *.yaml level under dir. Duplicate ids fail loudly.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	c := &Catalog{byID: make(map[string]engine.LevelConfig)}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var d Def
		if err := yaml.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		cfg, err := d.Config()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if _, dup := c.byID[cfg.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate level id %s", path, cfg.ID)
		}
		c.byID[cfg.ID] = cfg
	}
	return c, nil
}

// Builtin returns the levels compiled into the binary, for runs that have
// no configs directory at hand.
func Builtin() *Catalog {
	c := &Catalog{byID: make(map[string]engine.LevelConfig)}
	for _, d := range builtinDefs {
		cfg, err := d.Config()
		if err != nil {
			panic(fmt.Sprintf("builtin level %s: %v", d.ID, err))
		}
		c.byID[cfg.ID] = cfg
	}
	return c
}

// Merge overlays other onto c; file-loaded levels override builtins with
// the same id.
func (c *Catalog) Merge(other *Catalog) {
	for id, cfg := range other.byID {
		c.byID[id] = cfg
	}
}

// Get looks a level up by id.
func (c *Catalog) Get(id string) (engine.LevelConfig, error) {
	cfg, ok := c.byID[id]
	if !ok {
		return engine.LevelConfig{}, fmt.Errorf("unknown level %q", id)
	}
	return cfg, nil
}

// IDs lists the catalog's level ids, sorted.
func (c *Catalog) IDs() []string {
	out := make([]string, 0, len(c.byID))
	for id := range c.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

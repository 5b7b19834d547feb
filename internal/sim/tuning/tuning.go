package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy pins down the collision corner cases that must match reference
// traces exactly. They are data, not code, so a disagreement with a
// reference run is fixed by editing tuning.yaml and re-running, without
// touching the resolver.
type Policy struct {
	// Precedence orders collision checks by specificity when a single move
	// trips more than one: a permutation of "wall", "entity", "machine".
	Precedence []string `yaml:"precedence"`
	// BoundsFatal makes any move whose destination leaves the floor an
	// emergency stop (as opposed to treating the boundary as a wall).
	BoundsFatal bool `yaml:"bounds_fatal"`
	// ReversingExempt exempts an actively reversed conveyor from the
	// "cannot enter a machine against its flow" rule.
	ReversingExempt bool `yaml:"reversing_exempt"`
	// StackerExempt exempts stacker cells from entity-entity collision.
	StackerExempt bool `yaml:"stacker_exempt"`
	// IntentFallback lets a blocked unforced transport move fall through
	// to the next candidate direction instead of holding in place.
	IntentFallback bool `yaml:"intent_fallback"`
}

// Tuning is the simulator-wide knob file.
type Tuning struct {
	// DefaultTickLimit caps unsolved runs. <=0 disables the ceiling.
	DefaultTickLimit int `yaml:"default_tick_limit"`

	Policy Policy `yaml:"policy"`
}

// Defaults reproduce the reference traces. Tests pin these values.
func Defaults() Tuning {
	return Tuning{
		DefaultTickLimit: 1000,
		Policy: Policy{
			Precedence:      []string{"wall", "entity", "machine"},
			BoundsFatal:     true,
			ReversingExempt: true,
			StackerExempt:   true,
			IntentFallback:  true,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	seen := map[string]bool{}
	for _, c := range t.Policy.Precedence {
		switch c {
		case "wall", "entity", "machine":
		default:
			return fmt.Errorf("tuning.yaml: unknown precedence entry %q", c)
		}
		if seen[c] {
			return fmt.Errorf("tuning.yaml: duplicate precedence entry %q", c)
		}
		seen[c] = true
	}
	if len(t.Policy.Precedence) != 3 {
		return fmt.Errorf("tuning.yaml: precedence must list wall, entity and machine exactly once")
	}
	return nil
}

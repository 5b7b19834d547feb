package solution

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"foodcourt.dev/internal/sim/engine"
	"foodcourt.dev/internal/sim/tuning"
)

// FormatVersion is bumped on incompatible solution file changes.
const FormatVersion = 1

// Solution is the on-disk JSON form of a player's layout for one level.
type Solution struct {
	FormatVersion int    `json:"format_version"`
	Level         string `json:"level"`
	Name          string `json:"name,omitempty"`

	// Claims recorded by the authoring tool. A solved solution is expected
	// to deliver every order within Time ticks at exactly Cost; validation
	// re-simulates under those numbers instead of trusting them.
	Solved bool `json:"solved,omitempty"`
	Time   int  `json:"time,omitempty"`
	Cost   int  `json:"cost,omitempty"`

	Modules   []ModuleDef       `json:"modules"`
	Wires     []engine.Wire     `json:"wires,omitempty"`
	FloorDirs []FloorDirDef     `json:"floor_dirs,omitempty"`
	Walls     []engine.WallSpec `json:"walls,omitempty"`
}

// ModuleDef is one placed module. Position and direction are omitted for
// rack modules (multimixer, counter, sequencer).
type ModuleDef struct {
	Kind string           `json:"kind"`
	Pos  *engine.Position `json:"pos,omitempty"`
	Dir  string           `json:"dir,omitempty"`

	InputID       int      `json:"input_id,omitempty"`
	Flavor        string   `json:"flavor,omitempty"`
	Reversible    bool     `json:"reversible,omitempty"`
	CounterValues []int    `json:"counter_values,omitempty"`
	Rows          [][]bool `json:"rows,omitempty"`
}

// FloorDirDef paints a directional floor on a module-less cell.
type FloorDirDef struct {
	Pos engine.Position `json:"pos"`
	Dir string          `json:"dir"`
}

// Parse decodes a solution document. Unknown fields are rejected: a typoed
// setting silently defaulting is worse than a parse error.
func Parse(raw []byte) (*Solution, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var s Solution
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse solution: %w", err)
	}
	if s.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported format_version %d (want %d)", s.FormatVersion, FormatVersion)
	}
	if s.Level == "" {
		return nil, fmt.Errorf("solution names no level")
	}
	if len(s.Modules) == 0 {
		return nil, fmt.Errorf("solution places no modules")
	}
	if s.Solved && s.Time <= 0 {
		return nil, fmt.Errorf("solution claims solved but records no time")
	}
	return &s, nil
}

// Load reads and parses a solution file.
func Load(path string) (*Solution, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// CompileSchema compiles the solution JSON schema from disk.
func CompileSchema(path string) (*jsonschema.Schema, error) {
	return jsonschema.Compile(path)
}

// CheckSchema validates the raw document against the compiled schema.
// Schema errors are reported verbatim; they reference the document paths
// the author wrote, not engine internals.
func CheckSchema(schema *jsonschema.Schema, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse solution: %w", err)
	}
	return schema.Validate(doc)
}

// Layout converts the file form into the engine's layout. Directions and
// flavors are parsed here; placement legality is NewState's job.
func (s *Solution) Layout() (engine.Layout, error) {
	var layout engine.Layout
	for i, md := range s.Modules {
		m := &engine.Module{
			Kind:          engine.ModuleKind(md.Kind),
			InputID:       md.InputID,
			Flavor:        engine.CookFlavor(md.Flavor),
			Reversible:    md.Reversible,
			CounterValues: md.CounterValues,
			SequencerRows: md.Rows,
		}
		if m.OnFloor() {
			if md.Pos == nil {
				return engine.Layout{}, fmt.Errorf("module %d (%s) has no position", i, md.Kind)
			}
			m.Pos = *md.Pos
			dir, err := engine.ParseDirection(md.Dir)
			if err != nil {
				return engine.Layout{}, fmt.Errorf("module %d (%s): %w", i, md.Kind, err)
			}
			m.Dir = dir
		}
		layout.Modules = append(layout.Modules, m)
	}
	layout.Wires = s.Wires
	for _, fd := range s.FloorDirs {
		dir, err := engine.ParseDirection(fd.Dir)
		if err != nil {
			return engine.Layout{}, fmt.Errorf("floor_dir at %s: %w", fd.Pos, err)
		}
		if layout.FloorDirs == nil {
			layout.FloorDirs = make(map[engine.Position]engine.Direction)
		}
		layout.FloorDirs[fd.Pos] = dir
	}
	layout.InnerWalls = s.Walls
	return layout, nil
}

// Check runs the full structural validation against a level: parse-level
// checks plus everything NewState verifies (placement, jacks, wires,
// module legality). It builds and discards a state for order 0.
func Check(s *Solution, cfg engine.LevelConfig) error {
	if s.Level != cfg.ID {
		return fmt.Errorf("solution targets level %q, validating against %q", s.Level, cfg.ID)
	}
	layout, err := s.Layout()
	if err != nil {
		return err
	}
	if _, err := engine.NewState(cfg, tuning.Defaults().Policy, layout, 0); err != nil {
		return err
	}
	return nil
}

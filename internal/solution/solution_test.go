package solution

import (
	"path/filepath"
	"testing"

	"foodcourt.dev/internal/sim/engine"
	"foodcourt.dev/internal/sim/levels"
)

const sodaSolution = `{
  "format_version": 1,
  "level": "soda-trench",
  "name": "straight shot",
  "modules": [
    {"kind": "MAIN_DISPENSER", "pos": {"col": 0, "row": 3}, "dir": "RIGHT"},
    {"kind": "CONVEYOR", "pos": {"col": 1, "row": 3}, "dir": "RIGHT"},
    {"kind": "FLUID_DISPENSER", "pos": {"col": 2, "row": 2}, "dir": "UP", "input_id": 0},
    {"kind": "CONVEYOR", "pos": {"col": 2, "row": 3}, "dir": "RIGHT"},
    {"kind": "CONVEYOR", "pos": {"col": 3, "row": 3}, "dir": "RIGHT"},
    {"kind": "CONVEYOR", "pos": {"col": 4, "row": 3}, "dir": "RIGHT"},
    {"kind": "OUTPUT", "pos": {"col": 5, "row": 3}, "dir": "DOWN"}
  ],
  "wires": [
    {"module1": 0, "jack1": 1, "module2": 2, "jack2": 0},
    {"module1": 0, "jack1": 2, "module2": 2, "jack2": 1}
  ]
}`

func TestParse_AndLayout(t *testing.T) {
	s, err := Parse([]byte(sodaSolution))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Level != "soda-trench" || len(s.Modules) != 7 {
		t.Fatalf("parsed %+v", s)
	}
	layout, err := s.Layout()
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if layout.Modules[2].Kind != engine.KindFluidDispenser || layout.Modules[2].Dir != engine.Up {
		t.Fatalf("module 2 = %+v", layout.Modules[2])
	}
	if len(layout.Wires) != 2 {
		t.Fatalf("wires = %v", layout.Wires)
	}
}

func TestParse_RejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown field":       `{"format_version":1,"level":"x","modules":[{"kind":"OUTPUT"}],"bogus":true}`,
		"wrong version":       `{"format_version":2,"level":"x","modules":[{"kind":"OUTPUT"}]}`,
		"missing level":       `{"format_version":1,"modules":[{"kind":"OUTPUT"}]}`,
		"no modules":          `{"format_version":1,"level":"x","modules":[]}`,
		"not an object":       `[]`,
		"solved without time": `{"format_version":1,"level":"x","solved":true,"modules":[{"kind":"OUTPUT"}]}`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func TestParse_SolvedClaims(t *testing.T) {
	doc := `{"format_version":1,"level":"x","solved":true,"time":42,"cost":55,
	  "modules":[{"kind":"OUTPUT","pos":{"col":5,"row":3},"dir":"DOWN"}]}`
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !s.Solved || s.Time != 42 || s.Cost != 55 {
		t.Fatalf("claims = solved=%v time=%d cost=%d", s.Solved, s.Time, s.Cost)
	}
}

func TestCheck_AgainstLevel(t *testing.T) {
	cfg, err := levels.Builtin().Get("soda-trench")
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	s, err := Parse([]byte(sodaSolution))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := Check(s, cfg); err != nil {
		t.Fatalf("check: %v", err)
	}

	wrong, _ := levels.Builtin().Get("two-twelve")
	if err := Check(s, wrong); err == nil {
		t.Fatal("level mismatch accepted")
	}
}

func TestCheckSchema_ValidatesSolutions(t *testing.T) {
	schema, err := CompileSchema(filepath.Join("..", "..", "schemas", "solution.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := CheckSchema(schema, []byte(sodaSolution)); err != nil {
		t.Fatalf("valid solution rejected: %v", err)
	}

	bad := `{"format_version":1,"level":"x","modules":[{"kind":"TELEPORTER"}]}`
	if err := CheckSchema(schema, []byte(bad)); err == nil {
		t.Fatal("unknown module kind passed the schema")
	}

	offFloor := `{"format_version":1,"level":"x","modules":[
	  {"kind":"OUTPUT","pos":{"col":9,"row":0},"dir":"DOWN"}]}`
	if err := CheckSchema(schema, []byte(offFloor)); err == nil {
		t.Fatal("out-of-range position passed the schema")
	}
}

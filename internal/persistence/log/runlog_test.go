package log

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"foodcourt.dev/internal/reportproto"
	"foodcourt.dev/internal/sim/engine"
	"foodcourt.dev/internal/sim/levels"
	"foodcourt.dev/internal/sim/tuning"
	"foodcourt.dev/internal/solution"
)

func TestRunLog_WriteThenReadBack(t *testing.T) {
	cfg, err := levels.Builtin().Get("soda-trench")
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	cfg.TickLimit = 15
	sol, err := solution.Parse([]byte(`{
	  "format_version": 1,
	  "level": "soda-trench",
	  "modules": [
	    {"kind": "MAIN_DISPENSER", "pos": {"col": 0, "row": 3}, "dir": "RIGHT"},
	    {"kind": "OUTPUT", "pos": {"col": 5, "row": 3}, "dir": "DOWN"}
	  ]
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	layout, err := sol.Layout()
	if err != nil {
		t.Fatalf("layout: %v", err)
	}

	path := filepath.Join(t.TempDir(), "run.jsonl.zst")
	w, err := NewRunWriter(path)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	if err := w.WriteHeader(reportproto.NewHeader(cfg.ID, sol.Name, 0, len(cfg.Orders))); err != nil {
		t.Fatalf("header: %v", err)
	}
	out, err := engine.SimulateOrder(context.Background(), cfg, tuning.Defaults().Policy, layout, 0, w.TickReporter(0))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	metrics := engine.RunMetrics{LevelID: cfg.ID, MaxTicks: out.Ticks, Orders: []engine.Outcome{out}}
	if err := w.WriteResult(metrics); err != nil {
		t.Fatalf("result: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := OpenRunReader(path)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer r.Close()

	env, err := r.Next()
	if err != nil || env.Type != reportproto.TypeHeader {
		t.Fatalf("first envelope: %+v %v", env, err)
	}
	if env.Header.LevelID != cfg.ID {
		t.Fatalf("header = %+v", env.Header)
	}

	var ticks int
	var lastDigest string
	for {
		env, err = r.Next()
		if err == io.EOF {
			t.Fatal("log ended before RESULT")
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if env.Type == reportproto.TypeResult {
			break
		}
		if env.Type != reportproto.TypeTick {
			t.Fatalf("unexpected envelope %q", env.Type)
		}
		ticks++
		lastDigest = env.Tick.Report.Digest
	}
	if ticks != out.Ticks {
		t.Fatalf("read %d ticks, simulated %d", ticks, out.Ticks)
	}
	if lastDigest == "" {
		t.Fatal("tick reports carry no digest")
	}
	if env.Result.Metrics.MaxTicks != out.Ticks {
		t.Fatalf("result = %+v", env.Result.Metrics)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("want EOF after RESULT, got %v", err)
	}
}

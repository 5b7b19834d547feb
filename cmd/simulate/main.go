// Command simulate runs one or more solution files against their levels
// and reports the verdict per order. Pass - to read a solution from stdin.
// Solutions claiming solved are run under their recorded tick count, so a
// stale claim fails as a timeout.
//
// Exit codes: 0 every solution solved, 1 emergency stop, 2 timed out,
// 3 invalid solution or unknown level, 127 internal error. The worst
// class across all inputs wins.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"foodcourt.dev/internal/persistence/indexdb"
	runlog "foodcourt.dev/internal/persistence/log"
	"foodcourt.dev/internal/reportproto"
	"foodcourt.dev/internal/sim/engine"
	"foodcourt.dev/internal/sim/levels"
	"foodcourt.dev/internal/sim/tuning"
	"foodcourt.dev/internal/solution"
)

const (
	exitStop     = 1
	exitTimeout  = 2
	exitInvalid  = 3
	exitInternal = 127
)

type result struct {
	Filename     string             `json:"filename"`
	Level        string             `json:"level,omitempty"`
	SolutionName string             `json:"solution_name,omitempty"`
	MarkedSolved bool               `json:"marked_solved"`
	Correct      bool               `json:"is_correct"`
	Error        string             `json:"error,omitempty"`
	Metrics      *engine.RunMetrics `json:"metrics,omitempty"`
}

func main() {
	var (
		orderIndex = flag.Int("order", -1, "simulate a single order (default: all)")
		configDir  = flag.String("configs", "./configs", "config directory")
		schemasDir = flag.String("schemas", "./schemas", "schema directory (empty to skip schema validation)")
		timeLimit  = flag.Int("time-limit", 0, "tick limit for unsolved solutions (0: level default)")
		logPath    = flag.String("log", "", "write the run trace to this .jsonl.zst (single input only)")
		dbPath     = flag.String("db", "", "record the runs in this SQLite index")
		jsonOut    = flag.Bool("json", false, "print the results as a JSON list")
	)
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: simulate [flags] solution.json... (- for stdin)")
		os.Exit(2)
	}
	if *logPath != "" && len(paths) > 1 {
		fmt.Fprintln(os.Stderr, "-log takes a single solution input")
		os.Exit(2)
	}

	tune := loadTuning(*configDir)

	var idx *indexdb.SQLiteIndex
	if *dbPath != "" {
		var err error
		idx, err = indexdb.OpenSQLite(*dbPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open index:", err)
			os.Exit(exitInternal)
		}
	}

	exitCode := 0
	var results []result
	for _, path := range paths {
		res, code := runOne(path, *orderIndex, *configDir, *schemasDir, *logPath, *timeLimit, tune, idx)
		results = append(results, res)
		if code > exitCode {
			exitCode = code
		}
		if !*jsonOut {
			printResult(res)
		}
	}
	if idx != nil {
		if err := idx.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "close index:", err)
			if exitCode == 0 {
				exitCode = exitInternal
			}
		}
	}
	if *jsonOut {
		b, err := json.MarshalIndent(results, "", "  ")
		if err == nil {
			fmt.Println(string(b))
		}
	}
	os.Exit(exitCode)
}

func runOne(path string, orderIndex int, configDir, schemasDir, logPath string, timeLimit int, tune tuning.Tuning, idx *indexdb.SQLiteIndex) (result, int) {
	res := result{Filename: path}
	fail := func(code int, err error) (result, int) {
		res.Error = err.Error()
		return res, code
	}

	raw, err := readInput(path)
	if err != nil {
		return fail(exitInvalid, fmt.Errorf("read solution: %w", err))
	}
	if schemasDir != "" {
		schema, err := solution.CompileSchema(filepath.Join(schemasDir, "solution.schema.json"))
		if err != nil {
			return fail(exitInternal, fmt.Errorf("compile schema: %w", err))
		}
		if err := solution.CheckSchema(schema, raw); err != nil {
			return fail(exitInvalid, err)
		}
	}
	sol, err := solution.Parse(raw)
	if err != nil {
		return fail(exitInvalid, err)
	}
	res.Level = sol.Level
	res.SolutionName = sol.Name
	res.MarkedSolved = sol.Solved

	cfg, err := loadLevel(configDir, sol.Level)
	if err != nil {
		return fail(exitInvalid, err)
	}
	switch {
	case sol.Solved:
		cfg.TickLimit = sol.Time
	case timeLimit > 0:
		cfg.TickLimit = timeLimit
	case cfg.TickLimit <= 0:
		cfg.TickLimit = tune.DefaultTickLimit
	}
	if err := solution.Check(sol, cfg); err != nil {
		return fail(exitInvalid, err)
	}
	layout, err := sol.Layout()
	if err != nil {
		return fail(exitInvalid, err)
	}

	var lw *runlog.RunWriter
	if logPath != "" {
		lw, err = runlog.NewRunWriter(logPath)
		if err != nil {
			return fail(exitInternal, fmt.Errorf("open log: %w", err))
		}
		defer lw.Close()
		hdr := reportproto.NewHeader(cfg.ID, sol.Name, engine.LayoutCost(cfg, layout), len(cfg.Orders))
		if err := lw.WriteHeader(hdr); err != nil {
			return fail(exitInternal, fmt.Errorf("write log: %w", err))
		}
	}

	orders := orderRange(orderIndex, len(cfg.Orders))
	if orders == nil {
		return fail(exitInvalid, fmt.Errorf("order %d out of range (level has %d orders)", orderIndex, len(cfg.Orders)))
	}
	metrics := engine.RunMetrics{
		LevelID: cfg.ID,
		Cost:    engine.LayoutCost(cfg, layout),
		Solved:  true,
	}
	code := 0
	for _, i := range orders {
		var rep engine.Reporter
		if lw != nil {
			rep = lw.TickReporter(i)
		}
		out, err := engine.SimulateOrder(context.Background(), cfg, tune.Policy, layout, i, rep)
		if err != nil {
			return fail(exitInternal, fmt.Errorf("simulate order %d: %w", i, err))
		}
		metrics.Orders = append(metrics.Orders, out)
		if out.Ticks > metrics.MaxTicks {
			metrics.MaxTicks = out.Ticks
		}
		if !out.Solved() {
			metrics.Solved = false
		}
		if c := outcomeClass(out); c > code {
			code = c
		}
	}

	if lw != nil {
		if err := lw.WriteResult(metrics); err != nil {
			return fail(exitInternal, fmt.Errorf("write log: %w", err))
		}
	}
	if idx != nil {
		idx.WriteRun(indexdb.RunRecord{
			LevelID:      cfg.ID,
			SolutionName: sol.Name,
			LogPath:      logPath,
			Metrics:      metrics,
		})
	}

	res.Metrics = &metrics
	res.Correct = metrics.Solved
	return res, code
}

func outcomeClass(out engine.Outcome) int {
	switch {
	case out.Solved():
		return 0
	case out.Timeout:
		return exitTimeout
	case out.Stop != nil && out.Stop.Kind == engine.StopInternal:
		return exitInternal
	default:
		return exitStop
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printResult(res result) {
	if res.Metrics == nil {
		fmt.Printf("%s: %s\n", res.Filename, res.Error)
		return
	}
	m := res.Metrics
	fmt.Printf("%s: level %s, cost %d, max ticks %d\n", res.Filename, m.LevelID, m.Cost, m.MaxTicks)
	for _, o := range m.Orders {
		switch {
		case o.Solved():
			fmt.Printf("  order %d: delivered in %d ticks\n", o.OrderIndex, o.Ticks)
		case o.Timeout:
			fmt.Printf("  order %d: timed out after %d ticks\n", o.OrderIndex, o.Ticks)
		case o.Stop != nil:
			fmt.Printf("  order %d: stopped at tick %d: %s\n", o.OrderIndex, o.Stop.Tick, o.Stop.Message)
		}
	}
	if m.Solved {
		fmt.Println("  SOLVED")
	} else {
		fmt.Println("  NOT SOLVED")
	}
}

func orderRange(orderIndex, n int) []int {
	if orderIndex < 0 {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if orderIndex >= n {
		return nil
	}
	return []int{orderIndex}
}

func loadTuning(configDir string) tuning.Tuning {
	path := filepath.Join(configDir, "tuning.yaml")
	t, err := tuning.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tuning.Defaults()
		}
		fmt.Fprintln(os.Stderr, "tuning:", err)
		os.Exit(exitInternal)
	}
	return t
}

func loadLevel(configDir, id string) (engine.LevelConfig, error) {
	cat := levels.Builtin()
	dir := filepath.Join(configDir, "levels")
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		loaded, err := levels.LoadDir(dir)
		if err != nil {
			return engine.LevelConfig{}, fmt.Errorf("load levels: %w", err)
		}
		cat.Merge(loaded)
	}
	return cat.Get(id)
}

// Command validate re-simulates every solution file in a directory that
// claims to be solved, checking the claims against fresh runs. Files that
// do not parse or are not marked solved are skipped. Results can be
// recorded in a SQLite index.
//
// Exit codes: 0 every claim holds, 1 emergency stop, 2 timed out,
// 3 invalid solution or unknown level, 127 internal error. The worst
// class across all files wins.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"foodcourt.dev/internal/persistence/indexdb"
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
	Level        string             `json:"level"`
	SolutionName string             `json:"solution_name,omitempty"`
	Correct      bool               `json:"is_correct"`
	Error        string             `json:"error,omitempty"`
	Metrics      *engine.RunMetrics `json:"metrics,omitempty"`
}

func main() {
	var (
		configDir  = flag.String("configs", "./configs", "config directory")
		schemasDir = flag.String("schemas", "./schemas", "schema directory (empty to skip schema validation)")
		dbPath     = flag.String("db", "", "record the runs in this SQLite index")
		jsonOut    = flag.Bool("json", false, "print the results as a JSON list")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: validate [flags] solution_dir")
		os.Exit(2)
	}
	dir := flag.Arg(0)

	tune := loadTuning(*configDir)
	cat, err := loadCatalog(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInternal)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInternal)
	}
	sort.Strings(paths)

	var idx *indexdb.SQLiteIndex
	if *dbPath != "" {
		idx, err = indexdb.OpenSQLite(*dbPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open index:", err)
			os.Exit(exitInternal)
		}
	}

	exitCode := 0
	var results []result
	for _, path := range paths {
		sol, err := loadSolved(path, *schemasDir)
		if err != nil || sol == nil {
			continue
		}
		res, code := validate(path, sol, cat, tune, idx)
		results = append(results, res)
		if code > exitCode {
			exitCode = code
		}
		if !*jsonOut {
			if res.Correct {
				fmt.Printf("%s: ok (cost %d, max ticks %d)\n",
					path, res.Metrics.Cost, res.Metrics.MaxTicks)
			} else {
				fmt.Printf("%s: FAILED: %s\n", path, res.Error)
			}
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

// loadSolved returns nil without error for files that should be skipped:
// unparsable documents and solutions not marked solved.
func loadSolved(path, schemasDir string) (*solution.Solution, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if schemasDir != "" {
		schema, err := solution.CompileSchema(filepath.Join(schemasDir, "solution.schema.json"))
		if err != nil {
			return nil, err
		}
		if err := solution.CheckSchema(schema, raw); err != nil {
			return nil, nil
		}
	}
	sol, err := solution.Parse(raw)
	if err != nil {
		return nil, nil
	}
	if !sol.Solved {
		return nil, nil
	}
	return sol, nil
}

func validate(path string, sol *solution.Solution, cat *levels.Catalog, tune tuning.Tuning, idx *indexdb.SQLiteIndex) (result, int) {
	res := result{Filename: path, Level: sol.Level, SolutionName: sol.Name}
	fail := func(code int, err error) (result, int) {
		res.Error = err.Error()
		return res, code
	}

	cfg, err := cat.Get(sol.Level)
	if err != nil {
		return fail(exitInvalid, err)
	}
	// The claimed time bounds the run: a solved solution that no longer
	// delivers inside its own recorded tick count times out here.
	cfg.TickLimit = sol.Time
	if err := solution.Check(sol, cfg); err != nil {
		return fail(exitInvalid, err)
	}
	layout, err := sol.Layout()
	if err != nil {
		return fail(exitInvalid, err)
	}

	metrics := engine.RunMetrics{
		LevelID: cfg.ID,
		Cost:    engine.LayoutCost(cfg, layout),
		Solved:  true,
	}
	code := 0
	for i := range cfg.Orders {
		out, err := engine.SimulateOrder(context.Background(), cfg, tune.Policy, layout, i, nil)
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
	if idx != nil {
		idx.WriteRun(indexdb.RunRecord{
			LevelID:      cfg.ID,
			SolutionName: sol.Name,
			Metrics:      metrics,
		})
	}

	res.Metrics = &metrics
	if metrics.Solved && sol.Cost > 0 && metrics.Cost != sol.Cost {
		return fail(exitInvalid, fmt.Errorf("claimed cost %d, simulated cost %d", sol.Cost, metrics.Cost))
	}
	if !metrics.Solved {
		for _, o := range metrics.Orders {
			if !o.Solved() {
				if o.Timeout {
					res.Error = fmt.Sprintf("order %d not delivered within the claimed %d ticks", o.OrderIndex, sol.Time)
				} else {
					res.Error = o.Stop.Message
				}
				return res, code
			}
		}
	}
	res.Correct = true
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

func loadCatalog(configDir string) (*levels.Catalog, error) {
	cat := levels.Builtin()
	dir := filepath.Join(configDir, "levels")
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		loaded, err := levels.LoadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("load levels: %w", err)
		}
		cat.Merge(loaded)
	}
	return cat, nil
}

// Command replay reads a recorded run log, summarizes it, and optionally
// re-simulates the solution to verify that every tick digest still
// matches the recording.
//
// Exit codes: 0 ok, 1 digest mismatch or failed run verification,
// 3 invalid log or solution, 127 internal error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	runlog "foodcourt.dev/internal/persistence/log"
	"foodcourt.dev/internal/reportproto"
	"foodcourt.dev/internal/sim/engine"
	"foodcourt.dev/internal/sim/levels"
	"foodcourt.dev/internal/sim/tuning"
	"foodcourt.dev/internal/solution"
)

func main() {
	var (
		logPath      = flag.String("log", "", "path to the run .jsonl.zst")
		solutionPath = flag.String("solution", "", "re-simulate this solution and compare digests (optional)")
		configDir    = flag.String("configs", "./configs", "config directory")
		verbose      = flag.Bool("v", false, "print every tick digest")
	)
	flag.Parse()

	if *logPath == "" {
		fmt.Fprintln(os.Stderr, "missing -log")
		os.Exit(2)
	}

	rec, err := readRun(*logPath, *verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read log:", err)
		os.Exit(3)
	}

	fmt.Printf("level %s solution %q: %d orders, cost %d\n",
		rec.header.LevelID, rec.header.SolutionName, rec.header.Orders, rec.header.Cost)
	for order, digests := range rec.digests {
		fmt.Printf("  order %d: %d ticks recorded\n", order, len(digests))
	}
	if rec.result != nil {
		verdict := "NOT SOLVED"
		if rec.result.Metrics.Solved {
			verdict = "SOLVED"
		}
		fmt.Printf("result: %s, max ticks %d\n", verdict, rec.result.Metrics.MaxTicks)
	} else {
		fmt.Println("result: missing (truncated log)")
	}

	if *solutionPath == "" {
		return
	}
	if err := verify(rec, *solutionPath, *configDir); err != nil {
		fmt.Fprintln(os.Stderr, "verify:", err)
		os.Exit(1)
	}
	fmt.Println("verify: all digests match")
}

type recording struct {
	header  *reportproto.Header
	digests map[int][]string
	result  *reportproto.ResultMsg
}

func readRun(path string, verbose bool) (*recording, error) {
	r, err := runlog.OpenRunReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	rec := &recording{digests: make(map[int][]string)}
	for {
		env, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch env.Type {
		case reportproto.TypeHeader:
			rec.header = env.Header
		case reportproto.TypeTick:
			d := env.Tick.Report.Digest
			rec.digests[env.Tick.OrderIndex] = append(rec.digests[env.Tick.OrderIndex], d)
			if verbose {
				fmt.Printf("order %d tick %d %s\n", env.Tick.OrderIndex, env.Tick.Report.Tick, d)
			}
		case reportproto.TypeResult:
			rec.result = env.Result
		}
	}
	if rec.header == nil {
		return nil, fmt.Errorf("log has no header")
	}
	return rec, nil
}

func verify(rec *recording, solutionPath, configDir string) error {
	sol, err := solution.Load(solutionPath)
	if err != nil {
		return err
	}
	if sol.Level != rec.header.LevelID {
		return fmt.Errorf("solution targets %q, log records %q", sol.Level, rec.header.LevelID)
	}

	cat := levels.Builtin()
	if dir := filepath.Join(configDir, "levels"); dirExists(dir) {
		loaded, err := levels.LoadDir(dir)
		if err != nil {
			return err
		}
		cat.Merge(loaded)
	}
	cfg, err := cat.Get(sol.Level)
	if err != nil {
		return err
	}
	tune, err := tuning.Load(filepath.Join(configDir, "tuning.yaml"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		tune = tuning.Defaults()
	}
	layout, err := sol.Layout()
	if err != nil {
		return err
	}

	for order, recorded := range rec.digests {
		var replayed []string
		rep := engine.ReporterFunc(func(r *engine.TickReport) error {
			replayed = append(replayed, r.Digest)
			return nil
		})
		if _, err := engine.SimulateOrder(context.Background(), cfg, tune.Policy, layout, order, rep); err != nil {
			return err
		}
		if len(replayed) != len(recorded) {
			return fmt.Errorf("order %d: recorded %d ticks, replay produced %d",
				order, len(recorded), len(replayed))
		}
		for i := range recorded {
			if recorded[i] != replayed[i] {
				return fmt.Errorf("order %d: digest diverges at tick %d", order, i+1)
			}
		}
	}
	return nil
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

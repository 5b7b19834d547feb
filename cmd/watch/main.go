// Command watch runs a solution slowly and streams every tick to loopback
// websocket viewers. The run finishes, the result is pushed, and the
// server keeps serving late joiners until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"foodcourt.dev/internal/reportproto"
	"foodcourt.dev/internal/sim/engine"
	"foodcourt.dev/internal/sim/levels"
	"foodcourt.dev/internal/sim/tuning"
	"foodcourt.dev/internal/solution"
	"foodcourt.dev/internal/transport/observer"
)

func main() {
	var (
		solutionPath = flag.String("solution", "", "path to the solution .json")
		configDir    = flag.String("configs", "./configs", "config directory")
		addr         = flag.String("addr", "127.0.0.1:8480", "listen address (loopback)")
		interval     = flag.Duration("interval", 100*time.Millisecond, "delay between ticks")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "watch ", log.LstdFlags)

	if *solutionPath == "" {
		fmt.Fprintln(os.Stderr, "missing -solution")
		os.Exit(2)
	}
	sol, err := solution.Load(*solutionPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
	cfg, err := loadLevel(*configDir, sol.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "tuning:", err)
			os.Exit(127)
		}
		tune = tuning.Defaults()
	}
	if cfg.TickLimit <= 0 {
		cfg.TickLimit = tune.DefaultTickLimit
	}
	if err := solution.Check(sol, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "invalid solution:", err)
		os.Exit(3)
	}
	layout, err := sol.Layout()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid solution:", err)
		os.Exit(3)
	}

	bc := observer.NewBroadcaster(reportproto.NewHeader(
		cfg.ID, sol.Name, engine.LayoutCost(cfg, layout), len(cfg.Orders)))
	srv := observer.NewServer(bc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/bootstrap", srv.BootstrapHandler())
	mux.HandleFunc("/ws", srv.WSHandler())
	httpSrv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Printf("serving on http://%s (/bootstrap, /ws)", *addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := engine.RunMetrics{
		LevelID: cfg.ID,
		Cost:    engine.LayoutCost(cfg, layout),
		Solved:  true,
	}
	paced := func(order int) engine.Reporter {
		bc.SetOrder(order)
		return engine.ReporterFunc(func(r *engine.TickReport) error {
			if err := bc.ReportTick(r); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(*interval):
				return nil
			}
		})
	}
	for i := range cfg.Orders {
		out, err := engine.SimulateOrder(ctx, cfg, tune.Policy, layout, i, paced(i))
		if err != nil {
			logger.Printf("simulate order %d: %v", i, err)
			break
		}
		logger.Printf("order %d: solved=%v ticks=%d", i, out.Solved(), out.Ticks)
		metrics.Orders = append(metrics.Orders, out)
		if out.Ticks > metrics.MaxTicks {
			metrics.MaxTicks = out.Ticks
		}
		if !out.Solved() {
			metrics.Solved = false
		}
		if ctx.Err() != nil {
			break
		}
	}
	bc.Result(metrics)
	logger.Printf("run complete: solved=%v; serving until interrupt", metrics.Solved)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
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

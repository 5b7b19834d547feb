package engine

import (
	"context"
	"fmt"

	"foodcourt.dev/internal/sim/tuning"
)

// Outcome is the verdict for one (solution, order) run.
type Outcome struct {
	OrderIndex int `json:"order_index"`
	// Success means the ordered product was delivered and the floor
	// drained afterwards.
	Success bool `json:"success"`
	// Ticks is the tick on which the run ended: delivery tick on success,
	// stop tick on failure, the limit on timeout.
	Ticks int `json:"ticks"`
	// Cost is the summed price of every placed module.
	Cost int `json:"cost"`
	// Timeout is set when the tick limit elapsed without success or stop.
	Timeout bool `json:"timeout,omitempty"`
	// Stop carries the emergency stop on failure, nil otherwise.
	Stop *Stop `json:"stop,omitempty"`
}

// Solved reports a clean delivery.
func (o Outcome) Solved() bool { return o.Success && o.Stop == nil && !o.Timeout }

// RunMetrics aggregates the per-order outcomes of a full solution run.
type RunMetrics struct {
	LevelID  string    `json:"level_id"`
	Cost     int       `json:"cost"`
	MaxTicks int       `json:"max_ticks"`
	Solved   bool      `json:"solved"`
	Orders   []Outcome `json:"orders"`
}

// Reporter receives one snapshot per completed tick. Implementations must
// not retain the report past the call.
type Reporter interface {
	ReportTick(*TickReport) error
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(*TickReport) error

func (f ReporterFunc) ReportTick(r *TickReport) error { return f(r) }

// LayoutCost prices a layout against a level's table.
func LayoutCost(cfg LevelConfig, layout Layout) int {
	total := 0
	for _, m := range layout.Modules {
		total += m.Price(cfg)
	}
	return total
}

// SimulateOrder runs one order to completion. The run is single-threaded
// and deterministic: identical inputs produce identical outcomes, tick by
// tick. A nil reporter disables snapshots. ctx is only consulted between
// ticks; a cancelled run reports a timeout-shaped outcome with the ctx
// error wrapped in the stop.
func SimulateOrder(ctx context.Context, cfg LevelConfig, pol tuning.Policy, layout Layout, orderIndex int, rep Reporter) (Outcome, error) {
	s, err := NewState(cfg, pol, layout, orderIndex)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{OrderIndex: orderIndex, Cost: LayoutCost(cfg, layout)}

	limit := cfg.TickLimit
	if limit <= 0 {
		limit = tuning.Defaults().DefaultTickLimit
	}

	for s.tick = 1; s.tick <= limit; s.tick++ {
		if err := ctx.Err(); err != nil {
			out.Ticks = s.tick
			out.Stop = newStop(StopInternal, err.Error())
			out.Stop.Tick = s.tick
			return out, nil
		}
		for h := range s.touched {
			delete(s.touched, h)
		}

		err := s.runTick()
		if rep != nil {
			snap := s.Snapshot()
			if serr := rep.ReportTick(snap); serr != nil {
				return out, fmt.Errorf("tick %d report: %w", s.tick, serr)
			}
		}
		if err != nil {
			stop := asStop(err, s.tick)
			out.Ticks = s.tick
			out.Stop = stop
			return out, nil
		}
		// Delivery alone is not success: leftover entities keep the run
		// going until the floor is clear, and can still stop or time it out.
		if s.delivered && len(s.byPos) == 0 {
			out.Success = true
			out.Ticks = s.tick
			return out, nil
		}
	}

	out.Ticks = limit
	out.Timeout = true
	out.Stop = newStop(StopTimeout, "Time limit exceeded.")
	out.Stop.Tick = limit
	return out, nil
}

// runTick executes one tick's three phases in their fixed order.
func (s *State) runTick() error {
	if err := s.signalPhase(); err != nil {
		return err
	}
	moves, err := s.actPhase()
	if err != nil {
		return err
	}
	return s.movePhase(moves)
}

// SimulateSolution runs every order of the level in sequence and folds the
// outcomes into run metrics. Orders after a failed one still run: a partial
// solution's full failure surface is more useful than its first stop.
func SimulateSolution(ctx context.Context, cfg LevelConfig, pol tuning.Policy, layout Layout, rep Reporter) (RunMetrics, error) {
	rm := RunMetrics{
		LevelID: cfg.ID,
		Cost:    LayoutCost(cfg, layout),
		Solved:  true,
	}
	for i := range cfg.Orders {
		out, err := SimulateOrder(ctx, cfg, pol, layout, i, rep)
		if err != nil {
			return rm, err
		}
		rm.Orders = append(rm.Orders, out)
		if out.Ticks > rm.MaxTicks {
			rm.MaxTicks = out.Ticks
		}
		if !out.Solved() {
			rm.Solved = false
		}
	}
	return rm, nil
}

// asStop normalizes any phase error into a stamped emergency stop.
func asStop(err error, tick int) *Stop {
	if st, ok := err.(*Stop); ok {
		st.Tick = tick
		return st
	}
	st := newStop(StopInternal, err.Error())
	st.Tick = tick
	return st
}

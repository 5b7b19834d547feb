package engine

import (
	"fmt"
	"strings"
)

// StopKind classifies terminal simulation failures. The CLI maps these to
// exit codes; the engine itself never prints.
type StopKind string

const (
	StopOutOfBounds         StopKind = "OUT_OF_BOUNDS"
	StopWallCollision       StopKind = "WALL_COLLISION"
	StopEntityCollision     StopKind = "ENTITY_COLLISION"
	StopIllegalComposition  StopKind = "ILLEGAL_COMPOSITION"
	StopIllegalEntity       StopKind = "ILLEGAL_ENTITY_AT_MODULE"
	StopTooManyActiveInputs StopKind = "TOO_MANY_ACTIVE_INPUTS"
	StopMismatch            StopKind = "DEADLOCK_OR_MISMATCH"
	StopTimeout             StopKind = "TIMEOUT"
	StopInternal            StopKind = "INTERNAL"
)

// Stop is an emergency stop: a fatal condition that aborts the remainder of
// the current tick. Already-applied partial moves are kept so the halted
// state can be inspected.
type Stop struct {
	Kind      StopKind   `json:"kind"`
	Message   string     `json:"message"`
	Positions []Position `json:"positions,omitempty"`
	Tick      int        `json:"tick"`
}

func (e *Stop) Error() string {
	parts := make([]string, 0, 3)
	if e.Tick >= 0 {
		parts = append(parts, fmt.Sprintf("tick %d", e.Tick))
	}
	if len(e.Positions) > 0 {
		ps := make([]string, len(e.Positions))
		for i, p := range e.Positions {
			ps[i] = p.String()
		}
		parts = append(parts, strings.Join(ps, ", "))
	}
	if len(parts) > 0 {
		return strings.Join(parts, " @ ") + ": " + e.Message
	}
	return e.Message
}

func newStop(kind StopKind, message string, positions ...Position) *Stop {
	return &Stop{Kind: kind, Message: message, Positions: positions, Tick: -1}
}

func errCollision(positions ...Position) *Stop {
	return newStop(StopEntityCollision, "These products have collided.", positions...)
}

func errTooManyInputs(pos Position) *Stop {
	return newStop(StopTooManyActiveInputs, "This machine has too many active inputs.", pos)
}

func errOffFloor(pos Position) *Stop {
	return newStop(StopOutOfBounds, "Products cannot leave the factory floor.", pos)
}

// ErrOutOfBounds is returned by grid queries for positions off the floor.
// Distinct from the Stop taxonomy: a query error, not a simulation verdict.
var ErrOutOfBounds = fmt.Errorf("position out of bounds")

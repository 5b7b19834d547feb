// Package reportproto defines the wire messages shared by the run log,
// the results index and the observer stream. One envelope per line in the
// log; one envelope per websocket message on the stream.
package reportproto

import "foodcourt.dev/internal/sim/engine"

// Version is the report protocol version. Bump on incompatible changes.
const Version = "1.0"

// Message types.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeHeader    = "HEADER"
	TypeTick      = "TICK"
	TypeResult    = "RESULT"
)

// Header opens every run log and every observer stream: which level and
// solution the ticks that follow belong to.
type Header struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	LevelID         string `json:"level_id"`
	SolutionName    string `json:"solution_name,omitempty"`
	Cost            int    `json:"cost"`
	Orders          int    `json:"orders"`
}

// TickMsg carries one tick snapshot of one order's run.
type TickMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	OrderIndex      int                `json:"order_index"`
	Report          *engine.TickReport `json:"report"`
}

// ResultMsg closes a run with the aggregated verdict.
type ResultMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Metrics         engine.RunMetrics `json:"metrics"`
}

// SubscribeMsg is the observer's opening handshake.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

// NewHeader fills the envelope fields.
func NewHeader(levelID, solutionName string, cost, orders int) Header {
	return Header{
		Type:            TypeHeader,
		ProtocolVersion: Version,
		LevelID:         levelID,
		SolutionName:    solutionName,
		Cost:            cost,
		Orders:          orders,
	}
}

// NewTick wraps one snapshot.
func NewTick(orderIndex int, report *engine.TickReport) TickMsg {
	return TickMsg{
		Type:            TypeTick,
		ProtocolVersion: Version,
		OrderIndex:      orderIndex,
		Report:          report,
	}
}

// NewResult wraps the final metrics.
func NewResult(m engine.RunMetrics) ResultMsg {
	return ResultMsg{Type: TypeResult, ProtocolVersion: Version, Metrics: m}
}

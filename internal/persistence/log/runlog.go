// Package log persists run traces as zstd-compressed JSONL: one HEADER
// line, one TICK line per simulated tick, one RESULT line. The log is the
// source of truth for replays; the SQLite index is derived from it.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"foodcourt.dev/internal/reportproto"
	"foodcourt.dev/internal/sim/engine"
)

// RunWriter appends envelope messages to one run log file.
type RunWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// NewRunWriter creates (or truncates) the log at path.
func NewRunWriter(path string) (*RunWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &RunWriter{
		f:   f,
		enc: enc,
		w:   bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

func (w *RunWriter) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return fmt.Errorf("run log closed")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *RunWriter) WriteHeader(h reportproto.Header) error { return w.write(h) }

func (w *RunWriter) WriteTick(orderIndex int, r *engine.TickReport) error {
	return w.write(reportproto.NewTick(orderIndex, r))
}

func (w *RunWriter) WriteResult(m engine.RunMetrics) error {
	return w.write(reportproto.NewResult(m))
}

func (w *RunWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	var firstErr error
	if err := w.w.Flush(); err != nil {
		firstErr = err
	}
	if err := w.enc.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	w.w = nil
	return firstErr
}

// TickReporter adapts the writer to the engine's per-tick hook for one
// order's run.
func (w *RunWriter) TickReporter(orderIndex int) engine.ReporterFunc {
	return func(r *engine.TickReport) error {
		return w.WriteTick(orderIndex, r)
	}
}

// RunReader streams a run log back, envelope by envelope.
type RunReader struct {
	f   *os.File
	dec *zstd.Decoder
	sc  *bufio.Scanner
}

func OpenRunReader(path string) (*RunReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	return &RunReader{f: f, dec: dec, sc: sc}, nil
}

// Envelope is one decoded log line, discriminated by Type.
type Envelope struct {
	Type   string
	Header *reportproto.Header
	Tick   *reportproto.TickMsg
	Result *reportproto.ResultMsg
}

// Next returns the next envelope, or io.EOF at the end of the log.
func (r *RunReader) Next() (Envelope, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return Envelope{}, err
		}
		return Envelope{}, io.EOF
	}
	line := r.sc.Bytes()

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return Envelope{}, fmt.Errorf("corrupt log line: %w", err)
	}
	env := Envelope{Type: probe.Type}
	switch probe.Type {
	case reportproto.TypeHeader:
		env.Header = new(reportproto.Header)
		return env, json.Unmarshal(line, env.Header)
	case reportproto.TypeTick:
		env.Tick = new(reportproto.TickMsg)
		return env, json.Unmarshal(line, env.Tick)
	case reportproto.TypeResult:
		env.Result = new(reportproto.ResultMsg)
		return env, json.Unmarshal(line, env.Result)
	default:
		return Envelope{}, fmt.Errorf("unknown log message type %q", probe.Type)
	}
}

func (r *RunReader) Close() error {
	r.dec.Close()
	return r.f.Close()
}

// Package indexdb keeps a queryable SQLite index of completed runs. It is
// derived data: the JSONL run logs remain the source of truth, so writes
// are asynchronous and may be dropped under pressure without losing
// anything that cannot be rebuilt.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"foodcourt.dev/internal/sim/engine"
)

// RunRecord is one completed solution run.
type RunRecord struct {
	LevelID      string
	SolutionName string
	LogPath      string
	Metrics      engine.RunMetrics
	RecordedAt   time.Time
}

// SQLiteIndex is a single-writer async index. All inserts flow through one
// goroutine; queries go straight to the database.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan RunRecord
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan RunRecord, 256),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads. NORMAL is a decent
	// durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			level_id TEXT NOT NULL,
			solution_name TEXT NOT NULL,
			log_path TEXT NOT NULL,
			solved INTEGER NOT NULL,
			cost INTEGER NOT NULL,
			max_ticks INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_level ON runs(level_id, solved, cost);`,
		`CREATE TABLE IF NOT EXISTS run_orders (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			order_index INTEGER NOT NULL,
			success INTEGER NOT NULL,
			ticks INTEGER NOT NULL,
			timeout INTEGER NOT NULL,
			stop_kind TEXT,
			stop_message TEXT,
			stop_tick INTEGER,
			PRIMARY KEY (run_id, order_index)
		);`,
	}
	for _, st := range stmts {
		if _, err := db.Exec(st); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteRun enqueues a record. Never blocks the simulation: if the indexer
// falls behind the record is dropped and the run log keeps the data.
func (s *SQLiteIndex) WriteRun(rec RunRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	select {
	case s.ch <- rec:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	for rec := range s.ch {
		s.insert(ctx, rec)
	}
}

func (s *SQLiteIndex) insert(ctx context.Context, rec RunRecord) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer func() { _ = tx.Rollback() }()

	raw, _ := json.Marshal(rec.Metrics)
	res, err := tx.Exec(
		`INSERT INTO runs(level_id,solution_name,log_path,solved,cost,max_ticks,recorded_at,raw_json)
		 VALUES(?,?,?,?,?,?,?,?)`,
		rec.LevelID,
		rec.SolutionName,
		rec.LogPath,
		boolInt(rec.Metrics.Solved),
		rec.Metrics.Cost,
		rec.Metrics.MaxTicks,
		rec.RecordedAt.Format(time.RFC3339Nano),
		string(raw),
	)
	if err != nil {
		return
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return
	}
	for _, o := range rec.Metrics.Orders {
		var stopKind, stopMsg any
		var stopTick any
		if o.Stop != nil {
			stopKind = string(o.Stop.Kind)
			stopMsg = o.Stop.Message
			stopTick = o.Stop.Tick
		}
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO run_orders(run_id,order_index,success,ticks,timeout,stop_kind,stop_message,stop_tick)
			 VALUES(?,?,?,?,?,?,?,?)`,
			runID, o.OrderIndex, boolInt(o.Success), o.Ticks, boolInt(o.Timeout),
			stopKind, stopMsg, stopTick,
		); err != nil {
			return
		}
	}
	_ = tx.Commit()
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID           int64
	LevelID      string
	SolutionName string
	LogPath      string
	Solved       bool
	Cost         int
	MaxTicks     int
	RecordedAt   string
}

// RecentRuns lists the newest runs, optionally filtered by level.
func (s *SQLiteIndex) RecentRuns(levelID string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id,level_id,solution_name,log_path,solved,cost,max_ticks,recorded_at
	      FROM runs`
	args := []any{}
	if levelID != "" {
		q += ` WHERE level_id = ?`
		args = append(args, levelID)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var solved int
		if err := rows.Scan(&r.ID, &r.LevelID, &r.SolutionName, &r.LogPath,
			&solved, &r.Cost, &r.MaxTicks, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Solved = solved != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// BestRun returns the cheapest solved run for a level, ties broken by
// fewest ticks.
func (s *SQLiteIndex) BestRun(levelID string) (RunSummary, bool, error) {
	row := s.db.QueryRow(
		`SELECT id,level_id,solution_name,log_path,solved,cost,max_ticks,recorded_at
		 FROM runs WHERE level_id = ? AND solved = 1
		 ORDER BY cost ASC, max_ticks ASC, id ASC LIMIT 1`, levelID)
	var r RunSummary
	var solved int
	err := row.Scan(&r.ID, &r.LevelID, &r.SolutionName, &r.LogPath,
		&solved, &r.Cost, &r.MaxTicks, &r.RecordedAt)
	if err == sql.ErrNoRows {
		return RunSummary{}, false, nil
	}
	if err != nil {
		return RunSummary{}, false, err
	}
	r.Solved = solved != 0
	return r, true, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

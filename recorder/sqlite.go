package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shreekarashastry/miningsim/simulation"
)

// SQLite stores runs and their per-round series. One database may hold many
// runs; each run is written through its own RunRecorder.
type SQLite struct {
	db *sql.DB
}

// RunInfo describes a run when it starts.
type RunInfo struct {
	Label  string
	Seed   int64
	K      float64
	M      float64
	Config simulation.Config
}

// RunSummary describes a run when it ends.
type RunSummary struct {
	Steps        int
	Halted       bool
	PrimaryOnly  bool
	ActiveAgents int
	FinalIndex   float64
	Digest       string
}

func OpenSQLite(path string) (*SQLite, error) {
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
	return &SQLite{db: db}, nil
}

func initPragmas(db *sql.DB) error {
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
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL,
			seed INTEGER NOT NULL,
			k REAL NOT NULL,
			m REAL NOT NULL,
			config_json TEXT NOT NULL,
			started_at TEXT NOT NULL,
			steps INTEGER,
			halted INTEGER,
			primary_only INTEGER,
			active_agents INTEGER,
			final_index REAL,
			digest TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS agent_rounds (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			step INTEGER NOT NULL,
			agent_id INTEGER NOT NULL,
			active_capacity REAL NOT NULL,
			accumulated_reward REAL NOT NULL,
			accumulated_cost REAL NOT NULL,
			profit REAL NOT NULL,
			PRIMARY KEY (run_id, step, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS model_rounds (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			step INTEGER NOT NULL,
			decentralization_index REAL NOT NULL,
			total_active_capacity REAL NOT NULL,
			active_agents INTEGER NOT NULL,
			currency_value REAL NOT NULL,
			PRIMARY KEY (run_id, step)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_rounds_agent ON agent_rounds(run_id, agent_id, step);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// BeginRun registers a run and returns the recorder for its rounds.
func (s *SQLite) BeginRun(ctx context.Context, info RunInfo) (*RunRecorder, error) {
	cfgJSON, err := json.Marshal(info.Config)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(label, seed, k, m, config_json, started_at) VALUES(?, ?, ?, ?, ?, ?)`,
		info.Label, info.Seed, info.K, info.M, string(cfgJSON), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &RunRecorder{s: s, ctx: ctx, runID: id}, nil
}

// RunRecorder writes one run. Each round is committed as a single
// transaction when its model record arrives.
type RunRecorder struct {
	s     *SQLite
	ctx   context.Context
	runID int64
	tx    *sql.Tx
}

func (r *RunRecorder) RunID() int64 { return r.runID }

func (r *RunRecorder) begin() error {
	if r.tx != nil {
		return nil
	}
	tx, err := r.s.db.BeginTx(r.ctx, nil)
	if err != nil {
		return err
	}
	r.tx = tx
	return nil
}

func (r *RunRecorder) RecordAgent(rec simulation.AgentRecord) error {
	if err := r.begin(); err != nil {
		return err
	}
	_, err := r.tx.ExecContext(r.ctx,
		`INSERT INTO agent_rounds(run_id, step, agent_id, active_capacity, accumulated_reward, accumulated_cost, profit) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		r.runID, int64(rec.Step), rec.AgentID, rec.ActiveCapacity, rec.AccumulatedReward, rec.AccumulatedCost, rec.Profit,
	)
	if err != nil {
		r.rollback()
	}
	return err
}

func (r *RunRecorder) RecordModel(rec simulation.ModelRecord) error {
	if err := r.begin(); err != nil {
		return err
	}
	_, err := r.tx.ExecContext(r.ctx,
		`INSERT INTO model_rounds(run_id, step, decentralization_index, total_active_capacity, active_agents, currency_value) VALUES(?, ?, ?, ?, ?, ?)`,
		r.runID, int64(rec.Step), rec.DecentralizationIndex, rec.TotalActiveCapacity, rec.ActiveAgents, rec.CurrencyValue,
	)
	if err != nil {
		r.rollback()
		return err
	}
	err = r.tx.Commit()
	r.tx = nil
	return err
}

func (r *RunRecorder) rollback() {
	if r.tx != nil {
		_ = r.tx.Rollback()
		r.tx = nil
	}
}

// Close discards a round left half written and frees the connection it
// holds. The run row stays as it is.
func (r *RunRecorder) Close() error {
	r.rollback()
	return nil
}

// Finish stores the run summary. A round left half written is discarded.
func (r *RunRecorder) Finish(sum RunSummary) error {
	r.rollback()
	_, err := r.s.db.ExecContext(r.ctx,
		`UPDATE runs SET steps = ?, halted = ?, primary_only = ?, active_agents = ?, final_index = ?, digest = ? WHERE id = ?`,
		sum.Steps, sum.Halted, sum.PrimaryOnly, sum.ActiveAgents, sum.FinalIndex, sum.Digest, r.runID,
	)
	return err
}

// ModelSeries returns a run's network series in step order.
func (s *SQLite) ModelSeries(ctx context.Context, runID int64) ([]simulation.ModelRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, decentralization_index, total_active_capacity, active_agents, currency_value FROM model_rounds WHERE run_id = ? ORDER BY step`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []simulation.ModelRecord
	for rows.Next() {
		var (
			rec  simulation.ModelRecord
			step int64
		)
		if err := rows.Scan(&step, &rec.DecentralizationIndex, &rec.TotalActiveCapacity, &rec.ActiveAgents, &rec.CurrencyValue); err != nil {
			return nil, err
		}
		rec.Step = uint64(step)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AgentSeries returns one agent's series in step order.
func (s *SQLite) AgentSeries(ctx context.Context, runID int64, agentID int) ([]simulation.AgentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, active_capacity, accumulated_reward, accumulated_cost, profit FROM agent_rounds WHERE run_id = ? AND agent_id = ? ORDER BY step`,
		runID, agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []simulation.AgentRecord
	for rows.Next() {
		rec := simulation.AgentRecord{AgentID: agentID}
		var step int64
		if err := rows.Scan(&step, &rec.ActiveCapacity, &rec.AccumulatedReward, &rec.AccumulatedCost, &rec.Profit); err != nil {
			return nil, err
		}
		rec.Step = uint64(step)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Run is a stored run row.
type Run struct {
	ID     int64
	Label  string
	Seed   int64
	K, M   float64
	Steps  int
	Halted bool
	Digest string
}

// Runs lists finished runs in insertion order.
func (s *SQLite) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, seed, k, m, steps, halted, digest FROM runs WHERE steps IS NOT NULL ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Label, &r.Seed, &r.K, &r.M, &r.Steps, &r.Halted, &r.Digest); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

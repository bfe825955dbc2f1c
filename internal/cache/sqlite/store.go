// Package sqlite implements orchestrator.Cache and a run-cost ledger over
// SQLite, grounded on the teacher's internal/adapter/store/sqlite/store.go
// schema-creation and prepared-statement idiom, repurposed from the
// teacher's run/review/finding/feedback tables to the cache's simpler
// agent-result-by-key shape plus a monthly-spend ledger.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/odd-ai/reviewers/internal/apperrors"
	"github.com/odd-ai/reviewers/internal/domain"
	"github.com/odd-ai/reviewers/internal/orchestrator"
)

// Store is a SQLite-backed orchestrator.Cache plus a run-cost ledger for
// tracking spend across runs toward the monthly budget ceiling.
type Store struct {
	db *sql.DB
}

var _ orchestrator.Cache = (*Store)(nil)

// Open creates or attaches to the SQLite database at path ("" or
// ":memory:" for an ephemeral in-process store) and ensures its schema
// exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperrors.WrapConfig(err, "open sqlite cache at %q", path)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, apperrors.WrapConfig(err, "enable foreign keys")
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) createSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS agent_cache (
		cache_key     TEXT PRIMARY KEY,
		agent_id      TEXT NOT NULL,
		findings_json TEXT NOT NULL,
		created_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_ledger (
		run_id      TEXT PRIMARY KEY,
		timestamp   INTEGER NOT NULL,
		repository  TEXT NOT NULL,
		pr_number   INTEGER NOT NULL,
		config_hash TEXT NOT NULL,
		cost_usd    REAL NOT NULL DEFAULT 0.0
	);

	CREATE INDEX IF NOT EXISTS idx_run_ledger_timestamp ON run_ledger(timestamp DESC);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return apperrors.WrapConfig(err, "create cache schema")
	}
	return nil
}

// Get satisfies orchestrator.Cache. A row whose findings_json fails to
// unmarshal is treated as a miss — a legacy or corrupted entry must never
// crash a run (§4.7's schema-validation-failure-is-a-miss rule).
func (s *Store) Get(ctx context.Context, key string) (domain.AgentResult, bool, error) {
	var agentID, findingsJSON string
	err := s.db.QueryRowContext(ctx, `SELECT agent_id, findings_json FROM agent_cache WHERE cache_key = ?`, key).
		Scan(&agentID, &findingsJSON)
	if err == sql.ErrNoRows {
		return domain.AgentResult{}, false, nil
	}
	if err != nil {
		return domain.AgentResult{}, false, apperrors.WrapNetwork(err, true, "read cache entry %q", key)
	}

	var findings []domain.Finding
	if err := json.Unmarshal([]byte(findingsJSON), &findings); err != nil {
		return domain.AgentResult{}, false, nil
	}

	return domain.Success(agentID, findings), true, nil
}

// Put stores result's findings under key, replacing any prior entry for
// the same key (a config or diff change produces a different key, so
// collisions here mean a genuine re-run of the identical input).
func (s *Store) Put(ctx context.Context, key string, result domain.AgentResult) error {
	payload, err := json.Marshal(result.Findings)
	if err != nil {
		return apperrors.WrapValidation(err, "marshal cache payload for %q", key)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_cache (cache_key, agent_id, findings_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			agent_id = excluded.agent_id,
			findings_json = excluded.findings_json,
			created_at = excluded.created_at
	`, key, result.AgentID, string(payload), time.Now().Unix())
	if err != nil {
		return apperrors.WrapNetwork(err, true, "write cache entry %q", key)
	}
	return nil
}

// RecordRunCost appends one run's total spend to the ledger, for the CLI
// collaborator to sum when enforcing LimitsConfig.MonthlyBudgetUSD.
func (s *Store) RecordRunCost(ctx context.Context, runID, repository string, prNumber int, configHash string, costUSD float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_ledger (run_id, timestamp, repository, pr_number, config_hash, cost_usd)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET cost_usd = excluded.cost_usd
	`, runID, time.Now().Unix(), repository, prNumber, configHash, costUSD)
	if err != nil {
		return apperrors.WrapNetwork(err, true, "record run cost for %q", runID)
	}
	return nil
}

// MonthToDateSpend sums cost_usd for every run recorded since the start
// of the current UTC month, the figure the CLI collaborator subtracts
// from LimitsConfig.MonthlyBudgetUSD to seed BudgetState.RemainingMonthlyUSD.
func (s *Store) MonthToDateSpend(ctx context.Context, now time.Time) (float64, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT SUM(cost_usd) FROM run_ledger WHERE timestamp >= ?`, monthStart.Unix()).Scan(&total)
	if err != nil {
		return 0, apperrors.WrapNetwork(err, true, "sum month-to-date spend")
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Float64, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/wyckoff_backtest/internal/domain"
)

// SQLiteStore persists the BacktestRun aggregate. Writes are incremental:
// the run row, its trades, window results and rejections land as they are
// produced, so a crash mid-run leaves an inspectable record instead of a
// half-written one.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			config TEXT NOT NULL,
			metrics TEXT,
			walk_forward TEXT,
			trade_count INTEGER NOT NULL DEFAULT 0,
			rejections INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			started_at DATETIME,
			ended_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);`,
		`CREATE TABLE IF NOT EXISTS run_trades (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			signal_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			entry_price REAL NOT NULL,
			entry_time DATETIME NOT NULL,
			entry_bar INTEGER NOT NULL,
			exit_price REAL NOT NULL,
			exit_time DATETIME NOT NULL,
			exit_bar INTEGER NOT NULL,
			pnl REAL NOT NULL,
			r_multiple REAL NOT NULL,
			exit_reason TEXT NOT NULL,
			commission REAL NOT NULL,
			slippage REAL NOT NULL,
			campaign_id TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_trades_run ON run_trades(run_id);`,
		`CREATE TABLE IF NOT EXISTS run_windows (
			run_id TEXT NOT NULL,
			window_index INTEGER NOT NULL,
			role TEXT NOT NULL,
			start_bar INTEGER NOT NULL,
			end_bar INTEGER NOT NULL,
			trade_count INTEGER NOT NULL,
			window_return REAL NOT NULL,
			metrics TEXT NOT NULL,
			PRIMARY KEY (run_id, window_index)
		);`,
		`CREATE TABLE IF NOT EXISTS run_rejections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			signal_id TEXT NOT NULL,
			stage INTEGER NOT NULL,
			reason TEXT NOT NULL,
			bar INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_rejections_run ON run_rejections(run_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// RunRepository Implementation

func (s *SQLiteStore) InsertRun(ctx context.Context, run *domain.BacktestRun) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	query := `INSERT INTO runs (id, symbol, timeframe, status, message, config, trade_count, rejections, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		run.ID, run.Config.Symbol, run.Config.Timeframe, run.Status, run.Message,
		string(cfg), run.TradeCount, run.Rejections, run.CreatedAt, run.UpdatedAt)
	return err
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, message string) error {
	query := `UPDATE runs SET status = ?, message = ?, updated_at = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, status, message, time.Now().UTC(), id)
	if err != nil {
		return &domain.ResourceLifecycleError{Op: "update run status", Err: err}
	}
	return nil
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, run *domain.BacktestRun) error {
	var metrics, wf any
	if run.Metrics != nil {
		b, err := json.Marshal(run.Metrics)
		if err != nil {
			return err
		}
		metrics = string(b)
	}
	if run.WalkForward != nil {
		b, err := json.Marshal(run.WalkForward)
		if err != nil {
			return err
		}
		wf = string(b)
	}
	query := `UPDATE runs SET status = ?, message = ?, metrics = ?, walk_forward = ?,
			  trade_count = ?, rejections = ?, updated_at = ?, started_at = ?, ended_at = ?
			  WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query,
		run.Status, run.Message, metrics, wf,
		run.TradeCount, run.Rejections, run.UpdatedAt,
		nullableTime(run.StartedAt), nullableTime(run.EndedAt), run.ID)
	if err != nil {
		return &domain.ResourceLifecycleError{Op: "update run result", Err: err}
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.BacktestRun, error) {
	query := `SELECT id, status, message, config, metrics, walk_forward, trade_count, rejections,
			  created_at, updated_at, started_at, ended_at FROM runs WHERE id = ?`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*domain.BacktestRun, error) {
	query := `SELECT id, status, message, config, metrics, walk_forward, trade_count, rejections,
			  created_at, updated_at, started_at, ended_at FROM runs ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.BacktestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.BacktestRun, error) {
	var r domain.BacktestRun
	var cfg string
	var metrics, wf sql.NullString
	var startedAt, endedAt sql.NullTime
	err := row.Scan(&r.ID, &r.Status, &r.Message, &cfg, &metrics, &wf,
		&r.TradeCount, &r.Rejections, &r.CreatedAt, &r.UpdatedAt, &startedAt, &endedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cfg), &r.Config); err != nil {
		return nil, fmt.Errorf("corrupt run config for %s: %w", r.ID, err)
	}
	if metrics.Valid {
		r.Metrics = &domain.Metrics{}
		if err := json.Unmarshal([]byte(metrics.String), r.Metrics); err != nil {
			return nil, fmt.Errorf("corrupt metrics for %s: %w", r.ID, err)
		}
	}
	if wf.Valid {
		r.WalkForward = &domain.WalkForwardSummary{}
		if err := json.Unmarshal([]byte(wf.String), r.WalkForward); err != nil {
			return nil, fmt.Errorf("corrupt walk-forward summary for %s: %w", r.ID, err)
		}
	}
	if startedAt.Valid {
		r.StartedAt = startedAt.Time
	}
	if endedAt.Valid {
		r.EndedAt = endedAt.Time
	}
	return &r, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// TradeRepository Implementation

func (s *SQLiteStore) SaveTrade(ctx context.Context, trade *domain.Trade) error {
	query := `INSERT INTO run_trades (id, run_id, signal_id, symbol, side, quantity,
			  entry_price, entry_time, entry_bar, exit_price, exit_time, exit_bar,
			  pnl, r_multiple, exit_reason, commission, slippage, campaign_id)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		trade.ID, trade.RunID, trade.SignalID, trade.Symbol, trade.Side, trade.Quantity,
		trade.EntryPrice, trade.EntryTime, trade.EntryBar, trade.ExitPrice, trade.ExitTime, trade.ExitBar,
		trade.PnL, trade.RMultiple, trade.ExitReason, trade.Commission, trade.Slippage, trade.CampaignID)
	if err != nil {
		return &domain.ResourceLifecycleError{Op: "save trade", Err: err}
	}
	return nil
}

func (s *SQLiteStore) ListTrades(ctx context.Context, runID string) ([]*domain.Trade, error) {
	query := `SELECT id, run_id, signal_id, symbol, side, quantity,
			  entry_price, entry_time, entry_bar, exit_price, exit_time, exit_bar,
			  pnl, r_multiple, exit_reason, commission, slippage, campaign_id
			  FROM run_trades WHERE run_id = ? ORDER BY exit_bar ASC`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(&t.ID, &t.RunID, &t.SignalID, &t.Symbol, &t.Side, &t.Quantity,
			&t.EntryPrice, &t.EntryTime, &t.EntryBar, &t.ExitPrice, &t.ExitTime, &t.ExitBar,
			&t.PnL, &t.RMultiple, &t.ExitReason, &t.Commission, &t.Slippage, &t.CampaignID); err != nil {
			return nil, err
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) SaveRejection(ctx context.Context, rec *domain.RejectionRecord) error {
	query := `INSERT INTO run_rejections (run_id, signal_id, stage, reason, bar) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, rec.RunID, rec.SignalID, rec.Stage, rec.Reason, rec.Bar)
	if err != nil {
		return &domain.ResourceLifecycleError{Op: "save rejection", Err: err}
	}
	return nil
}

func (s *SQLiteStore) ListRejections(ctx context.Context, runID string, limit int) ([]*domain.RejectionRecord, error) {
	query := `SELECT run_id, signal_id, stage, reason, bar FROM run_rejections WHERE run_id = ? ORDER BY bar ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*domain.RejectionRecord
	for rows.Next() {
		var r domain.RejectionRecord
		if err := rows.Scan(&r.RunID, &r.SignalID, &r.Stage, &r.Reason, &r.Bar); err != nil {
			return nil, err
		}
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) SaveWindowResult(ctx context.Context, runID string, res *domain.WindowResult) error {
	metrics, err := json.Marshal(res.Metrics)
	if err != nil {
		return err
	}
	query := `INSERT INTO run_windows (run_id, window_index, role, start_bar, end_bar, trade_count, window_return, metrics)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(run_id, window_index) DO UPDATE SET
			  trade_count=excluded.trade_count,
			  window_return=excluded.window_return,
			  metrics=excluded.metrics`
	_, err = s.db.ExecContext(ctx, query,
		runID, res.Window.Index, res.Window.Role, res.Window.Start, res.Window.End,
		res.TradeCount, res.Return, string(metrics))
	if err != nil {
		return &domain.ResourceLifecycleError{Op: "save window result", Err: err}
	}
	return nil
}

func (s *SQLiteStore) ListWindowResults(ctx context.Context, runID string) ([]*domain.WindowResult, error) {
	query := `SELECT window_index, role, start_bar, end_bar, trade_count, window_return, metrics
			  FROM run_windows WHERE run_id = ? ORDER BY window_index ASC`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.WindowResult
	for rows.Next() {
		var r domain.WindowResult
		var metrics string
		if err := rows.Scan(&r.Window.Index, &r.Window.Role, &r.Window.Start, &r.Window.End,
			&r.TradeCount, &r.Return, &metrics); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metrics), &r.Metrics); err != nil {
			return nil, fmt.Errorf("corrupt window metrics for %s/%d: %w", runID, r.Window.Index, err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

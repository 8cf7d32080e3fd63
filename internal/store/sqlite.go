package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"marlin/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ PortfolioStore = (*SQLiteStore)(nil)
var _ SessionStore = (*SQLiteStore)(nil)

// SQLiteStore implements PortfolioStore and SessionStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS portfolios (
	portfolio_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	portfolio_name TEXT NOT NULL UNIQUE,
	created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS portfolio_stocks (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	portfolio_id INTEGER NOT NULL REFERENCES portfolios(portfolio_id) ON DELETE CASCADE,
	stock_symbol TEXT NOT NULL,
	added_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (portfolio_id, stock_symbol)
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	portfolio_id INTEGER NOT NULL REFERENCES portfolios(portfolio_id) ON DELETE CASCADE,
	strategy     TEXT NOT NULL,
	start_date   TEXT NOT NULL,
	end_date     TEXT NOT NULL,
	initial_cash REAL NOT NULL,
	status       TEXT NOT NULL DEFAULT 'locked',
	created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_session_portfolio ON sessions(portfolio_id, start_date, end_date);

CREATE TABLE IF NOT EXISTS session_trades (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   INTEGER NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
	dt           TEXT NOT NULL,
	stock_symbol TEXT NOT NULL,
	side         TEXT NOT NULL,
	price        REAL NOT NULL,
	shares       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_session_dt ON session_trades(session_id, dt);

CREATE TABLE IF NOT EXISTS session_metrics (
	session_id      INTEGER PRIMARY KEY REFERENCES sessions(session_id) ON DELETE CASCADE,
	portfolio_value REAL,
	total_pnl       REAL,
	return_pct      REAL,
	cagr_pct        REAL,
	sharpe          REAL,
	sortino         REAL,
	max_drawdown    REAL,
	calmar          REAL,
	profit_factor   REAL,
	win_rate        REAL,
	avg_win_loss    REAL
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// The pragma is set through the DSN so every pooled connection gets it.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// IsConflict reports whether err is a uniqueness-constraint violation
// (duplicate portfolio name or duplicate symbol in a portfolio).
func IsConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ---------------------------------------------------------------------------
// PortfolioStore implementation
// ---------------------------------------------------------------------------

// CreatePortfolio inserts a new portfolio and returns its id.
func (s *SQLiteStore) CreatePortfolio(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO portfolios (portfolio_name) VALUES (?)", name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListPortfolios returns all portfolios, newest first.
func (s *SQLiteStore) ListPortfolios(ctx context.Context) ([]Portfolio, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT portfolio_id, portfolio_name FROM portfolios ORDER BY portfolio_id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Portfolio
	for rows.Next() {
		var p Portfolio
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePortfolio removes a portfolio; stocks and sessions cascade.
func (s *SQLiteStore) DeletePortfolio(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM portfolios WHERE portfolio_id = ?", id)
	return err
}

// AddStock adds a symbol to a portfolio.
func (s *SQLiteStore) AddStock(ctx context.Context, portfolioID int64, symbol string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO portfolio_stocks (portfolio_id, stock_symbol) VALUES (?, ?)",
		portfolioID, strings.ToUpper(symbol))
	return err
}

// RemoveStock drops a symbol from a portfolio.
func (s *SQLiteStore) RemoveStock(ctx context.Context, portfolioID int64, symbol string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM portfolio_stocks WHERE portfolio_id = ? AND stock_symbol = ?",
		portfolioID, strings.ToUpper(symbol))
	return err
}

// ListStocks returns the portfolio's symbols in ascending order.
func (s *SQLiteStore) ListStocks(ctx context.Context, portfolioID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT stock_symbol FROM portfolio_stocks WHERE portfolio_id = ? ORDER BY stock_symbol",
		portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// SessionStore implementation
// ---------------------------------------------------------------------------

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// SaveSession stores a session, its trade log, and its metrics in one
// transaction, returning the session id.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess Session, trades []domain.Trade, kpis domain.KPISet) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (portfolio_id, strategy, start_date, end_date, initial_cash, status)
		VALUES (?, ?, ?, ?, ?, 'locked')`,
		sess.PortfolioID, sess.Strategy,
		sess.StartDate.Format(dateLayout), sess.EndDate.Format(dateLayout),
		sess.InitialCash)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO session_trades (session_id, dt, stock_symbol, side, price, shares)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx,
			id, t.Date.Format(dateLayout), t.Symbol, string(t.Side), t.Price, t.Qty); err != nil {
			return 0, fmt.Errorf("inserting trade: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_metrics (
			session_id, portfolio_value, total_pnl, return_pct, cagr_pct,
			sharpe, sortino, max_drawdown, calmar, profit_factor, win_rate, avg_win_loss)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, kpis.PortfolioValue, kpis.TotalPnL, kpis.ReturnPct, kpis.CAGRPct,
		kpis.SharpeRatio, kpis.SortinoRatio, kpis.MaxDrawdownPct, kpis.CalmarRatio,
		kpis.ProfitFactor, kpis.WinRatePct, kpis.AvgWinLossRatio); err != nil {
		return 0, fmt.Errorf("inserting metrics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetSession retrieves one session with its trades and metrics.
func (s *SQLiteStore) GetSession(ctx context.Context, id int64) (*Session, []domain.Trade, *domain.KPISet, error) {
	var sess Session
	var startStr, endStr, createdStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, portfolio_id, strategy, start_date, end_date, initial_cash, created_at
		FROM sessions WHERE session_id = ?`, id).
		Scan(&sess.ID, &sess.PortfolioID, &sess.Strategy, &startStr, &endStr, &sess.InitialCash, &createdStr)
	if err != nil {
		return nil, nil, nil, err
	}
	sess.StartDate, _ = time.Parse(dateLayout, startStr)
	sess.EndDate, _ = time.Parse(dateLayout, endStr)
	sess.CreatedAt, _ = time.Parse(timestampLayout, createdStr)

	rows, err := s.db.QueryContext(ctx, `
		SELECT dt, stock_symbol, side, price, shares
		FROM session_trades WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var dt, side string
		if err := rows.Scan(&dt, &t.Symbol, &side, &t.Price, &t.Qty); err != nil {
			return nil, nil, nil, err
		}
		t.Date, _ = time.Parse(dateLayout, dt)
		t.Side = domain.Side(side)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, err
	}

	var k domain.KPISet
	err = s.db.QueryRowContext(ctx, `
		SELECT portfolio_value, total_pnl, return_pct, cagr_pct,
		       sharpe, sortino, max_drawdown, calmar, profit_factor, win_rate, avg_win_loss
		FROM session_metrics WHERE session_id = ?`, id).
		Scan(&k.PortfolioValue, &k.TotalPnL, &k.ReturnPct, &k.CAGRPct,
			&k.SharpeRatio, &k.SortinoRatio, &k.MaxDrawdownPct, &k.CalmarRatio,
			&k.ProfitFactor, &k.WinRatePct, &k.AvgWinLossRatio)
	if err != nil && err != sql.ErrNoRows {
		return nil, nil, nil, err
	}

	return &sess, trades, &k, nil
}

// ListSessions returns a portfolio's sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, portfolioID int64) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, portfolio_id, strategy, start_date, end_date, initial_cash, created_at
		FROM sessions WHERE portfolio_id = ? ORDER BY session_id DESC`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var startStr, endStr, createdStr string
		if err := rows.Scan(&sess.ID, &sess.PortfolioID, &sess.Strategy,
			&startStr, &endStr, &sess.InitialCash, &createdStr); err != nil {
			return nil, err
		}
		sess.StartDate, _ = time.Parse(dateLayout, startStr)
		sess.EndDate, _ = time.Parse(dateLayout, endStr)
		sess.CreatedAt, _ = time.Parse(timestampLayout, createdStr)
		out = append(out, sess)
	}
	return out, rows.Err()
}

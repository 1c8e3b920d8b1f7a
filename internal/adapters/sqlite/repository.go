// Package sqlite implements the trade ledger and daily balance stores on an
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"tradedesk/internal/domain"
	"tradedesk/internal/ports"
)

// Repository implements ports.TradeRepository and ports.DailyBalanceRepository
// using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/tradedesk.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the monitor loop and HTTP handlers.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		type TEXT NOT NULL,
		amount REAL NOT NULL,
		entry_price REAL NOT NULL,
		target_price REAL NOT NULL DEFAULT 0,
		stop_loss_price REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		mode TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP DEFAULT NULL,
		closed_price REAL DEFAULT NULL,
		profit REAL DEFAULT NULL,
		profit_percent REAL DEFAULT NULL,
		close_reason TEXT DEFAULT NULL,
		analysis TEXT DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_balances (
		user_id TEXT NOT NULL,
		day TEXT NOT NULL,
		starting_balance REAL NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, day)
	);

	CREATE INDEX IF NOT EXISTS idx_trades_user_created ON trades (user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades (status);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TradeRepository implementation ---

const tradeColumns = `
	id, user_id, symbol, type, amount, entry_price, target_price, stop_loss_price,
	status, mode, created_at, closed_at, COALESCE(closed_price, 0),
	COALESCE(profit, 0), COALESCE(profit_percent, 0), COALESCE(close_reason, ''), analysis`

// Create saves a new trade and returns its assigned ID.
func (r *Repository) Create(ctx context.Context, trade *domain.Trade) (string, error) {
	const query = `
	INSERT INTO trades (id, user_id, symbol, type, amount, entry_price, target_price,
	                    stop_loss_price, status, mode, created_at, analysis)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	id := trade.ID
	if id == "" {
		id = uuid.NewString()
	}

	var analysisJSON sql.NullString
	if trade.Analysis != nil {
		raw, err := json.Marshal(trade.Analysis)
		if err != nil {
			return "", fmt.Errorf("failed to encode analysis snapshot for trade %s: %w", trade.Symbol, err)
		}
		analysisJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		id, trade.UserID, trade.Symbol, trade.Type, trade.Amount, trade.EntryPrice,
		trade.TargetPrice, trade.StopLossPrice, trade.Status, trade.Mode,
		trade.CreatedAt, analysisJSON)
	if err != nil {
		return "", fmt.Errorf("failed to insert trade for symbol %s: %w", trade.Symbol, err)
	}

	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol})
	return id, nil
}

// FindByID retrieves a trade by its ID, or nil when it doesn't exist.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Trade, error) {
	query := "SELECT " + tradeColumns + " FROM trades WHERE id = ?"

	trade, err := scanTrade(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query trade %s: %w", id, err)
	}
	return trade, nil
}

// FindByUser retrieves the user's most recent trades, optionally filtered by
// status. A non-positive limit returns all of them.
func (r *Repository) FindByUser(ctx context.Context, userID string, status domain.TradeStatus, limit int) ([]*domain.Trade, error) {
	query := "SELECT " + tradeColumns + " FROM trades WHERE user_id = ?"
	args := []interface{}{userID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for user %s: %w", userID, err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// FindOpen retrieves all open trades across users, oldest first.
func (r *Repository) FindOpen(ctx context.Context) ([]*domain.Trade, error) {
	query := "SELECT " + tradeColumns + " FROM trades WHERE status = ? ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, query, domain.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// CloseIfOpen marks a trade CLOSED iff it is still OPEN. The status guard in
// the WHERE clause makes concurrent closers race safely: exactly one update
// wins, the rest get ErrConflict.
func (r *Repository) CloseIfOpen(ctx context.Context, id string, patch ports.TradeClosePatch) error {
	const query = `
	UPDATE trades
	SET status = ?, closed_at = ?, closed_price = ?, profit = ?, profit_percent = ?, close_reason = ?
	WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query,
		domain.StatusClosed, patch.ClosedAt, patch.ClosedPrice, patch.Profit,
		patch.ProfitPercent, patch.CloseReason, id, domain.StatusOpen)
	if err != nil {
		return fmt.Errorf("failed to close trade %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected closing trade %s: %w", id, err)
	}
	if affected > 0 {
		r.logger.Debug(ctx, "Trade closed", map[string]interface{}{"tradeID": id, "reason": patch.CloseReason})
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM trades WHERE id = ?)", id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check existence of trade %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("trade %s: %w", id, ports.ErrNotFound)
	}
	return fmt.Errorf("trade %s is no longer open: %w", id, ports.ErrConflict)
}

// --- DailyBalanceRepository implementation ---

// GetOrCreateStartingBalance returns the balance recorded at the start of the
// user's trading day, snapshotting the current balance if the day has no
// record yet. The insert-then-select keeps the first writer's snapshot under
// concurrency.
func (r *Repository) GetOrCreateStartingBalance(ctx context.Context, userID string, day time.Time, current float64) (float64, error) {
	dayKey := day.UTC().Format("2006-01-02")

	const insert = `
	INSERT INTO daily_balances (user_id, day, starting_balance, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (user_id, day) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, userID, dayKey, current, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("failed to record starting balance for %s on %s: %w", userID, dayKey, err)
	}

	var starting float64
	err := r.db.QueryRowContext(ctx,
		"SELECT starting_balance FROM daily_balances WHERE user_id = ? AND day = ?",
		userID, dayKey).Scan(&starting)
	if err != nil {
		return 0, fmt.Errorf("failed to read starting balance for %s on %s: %w", userID, dayKey, err)
	}
	return starting, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var t domain.Trade
	var closedAt sql.NullTime
	var analysisJSON sql.NullString

	err := row.Scan(
		&t.ID, &t.UserID, &t.Symbol, &t.Type, &t.Amount, &t.EntryPrice,
		&t.TargetPrice, &t.StopLossPrice, &t.Status, &t.Mode, &t.CreatedAt,
		&closedAt, &t.ClosedPrice, &t.Profit, &t.ProfitPercent, &t.CloseReason,
		&analysisJSON)
	if err != nil {
		return nil, err
	}

	if closedAt.Valid {
		t.ClosedAt = closedAt.Time
	}
	if analysisJSON.Valid && analysisJSON.String != "" {
		var a domain.AIAnalysis
		if err := json.Unmarshal([]byte(analysisJSON.String), &a); err != nil {
			return nil, fmt.Errorf("failed to decode analysis snapshot for trade %s: %w", t.ID, err)
		}
		t.Analysis = &a
	}
	return &t, nil
}

func collectTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// Repository implements ports.AnalysisRepository using SQLite.
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
		dbPath = "./data/trading_history.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally, but the Go driver benefits from a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS analysis_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TIMESTAMP NOT NULL,
		candle_time TIMESTAMP NOT NULL,
		symbol TEXT NOT NULL,
		price REAL NOT NULL,
		ma REAL NOT NULL,
		long_ma REAL NOT NULL,
		rsi REAL NOT NULL,
		atr REAL NOT NULL,
		macd REAL NOT NULL,
		macd_signal REAL NOT NULL,
		macd_hist REAL NOT NULL,
		macd_cross TEXT NOT NULL,
		fib_high REAL NOT NULL,
		fib_low REAL NOT NULL,
		fib_levels TEXT NOT NULL,
		trend TEXT NOT NULL,
		fib_hit INTEGER NOT NULL,
		fib_hit_ratio REAL NOT NULL,
		recommendation TEXT NOT NULL,
		reason TEXT NOT NULL,
		confidence REAL NOT NULL,
		approved INTEGER NOT NULL,
		decision_reason TEXT NOT NULL,
		decision_rule TEXT NOT NULL,
		advisor TEXT NULL,
		raw_response TEXT NULL,
		plan_quantity REAL NULL,
		plan_entry_price REAL NULL,
		plan_stop_loss REAL NULL,
		plan_take_profit REAL NULL,
		plan_risk_amount REAL NULL,
		plan_risk_reward REAL NULL,
		plan_degenerate INTEGER NULL,
		plan_note TEXT NULL
	);

	CREATE TABLE IF NOT EXISTS trading_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		analysis_id INTEGER NULL, -- No foreign key constraint for simplicity here
		timestamp TIMESTAMP NOT NULL,
		order_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		avg_price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		risk_amount REAL NOT NULL,
		risk_reward REAL NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analysis_symbol_timestamp ON analysis_data (symbol, timestamp);
	CREATE INDEX IF NOT EXISTS idx_trading_history_timestamp ON trading_history (timestamp);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return r.addMissingColumns(ctx, "analysis_data", planColumns)
}

// planColumns were added to analysis_data after the first release.
var planColumns = []struct{ name, decl string }{
	{"plan_quantity", "REAL NULL"},
	{"plan_entry_price", "REAL NULL"},
	{"plan_stop_loss", "REAL NULL"},
	{"plan_take_profit", "REAL NULL"},
	{"plan_risk_amount", "REAL NULL"},
	{"plan_risk_reward", "REAL NULL"},
	{"plan_degenerate", "INTEGER NULL"},
	{"plan_note", "TEXT NULL"},
}

// addMissingColumns brings databases created by an older schema up to date.
func (r *Repository) addMissingColumns(ctx context.Context, table string, columns []struct{ name, decl string }) error {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan columns of %s: %w", table, err)
		}
		existing[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating columns of %s: %w", table, err)
	}

	for _, c := range columns {
		if existing[c.name] {
			continue
		}
		if _, err := r.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, c.name, c.decl)); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", table, c.name, err)
		}
		r.logger.Info(ctx, "Added missing column", map[string]interface{}{"table": table, "column": c.name})
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

// fibLevel is the stored form of one retracement level; JSON objects cannot have float keys.
type fibLevel struct {
	Ratio float64 `json:"ratio"`
	Price float64 `json:"price"`
}

func encodeFibLevels(levels map[float64]float64) (string, error) {
	out := make([]fibLevel, 0, len(levels))
	for r, p := range levels {
		out = append(out, fibLevel{Ratio: r, Price: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ratio < out[j].Ratio })
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeFibLevels(s string) (map[float64]float64, error) {
	var in []fibLevel
	if err := json.Unmarshal([]byte(s), &in); err != nil {
		return nil, err
	}
	levels := make(map[float64]float64, len(in))
	for _, l := range in {
		levels[l.Ratio] = l.Price
	}
	return levels, nil
}

// RecordCycle stores the analysis (with its plan, if any) and, when an order was filled,
// the trade in one transaction.
func (r *Repository) RecordCycle(ctx context.Context, result *domain.CycleResult) error {
	if result == nil {
		return fmt.Errorf("nil cycle result: %w", ports.ErrInvalidRequest)
	}
	levels, err := encodeFibLevels(result.Snapshot.FibLevels)
	if err != nil {
		return fmt.Errorf("failed to encode fib levels: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", ports.ErrQueryFailed, err)
	}
	defer tx.Rollback() // No-op after commit

	const analysisQuery = `
	INSERT INTO analysis_data (timestamp, candle_time, symbol, price, ma, long_ma, rsi, atr,
	    macd, macd_signal, macd_hist, macd_cross, fib_high, fib_low, fib_levels,
	    trend, fib_hit, fib_hit_ratio, recommendation, reason, confidence,
	    approved, decision_reason, decision_rule, advisor, raw_response,
	    plan_quantity, plan_entry_price, plan_stop_loss, plan_take_profit, plan_risk_amount,
	    plan_risk_reward, plan_degenerate, plan_note)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
	    ?, ?, ?, ?, ?, ?, ?, ?)`

	snap := result.Snapshot
	rec := result.Recommendation
	var advisor, raw sql.NullString
	if result.Advisory != nil {
		advisor = sql.NullString{String: result.Advisory.Provider, Valid: true}
		raw = sql.NullString{String: result.Advisory.Text, Valid: true}
	}
	var planQty, planEntry, planStop, planTarget, planRisk, planRR sql.NullFloat64
	var planDegenerate sql.NullBool
	var planNote sql.NullString
	if p := result.Plan; p != nil {
		planQty = sql.NullFloat64{Float64: p.Quantity, Valid: true}
		planEntry = sql.NullFloat64{Float64: p.EntryPrice, Valid: true}
		planStop = sql.NullFloat64{Float64: p.StopLossPrice, Valid: true}
		planTarget = sql.NullFloat64{Float64: p.TakeProfitPrice, Valid: true}
		planRisk = sql.NullFloat64{Float64: p.RiskAmount, Valid: true}
		planRR = sql.NullFloat64{Float64: p.RiskReward, Valid: true}
		planDegenerate = sql.NullBool{Bool: p.Degenerate, Valid: true}
		planNote = sql.NullString{String: p.Note, Valid: true}
	}

	res, err := tx.ExecContext(ctx, analysisQuery,
		result.StartedAt.UTC(), snap.Timestamp.UTC(), result.Symbol, snap.CurrentPrice, snap.MA, snap.LongMA, snap.RSI, snap.ATR,
		snap.MACDValue, snap.MACDSignalLine, snap.MACDHistogram, string(snap.MACDCross), snap.FibHigh, snap.FibLow, levels,
		string(rec.Trend), rec.FibHit, rec.FibHitRatio, string(rec.Action), rec.Rationale, rec.Confidence,
		result.Decision.Approved, result.Decision.Reason, result.Decision.Rule, advisor, raw,
		planQty, planEntry, planStop, planTarget, planRisk, planRR, planDegenerate, planNote)
	if err != nil {
		return fmt.Errorf("failed to insert analysis for symbol %s: %w: %w", result.Symbol, ports.ErrQueryFailed, err)
	}
	analysisID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID for analysis %s: %w", result.Symbol, err)
	}

	if result.Fill != nil && result.Plan != nil {
		const tradeQuery = `
		INSERT INTO trading_history (analysis_id, timestamp, order_id, symbol, side, quantity, entry_price,
		    avg_price, stop_loss, take_profit, risk_amount, risk_reward, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		ts := result.Fill.Timestamp
		if ts.IsZero() {
			ts = result.StartedAt
		}
		_, err = tx.ExecContext(ctx, tradeQuery,
			analysisID, ts.UTC(), result.Fill.OrderID, result.Symbol, string(result.Plan.Action), result.Fill.ExecutedQuantity,
			result.Plan.EntryPrice, result.Fill.AveragePrice, result.Plan.StopLossPrice, result.Plan.TakeProfitPrice,
			result.Plan.RiskAmount, result.Plan.RiskReward, result.Fill.Status)
		if err != nil {
			return fmt.Errorf("failed to insert trade for symbol %s: %w: %w", result.Symbol, ports.ErrQueryFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cycle record: %w: %w", ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Cycle recorded", map[string]interface{}{"analysisID": analysisID, "symbol": result.Symbol, "action": rec.Action})
	return nil
}

const analysisColumns = `
	SELECT id, timestamp, symbol, price, ma, long_ma, rsi, atr, macd, macd_signal, macd_hist, macd_cross,
	       fib_high, fib_low, fib_levels, candle_time, trend, fib_hit, fib_hit_ratio, recommendation, reason, confidence,
	       approved, decision_reason, decision_rule,
	       plan_quantity, plan_entry_price, plan_stop_loss, plan_take_profit, plan_risk_amount,
	       plan_risk_reward, plan_degenerate, plan_note
	FROM analysis_data`

// RecentAnalyses returns the latest analyses for a symbol, newest first.
func (r *Repository) RecentAnalyses(ctx context.Context, symbol string, limit int) ([]*ports.AnalysisRecord, error) {
	query := analysisColumns + ` WHERE symbol = ? ORDER BY timestamp DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	records := make([]*ports.AnalysisRecord, 0)
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis during RecentAnalyses: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis rows: %w", err)
	}
	return records, nil
}

// FindAnalysisByID retrieves one analysis. Returns nil, nil if not found.
func (r *Repository) FindAnalysisByID(ctx context.Context, id int64) (*ports.AnalysisRecord, error) {
	row := r.db.QueryRowContext(ctx, analysisColumns+` WHERE id = ?`, id)
	rec, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Analysis not found by ID", map[string]interface{}{"analysisID": id})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query analysis by ID %d: %w", id, err)
	}
	return rec, nil
}

// TradingStatistics aggregates trades recorded since the given time.
func (r *Repository) TradingStatistics(ctx context.Context, since time.Time) (*ports.TradingStatistics, error) {
	const query = `
	SELECT COUNT(*),
	       COALESCE(SUM(CASE WHEN side = 'BUY' THEN 1 ELSE 0 END), 0),
	       COALESCE(SUM(CASE WHEN side = 'SELL' THEN 1 ELSE 0 END), 0),
	       COALESCE(SUM(quantity), 0),
	       COALESCE(AVG(risk_amount), 0)
	FROM trading_history
	WHERE timestamp >= ?`

	stats := &ports.TradingStatistics{}
	err := r.db.QueryRowContext(ctx, query, since.UTC()).Scan(
		&stats.TotalTrades, &stats.BuyTrades, &stats.SellTrades, &stats.TotalQuantity, &stats.AverageRiskAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate trading statistics: %w: %w", ports.ErrQueryFailed, err)
	}
	return stats, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanAnalysis scans a row into an AnalysisRecord.
func scanAnalysis(s scanner) (*ports.AnalysisRecord, error) {
	a := &ports.AnalysisRecord{}
	var macdCross, levels, trend, action string
	var planQty, planEntry, planStop, planTarget, planRisk, planRR sql.NullFloat64
	var planDegenerate sql.NullBool
	var planNote sql.NullString
	err := s.Scan(
		&a.ID, &a.Timestamp, &a.Symbol, &a.Snapshot.CurrentPrice, &a.Snapshot.MA, &a.Snapshot.LongMA,
		&a.Snapshot.RSI, &a.Snapshot.ATR, &a.Snapshot.MACDValue, &a.Snapshot.MACDSignalLine, &a.Snapshot.MACDHistogram,
		&macdCross, &a.Snapshot.FibHigh, &a.Snapshot.FibLow, &levels, &a.Snapshot.Timestamp, &trend,
		&a.Recommendation.FibHit, &a.Recommendation.FibHitRatio, &action, &a.Recommendation.Rationale,
		&a.Recommendation.Confidence, &a.Decision.Approved, &a.Decision.Reason, &a.Decision.Rule,
		&planQty, &planEntry, &planStop, &planTarget, &planRisk, &planRR, &planDegenerate, &planNote)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	a.Snapshot.Symbol = a.Symbol
	a.Snapshot.MACDCross = domain.MACDCross(macdCross)
	a.Recommendation.Trend = domain.Trend(trend)
	a.Recommendation.Action = domain.ParseAction(action)
	if planQty.Valid {
		a.Plan = &domain.PositionPlan{
			Action:          a.Recommendation.Action,
			Quantity:        planQty.Float64,
			EntryPrice:      planEntry.Float64,
			StopLossPrice:   planStop.Float64,
			TakeProfitPrice: planTarget.Float64,
			RiskAmount:      planRisk.Float64,
			RiskReward:      planRR.Float64,
			Degenerate:      planDegenerate.Bool,
			Note:            planNote.String,
		}
	}
	if a.Snapshot.FibLevels, err = decodeFibLevels(levels); err != nil {
		return nil, fmt.Errorf("failed to decode fib levels: %w", err)
	}
	return a, nil
}

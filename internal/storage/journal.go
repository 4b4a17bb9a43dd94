package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"gopkg.in/natefinch/lumberjack.v2"

	"epicenter/internal/domain"
)

// Journal persists executed trades and run summaries. Primary store is a
// sqlite database in WAL mode; every trade is also mirrored as one JSON
// line to a size-rotated file so runs can be tailed and grepped without
// opening the database.
type Journal struct {
	db         *sql.DB
	insertStmt *sql.Stmt
	stream     *lumberjack.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          INTEGER NOT NULL,
	symbol      TEXT    NOT NULL,
	side        TEXT    NOT NULL,
	qty         TEXT    NOT NULL,
	price       TEXT    NOT NULL,
	order_id    INTEGER NOT NULL,
	dry_run     INTEGER NOT NULL,
	pnl_est     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trades(symbol, ts);

CREATE TABLE IF NOT EXISTS run_summaries (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	valuation   TEXT    NOT NULL,
	detail      TEXT    NOT NULL
);
`

// NewJournal opens (creating if needed) the journal under dir.
func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "journal.db"))
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	// Single writer; WAL keeps concurrent readers (sqlite3 CLI, dashboards)
	// from blocking it.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO trades
		(ts, symbol, side, qty, price, order_id, dry_run, pnl_est)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("journal prepare: %w", err)
	}

	return &Journal{
		db:         db,
		insertStmt: stmt,
		stream: &lumberjack.Logger{
			Filename:   filepath.Join(dir, "trades.jsonl"),
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		},
	}, nil
}

// tradeLine is the JSONL mirror of one trades row.
type tradeLine struct {
	TS      string `json:"ts"`
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	Qty     string `json:"qty"`
	Price   string `json:"price"`
	OrderID int64  `json:"order_id"`
	DryRun  bool   `json:"dry_run"`
	PnLEst  string `json:"pnl_est"`
}

// RecordTrade appends one executed trade. The database row is
// authoritative; a mirror write failure is logged and swallowed.
func (j *Journal) RecordTrade(res *domain.OrderResult) error {
	ts := res.UnixMill
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	_, err := j.insertStmt.Exec(ts, res.Symbol, string(res.Side),
		res.Qty.WireString(), res.Price.String(),
		res.OrderID, res.DryRun, res.PnLEst.String())
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}

	line, err := json.Marshal(tradeLine{
		TS:      time.UnixMilli(ts).UTC().Format(time.RFC3339Nano),
		Symbol:  res.Symbol,
		Side:    string(res.Side),
		Qty:     res.Qty.WireString(),
		Price:   res.Price.String(),
		OrderID: res.OrderID,
		DryRun:  res.DryRun,
		PnLEst:  res.PnLEst.String(),
	})
	if err == nil {
		_, err = j.stream.Write(append(line, '\n'))
	}
	if err != nil {
		slog.Warn("trade mirror write failed", slog.Any("error", err))
	}
	return nil
}

// SymbolTally is the per-symbol slice of a run summary.
type SymbolTally struct {
	Trades  int    `json:"trades"`
	Wins    int    `json:"wins"`
	Losses  int    `json:"losses"`
	Retired string `json:"retired,omitempty"`
}

// WriteSummary records the end-of-run result.
func (j *Journal) WriteSummary(startedAt, finishedAt time.Time, valuation string, tallies map[string]SymbolTally) error {
	detail, err := json.Marshal(tallies)
	if err != nil {
		return fmt.Errorf("summary marshal: %w", err)
	}

	_, err = j.db.Exec(`INSERT INTO run_summaries
		(started_at, finished_at, valuation, detail) VALUES (?, ?, ?, ?)`,
		startedAt.UnixMilli(), finishedAt.UnixMilli(), valuation, string(detail))
	if err != nil {
		return fmt.Errorf("summary insert: %w", err)
	}
	return nil
}

// TradeCount reports how many trades are journaled for a symbol. Empty
// symbol counts everything.
func (j *Journal) TradeCount(symbol string) (int, error) {
	var n int
	var err error
	if symbol == "" {
		err = j.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&n)
	} else {
		err = j.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE symbol = ?`, symbol).Scan(&n)
	}
	return n, err
}

// Close flushes and releases the journal.
func (j *Journal) Close() error {
	j.insertStmt.Close()
	j.stream.Close()
	return j.db.Close()
}

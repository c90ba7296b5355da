package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"omnidata/logger"
)

// Recorder appends one row per priced asset to a relational history table.
// It is constructed once at process start and passed to whoever needs it;
// there is no ambient singleton.
type Recorder struct {
	db  *sql.DB
	log *logger.Log
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS price_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol VARCHAR(20),
	price REAL,
	source VARCHAR(20),
	recorded_at DATETIME
)`

// NewRecorder opens (or creates) the sqlite database at path and ensures the
// history table exists.
func NewRecorder(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	log := logger.GetLogger()
	log.WithComponent("history").WithFields(logger.Fields{"path": path}).Info("history recorder ready")

	return &Recorder{db: db, log: log}, nil
}

// Record appends one price observation. source tags where the price came
// from ("live" or "simulated").
func (r *Recorder) Record(symbol string, price float64, source string, at time.Time) error {
	_, err := r.db.Exec(
		"INSERT INTO price_history (symbol, price, source, recorded_at) VALUES (?, ?, ?, ?)",
		symbol, price, source, at,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}
	return nil
}

// Total returns the number of history rows recorded so far.
func (r *Recorder) Total() (int64, error) {
	var n int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM price_history").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history rows: %w", err)
	}
	return n, nil
}

// Close releases the underlying database connection.
func (r *Recorder) Close() error {
	return r.db.Close()
}

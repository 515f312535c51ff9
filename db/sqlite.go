// Package db keeps the prediction history and the trainer's run log in SQLite.
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"mediassist/ml"
	"mediassist/predict"
	"mediassist/report"
)

const schema = `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        prediction_id TEXT NOT NULL,
        disease TEXT NOT NULL,
        predicted_label INTEGER NOT NULL,
        probability REAL NOT NULL,
        risk_level TEXT NOT NULL,
        latency_ns INTEGER DEFAULT 0,
        timestamp DATETIME NOT NULL,
        UNIQUE(prediction_id)
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_disease ON predictions(disease, timestamp);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        disease TEXT NOT NULL,
        model_name VARCHAR(50),
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1_score REAL,
        trained_at DATETIME,
        data_points INTEGER
    );
    `

// DB is a handle on the history database. It is safe for concurrent use.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY under load
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	return &DB{conn: conn}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

// Record appends one prediction to the history. It implements predict.Recorder.
func (d *DB) Record(ctx context.Context, event predict.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := d.conn.ExecContext(ctx, `
        INSERT INTO predictions (
            prediction_id, disease, predicted_label, probability, risk_level, latency_ns, timestamp
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, string(event.Disease), event.Label, event.Probability,
		string(event.RiskLevel), int64(event.Latency), event.CreatedAt)
	return errors.Wrap(err, "insert prediction")
}

// Recent returns up to limit predictions, newest first. An empty disease
// matches every disease.
func (d *DB) Recent(ctx context.Context, disease ml.Disease, limit int) ([]predict.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.QueryContext(ctx, `
        SELECT prediction_id, disease, predicted_label, probability, risk_level, latency_ns, timestamp
        FROM predictions
        WHERE ? = '' OR disease = ?
        ORDER BY timestamp DESC, id DESC
        LIMIT ?`, string(disease), string(disease), limit)
	if err != nil {
		return nil, errors.Wrap(err, "query predictions")
	}
	defer rows.Close()

	events := make([]predict.Event, 0)
	for rows.Next() {
		var (
			e       predict.Event
			name    string
			level   string
			latency int64
		)
		if err := rows.Scan(&e.ID, &name, &e.Label, &e.Probability, &level, &latency, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan prediction")
		}
		e.Disease = ml.Disease(name)
		e.RiskLevel = report.RiskLevel(level)
		e.Latency = time.Duration(latency)
		events = append(events, e)
	}
	return events, errors.Wrap(rows.Err(), "iterate predictions")
}

// Counts returns the number of recorded predictions per disease.
func (d *DB) Counts(ctx context.Context) (map[ml.Disease]int, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT disease, COUNT(*) FROM predictions GROUP BY disease`)
	if err != nil {
		return nil, errors.Wrap(err, "count predictions")
	}
	defer rows.Close()

	counts := make(map[ml.Disease]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, errors.Wrap(err, "scan count")
		}
		counts[ml.Disease(name)] = n
	}
	return counts, errors.Wrap(rows.Err(), "iterate counts")
}

type TrainingLog struct {
	Disease    ml.Disease `json:"disease"`
	ModelName  string     `json:"model_name"`
	Metrics    ml.Metrics `json:"metrics"`
	TrainedAt  time.Time  `json:"trained_at"`
	DataPoints int        `json:"data_points"`
}

func (d *DB) SaveTrainingLog(ctx context.Context, log TrainingLog) error {
	_, err := d.conn.ExecContext(ctx, `
        INSERT INTO training_log (
            disease, model_name, accuracy, precision, recall, f1_score, trained_at, data_points
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(log.Disease), log.ModelName, log.Metrics.Accuracy, log.Metrics.Precision,
		log.Metrics.Recall, log.Metrics.F1, log.TrainedAt, log.DataPoints)
	return errors.Wrap(err, "insert training log")
}

func (d *DB) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	rows, err := d.conn.QueryContext(ctx, `
        SELECT disease, model_name, accuracy, precision, recall, f1_score, trained_at, data_points
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, errors.Wrap(err, "query training log")
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var name string
		if err := rows.Scan(&name, &log.ModelName, &log.Metrics.Accuracy, &log.Metrics.Precision,
			&log.Metrics.Recall, &log.Metrics.F1, &log.TrainedAt, &log.DataPoints); err != nil {
			return nil, errors.Wrap(err, "scan training log")
		}
		log.Disease = ml.Disease(name)
		logs = append(logs, log)
	}
	return logs, errors.Wrap(rows.Err(), "iterate training log")
}

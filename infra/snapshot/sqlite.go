package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	coresnap "github.com/kilianp07/powermux/core/snapshot"
)

// SQLiteStore persists snapshots to a SQLite database. Assignments are also
// stored row by row so per-connector history can be queried in SQL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS snapshots (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        seq INTEGER,
        kind TEXT,
        ts INTEGER,
        record TEXT
    );
    CREATE TABLE IF NOT EXISTS assignments (
        snapshot_id INTEGER REFERENCES snapshots(id),
        connector TEXT,
        module INTEGER
    );
    CREATE INDEX IF NOT EXISTS assignments_connector ON assignments(connector);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Publish stores the snapshot and its assignment rows in one transaction.
func (s *SQLiteStore) Publish(ctx context.Context, snap coresnap.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (seq, kind, ts, record) VALUES (?, ?, ?, ?)`,
		int64(snap.Seq), snap.Kind, snap.Time.UnixNano(), string(b))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for name, mods := range snap.Assignments {
		for _, m := range mods {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO assignments (snapshot_id, connector, module) VALUES (?, ?, ?)`,
				id, name, m); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Query returns snapshots matching q, oldest first.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]coresnap.Snapshot, error) {
	var args []any
	query := `SELECT record FROM snapshots WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, q.Kind)
	}
	if q.Connector != "" {
		query += ` AND id IN (SELECT snapshot_id FROM assignments WHERE connector = ?)`
		args = append(args, q.Connector)
	}
	query += ` ORDER BY id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []coresnap.Snapshot
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var snap coresnap.Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, err
		}
		res = append(res, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return q.limit(res), nil
}

// ModuleHistory returns, oldest first, the sequence numbers of the snapshots
// in which module m was held by the named connector.
func (s *SQLiteStore) ModuleHistory(ctx context.Context, connector string, m int) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT s.seq FROM snapshots s
        JOIN assignments a ON a.snapshot_id = s.id
        WHERE a.connector = ? AND a.module = ? ORDER BY s.id`, connector, m)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []uint64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		out = append(out, uint64(seq))
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Open creates the history store for backend "jsonl" or "sqlite".
func Open(backend, path string, maxSizeMB, maxBackups, maxAgeDays int) (HistoryStore, error) {
	switch backend {
	case "", "jsonl":
		s, err := NewRotatingJSONLStore(path, maxSizeMB, maxBackups, maxAgeDays)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", backend)
	}
}

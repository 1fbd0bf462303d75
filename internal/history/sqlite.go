package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	file TEXT NOT NULL,
	operation TEXT NOT NULL,
	status TEXT NOT NULL,
	category TEXT,
	devices INTEGER NOT NULL DEFAULT 0,
	annotations INTEGER NOT NULL DEFAULT 0,
	wiring INTEGER NOT NULL DEFAULT 0,
	total_entities INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
`

// SQLiteStore keeps history in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway store.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storeError("open sqlite "+path, err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, storeError("configure sqlite", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, storeError("migrate sqlite", err)
	}

	logger.Info("analysis history opened", zap.String("backend", "sqlite"), zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Record inserts rec, assigning an ID and timestamp when missing.
func (s *SQLiteStore) Record(ctx context.Context, rec *Record) error {
	prepare(rec)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, file, operation, status, category, devices, annotations,
			wiring, total_entities, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.File, rec.Operation, rec.Status, rec.Category, rec.Devices, rec.Annotations,
		rec.Wiring, rec.TotalEntities, rec.DurationMS, rec.Error, rec.CreatedAt.UnixMilli())
	if err != nil {
		return storeError("insert record", err)
	}
	return nil
}

// List returns up to limit records, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file, operation, status, category, devices, annotations,
			wiring, total_entities, duration_ms, error, created_at
		FROM analyses
		ORDER BY created_at DESC, id
		LIMIT ?
	`, normalizeLimit(limit))
	if err != nil {
		return nil, storeError("query records", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var rec Record
		var category, errText sql.NullString
		var created int64
		if err := rows.Scan(&rec.ID, &rec.File, &rec.Operation, &rec.Status, &category,
			&rec.Devices, &rec.Annotations, &rec.Wiring, &rec.TotalEntities,
			&rec.DurationMS, &errText, &created); err != nil {
			return nil, storeError("scan record", err)
		}
		rec.Category = category.String
		rec.Error = errText.String
		rec.CreatedAt = time.UnixMilli(created)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate records", err)
	}
	return out, nil
}

// Prune deletes records older than cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, storeError("prune records", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned analysis history", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

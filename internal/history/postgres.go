package history

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	file TEXT NOT NULL,
	operation TEXT NOT NULL,
	status TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	devices INTEGER NOT NULL DEFAULT 0,
	annotations INTEGER NOT NULL DEFAULT 0,
	wiring INTEGER NOT NULL DEFAULT 0,
	total_entities INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
`

// PostgresStore keeps history in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// OpenPostgres connects to dsn and creates the table when missing.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, storeError("parse postgres dsn", err)
	}
	pc.MaxConns = 10
	pc.MinConns = 1
	pc.MaxConnLifetime = time.Hour
	pc.MaxConnIdleTime = 30 * time.Minute
	pc.ConnConfig.RuntimeParams["application_name"] = "cad-analyzer"

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, storeError("connect postgres", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, storeError("ping postgres", err)
	}
	if _, err := pool.Exec(dialCtx, postgresSchema); err != nil {
		pool.Close()
		return nil, storeError("migrate postgres", err)
	}

	logger.Info("analysis history opened", zap.String("backend", "postgres"))
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Record inserts rec, assigning an ID and timestamp when missing.
func (s *PostgresStore) Record(ctx context.Context, rec *Record) error {
	prepare(rec)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analyses (id, file, operation, status, category, devices, annotations,
			wiring, total_entities, duration_ms, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rec.ID, rec.File, rec.Operation, rec.Status, rec.Category, rec.Devices, rec.Annotations,
		rec.Wiring, rec.TotalEntities, rec.DurationMS, rec.Error, rec.CreatedAt)
	if err != nil {
		return storeError("insert record", err)
	}
	return nil
}

// List returns up to limit records, newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, file, operation, status, category, devices, annotations,
			wiring, total_entities, duration_ms, error, created_at
		FROM analyses
		ORDER BY created_at DESC, id
		LIMIT $1
	`, normalizeLimit(limit))
	if err != nil {
		return nil, storeError("query records", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.File, &rec.Operation, &rec.Status, &rec.Category,
			&rec.Devices, &rec.Annotations, &rec.Wiring, &rec.TotalEntities,
			&rec.DurationMS, &rec.Error, &rec.CreatedAt)
		return rec, err
	})
	if err != nil {
		return nil, storeError("scan records", err)
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

// Prune deletes records older than cutoff.
func (s *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM analyses WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, storeError("prune records", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("pruned analysis history", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
	return tag.RowsAffected(), nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

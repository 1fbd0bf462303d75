// Package history keeps a record of every processed drawing so operators
// can see what was analyzed and when. Records older than the retention
// window are pruned.
package history

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/cad-analyzer-mcp/internal/common"
)

// Record statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Record describes one processed request.
type Record struct {
	ID            string    `json:"id"`
	File          string    `json:"file"`
	Operation     string    `json:"operation"`
	Status        string    `json:"status"`
	Category      string    `json:"category,omitempty"`
	Devices       int       `json:"devices"`
	Annotations   int       `json:"annotations"`
	Wiring        int       `json:"wiring"`
	TotalEntities int       `json:"total_entities"`
	DurationMS    int64     `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store persists records.
type Store interface {
	Record(ctx context.Context, rec *Record) error
	// List returns the newest records first.
	List(ctx context.Context, limit int) ([]Record, error)
	// Prune deletes records created before cutoff and returns how many went.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// DefaultListLimit applies when List is called with a non-positive limit.
const DefaultListLimit = 50

// Open selects a backend from cfg.DSN: empty disables history,
// postgres:// and postgresql:// URLs use PostgreSQL, anything else is a
// SQLite file path with an optional "sqlite:" prefix.
func Open(ctx context.Context, cfg common.HistoryConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := strings.TrimSpace(cfg.DSN)
	switch {
	case dsn == "":
		logger.Info("analysis history disabled")
		return Nop{}, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn, logger)
	default:
		return OpenSQLite(strings.TrimPrefix(dsn, "sqlite:"), logger)
	}
}

// Cutoff returns the oldest creation time kept for a retention of days.
func Cutoff(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

// prepare fills the ID and timestamp when the caller left them empty.
func prepare(rec *Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func storeError(msg string, err error) error {
	return common.NewAppError("HISTORY_ERROR", msg, err)
}

// Nop discards records. It is used when no DSN is configured.
type Nop struct{}

func (Nop) Record(context.Context, *Record) error { return nil }
func (Nop) List(context.Context, int) ([]Record, error) { return []Record{}, nil }
func (Nop) Prune(context.Context, time.Time) (int64, error) { return 0, nil }
func (Nop) Close() error { return nil }

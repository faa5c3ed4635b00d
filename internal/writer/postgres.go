package writer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
)

// DB is the subset of *pgxpool.Pool used by PostgresSink.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const (
	insertAggregateSQL = `
		INSERT INTO aggregates (ticker, granularity, seq, average, max, min)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ticker, granularity, seq) DO NOTHING`

	trimAggregatesSQL = `
		DELETE FROM aggregates
		WHERE ticker = $1 AND granularity = $2 AND seq NOT IN (
			SELECT seq FROM aggregates
			WHERE ticker = $1 AND granularity = $2
			ORDER BY seq DESC
			LIMIT $3
		)`

	loadAggregatesSQL = `
		SELECT granularity, seq, average, max, min
		FROM aggregates
		WHERE ticker = $1
		ORDER BY granularity, seq`
)

// PostgresSink stores records in the aggregates table. Inserts are
// idempotent on (ticker, granularity, seq), so retried batches are safe.
type PostgresSink struct {
	db     DB
	logger *slog.Logger
}

// NewPostgresSink creates a PostgresSink. The schema must already exist
// (see database.Migrate).
func NewPostgresSink(db DB, logger *slog.Logger) *PostgresSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSink{db: db, logger: logger}
}

// Append inserts recs using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *PostgresSink) Append(ctx context.Context, ticker string, recs []model.AggregateRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(insertAggregateSQL, ticker, r.Granularity.String(), r.Seq, r.Average, r.Max, r.Min)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	conflicts := 0
	for range recs {
		ct, err := results.Exec()
		if err != nil {
			return fmt.Errorf("insert aggregates for %s: %w", ticker, err)
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	if conflicts > 0 {
		s.logger.Debug("aggregate rows already present", "ticker", ticker, "conflicts", conflicts)
	}
	return nil
}

// Trim deletes all but the newest keep rows of (ticker, g).
func (s *PostgresSink) Trim(ctx context.Context, ticker string, g model.Granularity, keep int) error {
	if keep < 0 {
		keep = 0
	}
	ct, err := s.db.Exec(ctx, trimAggregatesSQL, ticker, g.String(), keep)
	if err != nil {
		return fmt.Errorf("trim %s %s: %w", ticker, g, err)
	}
	if n := ct.RowsAffected(); n > 0 {
		s.logger.Debug("trimmed aggregate rows", "ticker", ticker, "granularity", g.String(), "removed", n)
	}
	return nil
}

// Load returns every row of ticker ordered by granularity then seq.
func (s *PostgresSink) Load(ctx context.Context, ticker string) ([]model.AggregateRecord, error) {
	rows, err := s.db.Query(ctx, loadAggregatesSQL, ticker)
	if err != nil {
		return nil, fmt.Errorf("query aggregates for %s: %w", ticker, err)
	}
	defer rows.Close()

	var recs []model.AggregateRecord
	for rows.Next() {
		var (
			name string
			rec  model.AggregateRecord
		)
		if err := rows.Scan(&name, &rec.Seq, &rec.Average, &rec.Max, &rec.Min); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		g, err := model.ParseGranularity(name)
		if err != nil {
			s.logger.Warn("skipping aggregate row", "ticker", ticker, "granularity", name)
			continue
		}
		rec.Granularity = g
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}
	return recs, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresSink) Close() error {
	return nil
}

package store

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool abstracts the pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const createPlansTable = `
CREATE TABLE IF NOT EXISTS ensemble_plans (
    run_id         TEXT    NOT NULL,
    idx            INTEGER NOT NULL,
    contiguous     BOOLEAN NOT NULL,
    rep_seats      INTEGER NOT NULL,
    efficiency_gap DOUBLE PRECISION,
    assignment     JSONB   NOT NULL,
    meta           JSONB   NOT NULL,
    PRIMARY KEY (run_id, idx)
);`

// PostgresStore persists plan records in a shared database with the same
// append-only contract as the file store. Inserts are synchronous; each
// record is committed before Append returns.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgresStore verifies the connection and ensures the plans table
// exists.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createPlansTable); err != nil {
		return nil, fmt.Errorf("failed to ensure ensemble_plans table: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("pgstore"),
	}, nil
}

// AppendContext inserts one record. NaN efficiency gaps are stored as NULL,
// matching the NDJSON representation.
func (s *PostgresStore) AppendContext(ctx context.Context, rec PlanRecord) error {
	assignment, err := json.Marshal(rec.Assignment)
	if err != nil {
		return fmt.Errorf("failed to marshal assignment for record %d: %w", rec.Index, err)
	}
	meta, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal meta for record %d: %w", rec.Index, err)
	}

	var eg *float64
	if !rec.EfficiencyGap.IsNaN() {
		v := float64(rec.EfficiencyGap)
		eg = &v
	}

	_, err = s.pool.Exec(ctx, `
        INSERT INTO ensemble_plans (run_id, idx, contiguous, rep_seats, efficiency_gap, assignment, meta)
        VALUES ($1, $2, $3, $4, $5, $6, $7);`,
		rec.Meta.RunID, rec.Index, rec.Contiguous, rec.RepSeats, eg, assignment, meta,
	)
	if err != nil {
		return fmt.Errorf("failed to insert plan record %d: %w", rec.Index, err)
	}
	return nil
}

// Append satisfies PlanStore using a background context.
func (s *PostgresStore) Append(rec PlanRecord) error {
	return s.AppendContext(context.Background(), rec)
}

// Close is a no-op; the pool is owned and closed by the caller.
func (s *PostgresStore) Close() error { return nil }

// ReadRun loads every record of one run in index order.
func (s *PostgresStore) ReadRun(ctx context.Context, runID string) ([]PlanRecord, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT idx, contiguous, rep_seats, efficiency_gap, assignment, meta
        FROM ensemble_plans
        WHERE run_id = $1
        ORDER BY idx ASC;`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ensemble plans: %w", err)
	}
	defer rows.Close()

	var records []PlanRecord
	for rows.Next() {
		var rec PlanRecord
		var eg *float64
		var assignment, meta []byte
		if err := rows.Scan(&rec.Index, &rec.Contiguous, &rec.RepSeats, &eg, &assignment, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan plan record row: %w", err)
		}
		if eg == nil {
			rec.EfficiencyGap = JSONFloat(math.NaN())
		} else {
			rec.EfficiencyGap = JSONFloat(*eg)
		}
		if err := json.Unmarshal(assignment, &rec.Assignment); err != nil {
			return nil, fmt.Errorf("failed to decode assignment for record %d: %w", rec.Index, err)
		}
		if err := json.Unmarshal(meta, &rec.Meta); err != nil {
			return nil, fmt.Errorf("failed to decode meta for record %d: %w", rec.Index, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

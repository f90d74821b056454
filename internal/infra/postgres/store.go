// Package postgres writes cleaned records into a Postgres database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/smart-financial-parser/internal/domain"
	"github.com/dvloznov/smart-financial-parser/internal/logger"
)

// ErrNoDatabaseURL is returned when the Postgres sink is used without a connection string.
var ErrNoDatabaseURL = errors.New("postgres: DATABASE_URL is not set")

const cleanedTransactionsTable = "cleaned_transactions"

// Schema creates the sink table when it does not exist yet.
const Schema = `
CREATE TABLE IF NOT EXISTS cleaned_transactions (
	run_id             TEXT        NOT NULL,
	row_index          INTEGER     NOT NULL,
	transaction_date   DATE,
	merchant           TEXT,
	canonical_merchant TEXT,
	match_score        INTEGER     NOT NULL DEFAULT 0,
	industry           TEXT        NOT NULL,
	amount             NUMERIC,
	currency           TEXT,
	amount_usd         NUMERIC,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, row_index)
)`

var columns = []string{
	"run_id",
	"row_index",
	"transaction_date",
	"merchant",
	"canonical_merchant",
	"match_score",
	"industry",
	"amount",
	"currency",
	"amount_usd",
	"created_at",
}

// Store is a pgx connection pool bound to the cleaned_transactions table.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore connects to databaseURL and verifies the connection.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, ErrNoDatabaseURL
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("NewStore: parse database URL: %w", err)
	}
	poolConfig.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("NewStore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("NewStore: ping: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// EnsureSchema creates the sink table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}
	return nil
}

// InsertRecords replaces the rows of runID with records in one transaction,
// so retrying a run does not duplicate rows.
func (s *Store) InsertRecords(ctx context.Context, runID string, records []*domain.Record) error {
	log := logger.FromContext(ctx)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("InsertRecords: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM cleaned_transactions WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("InsertRecords: clear previous rows: %w", err)
	}

	now := s.now()
	n, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{cleanedTransactionsTable},
		columns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return rowValues(runID, records[i], now), nil
		}),
	)
	if err != nil {
		return fmt.Errorf("InsertRecords: copy rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("InsertRecords: commit: %w", err)
	}

	log.Info().Str("run_id", runID).Int64("rows", n).Msg("Copied records into Postgres")
	return nil
}

// rowValues renders one record in columns order.
func rowValues(runID string, rec *domain.Record, now time.Time) []any {
	date := pgtype.Date{}
	if d, ok := rec.Date.Get(); ok {
		date = pgtype.Date{Time: d.In(time.UTC), Valid: true}
	}
	return []any{
		runID,
		int32(rec.Row),
		date,
		text(rec.Merchant),
		text(rec.CanonicalMerchant),
		int32(rec.MatchScore),
		rec.Industry,
		numeric(rec.Amount),
		text(rec.Currency),
		numeric(rec.AmountInReference),
		now,
	}
}

func text(f domain.Field[string]) pgtype.Text {
	v, ok := f.Get()
	return pgtype.Text{String: v, Valid: ok}
}

func numeric(f domain.Field[decimal.Decimal]) pgtype.Numeric {
	v, ok := f.Get()
	if !ok {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: v.Coefficient(), Exp: v.Exponent(), Valid: true}
}

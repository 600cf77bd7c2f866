package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertBroadcastSQL = `INSERT INTO broadcasts (
        sent_at,
        kind,
        buy_rate,
        sell_rate,
        delta_buy,
        sent,
        skipped,
        failed
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, sent_at, kind, buy_rate, sell_rate, delta_buy, sent, skipped, failed, created_at;`

	listRecentBroadcastsSQL = `SELECT
        id,
        sent_at,
        kind,
        buy_rate,
        sell_rate,
        delta_buy,
        sent,
        skipped,
        failed,
        created_at
    FROM broadcasts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteBroadcastsBeforeSQL = `DELETE FROM broadcasts WHERE created_at < $1;`

	countBroadcastsSQL = `SELECT COUNT(*) FROM broadcasts;`
)

// BroadcastStore defines operations for broadcast auditing.
type BroadcastStore interface {
	InsertBroadcast(ctx context.Context, rec BroadcastRecord) (BroadcastRecord, error)
	ListRecentBroadcasts(ctx context.Context, limit int) ([]BroadcastRecord, error)
	DeleteBroadcastsBefore(ctx context.Context, olderThan time.Time) error
	CountBroadcasts(ctx context.Context) (int64, error)
}

// Store aggregates access to the audit tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertBroadcast persists one fan-out outcome.
func (s *Store) InsertBroadcast(ctx context.Context, rec BroadcastRecord) (BroadcastRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return BroadcastRecord{}, err
	}

	row := pool.QueryRow(ctx, insertBroadcastSQL,
		rec.SentAt,
		rec.Kind,
		rec.Buy.String(),
		rec.Sell.String(),
		rec.DeltaBuy.String(),
		rec.Sent,
		rec.Skipped,
		rec.Failed,
	)

	out, err := scanBroadcast(row)
	if err != nil {
		return BroadcastRecord{}, fmt.Errorf("insert broadcast: %w", err)
	}
	return out, nil
}

// ListRecentBroadcasts lists most recent fan-outs.
func (s *Store) ListRecentBroadcasts(ctx context.Context, limit int) ([]BroadcastRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentBroadcastsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent broadcasts: %w", queryErr)
	}
	defer rows.Close()

	records := make([]BroadcastRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanBroadcast(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// DeleteBroadcastsBefore deletes historical audit rows.
func (s *Store) DeleteBroadcastsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteBroadcastsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete broadcasts before: %w", execErr)
	}
	return nil
}

// CountBroadcasts counts stored audit rows.
func (s *Store) CountBroadcasts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countBroadcastsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count broadcasts: %w", scanErr)
	}
	return count, nil
}

func scanBroadcast(row pgx.Row) (BroadcastRecord, error) {
	var (
		rec      BroadcastRecord
		buyStr   string
		sellStr  string
		deltaStr string
	)

	if err := row.Scan(
		&rec.ID,
		&rec.SentAt,
		&rec.Kind,
		&buyStr,
		&sellStr,
		&deltaStr,
		&rec.Sent,
		&rec.Skipped,
		&rec.Failed,
		&rec.CreatedAt,
	); err != nil {
		return BroadcastRecord{}, err
	}

	var convErr error
	rec.Buy, convErr = decimal.NewFromString(buyStr)
	if convErr != nil {
		return BroadcastRecord{}, fmt.Errorf("parse buy rate: %w", convErr)
	}
	rec.Sell, convErr = decimal.NewFromString(sellStr)
	if convErr != nil {
		return BroadcastRecord{}, fmt.Errorf("parse sell rate: %w", convErr)
	}
	rec.DeltaBuy, convErr = decimal.NewFromString(deltaStr)
	if convErr != nil {
		return BroadcastRecord{}, fmt.Errorf("parse delta: %w", convErr)
	}

	return rec, nil
}

var _ BroadcastStore = (*Store)(nil)

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantbridge/tda/internal/contracts"
	"github.com/quantbridge/tda/pkg/logger"
)

// BarStore persists downloaded bars to PostgreSQL.
// SSOT: bar persistence goes through this store only.
type BarStore struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewBarStore connects to the database and verifies the connection.
func NewBarStore(ctx context.Context, databaseURL string, log *logger.Logger) (*BarStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &BarStore{pool: pool, logger: log}, nil
}

// Close releases the connection pool.
func (s *BarStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the bars table if missing.
func (s *BarStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bars (
			ticker      TEXT        NOT NULL,
			resolution  TEXT        NOT NULL,
			bar_time    TIMESTAMPTZ NOT NULL,
			open        DOUBLE PRECISION NOT NULL,
			high        DOUBLE PRECISION NOT NULL,
			low         DOUBLE PRECISION NOT NULL,
			close       DOUBLE PRECISION NOT NULL,
			volume      BIGINT      NOT NULL,
			PRIMARY KEY (ticker, resolution, bar_time)
		)`)
	if err != nil {
		return fmt.Errorf("create bars table: %w", err)
	}
	return nil
}

// SaveBars upserts bars in one batch. Re-downloads overwrite prior rows.
func (s *BarStore) SaveBars(ctx context.Context, resolution contracts.Resolution, bars []contracts.TradeBar) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, bar := range bars {
		batch.Queue(`
			INSERT INTO bars (ticker, resolution, bar_time, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (ticker, resolution, bar_time) DO UPDATE SET
				open = EXCLUDED.open,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close,
				volume = EXCLUDED.volume`,
			bar.Symbol.Ticker, resolution.String(), bar.Time.UTC(),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save bars: %w", err)
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"count":      len(bars),
		"ticker":     bars[0].Symbol.Ticker,
		"resolution": resolution.String(),
	}).Info("Bars saved")
	return nil
}

package data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
)

// PoolInterface defines the database operations the loader needs. It is
// satisfied by *pgxpool.Pool and by pgxmock pools.
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PostgresLoader reads bars from the candlesticks table.
type PostgresLoader struct {
	pool PoolInterface
}

// NewPostgresLoader creates a loader on pool.
func NewPostgresLoader(pool PoolInterface) *PostgresLoader {
	return &PostgresLoader{pool: pool}
}

const (
	allBarsQuery = `
		SELECT open_time, open, high, low, close, volume
		FROM candlesticks
		WHERE symbol = $1
			AND interval = $2
		ORDER BY open_time ASC
	`

	// Most recent $3 bars, returned oldest first.
	recentBarsQuery = `
		SELECT open_time, open, high, low, close, volume
		FROM (
			SELECT open_time, open, high, low, close, volume
			FROM candlesticks
			WHERE symbol = $1
				AND interval = $2
			ORDER BY open_time DESC
			LIMIT $3
		) recent
		ORDER BY open_time ASC
	`
)

// Load returns the bars for symbol and interval in ascending order. A positive
// limit keeps only the most recent bars.
func (l *PostgresLoader) Load(ctx context.Context, symbol, interval string, limit int) ([]backtest.Bar, error) {
	if l.pool == nil {
		return nil, fmt.Errorf("no database pool available")
	}

	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = l.pool.Query(ctx, recentBarsQuery, symbol, interval, limit)
	} else {
		rows, err = l.pool.Query(ctx, allBarsQuery, symbol, interval)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []backtest.Bar
	for rows.Next() {
		var (
			b        backtest.Bar
			openTime time.Time
		)
		if err := rows.Scan(&openTime, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar row: %w", err)
		}
		b.Timestamp = openTime.UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bar rows: %w", err)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("%w for %s %s", ErrNoBars, symbol, interval)
	}
	if err := Validate(bars); err != nil {
		return nil, err
	}

	log.Debug().
		Str("symbol", symbol).
		Str("interval", interval).
		Int("bars", len(bars)).
		Msg("Bars loaded from database")

	return bars, nil
}

package data

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// ============================================================================
// CSV TESTS
// ============================================================================

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"header and rfc3339", "timestamp,open,high,low,close,volume\n" +
			"2024-03-01T00:00:00Z,100,101,99,100.5,10\n" +
			"2024-03-01T01:00:00Z,100.5,102,100,101,12\n"},
		{"unix seconds without header", "1709251200,100,101,99,100.5,10\n1709254800,100.5,102,100,101,12\n"},
		{"unix millis", "1709251200000,100,101,99,100.5,10\n1709254800000, 100.5, 102, 100, 101, 12\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars, err := ReadCSV(strings.NewReader(tt.input))
			require.NoError(t, err)
			require.Len(t, bars, 2)
			assert.Equal(t, t0, bars[0].Timestamp)
			assert.Equal(t, t0.Add(time.Hour), bars[1].Timestamp)
			assert.Equal(t, 100.5, bars[0].Close)
			assert.Equal(t, 102.0, bars[1].High)
			assert.Equal(t, 12.0, bars[1].Volume)
		})
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bad number", "1709251200,100,abc,99,100,1\n"},
		{"bad timestamp", "yesterday,100,101,99,100,1\n1709254800,100,101,99,100,1\n"},
		{"wrong column count", "1709251200,100,101,99\n"},
		{"descending", "1709254800,100,101,99,100,1\n1709251200,100,101,99,100,1\n"},
		{"high below low", "1709251200,100,99,101,100,1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte("1709251200,100,101,99,100.5,10\n"), 0o600))

	bars, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Len(t, bars, 1)

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

// ============================================================================
// POSTGRES TESTS
// ============================================================================

func barRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"open_time", "open", "high", "low", "close", "volume"}).
		AddRow(t0, 100.0, 101.0, 99.0, 100.5, 10.0).
		AddRow(t0.Add(time.Hour), 100.5, 102.0, 100.0, 101.0, 12.0)
}

func TestPostgresLoader_Load(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT open_time, open, high, low, close, volume FROM candlesticks").
		WithArgs("BTCUSDT", "1h").
		WillReturnRows(barRows())

	bars, err := NewPostgresLoader(mock).Load(context.Background(), "BTCUSDT", "1h", 0)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, backtest.Bar{Timestamp: t0, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10}, bars[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoader_LoadRecent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("ORDER BY open_time DESC").
		WithArgs("BTCUSDT", "1h", 2).
		WillReturnRows(barRows())

	bars, err := NewPostgresLoader(mock).Load(context.Background(), "BTCUSDT", "1h", 2)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLoader_Errors(t *testing.T) {
	t.Run("query error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("FROM candlesticks").
			WithArgs("BTCUSDT", "1h").
			WillReturnError(errors.New("connection refused"))

		_, err = NewPostgresLoader(mock).Load(context.Background(), "BTCUSDT", "1h", 0)
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("no rows", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("FROM candlesticks").
			WithArgs("ETHUSDT", "1d").
			WillReturnRows(pgxmock.NewRows([]string{"open_time", "open", "high", "low", "close", "volume"}))

		_, err = NewPostgresLoader(mock).Load(context.Background(), "ETHUSDT", "1d", 0)
		assert.ErrorIs(t, err, ErrNoBars)
	})

	t.Run("nil pool", func(t *testing.T) {
		_, err := NewPostgresLoader(nil).Load(context.Background(), "BTCUSDT", "1h", 0)
		assert.Error(t, err)
	})
}

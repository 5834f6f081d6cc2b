package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Ceezar89/ezbot-sub000/pkg/backtest"
)

// millisThreshold separates unix seconds from unix milliseconds.
const millisThreshold = 1e11

// LoadCSV reads bars from a CSV file with the columns
// timestamp,open,high,low,close,volume. A header row is optional.
func LoadCSV(path string) ([]backtest.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bars file: %w", err)
	}
	defer f.Close()

	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.Debug().
		Str("path", path).
		Int("bars", len(bars)).
		Msg("Bars loaded from CSV")
	return bars, nil
}

// ReadCSV parses bars from r. Timestamps may be RFC 3339 or unix seconds or
// milliseconds.
func ReadCSV(r io.Reader) ([]backtest.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 6
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	var bars []backtest.Bar
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		if line == 1 && isHeader(record) {
			continue
		}

		bar, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}

	if err := Validate(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func isHeader(record []string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	return err != nil
}

func parseRecord(record []string) (backtest.Bar, error) {
	ts, err := parseTimestamp(strings.TrimSpace(record[0]))
	if err != nil {
		return backtest.Bar{}, err
	}

	var values [5]float64
	for i := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
		if err != nil {
			return backtest.Bar{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		values[i] = v
	}

	return backtest.Bar{
		Timestamp: ts,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n >= millisThreshold {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return ts.UTC(), nil
}

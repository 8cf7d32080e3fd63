package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"marlin/internal/domain"
)

// Compile-time interface check.
var _ PriceStore = (*ParquetStore)(nil)

// ParquetStore implements PriceStore using Parquet files on disk, one file
// per symbol and year.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// CloseRecord is the Parquet schema for daily closing prices.
type CloseRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Close     float64 `parquet:"close"`
}

// WriteCloses writes closing prices to Parquet files grouped by year. Each
// symbol+year combination produces a separate file at:
//
//	<DataDir>/daily/<SYMBOL>/<YYYY>.parquet
//
// Existing records are merged and deduplicated by timestamp, with incoming
// records winning, so rewrites of overlapping ranges are idempotent.
func (s *ParquetStore) WriteCloses(_ context.Context, symbol string, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	groups := make(map[int][]CloseRecord)
	for _, p := range points {
		y := p.Date.UTC().Year()
		groups[y] = append(groups[y], CloseRecord{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: p.Date.UTC().UnixMilli(),
			Close:     p.Close,
		})
	}

	for year, records := range groups {
		path := s.closePath(symbol, year)

		existing, _ := readParquetFile[CloseRecord](path)
		merged := mergeCloseRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing closes for %s/%d: %w", symbol, year, err)
		}
	}
	return nil
}

// LoadCloses reads closing prices for the given symbol and time range.
// Missing year files are skipped, so an unknown symbol returns an empty
// series.
func (s *ParquetStore) LoadCloses(_ context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	var points []domain.PricePoint
	for year := start.Year(); year <= end.Year(); year++ {
		records, err := readParquetFile[CloseRecord](s.closePath(symbol, year))
		if err != nil {
			continue
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if (ts.Equal(start) || ts.After(start)) && (ts.Equal(end) || ts.Before(end)) {
				points = append(points, domain.PricePoint{Date: ts, Close: r.Close})
			}
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

// ListSymbols lists all symbols that have stored price data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	dir := filepath.Join(s.DataDir, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// closePath returns the filesystem path for a symbol+year Parquet file.
func (s *ParquetStore) closePath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeCloseRecords deduplicates close records by timestamp, preferring new
// records over existing ones. Results are sorted by timestamp.
func mergeCloseRecords(existing, incoming []CloseRecord) []CloseRecord {
	seen := make(map[int64]CloseRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]CloseRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

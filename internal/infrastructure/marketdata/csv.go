package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vitos/wyckoff_backtest/internal/domain"
)

// CSVBarSource serves bar streams from CSV files in a data directory,
// one file per symbol and timeframe: <dir>/<SYMBOL>_<timeframe>.csv with
// a header row of time,open,high,low,close,volume. Files are parsed once
// and cached.
type CSVBarSource struct {
	dir   string
	mu    sync.RWMutex
	cache map[string][]domain.Bar
}

func NewCSVBarSource(dir string) *CSVBarSource {
	return &CSVBarSource{
		dir:   dir,
		cache: make(map[string][]domain.Bar),
	}
}

func (s *CSVBarSource) Bars(ctx context.Context, symbol, timeframe string) ([]domain.Bar, error) {
	key := symbol + "_" + timeframe

	s.mu.RLock()
	bars, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return bars, nil
	}

	path := filepath.Join(s.dir, key+".csv")
	bars, err := LoadBarsCSV(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[key] = bars
	s.mu.Unlock()
	return bars, nil
}

// LoadBarsCSV parses one bar file. The time column accepts RFC3339 or unix
// seconds. Rows must already be in ascending time order.
func LoadBarsCSV(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bar file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, want := range []string{"time", "open", "high", "low", "close", "volume"} {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("bar file %s missing column %q", path, want)
		}
	}

	var bars []domain.Bar
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", path, line+1, err)
		}
		line++

		t, err := parseBarTime(rec[col["time"]])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		bar := domain.Bar{Time: t}
		for _, fld := range []struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open},
			{"high", &bar.High},
			{"low", &bar.Low},
			{"close", &bar.Close},
			{"volume", &bar.Volume},
		} {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col[fld.name]]), 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: bad %s: %w", path, line, fld.name, err)
			}
			*fld.dst = v
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseBarTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", raw)
}

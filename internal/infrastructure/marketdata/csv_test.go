package marketdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleCSV = `time,open,high,low,close,volume
2024-03-01T00:00:00Z,100,101,99,100.5,1500
2024-03-01T01:00:00Z,100.5,102,100,101.5,1800
2024-03-01T02:00:00Z,101.5,103,101,102,900
`

func writeDataFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCSVBarSource_LoadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "AAPL_1h.csv", sampleCSV)

	src := NewCSVBarSource(dir)
	bars, err := src.Bars(context.Background(), "AAPL", "1h")
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	want := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)
	if !bars[1].Time.Equal(want) {
		t.Errorf("bar 1 time = %s, want %s", bars[1].Time, want)
	}
	if bars[2].Close != 102 || bars[2].Volume != 900 {
		t.Errorf("bar 2 = %+v", bars[2])
	}

	// Second call serves the cache; deleting the file must not matter.
	if err := os.Remove(filepath.Join(dir, "AAPL_1h.csv")); err != nil {
		t.Fatal(err)
	}
	again, err := src.Bars(context.Background(), "AAPL", "1h")
	if err != nil || len(again) != 3 {
		t.Fatalf("cached read = (%d bars, %v)", len(again), err)
	}
}

func TestLoadBarsCSV_UnixSeconds(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "unix.csv", "time,open,high,low,close,volume\n1709251200,10,11,9,10,100\n")

	bars, err := LoadBarsCSV(filepath.Join(dir, "unix.csv"))
	if err != nil {
		t.Fatalf("LoadBarsCSV: %v", err)
	}
	want := time.Unix(1709251200, 0).UTC()
	if !bars[0].Time.Equal(want) {
		t.Errorf("time = %s, want %s", bars[0].Time, want)
	}
}

func TestLoadBarsCSV_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "bad.csv", "time,open,high,low,close\n2024-03-01T00:00:00Z,1,1,1,1\n")

	if _, err := LoadBarsCSV(filepath.Join(dir, "bad.csv")); err == nil {
		t.Fatal("file without a volume column must not load")
	}
}

func TestLoadBarsCSV_BadPrice(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "bad.csv", "time,open,high,low,close,volume\n2024-03-01T00:00:00Z,abc,1,1,1,1\n")

	if _, err := LoadBarsCSV(filepath.Join(dir, "bad.csv")); err == nil {
		t.Fatal("unparseable open must not load")
	}
}

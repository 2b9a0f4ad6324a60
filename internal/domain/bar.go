package domain

import "time"

// Bar is one OHLCV candle. Bars are immutable and ordered by Time;
// the bar index inside a run's stream is the unit of simulated time.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// TimeframeDuration parses the timeframes the engine accepts ("1m", "5m",
// "15m", "1h", "4h", "1d") into a bar duration.
func TimeframeDuration(tf string) (time.Duration, error) {
	switch tf {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	}
	return 0, &ConfigurationError{Field: "timeframe", Detail: "unknown timeframe " + tf}
}

// CheckGaps verifies the bar stream covers its range without holes. The
// engine never synthesizes bars over a gap; it reports the missing range
// instead (weekend/holiday tolerance is up to the data collaborator, so a
// gap is anything larger than gapTolerance bar widths).
func CheckGaps(bars []Bar, tf string, gapTolerance int) error {
	if len(bars) < 2 {
		return nil
	}
	step, err := TimeframeDuration(tf)
	if err != nil {
		return err
	}
	if gapTolerance < 1 {
		gapTolerance = 1
	}
	maxDelta := step * time.Duration(gapTolerance)
	for i := 1; i < len(bars); i++ {
		delta := bars[i].Time.Sub(bars[i-1].Time)
		if delta <= 0 {
			return &DataGapError{From: bars[i].Time, To: bars[i-1].Time, Detail: "bars out of order"}
		}
		if delta > maxDelta {
			return &DataGapError{From: bars[i-1].Time, To: bars[i].Time, Detail: "missing bars"}
		}
	}
	return nil
}

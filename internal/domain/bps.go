package domain

import (
	"fmt"
	"math"
)

// Bps is a fixed-point percentage in basis points (1% = 100 bps). The risk
// pipeline does every percentage comparison in Bps so cascaded risk sums
// never accumulate float rounding drift.
type Bps int64

// BpsFromPercent converts a percentage to basis points, truncating toward
// zero (the conservative direction for a risk cap).
func BpsFromPercent(pct float64) Bps {
	return Bps(math.Trunc(pct * 100))
}

func (b Bps) Percent() float64 { return float64(b) / 100 }

func (b Bps) String() string {
	return fmt.Sprintf("%.2f%%", b.Percent())
}

// Cents is a fixed-point money amount in hundredths of the account
// currency. Risk sums across positions are carried in Cents.
type Cents int64

// CentsFromFloat truncates toward zero; a fraction of a cent of risk is
// never allowed to tip a comparison.
func CentsFromFloat(v float64) Cents {
	return Cents(math.Trunc(v * 100))
}

func (c Cents) Float() float64 { return float64(c) / 100 }

// RatioBps is amount/base expressed in basis points, truncated. A zero or
// negative base yields the maximum so callers reject rather than divide by
// zero.
func RatioBps(amount, base Cents) Bps {
	if base <= 0 {
		return Bps(math.MaxInt64)
	}
	return Bps(int64(amount) * 10000 / int64(base))
}

// WithinBps reports whether amount/base <= limit, computed by integer
// cross-multiplication so no division rounding is involved.
func WithinBps(amount, base Cents, limit Bps) bool {
	if amount <= 0 {
		return true
	}
	if base <= 0 {
		return false
	}
	return int64(amount)*10000 <= int64(base)*int64(limit)
}

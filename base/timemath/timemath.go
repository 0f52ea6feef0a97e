package timemath

import (
	"math"
	"time"
)

func Sgn(d time.Duration) int {
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

func Inv(d time.Duration) time.Duration {
	switch {
	case d == math.MinInt64:
		return math.MaxInt64
	default:
		return -d
	}
}

// Midpoint returns (x + y) / 2 without overflowing for operands of equal sign.
func Midpoint(x, y time.Duration) time.Duration {
	if Sgn(x) == Sgn(y) {
		return x + (y-x)/2
	}
	return (x + y) / 2
}

package timebase

import (
	"time"
)

type SystemClock struct{}

var _ LocalClock = SystemClock{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

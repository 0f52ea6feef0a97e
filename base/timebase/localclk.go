package timebase

import (
	"time"
)

// LocalClock is the source of local timestamps used for NTP requests and
// responses.
type LocalClock interface {
	Now() time.Time
}

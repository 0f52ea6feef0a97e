// Package measurements combines the results of repeated time queries.
package measurements

import (
	"cmp"
	"slices"
	"time"

	"example.com/nts-client/core/client"
)

type Measurement struct {
	Timestamp time.Time
	Offset    time.Duration
	Delay     time.Duration
	Error     error
}

func FromSnapshot(s client.TimeSnapshot, err error) Measurement {
	if err != nil {
		return Measurement{Error: err}
	}
	return Measurement{
		Timestamp: s.LocalReceiveTime,
		Offset:    s.Offset,
		Delay:     s.RoundTripDelay,
	}
}

// Valid returns the measurements without error, in their original order.
func Valid(ms []Measurement) []Measurement {
	var vs []Measurement
	for _, m := range ms {
		if m.Error == nil {
			vs = append(vs, m)
		}
	}
	return vs
}

func midpoint(x, y Measurement) Measurement {
	var m Measurement
	m.Offset = x.Offset + (y.Offset-x.Offset)/2
	m.Delay = x.Delay + (y.Delay-x.Delay)/2
	if !x.Timestamp.After(y.Timestamp) {
		m.Timestamp = x.Timestamp.Add(y.Timestamp.Sub(x.Timestamp) / 2)
	} else {
		m.Timestamp = y.Timestamp.Add(x.Timestamp.Sub(y.Timestamp) / 2)
	}
	return m
}

func Median(ms []Measurement) Measurement {
	n := len(ms)
	if n == 0 {
		panic("unexpected number of values")
	}
	slices.SortFunc(ms, func(a, b Measurement) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	i := n / 2
	if n%2 != 0 {
		return Measurement{
			Timestamp: ms[i].Timestamp,
			Offset:    ms[i].Offset,
			Delay:     ms[i].Delay,
		}
	}
	return midpoint(ms[i-1], ms[i])
}

func FaultTolerantMidpoint(ms []Measurement) Measurement {
	n := len(ms)
	if n == 0 {
		panic("unexpected number of values")
	}
	slices.SortFunc(ms, func(a, b Measurement) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	f := (n - 1) / 3
	return midpoint(ms[f], ms[n-1-f])
}

// MinDelay returns the measurement with the smallest round trip delay, the
// one least affected by queuing on the network path.
func MinDelay(ms []Measurement) Measurement {
	if len(ms) == 0 {
		panic("unexpected number of values")
	}
	return slices.MinFunc(ms, func(a, b Measurement) int {
		return cmp.Compare(a.Delay, b.Delay)
	})
}

package client

import (
	"time"

	"go.uber.org/zap/zapcore"

	"example.com/nts-client/base/timemath"
)

// TimeSnapshot is the result of one authenticated time query.
type TimeSnapshot struct {
	// NetworkTime is the server's transmit timestamp.
	NetworkTime      time.Time
	LocalSendTime    time.Time
	LocalReceiveTime time.Time

	// Offset is the server clock minus the local clock.
	Offset         time.Duration
	RoundTripDelay time.Duration

	Authenticated bool
	Stratum       uint8
	LeapIndicator uint8
	Server        string
	ReferenceID   uint32
}

// IsAhead reports whether the local clock is ahead of the network time.
func (s TimeSnapshot) IsAhead() bool {
	return timemath.Sgn(s.Offset) < 0
}

// IsBehind reports whether the local clock is behind the network time.
func (s TimeSnapshot) IsBehind() bool {
	return timemath.Sgn(s.Offset) > 0
}

func (s TimeSnapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddTime("network_time", s.NetworkTime)
	enc.AddDuration("offset", s.Offset)
	enc.AddDuration("rtd", s.RoundTripDelay)
	enc.AddUint8("stratum", s.Stratum)
	enc.AddUint8("li", s.LeapIndicator)
	enc.AddString("server", s.Server)
	enc.AddBool("authenticated", s.Authenticated)
	return nil
}

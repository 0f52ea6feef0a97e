package ntp

import (
	"errors"
	"time"
)

const KissCodeNTSNAK = "NTSN"

var (
	errUnexpectedResponse = errors.New("unexpected response structure")
	errUnexpectedKissCode = errors.New("unexpected kiss code")
	errUnsynchronized     = errors.New("server clock not synchronized")
	errOriginMismatch     = errors.New("origin timestamp does not match request")

	ErrNTSNAK = errors.New("NTS negative acknowledgment")

	// ErrLocalClock reports that the local clock went backwards between
	// sending a request and receiving its response; the server is not at
	// fault.
	ErrLocalClock = errors.New("local clock stepped backwards during exchange")
)

// ValidateResponseMetadata checks the header fields of a server response.
// A stratum 0 response carrying the NTSN kiss code yields ErrNTSNAK, any
// other kiss-o'-death is rejected.
func ValidateResponseMetadata(resp *Packet) error {
	// Based on Ntimed by Poul-Henning Kamp, https://github.com/bsdphk/Ntimed

	if resp.Version() != 3 && resp.Version() != 4 {
		return errUnexpectedResponse
	}
	if resp.Mode() != ModeServer {
		return errUnexpectedResponse
	}
	if code, ok := resp.KissCode(); ok {
		if code == KissCodeNTSNAK {
			return ErrNTSNAK
		}
		return errUnexpectedKissCode
	}
	if resp.LeapIndicator() == LeapIndicatorUnknown {
		return errUnsynchronized
	}
	if resp.Stratum > 15 {
		return errUnexpectedResponse
	}
	return nil
}

func ValidateResponseOrigin(resp *Packet, txTime Time64) error {
	if resp.OriginTime != txTime {
		return errOriginMismatch
	}
	return nil
}

func ValidateResponseTimestamps(t1, t2, t3, t4 time.Time) error {
	if t4.Sub(t1) < 0 {
		return ErrLocalClock
	}
	if t3.Sub(t2) < 0 {
		return errUnexpectedResponse
	}
	return nil
}

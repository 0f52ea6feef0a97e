//go:build !linux && !darwin

package udp

import (
	"errors"
	"net"
	"time"
)

var errUnsupportedOperation = errors.New("unsupported operation")

func TimestampLen() int {
	return 0
}

func EnableRxTimestamps(conn *net.UDPConn) error {
	return errUnsupportedOperation
}

func TimestampFromOOBData(oob []byte) (time.Time, error) {
	return time.Time{}, errTimestampNotFound
}

func SetDSCP(conn *net.UDPConn, dscp uint8) error {
	if dscp > 63 {
		panic("invalid argument: dscp must not be greater than 63")
	}
	return errUnsupportedOperation
}

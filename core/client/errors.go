package client

import (
	"errors"
)

var (
	errNoAddress  = errors.New("no address found for NTP server")
	errNoResponse = errors.New("no valid response before the deadline")
	errTransport  = errors.New("datagram transport failed")
)

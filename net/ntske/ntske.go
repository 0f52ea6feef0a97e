/*
Copyright 2018--2019 Michael Cardell Widerkrantz, Martin Samuelsson,
Daniel Lublin

Permission to use, copy, modify, and/or distribute this software for
any purpose with or without fee is hereby granted, provided that the
above copyright notice and this permission notice appear in all
copies.

THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL
WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED
WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE
AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL
DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR
PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER
TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR
PERFORMANCE OF THIS SOFTWARE.
*/

package ntske

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"

	"example.com/nts-client/base/crypto"
	"example.com/nts-client/base/ntserr"
	"example.com/nts-client/net/ntp"
)

const (
	NTPv4 uint16 = 0

	ServerPortIP = 4460
)

const (
	ErrorCodeUnrecognizedCritical = 0
	ErrorCodeBadRequest           = 1
	ErrorCodeInternalServer       = 2
)

const (
	alpn        = "ntske/1"
	exportLabel = "EXPORTER-network-time-security"

	directionC2S = 0x00
	directionS2C = 0x01
)

var (
	errServerNoNTSKE     = errors.New("server does not support ntske/1")
	errMissingEOM        = errors.New("message ended without end of message record")
	errMalformedEOM      = errors.New("malformed end of message record")
	errNextProto         = errors.New("unexpected next protocol negotiation")
	errAlgorithm         = errors.New("unexpected AEAD algorithm negotiation")
	errDuplicateServer   = errors.New("duplicate NTPv4 server negotiation record")
	errDuplicatePort     = errors.New("duplicate NTPv4 port negotiation record")
	errMalformedServer   = errors.New("malformed NTPv4 server negotiation record")
	errMalformedPort     = errors.New("malformed NTPv4 port negotiation record")
	errMalformedError    = errors.New("malformed error record")
	errNoCookies         = errors.New("no cookies received")
	errNoAlgorithms      = errors.New("no AEAD algorithms offered")
	errUnsupportedOffers = errors.New("offered AEAD algorithm not supported")
)

// ServerError is the error or warning code sent by an NTS-KE server.
type ServerError struct {
	Code    uint16
	Warning bool
}

func (e *ServerError) Error() string {
	if e.Warning {
		return fmt.Sprintf("ntske received warning code %d", e.Code)
	}
	switch e.Code {
	case ErrorCodeUnrecognizedCritical:
		return "ntske received unrecognized critical error message"
	case ErrorCodeBadRequest:
		return "ntske received bad request error message"
	case ErrorCodeInternalServer:
		return "ntske received internal server error message"
	}
	return fmt.Sprintf("ntske received unknown error message %d", e.Code)
}

// Channel is an established NTS-KE connection.
type Channel interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
	ExportKeyingMaterial(label string, context []byte, length int) ([]byte, error)
}

// SessionKeys are the keys exported from an NTS-KE session, one per direction.
type SessionKeys struct {
	C2S       []byte
	S2C       []byte
	Algorithm uint16
}

// Zero overwrites the key material.
func (k *SessionKeys) Zero() {
	crypto.Zero(k.C2S)
	crypto.Zero(k.S2C)
}

// Result is the outcome of a successful key exchange.
type Result struct {
	Keys      SessionKeys
	Cookies   *CookiePool
	Server    string
	Port      uint16
	Algorithm uint16
	Duration  time.Duration
}

func failure(kind error, err error) error {
	return ntserr.New(kind, "ntske: exchange", err)
}

// Exchange runs the NTS-KE negotiation on ch. server is the host the channel
// was opened to; it is used as the NTP server unless the key exchange server
// advertises another one.
func Exchange(ctx context.Context, log *zap.Logger, ch Channel, server string, algs []uint16) (*Result, error) {
	if len(algs) == 0 {
		return nil, failure(ntserr.ErrKeyExchangeFailed, errNoAlgorithms)
	}
	for _, a := range algs {
		if !SupportedAlgorithm(a) {
			return nil, failure(ntserr.ErrKeyExchangeFailed, errUnsupportedOffers)
		}
	}

	t0 := time.Now()

	if deadline, ok := ctx.Deadline(); ok {
		_ = ch.SetDeadline(deadline)
	}
	// A callback still running after stop would reset the deadline of a
	// later call, so wait for it.
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(done)
		_ = ch.SetDeadline(time.Unix(1, 0))
	})
	defer func() {
		if !stop() {
			<-done
		}
	}()

	msg, err := Encode([]Record{
		NextProtoRecord(NTPv4),
		AlgorithmRecord(algs...),
		EndRecord(),
	})
	if err != nil {
		panic(err)
	}
	_, err = ch.Write(msg)
	if err != nil {
		return nil, ioFailure(ctx, err)
	}

	res := &Result{
		Cookies: NewCookiePool(),
		Server:  server,
		Port:    ntp.ServerPort,
	}
	var nextProtoSeen, algSeen, serverSeen, portSeen bool

	rd := NewReader(ch)
loop:
	for {
		rec, err := rd.Next()
		if err == io.EOF {
			return nil, failure(ntserr.ErrProtocolViolation, errMissingEOM)
		}
		if err != nil {
			if ntserr.KindOf(err) != nil {
				return nil, err
			}
			return nil, ioFailure(ctx, err)
		}
		log.Debug("NTSKE record", zap.Object("rec", RecordMarshaler{Rec: rec}))

		switch rec.Type {
		case RecEom:
			if !rec.Critical || len(rec.Body) != 0 {
				return nil, failure(ntserr.ErrProtocolViolation, errMalformedEOM)
			}
			break loop

		case RecNextproto:
			protos, err := rec.Uint16s()
			if nextProtoSeen || err != nil || len(protos) != 1 || protos[0] != NTPv4 {
				return nil, failure(ntserr.ErrProtocolViolation, errNextProto)
			}
			nextProtoSeen = true

		case RecAead:
			as, err := rec.Uint16s()
			if algSeen || err != nil || len(as) != 1 || !slices.Contains(algs, as[0]) {
				return nil, failure(ntserr.ErrProtocolViolation, errAlgorithm)
			}
			res.Algorithm = as[0]
			algSeen = true

		case RecCookie:
			if len(rec.Body) != 0 {
				res.Cookies.Put(Cookie(rec.Body))
			}

		case RecServer:
			if serverSeen {
				return nil, failure(ntserr.ErrProtocolViolation, errDuplicateServer)
			}
			if len(rec.Body) == 0 {
				return nil, failure(ntserr.ErrProtocolViolation, errMalformedServer)
			}
			res.Server = string(rec.Body)
			serverSeen = true

		case RecPort:
			if portSeen {
				return nil, failure(ntserr.ErrProtocolViolation, errDuplicatePort)
			}
			if len(rec.Body) != 2 {
				return nil, failure(ntserr.ErrProtocolViolation, errMalformedPort)
			}
			res.Port = binary.BigEndian.Uint16(rec.Body)
			portSeen = true

		case RecError, RecWarning:
			if len(rec.Body) != 2 {
				return nil, failure(ntserr.ErrProtocolViolation, errMalformedError)
			}
			return nil, failure(ntserr.ErrKeyExchangeFailed, &ServerError{
				Code:    binary.BigEndian.Uint16(rec.Body),
				Warning: rec.Type == RecWarning,
			})
		}
	}

	if !nextProtoSeen {
		return nil, failure(ntserr.ErrProtocolViolation, errNextProto)
	}
	if !algSeen {
		return nil, failure(ntserr.ErrProtocolViolation, errAlgorithm)
	}
	if res.Cookies.Len() == 0 {
		return nil, failure(ntserr.ErrKeyExchangeFailed, errNoCookies)
	}

	res.Keys, err = ExportKeys(ch, res.Algorithm)
	if err != nil {
		res.Cookies.Clear()
		return nil, failure(ntserr.ErrKeyExchangeFailed, err)
	}
	res.Duration = time.Since(t0)

	logResult(log, res)
	return res, nil
}

// ExportKeys exports two extra sessions keys from the already
// established NTS-KE connection for use with NTS.
func ExportKeys(ch Channel, alg uint16) (SessionKeys, error) {
	n := KeyLen(alg)
	c2sContext := exportContext(alg, directionC2S)
	s2cContext := exportContext(alg, directionS2C)

	c2s, err := ch.ExportKeyingMaterial(exportLabel, c2sContext, n)
	if err != nil {
		return SessionKeys{}, err
	}
	s2c, err := ch.ExportKeyingMaterial(exportLabel, s2cContext, n)
	if err != nil {
		crypto.Zero(c2s)
		return SessionKeys{}, err
	}
	return SessionKeys{C2S: c2s, S2C: s2c, Algorithm: alg}, nil
}

func exportContext(alg uint16, direction byte) []byte {
	b := make([]byte, 5)
	binary.BigEndian.PutUint16(b[0:], NTPv4)
	binary.BigEndian.PutUint16(b[2:], alg)
	b[4] = direction
	return b
}

func ioFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return failure(ntserr.ErrTimeout, ctx.Err())
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return failure(ntserr.ErrTimeout, err)
	}
	return failure(ntserr.ErrIO, err)
}

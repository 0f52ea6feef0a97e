// Package ntserr defines the error kinds surfaced by the NTS client.
//
// Every error returned across a package boundary is an *Error carrying one of
// the kind sentinels below, so callers can tell failures apart with
// errors.Is while still reaching the underlying cause.
package ntserr

import (
	"errors"
	"strings"
)

var (
	ErrServerUnavailable    = errors.New("server unavailable")
	ErrKeyExchangeFailed    = errors.New("key exchange failed")
	ErrProtocolViolation    = errors.New("protocol violation")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrCookiesExhausted     = errors.New("cookies exhausted")
	ErrTimeout              = errors.New("timeout")
	ErrIO                   = errors.New("i/o error")
	ErrNotConnected         = errors.New("not connected")
	ErrInvalidConfig        = errors.New("invalid configuration")
)

type Error struct {
	Kind error
	Op   string
	Err  error
}

func New(kind error, op string, err error) *Error {
	if kind == nil {
		panic("invalid argument: kind must not be nil")
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind of err, or nil if err does not carry one.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

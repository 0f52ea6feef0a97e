package ntserr_test

import (
	"errors"
	"io"
	"testing"

	"example.com/nts-client/base/ntserr"
)

func TestErrorIs(t *testing.T) {
	err := ntserr.New(ntserr.ErrIO, "udp: send", io.ErrClosedPipe)
	if !errors.Is(err, ntserr.ErrIO) {
		t.Errorf("errors.Is(%v, ErrIO) = false", err)
	}
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("errors.Is(%v, io.ErrClosedPipe) = false", err)
	}
	if errors.Is(err, ntserr.ErrTimeout) {
		t.Errorf("errors.Is(%v, ErrTimeout) = true", err)
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ntserr.New(ntserr.ErrTimeout, "", nil), "timeout"},
		{ntserr.New(ntserr.ErrTimeout, "client: get time", nil), "client: get time: timeout"},
		{ntserr.New(ntserr.ErrIO, "udp", io.EOF), "udp: i/o error: EOF"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	err := ntserr.New(ntserr.ErrCookiesExhausted, "op", nil)
	wrapped := errors.Join(errors.New("context"), err)
	if k := ntserr.KindOf(wrapped); k != ntserr.ErrCookiesExhausted {
		t.Errorf("KindOf(%v) = %v", wrapped, k)
	}
	if k := ntserr.KindOf(io.EOF); k != nil {
		t.Errorf("KindOf(io.EOF) = %v, want nil", k)
	}
}

func TestNewPanicsOnNilKind(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("New(nil, ...) must panic")
		}
	}()
	_ = ntserr.New(nil, "op", nil)
}

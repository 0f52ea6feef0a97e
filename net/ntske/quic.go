package ntske

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"github.com/quic-go/quic-go"

	"example.com/nts-client/base/ntserr"
)

// QUICDialer opens NTS-KE channels on a QUIC stream.
type QUICDialer struct {
	Config  *tls.Config
	Timeout time.Duration
}

type quicChannel struct {
	quic.Stream
	conn quic.Connection
}

func (c *quicChannel) ExportKeyingMaterial(label string, context []byte, length int) ([]byte, error) {
	cs := c.conn.ConnectionState().TLS
	return cs.ExportKeyingMaterial(label, context, length)
}

func (c *quicChannel) Close() error {
	err := c.Stream.Close()
	_ = c.conn.CloseWithError(0, "")
	return err
}

func (d *QUICDialer) DialKE(ctx context.Context, server string, port uint16) (Channel, error) {
	hostport := net.JoinHostPort(server, strconv.Itoa(int(port)))
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	conn, err := quic.DialAddr(ctx, hostport, clientConfig(d.Config), &quic.Config{})
	if err != nil {
		return nil, ntserr.New(ntserr.ErrServerUnavailable, "ntske: dial", err)
	}

	state := conn.ConnectionState()
	if state.TLS.NegotiatedProtocol != alpn {
		_ = conn.CloseWithError(0, "")
		return nil, ntserr.New(ntserr.ErrKeyExchangeFailed, "ntske: dial", errServerNoNTSKE)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, ntserr.New(ntserr.ErrServerUnavailable, "ntske: dial", err)
	}

	return &quicChannel{Stream: stream, conn: conn}, nil
}

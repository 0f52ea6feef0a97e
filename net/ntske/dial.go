package ntske

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"example.com/nts-client/base/ntserr"
)

// Dialer opens NTS-KE channels.
type Dialer interface {
	DialKE(ctx context.Context, server string, port uint16) (Channel, error)
}

// TLSDialer opens NTS-KE channels over TLS 1.3 on TCP.
type TLSDialer struct {
	Config  *tls.Config
	Timeout time.Duration
}

type tlsChannel struct {
	*tls.Conn
}

// NewTLSChannel wraps an established TLS connection as an NTS-KE channel.
func NewTLSChannel(conn *tls.Conn) Channel {
	return tlsChannel{conn}
}

func (c tlsChannel) ExportKeyingMaterial(label string, context []byte, length int) ([]byte, error) {
	cs := c.ConnectionState()
	return cs.ExportKeyingMaterial(label, context, length)
}

func clientConfig(c *tls.Config) *tls.Config {
	var config *tls.Config
	if c == nil {
		config = &tls.Config{}
	} else {
		config = c.Clone()
	}
	config.NextProtos = []string{alpn}
	config.MinVersion = tls.VersionTLS13
	return config
}

func (d *TLSDialer) DialKE(ctx context.Context, server string, port uint16) (Channel, error) {
	hostport := net.JoinHostPort(server, strconv.Itoa(int(port)))
	td := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.Timeout},
		Config:    clientConfig(d.Config),
	}
	conn, err := td.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, ntserr.New(ntserr.ErrServerUnavailable, "ntske: dial", err)
	}
	tlsConn := conn.(*tls.Conn)

	state := tlsConn.ConnectionState()
	if state.NegotiatedProtocol != alpn {
		_ = tlsConn.Close()
		return nil, ntserr.New(ntserr.ErrKeyExchangeFailed, "ntske: dial", errServerNoNTSKE)
	}

	return NewTLSChannel(tlsConn), nil
}

// Negotiate dials the NTS-KE server and runs a full key exchange.
func Negotiate(ctx context.Context, log *zap.Logger, d Dialer, server string, port uint16,
	algs []uint16) (*Result, error) {
	ch, err := d.DialKE(ctx, server, port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ch.Close() }()

	log.Debug("NTSKE channel established",
		zap.String("server", server), zap.Uint16("port", port))

	return Exchange(ctx, log, ch, server, algs)
}

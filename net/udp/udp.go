package udp

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"strconv"
	"time"

	"github.com/libp2p/go-reuseport"
	"go.uber.org/zap"

	"example.com/nts-client/base/zaplog"
)

var (
	errTimestampNotFound = errors.New("failed to read timestamp from out of band data")
	errUnexpectedData    = errors.New("failed to read out of band data")
	errWrite             = errors.New("failed to write packet")
	errUnexpectedConn    = errors.New("unexpected packet connection type")
)

// Conn is a datagram channel to a single remote endpoint.
type Conn interface {
	// Send writes b and returns the local transmit time.
	Send(b []byte) (time.Time, error)
	// Receive blocks until a datagram from the remote endpoint arrives or ctx
	// is done. It returns the datagram length and the local receive time.
	Receive(ctx context.Context, b []byte) (int, time.Time, error)
	RemoteAddr() netip.AddrPort
	Close() error
}

type Dialer interface {
	DialUDP(ctx context.Context, remote netip.AddrPort) (Conn, error)
}

// IPDialer binds a UDP socket of the remote address's family.
type IPDialer struct {
	LocalPort uint16
	ReusePort bool
	DSCP      uint8
	Log       *zap.Logger
}

type ipConn struct {
	log    *zap.Logger
	conn   *net.UDPConn
	remote netip.AddrPort
	oob    []byte
}

// LocalAddr returns the wildcard address to bind for talking to remote:
// [::] for IPv6 peers and 0.0.0.0 for IPv4 peers.
func LocalAddr(remote netip.Addr, port uint16) netip.AddrPort {
	if remote.Unmap().Is4() {
		return netip.AddrPortFrom(netip.IPv4Unspecified(), port)
	}
	return netip.AddrPortFrom(netip.IPv6Unspecified(), port)
}

func network(a netip.Addr) string {
	if a.Is4() {
		return "udp4"
	}
	return "udp6"
}

func (d *IPDialer) DialUDP(ctx context.Context, remote netip.AddrPort) (Conn, error) {
	log := zaplog.Or(d.Log)
	remote = netip.AddrPortFrom(remote.Addr().Unmap(), remote.Port())
	local := LocalAddr(remote.Addr(), d.LocalPort)

	var conn *net.UDPConn
	if d.ReusePort && d.LocalPort != 0 {
		pc, err := reuseport.ListenPacket(network(local.Addr()),
			net.JoinHostPort(local.Addr().String(), strconv.Itoa(int(local.Port()))))
		if err != nil {
			return nil, err
		}
		var ok bool
		conn, ok = pc.(*net.UDPConn)
		if !ok {
			_ = pc.Close()
			return nil, errUnexpectedConn
		}
	} else {
		var err error
		conn, err = net.ListenUDP(network(local.Addr()), net.UDPAddrFromAddrPort(local))
		if err != nil {
			return nil, err
		}
	}

	err := EnableRxTimestamps(conn)
	if err != nil {
		log.Debug("failed to enable rx timestamps", zap.Error(err))
	}
	if d.DSCP != 0 {
		err = SetDSCP(conn, d.DSCP)
		if err != nil {
			log.Info("failed to set DSCP", zap.Error(err))
		}
	}

	return &ipConn{
		log:    log,
		conn:   conn,
		remote: remote,
		oob:    make([]byte, TimestampLen()),
	}, nil
}

func (c *ipConn) RemoteAddr() netip.AddrPort {
	return c.remote
}

func (c *ipConn) Close() error {
	return c.conn.Close()
}

func (c *ipConn) Send(b []byte) (time.Time, error) {
	n, err := c.conn.WriteToUDPAddrPort(b, c.remote)
	txTime := time.Now()
	if err != nil {
		return time.Time{}, err
	}
	if n != len(b) {
		return time.Time{}, errWrite
	}
	return txTime, nil
}

func (c *ipConn) Receive(ctx context.Context, b []byte) (int, time.Time, error) {
	deadline, _ := ctx.Deadline()
	err := c.conn.SetReadDeadline(deadline)
	if err != nil {
		return 0, time.Time{}, err
	}
	// A callback still running after stop would reset the deadline of a
	// later call, so wait for it.
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(done)
		_ = c.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer func() {
		if !stop() {
			<-done
		}
	}()

	for {
		oob := c.oob[:cap(c.oob)]
		n, oobn, flags, srcAddr, err := c.conn.ReadMsgUDPAddrPort(b, oob)
		if err != nil {
			if ctx.Err() != nil {
				return 0, time.Time{}, ctx.Err()
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return 0, time.Time{}, context.DeadlineExceeded
			}
			return 0, time.Time{}, err
		}
		rxTime, err := TimestampFromOOBData(oob[:oobn])
		if err != nil {
			rxTime = time.Now()
		}
		if flags != 0 {
			c.log.Info("dropped packet", zap.Int("flags", flags))
			continue
		}
		if srcAddr.Addr().Unmap() != c.remote.Addr() || srcAddr.Port() != c.remote.Port() {
			c.log.Info("received packet from unexpected source",
				zap.Stringer("from", srcAddr))
			continue
		}
		return n, rxTime, nil
	}
}

// Package client implements the NTS synchronization engine: it runs the key
// exchange, keeps the cookie pool and performs authenticated time queries.
package client

import (
	"context"
	"crypto/cipher"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"go.uber.org/zap"

	"example.com/nts-client/base/crypto"
	"example.com/nts-client/base/ntserr"
	"example.com/nts-client/base/timebase"
	"example.com/nts-client/base/zaplog"
	"example.com/nts-client/core/config"
	"example.com/nts-client/net/ntp"
	"example.com/nts-client/net/nts"
	"example.com/nts-client/net/ntske"
	"example.com/nts-client/net/udp"
)

// Resolver looks up the addresses of the NTP server host.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// KEInfo describes the current key exchange session.
type KEInfo struct {
	Algorithm   string
	Server      string
	Port        uint16
	NumCookies  int
	CookieSizes []int
	Duration    time.Duration
}

// NTSClient is a single-server NTS client. It must not be used from more
// than one goroutine at a time.
type NTSClient struct {
	Config       config.Config
	KEDialer     ntske.Dialer
	PacketDialer udp.Dialer
	Resolver     Resolver
	Clock        timebase.LocalClock
	Histo        *hdrhistogram.Histogram

	log              *zap.Logger
	numOpsInProgress uint32
	state            atomic.Int32

	ke       *ntske.Result
	c2s, s2c cipher.AEAD
	conn     udp.Conn
	ntpAddr  netip.AddrPort
	ntpHost  string
}

// maxDatagramLen is the largest UDP payload; responses grow with the
// number and size of the cookies they return.
const maxDatagramLen = 1<<16 - 1

var clntMetrics atomic.Pointer[clientMetrics]

func init() {
	clntMetrics.Store(newClientMetrics())
}

// New validates cfg and returns a disconnected client for it.
func New(log *zap.Logger, cfg config.Config) (*NTSClient, error) {
	log = zaplog.Or(log)
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, err
	}
	if cfg.InsecureSkipVerify {
		log.Warn("TLS certificate verification disabled for key exchange",
			zap.String("server", cfg.Server))
	}

	var d ntske.Dialer
	switch cfg.KETransport {
	case config.TransportQUIC:
		d = &ntske.QUICDialer{Config: tlsCfg, Timeout: cfg.Timeout}
	default:
		d = &ntske.TLSDialer{Config: tlsCfg, Timeout: cfg.Timeout}
	}

	return &NTSClient{
		Config:   cfg,
		KEDialer: d,
		PacketDialer: &udp.IPDialer{
			LocalPort: cfg.LocalPort,
			ReusePort: cfg.ReusePort,
			DSCP:      cfg.DSCP,
			Log:       log,
		},
		Resolver: net.DefaultResolver,
		Clock:    timebase.SystemClock{},
		log:      log,
	}, nil
}

func (c *NTSClient) enter() {
	swapped := atomic.CompareAndSwapUint32(&c.numOpsInProgress, 0, 1)
	if !swapped {
		panic("too many NTS client operations in progress")
	}
}

func (c *NTSClient) exit() {
	swapped := atomic.CompareAndSwapUint32(&c.numOpsInProgress, 1, 0)
	if !swapped {
		panic("inconsistent count of NTS client operations")
	}
}

func (c *NTSClient) logger() *zap.Logger {
	return zaplog.Or(c.log)
}

func (c *NTSClient) transition(to State) {
	from := c.State()
	if !validTransition(from, to) {
		panic("illegal NTS client state transition from " + from.String() + " to " + to.String())
	}
	c.state.Store(int32(to))
}

func (c *NTSClient) State() State {
	return State(c.state.Load())
}

func (c *NTSClient) IsConnected() bool {
	s := c.State()
	return s == Ready || s == Querying
}

// NTPServer returns the address time queries are sent to, or the zero value
// if the client is not connected.
func (c *NTSClient) NTPServer() netip.AddrPort {
	return c.ntpAddr
}

// KEInfo returns details on the current key exchange session. ok is false if
// the client is not connected.
func (c *NTSClient) KEInfo() (info KEInfo, ok bool) {
	if c.ke == nil {
		return KEInfo{}, false
	}
	return KEInfo{
		Algorithm:   ntske.AlgorithmName(c.ke.Algorithm),
		Server:      c.ke.Server,
		Port:        c.ke.Port,
		NumCookies:  c.ke.Cookies.Len(),
		CookieSizes: c.ke.Cookies.Sizes(),
		Duration:    c.ke.Duration,
	}, true
}

// Connect runs the key exchange and opens the datagram channel to the NTP
// server. Connecting an already connected client has no effect.
func (c *NTSClient) Connect(ctx context.Context) error {
	c.enter()
	defer c.exit()
	if c.State() == Ready {
		return nil
	}
	return c.connect(ctx)
}

// Reconnect discards the current session and runs a fresh key exchange.
func (c *NTSClient) Reconnect(ctx context.Context) error {
	c.enter()
	defer c.exit()
	c.logger().Info("reconnecting", zap.String("server", c.Config.Server))
	c.teardown()
	return c.connect(ctx)
}

// Close releases the datagram channel and erases the session keys.
func (c *NTSClient) Close() error {
	c.enter()
	defer c.exit()
	return c.teardown()
}

func (c *NTSClient) teardown() error {
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	if c.ke != nil {
		c.ke.Keys.Zero()
		c.ke.Cookies.Clear()
		c.ke = nil
	}
	c.c2s, c.s2c = nil, nil
	c.ntpAddr = netip.AddrPort{}
	c.ntpHost = ""
	if c.State() != Disconnected {
		c.transition(Disconnected)
	}
	return err
}

func (c *NTSClient) connect(ctx context.Context) error {
	log := c.logger()
	mtrcs := clntMetrics.Load()

	c.transition(KeyExchanging)

	kectx, cancel := context.WithTimeout(ctx, c.Config.Timeout)
	defer cancel()
	res, err := ntske.Negotiate(kectx, log, c.KEDialer, c.Config.Server, c.Config.Port,
		c.Config.Algorithms)
	if err != nil {
		mtrcs.keyExchangeFailures.Inc()
		c.transition(Disconnected)
		return err
	}
	mtrcs.keyExchanges.Inc()

	fail := func(err error) error {
		res.Keys.Zero()
		res.Cookies.Clear()
		c.c2s, c.s2c = nil, nil
		c.transition(Disconnected)
		return err
	}

	c.c2s, err = ntske.NewAEAD(res.Algorithm, res.Keys.C2S)
	if err != nil {
		return fail(ntserr.New(ntserr.ErrKeyExchangeFailed, "client: connect", err))
	}
	c.s2c, err = ntske.NewAEAD(res.Algorithm, res.Keys.S2C)
	if err != nil {
		return fail(ntserr.New(ntserr.ErrKeyExchangeFailed, "client: connect", err))
	}

	host, port := res.Server, res.Port
	if c.Config.NTPServer != "" {
		host, port, err = config.SplitNTPServer(c.Config.NTPServer)
		if err != nil {
			return fail(err)
		}
	}
	addr, err := c.resolve(ctx, host)
	if err != nil {
		return fail(err)
	}
	remote := netip.AddrPortFrom(addr, port)

	conn, err := c.PacketDialer.DialUDP(ctx, remote)
	if err != nil {
		return fail(ntserr.New(ntserr.ErrIO, "client: connect", err))
	}

	c.ke = res
	c.conn = conn
	c.ntpAddr = remote
	c.ntpHost = host
	c.transition(Ready)

	log.Debug("connected",
		zap.String("ntske", net.JoinHostPort(c.Config.Server, strconv.Itoa(int(c.Config.Port)))),
		zap.String("ntp", host),
		zap.Stringer("addr", remote),
		zap.String("aead", ntske.AlgorithmName(res.Algorithm)),
		zap.Int("cookies", res.Cookies.Len()),
		zap.Duration("duration", res.Duration),
	)
	return nil
}

func (c *NTSClient) resolve(ctx context.Context, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), nil
	}
	addrs, err := c.Resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, ntserr.New(ntserr.ErrServerUnavailable, "client: resolve "+host, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, ntserr.New(ntserr.ErrServerUnavailable, "client: resolve "+host, errNoAddress)
	}
	i, err := crypto.RandIntn(ctx, len(addrs))
	if err != nil {
		return netip.Addr{}, ntserr.New(ntserr.ErrIO, "client: resolve "+host, err)
	}
	return addrs[i].Unmap(), nil
}

// NeedsReconnect reports whether err leaves the session unusable, so that
// only a new key exchange can recover.
func NeedsReconnect(err error) bool {
	return errors.Is(err, ntserr.ErrCookiesExhausted) ||
		errors.Is(err, ntserr.ErrAuthenticationFailed) ||
		errors.Is(err, ntserr.ErrNotConnected)
}

// GetTime performs one authenticated time query. Each attempt uses a new
// unique identifier and the next cookie from the pool; a request is retried
// only if no matching response arrives before the timeout.
func (c *NTSClient) GetTime(ctx context.Context) (TimeSnapshot, error) {
	c.enter()
	defer c.exit()

	if c.State() != Ready {
		return TimeSnapshot{}, ntserr.New(ntserr.ErrNotConnected, "client: get time", nil)
	}
	mtrcs := clntMetrics.Load()
	if c.ke.Cookies.Len() == 0 {
		mtrcs.cookiesExhausted.Inc()
		return TimeSnapshot{}, ntserr.New(ntserr.ErrCookiesExhausted, "client: get time", nil)
	}

	c.transition(Querying)
	snap, err := c.query(ctx, mtrcs)
	if errors.Is(err, errTransport) {
		c.logger().Info("transport failure, disconnecting", zap.Error(err))
		_ = c.teardown()
	} else {
		c.transition(Ready)
	}
	return snap, err
}

func (c *NTSClient) query(ctx context.Context, mtrcs *clientMetrics) (TimeSnapshot, error) {
	log := c.logger()
	pool := c.ke.Cookies

	var reqBuf []byte
	respBuf := make([]byte, maxDatagramLen)

	for attempt := 0; attempt <= c.Config.MaxRetries; attempt++ {
		cookie, err := pool.Take()
		if err != nil {
			mtrcs.cookiesExhausted.Inc()
			return TimeSnapshot{}, err
		}

		uid, err := nts.NewUniqueID()
		if err != nil {
			pool.Requeue(cookie)
			return TimeSnapshot{}, ntserr.New(ntserr.ErrIO, "client: get time", err)
		}

		var req nts.Request
		req.Header.SetVersion(c.Config.NTPVersion)
		req.Header.SetMode(ntp.ModeClient)
		req.Header.TransmitTime = ntp.Time64FromTime(c.Clock.Now())
		req.UniqueID = uid
		req.Cookie = cookie
		req.Placeholders = nts.NumPlaceholders(pool.Len(), c.Config.NumCookies)

		err = nts.EncodeRequest(&reqBuf, &req, c.c2s)
		if err != nil {
			return TimeSnapshot{}, ntserr.New(ntserr.ErrProtocolViolation, "client: get time", err)
		}

		if err = ctx.Err(); err != nil {
			pool.Requeue(cookie)
			return TimeSnapshot{}, err
		}

		cTxTime, err := c.conn.Send(reqBuf)
		if err != nil {
			return TimeSnapshot{}, ntserr.New(ntserr.ErrIO, "client: get time",
				errors.Join(errTransport, err))
		}
		mtrcs.reqsSent.Inc()

		log.Debug("sent request",
			zap.Stringer("to", c.ntpAddr),
			zap.Int("attempt", attempt),
			zap.Int("placeholders", req.Placeholders),
			zap.Object("data", ntp.PacketMarshaler{Pkt: &req.Header}),
		)

		snap, err := c.await(ctx, mtrcs, respBuf, uid, req.Header.TransmitTime, cTxTime)
		if errors.Is(err, errNoResponse) {
			mtrcs.reqTimeouts.Inc()
			log.Info("no response before deadline",
				zap.Stringer("to", c.ntpAddr), zap.Int("attempt", attempt))
			continue
		}
		return snap, err
	}

	return TimeSnapshot{}, ntserr.New(ntserr.ErrTimeout, "client: get time", errNoResponse)
}

// await receives datagrams until a response matching uid arrives or the
// per-attempt timeout expires.
func (c *NTSClient) await(ctx context.Context, mtrcs *clientMetrics, buf []byte,
	uid []byte, txTime ntp.Time64, cTxTime time.Time) (TimeSnapshot, error) {
	log := c.logger()

	actx, cancel := context.WithTimeout(ctx, c.Config.Timeout)
	defer cancel()

	for {
		n, cRxTime, err := c.conn.Receive(actx, buf)
		if err != nil {
			if ctx.Err() != nil {
				return TimeSnapshot{}, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return TimeSnapshot{}, errNoResponse
			}
			return TimeSnapshot{}, ntserr.New(ntserr.ErrIO, "client: get time",
				errors.Join(errTransport, err))
		}
		mtrcs.pktsReceived.Inc()

		resp, err := nts.DecodeResponse(buf[:n], c.s2c, uid)
		if err != nil {
			if errors.Is(err, nts.ErrUnmatched) {
				mtrcs.pktsUnmatched.Inc()
				log.Debug("dropped unmatched response", zap.Stringer("from", c.ntpAddr))
				continue
			}
			if errors.Is(err, ntserr.ErrAuthenticationFailed) {
				mtrcs.authFailures.Inc()
			}
			return TimeSnapshot{}, err
		}
		mtrcs.pktsAuthenticated.Inc()

		log.Debug("received response",
			zap.Stringer("from", c.ntpAddr),
			zap.Object("data", ntp.PacketMarshaler{Pkt: &resp.Header}),
			zap.Int("cookies", len(resp.Cookies)),
		)

		err = ntp.ValidateResponseOrigin(&resp.Header, txTime)
		if err != nil {
			return TimeSnapshot{}, ntserr.New(ntserr.ErrProtocolViolation, "client: get time", err)
		}

		for _, ck := range resp.Cookies {
			c.ke.Cookies.Put(ck)
		}
		mtrcs.cookiesReceived.Add(float64(len(resp.Cookies)))

		sRxTime := ntp.TimeFromTime64(resp.Header.ReceiveTime, cTxTime)
		sTxTime := ntp.TimeFromTime64(resp.Header.TransmitTime, cTxTime)

		err = ntp.ValidateResponseTimestamps(cTxTime, sRxTime, sTxTime, cRxTime)
		if errors.Is(err, ntp.ErrLocalClock) {
			return TimeSnapshot{}, ntserr.New(ntserr.ErrIO, "client: get time", err)
		}
		if err != nil {
			return TimeSnapshot{}, ntserr.New(ntserr.ErrProtocolViolation, "client: get time", err)
		}

		off := ntp.ClockOffset(cTxTime, sRxTime, sTxTime, cRxTime)
		rtd := ntp.RoundTripDelay(cTxTime, sRxTime, sTxTime, cRxTime)

		mtrcs.respsAccepted.Inc()
		if c.Histo != nil {
			_ = c.Histo.RecordValue(rtd.Microseconds())
		}

		snap := TimeSnapshot{
			NetworkTime:      sTxTime,
			LocalSendTime:    cTxTime,
			LocalReceiveTime: cRxTime,
			Offset:           off,
			RoundTripDelay:   rtd,
			Authenticated:    true,
			Stratum:          resp.Header.Stratum,
			LeapIndicator:    resp.Header.LeapIndicator(),
			Server:           c.ntpHost,
			ReferenceID:      resp.Header.ReferenceID,
		}
		log.Debug("evaluated response", zap.Object("snapshot", snap))
		return snap, nil
	}
}

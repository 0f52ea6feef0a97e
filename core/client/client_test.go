package client_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"go.uber.org/zap/zaptest"

	"example.com/nts-client/base/ntserr"
	"example.com/nts-client/core/client"
	"example.com/nts-client/core/config"
	"example.com/nts-client/net/ntp"
	"example.com/nts-client/net/nts/ntstest"
	"example.com/nts-client/net/ntske"
	"example.com/nts-client/net/udp"
)

var ntpAddr = netip.MustParseAddr("192.0.2.1")

type keChannel struct {
	rx       *bytes.Reader
	secret   []byte
	exported [][]byte
	closed   bool
}

func (c *keChannel) Read(p []byte) (int, error)    { return c.rx.Read(p) }
func (c *keChannel) Write(p []byte) (int, error)   { return len(p), nil }
func (c *keChannel) Close() error                  { c.closed = true; return nil }
func (c *keChannel) SetDeadline(t time.Time) error { return nil }

func (c *keChannel) ExportKeyingMaterial(label string, context []byte, length int) ([]byte, error) {
	var out []byte
	for i := byte(0); len(out) < length; i++ {
		h := sha256.New()
		h.Write(c.secret)
		h.Write([]byte(label))
		h.Write(context)
		h.Write([]byte{i})
		out = h.Sum(out)
	}
	out = out[:length]
	c.exported = append(c.exported, out)
	return out, nil
}

type fakeConn struct {
	srv     *testServer
	queue   [][]byte
	sendErr error
	closed  bool
}

func (c *fakeConn) Send(b []byte) (time.Time, error) {
	if c.sendErr != nil {
		return time.Time{}, c.sendErr
	}
	s := c.srv
	s.sends++
	c.queue = append(c.queue, s.respond(s.responder, b)...)
	if s.sent != nil {
		s.sent <- struct{}{}
	}
	if !s.t1.IsZero() {
		return s.t1, nil
	}
	return time.Now(), nil
}

func (c *fakeConn) Receive(ctx context.Context, b []byte) (int, time.Time, error) {
	if len(c.queue) == 0 {
		<-ctx.Done()
		return 0, time.Time{}, ctx.Err()
	}
	n := copy(b, c.queue[0])
	c.queue = c.queue[1:]
	if !c.srv.t4.IsZero() {
		return n, c.srv.t4, nil
	}
	return n, time.Now(), nil
}

func (c *fakeConn) RemoteAddr() netip.AddrPort { return netip.AddrPortFrom(ntpAddr, 123) }
func (c *fakeConn) Close() error               { c.closed = true; return nil }

// testServer plays the NTS-KE server, the NTP server and the resolver.
type testServer struct {
	t           *testing.T
	alg         uint16
	keCookies   int
	respCookies int
	keErr       error

	// respond maps a request to the datagrams sent back.
	respond func(r *ntstest.Responder, b []byte) [][]byte
	now     func() (rx, tx time.Time)
	t1, t4  time.Time
	sent    chan struct{}

	sessions  []*keChannel
	responder *ntstest.Responder
	conn      *fakeConn
	sends     int
}

func newTestServer(t *testing.T) *testServer {
	return &testServer{
		t:           t,
		alg:         ntske.AES_SIV_CMAC_256,
		keCookies:   8,
		respCookies: -1,
		respond:     respondOnce,
	}
}

func respondOnce(r *ntstest.Responder, b []byte) [][]byte {
	out, err := r.Respond(b)
	if err != nil {
		panic(err)
	}
	return [][]byte{out}
}

func drop(r *ntstest.Responder, b []byte) [][]byte {
	_, err := r.Respond(b)
	if err != nil {
		panic(err)
	}
	return nil
}

func sessionSecret(i int) []byte {
	return []byte(fmt.Sprintf("session-%d", i))
}

func (s *testServer) responderFor(secret []byte) *ntstest.Responder {
	keys, err := ntske.ExportKeys(&keChannel{secret: secret}, s.alg)
	if err != nil {
		s.t.Fatal(err)
	}
	c2s, err := ntske.NewAEAD(s.alg, keys.C2S)
	if err != nil {
		s.t.Fatal(err)
	}
	s2c, err := ntske.NewAEAD(s.alg, keys.S2C)
	if err != nil {
		s.t.Fatal(err)
	}
	return &ntstest.Responder{C2S: c2s, S2C: s2c, NumCookies: s.respCookies, Now: s.now}
}

func (s *testServer) DialKE(ctx context.Context, server string, port uint16) (ntske.Channel, error) {
	if s.keErr != nil {
		return nil, s.keErr
	}
	recs := []ntske.Record{
		ntske.NextProtoRecord(ntske.NTPv4),
		ntske.AlgorithmRecord(s.alg),
	}
	for i := range s.keCookies {
		recs = append(recs, ntske.CookieRecord(bytes.Repeat([]byte{byte(0x80 + i)}, 64)))
	}
	recs = append(recs, ntske.EndRecord())
	b, err := ntske.Encode(recs)
	if err != nil {
		s.t.Fatal(err)
	}
	secret := sessionSecret(len(s.sessions))
	ch := &keChannel{rx: bytes.NewReader(b), secret: secret}
	s.sessions = append(s.sessions, ch)
	s.responder = s.responderFor(secret)
	return ch, nil
}

func (s *testServer) DialUDP(ctx context.Context, remote netip.AddrPort) (udp.Conn, error) {
	s.conn = &fakeConn{srv: s}
	return s.conn, nil
}

func (s *testServer) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	if host != "ke.example.com" {
		return nil, fmt.Errorf("no such host %q", host)
	}
	return []netip.Addr{ntpAddr}, nil
}

func newClient(t *testing.T, srv *testServer, mod func(cfg *config.Config)) *client.NTSClient {
	cfg := config.Default("ke.example.com")
	cfg.Timeout = 50 * time.Millisecond
	cfg.MaxRetries = 2
	if mod != nil {
		mod(&cfg)
	}
	c, err := client.New(zaptest.NewLogger(t), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.KEDialer = srv
	c.PacketDialer = srv
	c.Resolver = srv
	return c
}

func connect(t *testing.T, c *client.NTSClient) {
	err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
}

func allZero(b []byte) bool {
	return bytes.Equal(b, make([]byte, len(b)))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default("")
	_, err := client.New(zaptest.NewLogger(t), cfg)
	if !errors.Is(err, ntserr.ErrInvalidConfig) {
		t.Fatalf("New with empty server: got %v, want ErrInvalidConfig", err)
	}
}

func TestConnectAndGetTime(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv, nil)
	if c.State() != client.Disconnected || c.IsConnected() {
		t.Fatalf("new client in state %v", c.State())
	}
	connect(t, c)
	if c.State() != client.Ready || !c.IsConnected() {
		t.Fatalf("connected client in state %v", c.State())
	}
	if got, want := c.NTPServer(), netip.AddrPortFrom(ntpAddr, 123); got != want {
		t.Errorf("NTPServer() = %v, want %v", got, want)
	}
	info, ok := c.KEInfo()
	if !ok {
		t.Fatal("KEInfo() not available after Connect")
	}
	if info.Algorithm != "AES-SIV-CMAC-256" || info.NumCookies != 8 || len(info.CookieSizes) != 8 {
		t.Errorf("unexpected KEInfo %+v", info)
	}

	snap, err := c.GetTime(context.Background())
	if err != nil {
		t.Fatalf("GetTime failed: %v", err)
	}
	if !snap.Authenticated || snap.Server != "ke.example.com" || snap.Stratum != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.RoundTripDelay < 0 {
		t.Errorf("negative round trip delay %v", snap.RoundTripDelay)
	}
	if c.State() != client.Ready {
		t.Errorf("state after GetTime = %v, want ready", c.State())
	}

	reqs := srv.responder.Requests
	if len(reqs) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(reqs))
	}
	if len(reqs[0].Cookies) != 1 || len(reqs[0].CookiePlaceholders) != 0 {
		t.Errorf("request carried %d cookies and %d placeholders, want 1 and 0",
			len(reqs[0].Cookies), len(reqs[0].CookiePlaceholders))
	}
	info, _ = c.KEInfo()
	if info.NumCookies != 8 {
		t.Errorf("pool holds %d cookies after refill, want 8", info.NumCookies)
	}
}

func TestGetTimeOffsetAndDelay(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	srv := newTestServer(t)
	srv.t1 = base
	srv.t4 = base.Add(20 * time.Millisecond)
	srv.now = func() (time.Time, time.Time) {
		return base.Add(1000 * time.Millisecond), base.Add(1010 * time.Millisecond)
	}
	c := newClient(t, srv, nil)
	c.Histo = hdrhistogram.New(1, 10_000_000, 3)
	connect(t, c)

	snap, err := c.GetTime(context.Background())
	if err != nil {
		t.Fatalf("GetTime failed: %v", err)
	}
	if snap.Offset != 995*time.Millisecond {
		t.Errorf("Offset = %v, want 995ms", snap.Offset)
	}
	if snap.RoundTripDelay != 10*time.Millisecond {
		t.Errorf("RoundTripDelay = %v, want 10ms", snap.RoundTripDelay)
	}
	if !snap.NetworkTime.Equal(base.Add(1010 * time.Millisecond)) {
		t.Errorf("NetworkTime = %v, want server transmit time", snap.NetworkTime)
	}
	if !snap.IsBehind() || snap.IsAhead() {
		t.Errorf("local clock must be behind the network for a positive offset")
	}
	if c.Histo.TotalCount() != 1 {
		t.Errorf("histogram holds %d values, want 1", c.Histo.TotalCount())
	}
}

func TestGetTimeLocalClockStepped(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	srv := newTestServer(t)
	srv.t1 = base
	srv.t4 = base.Add(-time.Second)
	srv.now = func() (time.Time, time.Time) {
		return base.Add(5 * time.Millisecond), base.Add(6 * time.Millisecond)
	}
	c := newClient(t, srv, nil)
	connect(t, c)

	_, err := c.GetTime(context.Background())
	if !errors.Is(err, ntserr.ErrIO) || !errors.Is(err, ntp.ErrLocalClock) {
		t.Fatalf("got %v, want I/O error for the local clock", err)
	}
	if errors.Is(err, ntserr.ErrProtocolViolation) || client.NeedsReconnect(err) {
		t.Errorf("local clock error must not blame the server: %v", err)
	}
	if c.State() != client.Ready {
		t.Errorf("state = %v, want Ready", c.State())
	}
	if info, _ := c.KEInfo(); info.NumCookies != 8 {
		t.Errorf("pool holds %d cookies, want 8", info.NumCookies)
	}
}

func TestGetTimeLargeResponse(t *testing.T) {
	srv := newTestServer(t)
	srv.keCookies = 1
	srv.respond = func(r *ntstest.Responder, b []byte) [][]byte {
		r.CookieLen = 200
		return respondOnce(r, b)
	}
	c := newClient(t, srv, func(cfg *config.Config) { cfg.NumCookies = config.MaxNumCookies })
	connect(t, c)

	_, err := c.GetTime(context.Background())
	if err != nil {
		t.Fatalf("GetTime failed: %v", err)
	}
	if n := len(srv.responder.Requests[0].CookiePlaceholders); n != config.MaxNumCookies-1 {
		t.Errorf("request carried %d placeholders, want %d", n, config.MaxNumCookies-1)
	}
	info, _ := c.KEInfo()
	if info.NumCookies != config.MaxNumCookies {
		t.Fatalf("pool holds %d cookies, want %d", info.NumCookies, config.MaxNumCookies)
	}
	for _, n := range info.CookieSizes {
		if n != 200 {
			t.Errorf("cookie size %d, want 200", n)
		}
	}
}

func TestGetTimeCookiesExhausted(t *testing.T) {
	srv := newTestServer(t)
	srv.keCookies = 1
	srv.respCookies = 0
	c := newClient(t, srv, nil)
	connect(t, c)

	_, err := c.GetTime(context.Background())
	if err != nil {
		t.Fatalf("first GetTime failed: %v", err)
	}
	if info, _ := c.KEInfo(); info.NumCookies != 0 {
		t.Fatalf("pool holds %d cookies, want 0", info.NumCookies)
	}
	if n := len(srv.responder.Requests[0].CookiePlaceholders); n != 7 {
		t.Errorf("request carried %d placeholders, want 7", n)
	}
	_, err = c.GetTime(context.Background())
	if !errors.Is(err, ntserr.ErrCookiesExhausted) {
		t.Fatalf("second GetTime: got %v, want ErrCookiesExhausted", err)
	}
	if srv.sends != 1 {
		t.Errorf("sent %d requests, want 1", srv.sends)
	}
	if c.State() != client.Ready {
		t.Errorf("state = %v, want ready", c.State())
	}
}

func TestGetTimeTimeout(t *testing.T) {
	srv := newTestServer(t)
	srv.respond = drop
	c := newClient(t, srv, nil)
	connect(t, c)

	_, err := c.GetTime(context.Background())
	if !errors.Is(err, ntserr.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if srv.sends != 3 {
		t.Errorf("sent %d requests, want MaxRetries+1 = 3", srv.sends)
	}
	if c.State() != client.Ready {
		t.Errorf("state = %v, want ready", c.State())
	}
	if info, _ := c.KEInfo(); info.NumCookies != 5 {
		t.Errorf("pool holds %d cookies, want 5", info.NumCookies)
	}

	reqs := srv.responder.Requests
	for i := range reqs {
		for j := i + 1; j < len(reqs); j++ {
			if bytes.Equal(reqs[i].Cookies[0], reqs[j].Cookies[0]) {
				t.Errorf("requests %d and %d reused a cookie", i, j)
			}
			if bytes.Equal(reqs[i].UniqueID, reqs[j].UniqueID) {
				t.Errorf("requests %d and %d reused a unique identifier", i, j)
			}
		}
	}
}

func TestGetTimeExhaustedDuringRetries(t *testing.T) {
	srv := newTestServer(t)
	srv.keCookies = 2
	srv.respond = drop
	c := newClient(t, srv, func(cfg *config.Config) { cfg.MaxRetries = 3 })
	connect(t, c)

	_, err := c.GetTime(context.Background())
	if !errors.Is(err, ntserr.ErrCookiesExhausted) {
		t.Fatalf("got %v, want ErrCookiesExhausted", err)
	}
	if srv.sends != 2 {
		t.Errorf("sent %d requests, want 2", srv.sends)
	}
}

func TestGetTimeSkipsUnmatched(t *testing.T) {
	srv := newTestServer(t)
	srv.respond = func(r *ntstest.Responder, b []byte) [][]byte {
		foreign := &ntstest.Responder{C2S: r.C2S, S2C: r.S2C, NumCookies: 1, ForeignUID: true}
		out, err := foreign.Respond(b)
		if err != nil {
			panic(err)
		}
		return append([][]byte{out}, respondOnce(r, b)...)
	}
	c := newClient(t, srv, nil)
	connect(t, c)

	_, err := c.GetTime(context.Background())
	if err != nil {
		t.Fatalf("GetTime failed: %v", err)
	}
	if srv.sends != 1 {
		t.Errorf("sent %d requests, want 1", srv.sends)
	}
}

func TestGetTimeOnlyUnmatched(t *testing.T) {
	srv := newTestServer(t)
	srv.respond = func(r *ntstest.Responder, b []byte) [][]byte {
		r.ForeignUID = true
		return respondOnce(r, b)
	}
	c := newClient(t, srv, nil)
	connect(t, c)

	_, err := c.GetTime(context.Background())
	if !errors.Is(err, ntserr.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if srv.sends != 3 {
		t.Errorf("sent %d requests, want 3", srv.sends)
	}
}

func TestGetTimeFailuresNotRetried(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *ntstest.Responder)
		want  error
	}{
		{"bad tag", func(r *ntstest.Responder) { r.CorruptTag = true }, ntserr.ErrAuthenticationFailed},
		{"nak", func(r *ntstest.Responder) { r.NAK = true }, ntserr.ErrAuthenticationFailed},
		{"wrong origin", func(r *ntstest.Responder) { r.WrongOrigin = true }, ntserr.ErrProtocolViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			srv.respond = func(r *ntstest.Responder, b []byte) [][]byte {
				tt.setup(r)
				return respondOnce(r, b)
			}
			c := newClient(t, srv, nil)
			connect(t, c)

			_, err := c.GetTime(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if srv.sends != 1 {
				t.Errorf("sent %d requests, want 1", srv.sends)
			}
			if c.State() != client.Ready {
				t.Errorf("state = %v, want ready", c.State())
			}
		})
	}
}

func TestGetTimeTransportFailure(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv, nil)
	connect(t, c)
	srv.conn.sendErr = errors.New("network is unreachable")

	_, err := c.GetTime(context.Background())
	if !errors.Is(err, ntserr.ErrIO) {
		t.Fatalf("got %v, want ErrIO", err)
	}
	if c.State() != client.Disconnected || c.IsConnected() {
		t.Errorf("state = %v, want disconnected", c.State())
	}
	if !srv.conn.closed {
		t.Errorf("datagram channel not closed")
	}
	_, err = c.GetTime(context.Background())
	if !errors.Is(err, ntserr.ErrNotConnected) {
		t.Errorf("GetTime after disconnect: got %v, want ErrNotConnected", err)
	}
}

func TestGetTimeNotConnected(t *testing.T) {
	c := newClient(t, newTestServer(t), nil)
	_, err := c.GetTime(context.Background())
	if !errors.Is(err, ntserr.ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
}

func TestGetTimeCanceled(t *testing.T) {
	srv := newTestServer(t)
	srv.respond = drop
	c := newClient(t, srv, func(cfg *config.Config) { cfg.Timeout = time.Second })
	connect(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GetTime(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
	if srv.sends != 1 {
		t.Errorf("sent %d requests, want 1", srv.sends)
	}
	if c.State() != client.Ready {
		t.Errorf("state = %v, want ready", c.State())
	}
	if info, _ := c.KEInfo(); info.NumCookies != 7 {
		t.Errorf("pool holds %d cookies, want 7", info.NumCookies)
	}
}

func TestConnectFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.keErr = ntserr.New(ntserr.ErrServerUnavailable, "dial", errors.New("connection refused"))
	c := newClient(t, srv, nil)

	err := c.Connect(context.Background())
	if !errors.Is(err, ntserr.ErrServerUnavailable) {
		t.Fatalf("got %v, want ErrServerUnavailable", err)
	}
	if c.State() != client.Disconnected {
		t.Errorf("state = %v, want disconnected", c.State())
	}
	if _, ok := c.KEInfo(); ok {
		t.Errorf("KEInfo available after failed Connect")
	}
}

func TestConnectNoCookies(t *testing.T) {
	srv := newTestServer(t)
	srv.keCookies = 0
	c := newClient(t, srv, nil)

	err := c.Connect(context.Background())
	if !errors.Is(err, ntserr.ErrKeyExchangeFailed) {
		t.Fatalf("got %v, want ErrKeyExchangeFailed", err)
	}
	if c.State() != client.Disconnected {
		t.Errorf("state = %v, want disconnected", c.State())
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv, nil)
	connect(t, c)
	connect(t, c)
	if len(srv.sessions) != 1 {
		t.Errorf("ran %d key exchanges, want 1", len(srv.sessions))
	}
}

func TestConnectNTPServerOverride(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv, func(cfg *config.Config) { cfg.NTPServer = "198.51.100.7:1123" })
	connect(t, c)
	if got, want := c.NTPServer(), netip.MustParseAddrPort("198.51.100.7:1123"); got != want {
		t.Errorf("NTPServer() = %v, want %v", got, want)
	}
}

func TestReconnect(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv, nil)
	connect(t, c)
	oldConn := srv.conn

	err := c.Reconnect(context.Background())
	if err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	if len(srv.sessions) != 2 {
		t.Fatalf("ran %d key exchanges, want 2", len(srv.sessions))
	}
	if !oldConn.closed {
		t.Errorf("old datagram channel not closed")
	}
	old := srv.sessions[0]
	if len(old.exported) != 2 {
		t.Fatalf("first session exported %d keys, want 2", len(old.exported))
	}
	for i, k := range old.exported {
		if !allZero(k) {
			t.Errorf("key %d of the first session not erased", i)
		}
	}
	for i, k := range srv.sessions[1].exported {
		if allZero(k) {
			t.Errorf("key %d of the current session erased", i)
		}
	}

	// Responses sealed with the first session's keys must not validate.
	stale := srv.responderFor(sessionSecret(0))
	srv.respond = func(r *ntstest.Responder, b []byte) [][]byte {
		s := *r
		s.S2C = stale.S2C
		return respondOnce(&s, b)
	}
	_, err = c.GetTime(context.Background())
	if !errors.Is(err, ntserr.ErrAuthenticationFailed) {
		t.Fatalf("response under old keys: got %v, want ErrAuthenticationFailed", err)
	}

	srv.respond = respondOnce
	_, err = c.GetTime(context.Background())
	if err != nil {
		t.Fatalf("GetTime after reconnect failed: %v", err)
	}
}

func TestCloseErasesKeys(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv, nil)
	connect(t, c)

	err := c.Close()
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if c.State() != client.Disconnected {
		t.Errorf("state = %v, want disconnected", c.State())
	}
	if !srv.conn.closed {
		t.Errorf("datagram channel not closed")
	}
	for i, k := range srv.sessions[0].exported {
		if !allZero(k) {
			t.Errorf("key %d not erased", i)
		}
	}
	if c.NTPServer().IsValid() {
		t.Errorf("NTPServer() = %v after Close", c.NTPServer())
	}
	if err = c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestConcurrentUsePanics(t *testing.T) {
	srv := newTestServer(t)
	srv.respond = drop
	srv.sent = make(chan struct{}, 1)
	c := newClient(t, srv, func(cfg *config.Config) { cfg.Timeout = 10 * time.Second })
	connect(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		_, err := c.GetTime(ctx)
		done <- err
	}()
	<-srv.sent

	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("concurrent GetTime must panic")
			}
		}()
		_, _ = c.GetTime(context.Background())
	}()

	cancel()
	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestNeedsReconnect(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ntserr.New(ntserr.ErrCookiesExhausted, "op", nil), true},
		{ntserr.New(ntserr.ErrAuthenticationFailed, "op", nil), true},
		{ntserr.New(ntserr.ErrNotConnected, "op", nil), true},
		{ntserr.New(ntserr.ErrTimeout, "op", nil), false},
		{ntserr.New(ntserr.ErrProtocolViolation, "op", nil), false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		if got := client.NeedsReconnect(tt.err); got != tt.want {
			t.Errorf("NeedsReconnect(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

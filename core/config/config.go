// Package config holds the NTS client configuration.
package config

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"example.com/nts-client/base/ntserr"
	"example.com/nts-client/net/ntske"
)

// MaxDSCP is the largest Differentiated Services Codepoint value that can be
// set on time synchronization packets.
const MaxDSCP = 63

// MaxNumCookies bounds the cookie pool target so that a request with one
// placeholder per missing cookie stays well below the datagram size limit.
const MaxNumCookies = 16

const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
	DefaultNTPVersion = 4

	TransportTCP  = "tcp"
	TransportQUIC = "quic"
)

type Config struct {
	// Server is the NTS-KE server host name or address.
	Server string
	Port   uint16

	Timeout    time.Duration
	MaxRetries int
	Algorithms []uint16

	// NTPServer, if set, overrides the NTP server negotiated during key
	// exchange. It has the form host or host:port.
	NTPServer  string
	NTPVersion uint8

	InsecureSkipVerify bool
	CAFiles            []string
	RootCAs            *x509.CertPool

	KETransport string
	LocalPort   uint16
	ReusePort   bool
	DSCP        uint8
	NumCookies  int
}

func Default(server string) Config {
	return Config{
		Server:      server,
		Port:        ntske.ServerPortIP,
		Timeout:     DefaultTimeout,
		MaxRetries:  DefaultMaxRetries,
		Algorithms:  slices.Clone(ntske.DefaultAlgorithms),
		NTPVersion:  DefaultNTPVersion,
		KETransport: TransportTCP,
		NumCookies:  8,
	}
}

func invalid(format string, args ...any) error {
	return ntserr.New(ntserr.ErrInvalidConfig, "config", fmt.Errorf(format, args...))
}

func (c *Config) Validate() error {
	if c.Server == "" {
		return invalid("NTS-KE server hostname is required")
	}
	if c.Port == 0 {
		return invalid("NTS-KE port must not be 0")
	}
	if c.NTPVersion < 3 || c.NTPVersion > 4 {
		return invalid("NTP version must be 3 or 4")
	}
	if c.Timeout <= 0 {
		return invalid("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return invalid("max retries must not be negative")
	}
	if len(c.Algorithms) == 0 {
		return invalid("at least one AEAD algorithm is required")
	}
	for _, a := range c.Algorithms {
		if !ntske.SupportedAlgorithm(a) {
			return invalid("unsupported AEAD algorithm %d", a)
		}
	}
	if c.KETransport != TransportTCP && c.KETransport != TransportQUIC {
		return invalid("unknown key exchange transport %q", c.KETransport)
	}
	if c.DSCP > MaxDSCP {
		return invalid("DSCP must be in range [0, %d]", MaxDSCP)
	}
	if c.NumCookies < 1 || c.NumCookies > MaxNumCookies {
		return invalid("number of cookies must be in range [1, %d]", MaxNumCookies)
	}
	if c.NTPServer != "" {
		_, _, err := SplitNTPServer(c.NTPServer)
		if err != nil {
			return invalid("invalid NTP server %q: %v", c.NTPServer, err)
		}
	}
	return nil
}

// SplitNTPServer splits an NTP server of the form host or host:port. The
// port defaults to 123.
func SplitNTPServer(s string) (string, uint16, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		var addrErr *net.AddrError
		if errors.As(err, &addrErr) && addrErr.Err == "missing port in address" {
			return s, 123, nil
		}
		return "", 0, err
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return "", 0, err
	}
	if host == "" {
		return "", 0, errors.New("missing host")
	}
	return host, uint16(p), nil
}

// TLSConfig returns the TLS configuration for the key exchange. The root
// pool is RootCAs if set, otherwise a copy of the system pool; CAFiles are
// added to it.
func (c *Config) TLSConfig() (*tls.Config, error) {
	pool := c.RootCAs
	if pool == nil {
		var err error
		pool, err = x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
	} else {
		pool = pool.Clone()
	}
	for _, f := range c.CAFiles {
		pem, err := os.ReadFile(f)
		if err != nil {
			return nil, invalid("failed to read CA file: %v", err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, invalid("no certificates found in %s", f)
		}
	}
	return &tls.Config{
		ServerName:         c.Server,
		RootCAs:            pool,
		InsecureSkipVerify: c.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS13,
	}, nil
}

type fileConfig struct {
	Server             string   `toml:"server"`
	Port               uint16   `toml:"port,omitempty"`
	Timeout            string   `toml:"timeout,omitempty"`
	MaxRetries         *int     `toml:"max_retries,omitempty"`
	Algorithms         []string `toml:"aead_algorithms,omitempty"`
	NTPServer          string   `toml:"ntp_server,omitempty"`
	NTPVersion         uint8    `toml:"ntp_version,omitempty"`
	InsecureSkipVerify bool     `toml:"ntske_insecure_skip_verify,omitempty"`
	CAFiles            []string `toml:"ca_files,omitempty"`
	KETransport        string   `toml:"ntske_transport,omitempty"`
	LocalPort          uint16   `toml:"local_port,omitempty"`
	ReusePort          bool     `toml:"reuse_port,omitempty"`
	DSCP               uint8    `toml:"dscp,omitempty"`
	NumCookies         int      `toml:"num_cookies,omitempty"`
}

var algorithmIDs = map[string]uint16{
	"AES-SIV-CMAC-256": ntske.AES_SIV_CMAC_256,
	"AES-SIV-CMAC-384": ntske.AES_SIV_CMAC_384,
	"AES-SIV-CMAC-512": ntske.AES_SIV_CMAC_512,
	"AES-128-GCM-SIV":  ntske.AES_128_GCM_SIV,
}

// ParseAlgorithm returns the identifier of the AEAD algorithm with the given
// name, e.g. AES-SIV-CMAC-256.
func ParseAlgorithm(name string) (uint16, error) {
	id, ok := algorithmIDs[name]
	if !ok {
		return 0, invalid("unknown AEAD algorithm %q", name)
	}
	return id, nil
}

// Decode reads a TOML configuration. Unset fields keep their defaults.
func Decode(raw []byte) (Config, error) {
	var fc fileConfig
	err := toml.NewDecoder(bytes.NewReader(raw)).DisallowUnknownFields().Decode(&fc)
	if err != nil {
		return Config{}, invalid("failed to decode configuration: %v", err)
	}

	cfg := Default(fc.Server)
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.Timeout != "" {
		cfg.Timeout, err = time.ParseDuration(fc.Timeout)
		if err != nil {
			return Config{}, invalid("invalid timeout: %v", err)
		}
	}
	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if len(fc.Algorithms) != 0 {
		cfg.Algorithms = nil
		for _, name := range fc.Algorithms {
			id, err := ParseAlgorithm(name)
			if err != nil {
				return Config{}, err
			}
			cfg.Algorithms = append(cfg.Algorithms, id)
		}
	}
	cfg.NTPServer = fc.NTPServer
	if fc.NTPVersion != 0 {
		cfg.NTPVersion = fc.NTPVersion
	}
	cfg.InsecureSkipVerify = fc.InsecureSkipVerify
	cfg.CAFiles = fc.CAFiles
	if fc.KETransport != "" {
		cfg.KETransport = fc.KETransport
	}
	cfg.LocalPort = fc.LocalPort
	cfg.ReusePort = fc.ReusePort
	cfg.DSCP = fc.DSCP
	if fc.NumCookies != 0 {
		cfg.NumCookies = fc.NumCookies
	}

	return cfg, cfg.Validate()
}

func LoadFile(configFile string) (Config, error) {
	raw, err := os.ReadFile(configFile)
	if err != nil {
		return Config{}, invalid("failed to load configuration: %v", err)
	}
	return Decode(raw)
}

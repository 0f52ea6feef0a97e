// NTS client

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"example.com/nts-client/base/zaplog"
	"example.com/nts-client/benchmark"
	"example.com/nts-client/core/client"
	"example.com/nts-client/core/config"
	"example.com/nts-client/core/measurements"
	"example.com/nts-client/net/ntske"
)

var log *zap.Logger

type options struct {
	verbose     bool
	configFile  string
	metricsAddr string

	port       uint16
	timeout    time.Duration
	retries    int
	ntpServer  string
	insecure   bool
	caFiles    []string
	quic       bool
	algorithms []string

	count    int
	interval time.Duration

	clients  int
	requests int
}

func initLogger(verbose bool) {
	c := zap.NewDevelopmentConfig()
	c.DisableStacktrace = true
	c.EncoderConfig.EncodeCaller = func(
		caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		p := caller.TrimmedPath()
		if len(p) > 30 {
			p = "..." + p[len(p)-27:]
		}
		enc.AppendString(fmt.Sprintf("%30s", p))
	}
	if !verbose {
		c.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	var err error
	log, err = c.Build()
	if err != nil {
		panic(err)
	}
	zaplog.SetLogger(log)
}

func runMonitor(log *zap.Logger, addr string) {
	http.Handle("/metrics", promhttp.Handler())
	err := http.ListenAndServe(addr, nil)
	log.Fatal("failed to serve metrics", zap.Error(err))
}

// clientConfig builds the configuration from the config file, if any, and
// the command line. Flags given explicitly take precedence.
func clientConfig(cmd *cobra.Command, opts *options, args []string) (config.Config, error) {
	var cfg config.Config
	if opts.configFile != "" {
		var err error
		cfg, err = config.LoadFile(opts.configFile)
		if err != nil {
			return config.Config{}, err
		}
		if len(args) != 0 {
			cfg.Server = args[0]
		}
	} else {
		if len(args) == 0 {
			return config.Config{}, fmt.Errorf("server required without --config")
		}
		cfg = config.Default(args[0])
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if flags.Changed("retries") {
		cfg.MaxRetries = opts.retries
	}
	if flags.Changed("ntp-server") {
		cfg.NTPServer = opts.ntpServer
	}
	if flags.Changed("insecure") {
		cfg.InsecureSkipVerify = opts.insecure
	}
	if flags.Changed("ca-file") {
		cfg.CAFiles = append(cfg.CAFiles, opts.caFiles...)
	}
	if flags.Changed("quic") && opts.quic {
		cfg.KETransport = config.TransportQUIC
	}
	if flags.Changed("aead") {
		cfg.Algorithms = nil
		for _, name := range opts.algorithms {
			id, err := config.ParseAlgorithm(name)
			if err != nil {
				return config.Config{}, err
			}
			cfg.Algorithms = append(cfg.Algorithms, id)
		}
	}
	return cfg, cfg.Validate()
}

func printSnapshot(snap client.TimeSnapshot) {
	fmt.Printf("  Network time:  %s\n", snap.NetworkTime.Format(time.RFC3339Nano))
	fmt.Printf("  Offset:        %v\n", snap.Offset)
	fmt.Printf("  Round trip:    %v\n", snap.RoundTripDelay)
	fmt.Printf("  Stratum:       %d\n", snap.Stratum)
	fmt.Printf("  Server:        %s\n", snap.Server)
	fmt.Printf("  Authenticated: %t\n", snap.Authenticated)
	switch {
	case snap.IsAhead():
		fmt.Printf("  Local clock is ahead by %v\n", -snap.Offset)
	case snap.IsBehind():
		fmt.Printf("  Local clock is behind by %v\n", snap.Offset)
	}
}

func runQuery(ctx context.Context, cfg config.Config, count int, interval time.Duration) error {
	c, err := client.New(log, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	err = c.Connect(ctx)
	if err != nil {
		return err
	}
	log.Info("connected", zap.Stringer("ntp_server", c.NTPServer()))

	ms := make([]measurements.Measurement, 0, count)
	for i := range count {
		if i != 0 {
			time.Sleep(interval)
		}
		snap, err := c.GetTime(ctx)
		ms = append(ms, measurements.FromSnapshot(snap, err))
		if err != nil {
			log.Info("query failed", zap.Int("sample", i), zap.Error(err))
			if !c.IsConnected() || client.NeedsReconnect(err) {
				log.Info("reconnecting")
				err = c.Reconnect(ctx)
				if err != nil {
					return err
				}
			}
			continue
		}
		fmt.Printf("Sample %d:\n", i)
		printSnapshot(snap)
	}

	vs := measurements.Valid(ms)
	if len(vs) == 0 {
		return fmt.Errorf("no successful query in %d attempts", count)
	}
	if count > 1 {
		writeSummary(os.Stdout, count, vs)
	}
	return nil
}

// writeSummary combines the successful samples vs of count queries. The
// fault tolerant offset discards the (len(vs)-1)/3 smallest and largest
// offsets before taking the midpoint.
func writeSummary(w io.Writer, count int, vs []measurements.Measurement) {
	med := measurements.Median(vs)
	ftm := measurements.FaultTolerantMidpoint(vs)
	best := measurements.MinDelay(vs)
	fmt.Fprintf(w, "\n%d of %d queries succeeded\n", len(vs), count)
	fmt.Fprintf(w, "  Median offset:         %v\n", med.Offset)
	fmt.Fprintf(w, "  Fault tolerant offset: %v\n", ftm.Offset)
	fmt.Fprintf(w, "  Minimum delay offset:  %v (round trip %v)\n", best.Offset, best.Delay)
}

func runKE(ctx context.Context, cfg config.Config) error {
	c, err := client.New(log, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	err = c.Connect(ctx)
	if err != nil {
		return err
	}
	info, _ := c.KEInfo()
	fmt.Printf("NTS-KE server:    %s:%d\n", cfg.Server, cfg.Port)
	fmt.Printf("NTP server:       %s (%s:%d)\n", c.NTPServer(), info.Server, info.Port)
	fmt.Printf("AEAD algorithm:   %s\n", info.Algorithm)
	fmt.Printf("KE duration:      %v\n", info.Duration)
	fmt.Printf("Cookie count:     %d\n", info.NumCookies)
	fmt.Printf("Cookie sizes:     %v bytes\n", info.CookieSizes)
	return nil
}

func runBenchmark(ctx context.Context, cfg config.Config, clients, requests int) error {
	b := benchmark.Benchmark{
		Config:      cfg,
		NumClients:  clients,
		NumRequests: requests,
	}
	res, err := b.Run(ctx, log)
	if err != nil {
		return err
	}
	fmt.Printf("%d ok, %d failed, %d reconnects in %v\n",
		res.NumOK, res.NumFailed, res.NumReconnects, res.Duration)
	fmt.Println("Round trip delay [us]:")
	_, err = res.Histo.PercentilesPrint(os.Stdout, 1, 1.0)
	return err
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "ntsclient",
		Short:         "Network Time Security (RFC 8915) client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogger(opts.verbose)
			if opts.metricsAddr != "" {
				go runMonitor(log, opts.metricsAddr)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")
	pf.StringVar(&opts.configFile, "config", "", "Config file")
	pf.StringVar(&opts.metricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	pf.Uint16Var(&opts.port, "port", ntske.ServerPortIP, "NTS-KE port")
	pf.DurationVar(&opts.timeout, "timeout", config.DefaultTimeout, "Timeout for key exchange and each request")
	pf.IntVar(&opts.retries, "retries", config.DefaultMaxRetries, "Maximum number of retries per query")
	pf.StringVar(&opts.ntpServer, "ntp-server", "", "NTP server overriding the negotiated one (host[:port])")
	pf.BoolVar(&opts.insecure, "insecure", false, "Skip NTS-KE certificate verification")
	pf.StringSliceVar(&opts.caFiles, "ca-file", nil, "Additional trusted CA certificates (PEM)")
	pf.BoolVar(&opts.quic, "quic", false, "Run the key exchange over QUIC")
	pf.StringSliceVar(&opts.algorithms, "aead", nil, "AEAD algorithms in order of preference")

	queryCmd := &cobra.Command{
		Use:   "query [server]",
		Short: "Query authenticated time",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := clientConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			if opts.count < 1 {
				return fmt.Errorf("count must be positive")
			}
			return runQuery(cmd.Context(), cfg, opts.count, opts.interval)
		},
	}
	queryCmd.Flags().IntVarP(&opts.count, "count", "c", 1, "Number of queries")
	queryCmd.Flags().DurationVar(&opts.interval, "interval", time.Second, "Interval between queries")

	keCmd := &cobra.Command{
		Use:   "ke [server]",
		Short: "Run the key exchange and print diagnostics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := clientConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			return runKE(cmd.Context(), cfg)
		},
	}

	benchmarkCmd := &cobra.Command{
		Use:   "benchmark [server]",
		Short: "Measure query latency with concurrent clients",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := clientConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			if opts.clients < 1 || opts.requests < 1 {
				return fmt.Errorf("clients and requests must be positive")
			}
			return runBenchmark(cmd.Context(), cfg, opts.clients, opts.requests)
		},
	}
	benchmarkCmd.Flags().IntVar(&opts.clients, "clients", 1, "Number of concurrent clients")
	benchmarkCmd.Flags().IntVar(&opts.requests, "requests", 100, "Number of requests per client")

	root.AddCommand(queryCmd, keCmd, benchmarkCmd)
	return root
}

func main() {
	err := newRootCmd(&options{}).ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ntsclient: %v\n", err)
		os.Exit(1)
	}
}

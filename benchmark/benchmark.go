// Package benchmark measures NTS query latency with concurrent clients.
package benchmark

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"go.uber.org/zap"

	"example.com/nts-client/core/client"
	"example.com/nts-client/core/config"
)

type Benchmark struct {
	Config      config.Config
	NumClients  int
	NumRequests int

	// NewClient creates the client for each goroutine; client.New if nil.
	NewClient func(log *zap.Logger, cfg config.Config) (*client.NTSClient, error)
}

type Result struct {
	// Histo holds the round trip delays of all accepted responses in
	// microseconds.
	Histo         *hdrhistogram.Histogram
	NumOK         int
	NumFailed     int
	NumReconnects int
	Duration      time.Duration
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, 10_000_000, 3)
}

func (b *Benchmark) Run(ctx context.Context, log *zap.Logger) (Result, error) {
	if b.NumClients <= 0 || b.NumRequests <= 0 {
		panic("invalid argument: number of clients and requests must be positive")
	}
	newClient := b.NewClient
	if newClient == nil {
		newClient = client.New
	}

	var mu sync.Mutex
	res := Result{Histo: newHistogram()}
	var errs []error

	sg := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(b.NumClients)
	for i := range b.NumClients {
		go func(id int) {
			defer wg.Done()
			log := log.With(zap.Int("client", id))

			c, err := newClient(log, b.Config)
			if err == nil {
				err = c.Connect(ctx)
			}
			if err != nil {
				log.Info("failed to connect", zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			defer func() { _ = c.Close() }()

			hg := newHistogram()
			var nok, nfailed, nreconnects int
			<-sg
			for j := b.NumRequests; j > 0 && ctx.Err() == nil; j-- {
				snap, err := c.GetTime(ctx)
				if err != nil {
					nfailed++
					log.Debug("query failed", zap.Error(err))
					if client.NeedsReconnect(err) {
						nreconnects++
						err = c.Reconnect(ctx)
						if err != nil {
							log.Info("failed to reconnect", zap.Error(err))
							break
						}
					}
					continue
				}
				nok++
				err = hg.RecordValue(snap.RoundTripDelay.Microseconds())
				if err != nil {
					log.Info("failed to record histogram value", zap.Error(err))
				}
			}

			mu.Lock()
			defer mu.Unlock()
			res.Histo.Merge(hg)
			res.NumOK += nok
			res.NumFailed += nfailed
			res.NumReconnects += nreconnects
		}(i)
	}
	t0 := time.Now()
	close(sg)
	wg.Wait()
	res.Duration = time.Since(t0)

	if len(errs) == b.NumClients {
		return res, errors.Join(errs...)
	}
	return res, nil
}

package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"example.com/nts-client/base/metrics"
)

type clientMetrics struct {
	keyExchanges        prometheus.Counter
	keyExchangeFailures prometheus.Counter
	reqsSent            prometheus.Counter
	pktsReceived        prometheus.Counter
	pktsAuthenticated   prometheus.Counter
	pktsUnmatched       prometheus.Counter
	authFailures        prometheus.Counter
	respsAccepted       prometheus.Counter
	reqTimeouts         prometheus.Counter
	cookiesExhausted    prometheus.Counter
	cookiesReceived     prometheus.Counter
}

func newClientMetrics() *clientMetrics {
	return &clientMetrics{
		keyExchanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientKeyExchangesN,
			Help: metrics.ClientKeyExchangesH,
		}),
		keyExchangeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientKeyExchangeFailuresN,
			Help: metrics.ClientKeyExchangeFailuresH,
		}),
		reqsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientReqsSentN,
			Help: metrics.ClientReqsSentH,
		}),
		pktsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientPktsReceivedN,
			Help: metrics.ClientPktsReceivedH,
		}),
		pktsAuthenticated: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientPktsAuthenticatedN,
			Help: metrics.ClientPktsAuthenticatedH,
		}),
		pktsUnmatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientPktsUnmatchedN,
			Help: metrics.ClientPktsUnmatchedH,
		}),
		authFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientAuthFailuresN,
			Help: metrics.ClientAuthFailuresH,
		}),
		respsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientRespsAcceptedN,
			Help: metrics.ClientRespsAcceptedH,
		}),
		reqTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientReqTimeoutsN,
			Help: metrics.ClientReqTimeoutsH,
		}),
		cookiesExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientCookiesExhaustedN,
			Help: metrics.ClientCookiesExhaustedH,
		}),
		cookiesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientCookiesReceivedN,
			Help: metrics.ClientCookiesReceivedH,
		}),
	}
}

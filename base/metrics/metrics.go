package metrics

const (
	ClientKeyExchangesH        = "The total number of completed NTS key exchanges"
	ClientKeyExchangesN        = "ntsclient_key_exchanges"
	ClientKeyExchangeFailuresH = "The total number of failed NTS key exchanges"
	ClientKeyExchangeFailuresN = "ntsclient_key_exchange_failures"

	ClientReqsSentH          = "The total number of NTS requests sent"
	ClientReqsSentN          = "ntsclient_reqs_sent"
	ClientPktsReceivedH      = "The total number of packets received"
	ClientPktsReceivedN      = "ntsclient_pkts_received"
	ClientPktsAuthenticatedH = "The total number of packets authenticated"
	ClientPktsAuthenticatedN = "ntsclient_pkts_authenticated"
	ClientPktsUnmatchedH     = "The total number of authenticated packets with an unexpected unique identifier"
	ClientPktsUnmatchedN     = "ntsclient_pkts_unmatched"
	ClientAuthFailuresH      = "The total number of packets that failed authentication"
	ClientAuthFailuresN      = "ntsclient_auth_failures"
	ClientRespsAcceptedH     = "The total number of responses accepted"
	ClientRespsAcceptedN     = "ntsclient_resps_accepted"
	ClientReqTimeoutsH       = "The total number of requests without a valid response before the deadline"
	ClientReqTimeoutsN       = "ntsclient_req_timeouts"
	ClientCookiesExhaustedH  = "The total number of queries rejected because no cookie was available"
	ClientCookiesExhaustedN  = "ntsclient_cookies_exhausted"
	ClientCookiesReceivedH   = "The total number of cookies received in responses"
	ClientCookiesReceivedN   = "ntsclient_cookies_received"
)

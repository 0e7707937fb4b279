package telegram

import (
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	dialTimeout  = 5 * time.Second
	tlsTimeout   = 5 * time.Second
	idleTimeout  = 30 * time.Second
	callHeadroom = 15 * time.Second
	dialRetries  = 3
	dialBackoff  = time.Second
)

// BuildHTTPClient returns the client for Bot API calls. Its timeouts leave
// room for a getUpdates call that blocks for longPoll.
func BuildHTTPClient(longPoll time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: idleTimeout}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleTimeout,
		TLSHandshakeTimeout:   tlsTimeout,
		ResponseHeaderTimeout: longPoll + callHeadroom,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   longPoll + 2*callHeadroom,
		Transport: &dialRetry{base: transport, attempts: dialRetries, backoff: dialBackoff},
	}
}

// dialRetry repeats a request only when the connection could not be
// opened, so a request Telegram may have seen is never sent twice. Sends
// that fail later are retried by the dispatcher.
type dialRetry struct {
	base     http.RoundTripper
	attempts int
	backoff  time.Duration
}

func isDialError(err error) bool {
	var op *net.OpError
	return errors.As(err, &op) && op.Op == "dial"
}

func (t *dialRetry) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := t.base.RoundTrip(req)
		if err == nil || attempt >= t.attempts || !isDialError(err) {
			return resp, err
		}
		if req.Body != nil && req.Body != http.NoBody {
			if req.GetBody == nil {
				return nil, err
			}
			body, berr := req.GetBody()
			if berr != nil {
				return nil, err
			}
			req = req.Clone(req.Context())
			req.Body = body
		}
		timer := time.NewTimer(t.backoff * time.Duration(attempt))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

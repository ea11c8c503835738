// Package throttle spaces out requests made through a single http transport.
//
// The portals this backend talks to are rate limited per session, not per
// endpoint, so the spacing is enforced at the transport level where every
// request has to pass through regardless of which scraping method issued it.
package throttle

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Transport wraps an http.RoundTripper and enforces a minimum interval
// between consecutive dispatches.
//
// A Transport is owned by exactly one session and is not safe for concurrent
// use. Scrapers are sequential per session, callers that share a session
// across goroutines must hold their own lock around every request.
type Transport struct {
	Base        http.RoundTripper
	MinInterval time.Duration

	// overridable in tests so properties can be checked without sleeping
	now   func() time.Time
	sleep func(time.Duration)

	lastDispatch time.Time
}

func NewTransport(base http.RoundTripper, minInterval time.Duration) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		Base:        base,
		MinInterval: minInterval,
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// LastDispatch reports when the most recent request was let through. It is
// monotonically non-decreasing over the lifetime of the transport.
func (t *Transport) LastDispatch() time.Time {
	return t.lastDispatch
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.lastDispatch.IsZero() {
		wait := t.MinInterval - t.now().Sub(t.lastDispatch)
		if wait > 0 {
			t.sleep(wait)
		}
	}
	t.lastDispatch = t.now()
	return t.Base.RoundTrip(req)
}

// Wrap installs a throttled transport underneath a resty client, preserving
// whatever transport is already configured (cookie handling, bot-protection
// bypasses and instrumentation all stay in place).
func Wrap(client *resty.Client, minInterval time.Duration) *Transport {
	inner := client.GetClient()
	transport := NewTransport(inner.Transport, minInterval)
	inner.Transport = transport
	return transport
}

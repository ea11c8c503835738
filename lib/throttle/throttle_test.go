package throttle

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingBase struct {
	dispatches []time.Time
	clock      *fakeClock
}

func (r *recordingBase) RoundTrip(req *http.Request) (*http.Response, error) {
	r.dispatches = append(r.dispatches, r.clock.now)
	return &http.Response{StatusCode: http.StatusOK, Request: req}, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
}

func newFakeTransport(minInterval time.Duration) (*Transport, *recordingBase, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	base := &recordingBase{clock: clock}
	transport := NewTransport(base, minInterval)
	transport.now = clock.Now
	transport.sleep = clock.Sleep
	return transport, base, clock
}

func TestMinimumSpacing(t *testing.T) {
	const interval = time.Millisecond * 500
	transport, base, clock := newFakeTransport(interval)

	req, err := http.NewRequest(http.MethodGet, "https://example.compass.education/", nil)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, err := transport.RoundTrip(req)
		require.NoError(t, err)
		// simulate some requests returning faster than the interval
		if i%2 == 0 {
			clock.Sleep(time.Millisecond * 120)
		}
	}

	require.Len(t, base.dispatches, 8)
	for i := 1; i < len(base.dispatches); i++ {
		gap := base.dispatches[i].Sub(base.dispatches[i-1])
		require.GreaterOrEqual(t, gap, interval, "dispatch %d too close to %d", i, i-1)
	}
}

func TestFirstRequestNotDelayed(t *testing.T) {
	transport, base, clock := newFakeTransport(time.Second)
	start := clock.now

	req, err := http.NewRequest(http.MethodGet, "https://example.compass.education/", nil)
	require.NoError(t, err)
	_, err = transport.RoundTrip(req)
	require.NoError(t, err)

	require.Equal(t, start, base.dispatches[0])
}

func TestLastDispatchMonotonic(t *testing.T) {
	transport, _, _ := newFakeTransport(time.Millisecond * 250)

	req, err := http.NewRequest(http.MethodGet, "https://example.compass.education/", nil)
	require.NoError(t, err)

	var previous time.Time
	for i := 0; i < 5; i++ {
		_, err := transport.RoundTrip(req)
		require.NoError(t, err)
		require.False(t, transport.LastDispatch().Before(previous))
		previous = transport.LastDispatch()
	}
}

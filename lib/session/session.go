// Package session owns the authenticated, rate limited http state shared by
// every scraping method of one portal tenant.
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"edexport-backend/lib/restyutil"
	"edexport-backend/lib/telemetry"
	"edexport-backend/lib/throttle"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

var AuthenticationFailed = fmt.Errorf("failed to authenticate with the portal")

// Authenticator leaves a session able to issue authenticated requests, via
// cookies, headers or whatever else the portal expects. Implementations live
// with each portal client; callers only ever depend on this capability.
type Authenticator interface {
	Authenticate(ctx context.Context, s *Session) error
}

type Options struct {
	// Tenant selects which school/organization the session operates
	// against, e.g. the compass school code or the OARS school string.
	Tenant  string
	BaseUrl string
	// MinInterval is the minimum spacing between requests, observed
	// empirically per portal. Zero disables throttling.
	MinInterval time.Duration
	UserAgent   string
	// CloudflareBypass installs the bot-protection bypass transport,
	// needed by portals that front their login pages with cloudflare.
	CloudflareBypass bool
	// TracerName defaults to "session/http".
	TracerName string
}

// Session is mutable shared state (cookie jar, headers, throttle timestamp)
// with no internal locking. It is owned exclusively by the goroutine that
// constructed it.
type Session struct {
	Tenant  string
	BaseUrl *url.URL
	Http    *resty.Client

	throttle *throttle.Transport
}

// New builds the http client (cookie jar, pinned user agent, domain-checked
// redirects, instrumentation) and runs the authenticator once.
func New(ctx context.Context, opts Options, auth Authenticator) (*Session, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:96.0) Gecko/20100101 Firefox/96.0"
	}
	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	tracerName := opts.TracerName
	if tracerName == "" {
		tracerName = "session/http"
	}
	telemetry.InstrumentResty(client, tracerName)
	if dir := os.Getenv("EDEXPORT_HTTP_DUMP"); dir != "" {
		restyutil.InstrumentClient(client, restyutil.NewFilesystemOutput(
			filepath.Join(dir, opts.Tenant),
		))
	}

	s := &Session{
		Tenant:  opts.Tenant,
		BaseUrl: baseUrl,
		Http:    client,
	}
	if opts.MinInterval > 0 {
		// installed after the cloudflare bypass so the wait happens
		// outside of any transport level retries
		s.throttle = throttle.Wrap(client, opts.MinInterval)
	}

	err = auth.Authenticate(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", AuthenticationFailed, err)
	}
	return s, nil
}

// SetCookies imports an already-authenticated cookie set, typically lifted
// from a browser profile that has logged into the portal.
func (s *Session) SetCookies(cookies []*http.Cookie) {
	s.Http.GetClient().Jar.SetCookies(s.BaseUrl, cookies)
}

// LastDispatch exposes the throttle timestamp, zero if throttling is off.
func (s *Session) LastDispatch() time.Time {
	if s.throttle == nil {
		return time.Time{}
	}
	return s.throttle.LastDispatch()
}

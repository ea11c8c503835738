// Package compass scrapes the Compass school portal: asynchronous file
// exports through the long-running request service, paged listings of report
// cycles and academic groups, and the direct csv handlers.
package compass

import (
	"context"
	"fmt"
	"time"

	"edexport-backend/lib/asyncjob"
	"edexport-backend/lib/session"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/compass")

// StatusCodes is compass's requestStatus mapping: 2 means the task is still
// being generated, 3 means the file is ready, everything else is a failure.
var StatusCodes = asyncjob.StatusCodes{
	0: asyncjob.StatusPending,
	1: asyncjob.StatusPending,
	2: asyncjob.StatusProcessing,
	3: asyncjob.StatusReady,
}

type Options struct {
	// SchoolCode selects the tenant, e.g. the "gwsc" of
	// https://gwsc.compass.education.
	SchoolCode string
	// BaseUrl overrides the school-code derived url, for tests.
	BaseUrl string
	// MinInterval defaults to the empirically safe 500ms.
	MinInterval time.Duration
	Jobs        asyncjob.Options
}

type Client struct {
	Session *session.Session
	jobs    *asyncjob.Client
}

func NewClient(ctx context.Context, opts Options, auth session.Authenticator) (*Client, error) {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = fmt.Sprintf("https://%s.compass.education", opts.SchoolCode)
	}
	minInterval := opts.MinInterval
	if minInterval == 0 {
		minInterval = time.Millisecond * 500
	}

	s, err := session.New(ctx, session.Options{
		Tenant:      opts.SchoolCode,
		BaseUrl:     baseUrl,
		MinInterval: minInterval,
		// compass fronts its login pages with cloudflare bot protection
		CloudflareBypass: true,
		TracerName:       "scrapers/compass/http",
	}, auth)
	if err != nil {
		return nil, err
	}

	jobOpts := opts.Jobs
	if jobOpts.Codes == nil {
		jobOpts.Codes = StatusCodes
	}
	c := &Client{
		Session: s,
		jobs:    asyncjob.NewClient(jobBackend{s}, jobOpts),
	}
	return c, nil
}

// Jobs exposes the underlying job client for callers that want to drive
// submit/await/fetch themselves instead of using the one-shot export helpers.
func (c *Client) Jobs() *asyncjob.Client {
	return c.jobs
}

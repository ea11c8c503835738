// Package asyncjob drives long-running export jobs against portals that offer
// no completion callback: submit, poll until done, download the payload.
package asyncjob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"edexport-backend/lib/filestore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("asyncjob")

var (
	SubmissionFailed = fmt.Errorf("the portal did not acknowledge the export job")
	JobFailed        = fmt.Errorf("the portal reported the export job as failed")
	// JobTimedOut is distinct from JobFailed on purpose: the job may still
	// finish server-side, so the caller can sensibly come back later,
	// whereas a failed job has to be resubmitted.
	JobTimedOut = fmt.Errorf("gave up waiting for the export job to finish")
)

type Status int

const (
	StatusPending Status = iota
	StatusProcessing
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Terminal reports whether no further transition can happen. Statuses only
// ever move forward, a job never regresses from ready or failed.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// StatusCodes is the table mapping one portal's integer status codes onto the
// closed status set. The boundary values differ per portal (compass uses 3
// for ready, others differ), so the table lives with each portal client and
// the state machine here never sees a raw integer. Codes absent from the
// table classify as failed.
type StatusCodes map[int]Status

func (c StatusCodes) Classify(code int) Status {
	status, ok := c[code]
	if !ok {
		return StatusFailed
	}
	return status
}

// Spec describes an export job: an opaque portal job-type code and the
// parameter map that job type expects. Immutable once submitted.
type Spec struct {
	Type   string
	Params map[string]any
}

// Handle correlates a submitted job with later poll and fetch calls.
type Handle struct {
	Id          string
	SubmittedAt time.Time
}

// Result locates the produced file on the portal's content store. Only valid
// while the job it came from is ready.
type Result struct {
	ContentId string
	Filename  string
}

// Backend is the portal-specific half of the protocol: how to phrase a
// submission, read a status integer out of the poll response and follow the
// content id to the actual bytes. Implementations make exactly one request
// per call and never retry.
type Backend interface {
	// Submit posts the job spec once. An empty id with a nil error means
	// the response carried no handle, which submission treats as a
	// transient failure worth retrying.
	Submit(ctx context.Context, spec Spec) (id string, err error)
	Poll(ctx context.Context, id string) (code int, err error)
	Result(ctx context.Context, id string) (Result, error)
	Download(ctx context.Context, res Result) ([]byte, error)
}

type Options struct {
	Codes StatusCodes
	// SubmitAttempts bounds submission retries, default 5. Submission
	// endpoints intermittently return empty responses under load.
	SubmitAttempts int
	SubmitBackoff  time.Duration
	// PollInterval/PollAttempts are the Await defaults, sized so the
	// budget covers the ~10 minutes these portals take on big exports.
	PollInterval time.Duration
	PollAttempts int
}

type Client struct {
	backend Backend
	opts    Options

	now   func() time.Time
	sleep func(time.Duration)
}

func NewClient(backend Backend, opts Options) *Client {
	if opts.SubmitAttempts <= 0 {
		opts.SubmitAttempts = 5
	}
	if opts.SubmitBackoff <= 0 {
		opts.SubmitBackoff = time.Second * 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second * 6
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 100
	}
	return &Client{
		backend: backend,
		opts:    opts,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Submit posts the job spec, retrying with a fixed backoff while the portal
// answers without a handle. Transport errors surface immediately: retrying
// blindly against a remote in an unknown state could queue the job twice.
func (c *Client) Submit(ctx context.Context, spec Spec) (Handle, error) {
	ctx, span := tracer.Start(ctx, "asyncjob:Submit")
	defer span.End()

	for attempt := 1; ; attempt++ {
		id, err := c.backend.Submit(ctx, spec)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submission request failed")
			return Handle{}, err
		}
		if id != "" {
			return Handle{Id: id, SubmittedAt: c.now()}, nil
		}

		if attempt >= c.opts.SubmitAttempts {
			span.SetStatus(codes.Error, "submission attempts exhausted")
			return Handle{}, fmt.Errorf(
				"%w: job type %q, %d attempts",
				SubmissionFailed, spec.Type, attempt,
			)
		}
		slog.WarnContext(
			ctx, "job submission returned no handle, retrying",
			"job_type", spec.Type,
			"attempt", attempt,
		)
		c.sleep(c.opts.SubmitBackoff)
	}
}

// Poll performs a single status check.
func (c *Client) Poll(ctx context.Context, handle Handle) (Status, error) {
	code, err := c.backend.Poll(ctx, handle.Id)
	if err != nil {
		return StatusFailed, err
	}
	return c.opts.Codes.Classify(code), nil
}

// Await polls the job to completion, suspending for interval before each
// check, up to maxAttempts checks. Zero values fall back to the client
// defaults. Fails fast with JobFailed on a terminal failure and with
// JobTimedOut once the budget runs out while the job is still in flight.
func (c *Client) Await(ctx context.Context, handle Handle, interval time.Duration, maxAttempts int) (Result, error) {
	ctx, span := tracer.Start(ctx, "asyncjob:Await")
	defer span.End()

	if interval <= 0 {
		interval = c.opts.PollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = c.opts.PollAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.sleep(interval)

		status, err := c.Poll(ctx, handle)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "poll request failed")
			return Result{}, err
		}
		slog.DebugContext(
			ctx, "polled job",
			"handle", handle.Id,
			"status", status.String(),
			"attempt", attempt,
		)

		switch status {
		case StatusReady:
			return c.backend.Result(ctx, handle.Id)
		case StatusFailed:
			span.SetStatus(codes.Error, "job failed")
			return Result{}, fmt.Errorf("%w: handle %q", JobFailed, handle.Id)
		}
	}

	span.SetStatus(codes.Error, "polling budget exhausted")
	return Result{}, fmt.Errorf(
		"%w: handle %q, %d polls of %s each",
		JobTimedOut, handle.Id, maxAttempts, interval,
	)
}

// Fetch downloads the produced file and materializes it under dir.
func (c *Client) Fetch(ctx context.Context, result Result, dir string) (filestore.File, error) {
	ctx, span := tracer.Start(ctx, "asyncjob:Fetch")
	defer span.End()

	contents, err := c.backend.Download(ctx, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "download failed")
		return filestore.File{}, err
	}
	return filestore.Save(contents, dir, result.Filename)
}

// Export runs the full submit, await, fetch sequence with client defaults.
func (c *Client) Export(ctx context.Context, spec Spec, dir string) (filestore.File, error) {
	ctx, span := tracer.Start(ctx, "asyncjob:Export")
	defer span.End()

	handle, err := c.Submit(ctx, spec)
	if err != nil {
		return filestore.File{}, err
	}
	result, err := c.Await(ctx, handle, 0, 0)
	if err != nil {
		return filestore.File{}, err
	}
	return c.Fetch(ctx, result, dir)
}

// SetClockForTesting swaps the wall clock and sleep out so tests can walk a
// job through its states without real delays.
func (c *Client) SetClockForTesting(now func() time.Time, sleep func(time.Duration)) {
	c.now = now
	c.sleep = sleep
}

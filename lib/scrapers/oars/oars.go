// Package oars scrapes the ACER OARS assessment portal: candidate rosters
// and test sittings through size-bounded batch endpoints, and the staff
// spreadsheet export.
//
// Nearly every api call wants the security token that OARS embeds in the
// reports page, so constructing a client scrapes that token and preloads the
// test metadata the sitting endpoints are keyed by.
package oars

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"edexport-backend/lib/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/oars")

const defaultBaseUrl = "https://oars.acer.edu.au"

type Options struct {
	// School is the school string of https://oars.acer.edu.au/<school>.
	School string
	// BaseUrl overrides the production url, for tests.
	BaseUrl string
	// MinInterval defaults to 500ms.
	MinInterval time.Duration
}

type Client struct {
	Session *session.Session

	school        string
	securityToken string
	tests         Tests
	scaleSlugs    map[string]string
}

var securityTokenRegex = regexp.MustCompile(`"securityToken":"([\$0-9A-Za-z+/\.\\]*)"`)

func NewClient(ctx context.Context, opts Options, auth session.Authenticator) (*Client, error) {
	ctx, span := tracer.Start(ctx, "NewClient")
	defer span.End()

	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = defaultBaseUrl
	}
	minInterval := opts.MinInterval
	if minInterval == 0 {
		minInterval = time.Millisecond * 500
	}

	s, err := session.New(ctx, session.Options{
		Tenant:      opts.School,
		BaseUrl:     baseUrl,
		MinInterval: minInterval,
		TracerName:  "scrapers/oars/http",
	}, auth)
	if err != nil {
		return nil, err
	}

	c := &Client{
		Session:    s,
		school:     opts.School,
		scaleSlugs: map[string]string{},
	}

	res, err := s.Http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/%s/reports-new", c.school))
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch reports page")
		return nil, err
	}
	groups := securityTokenRegex.FindStringSubmatch(res.String())
	if len(groups) < 2 {
		span.SetStatus(codes.Error, "failed to find security token")
		return nil, fmt.Errorf("%w: the reports page carried no security token", session.AuthenticationFailed)
	}
	c.securityToken = strings.ReplaceAll(groups[1], `\/`, "/")

	err = c.loadTestMetadata(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) api(path string) string {
	return fmt.Sprintf("/api/%s/%s", c.school, path)
}

func (c *Client) loadTestMetadata(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:loadTestMetadata")
	defer span.End()

	res, err := c.Session.Http.R().
		SetContext(ctx).
		Get(c.api("reports-new/getTests/"))
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch test metadata")
		return err
	}
	err = json.Unmarshal(res.Body(), &c.tests)
	if err != nil {
		// OARS answers api calls from logged-out sessions with an html
		// login page instead of a status code
		span.SetStatus(codes.Error, "test metadata was not json")
		return fmt.Errorf("%w: unexpected test metadata response: %w", session.AuthenticationFailed, err)
	}

	for _, test := range c.tests {
		if test.ScaleId == "" {
			continue
		}
		if _, ok := c.scaleSlugs[test.ScaleId]; ok {
			continue
		}

		res, err := c.Session.Http.R().
			SetContext(ctx).
			SetQueryParam("scale_id", test.ScaleId).
			Get(c.api("reports-new/getScaleConstruct"))
		if err != nil {
			span.SetStatus(codes.Error, "failed to fetch scale construct")
			return err
		}
		var construct struct {
			Slug string `json:"slug"`
		}
		err = json.Unmarshal(res.Body(), &construct)
		if err != nil {
			span.SetStatus(codes.Error, "scale construct was not json")
			return fmt.Errorf("unexpected scale construct response: %w", err)
		}
		c.scaleSlugs[test.ScaleId] = construct.Slug
	}
	return nil
}

// Tests returns the portal's test metadata, loaded once at construction.
func (c *Client) Tests() Tests {
	return c.tests
}

package oars

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"edexport-backend/lib/paging"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// sittingChunkSize is the most sitting ids getGroupReportSittingsByIds
// accepts per request.
const sittingChunkSize = 100

// Sitting is one completed test sitting, kept as a raw object since the
// response fields vary by test.
type Sitting map[string]any

// portal dates are dd-mm-yyyy
func portalDate(t time.Time) string {
	return t.Format("02-01-2006")
}

// PATSittings fetches all completed sittings of one test form within the
// date range: sitting ids first, then group report records in chunks.
func (c *Client) PATSittings(ctx context.Context, test Test, form Form, from, to time.Time) ([]Sitting, error) {
	ctx, span := tracer.Start(ctx, "client:PATSittings",
		trace.WithAttributes(
			attribute.String("test", test.Name),
			attribute.String("form", form.Name),
		))
	defer span.End()

	slug, ok := c.scaleSlugs[test.ScaleId]
	if !ok {
		return nil, fmt.Errorf("test %q has no known scale construct", test.Name)
	}
	rangeParams := map[string]string{
		"scale_slug":     slug,
		"test_id":        test.TestId,
		"form_id":        form.FormId,
		"from":           portalDate(from),
		"to":             portalDate(to),
		"sitting_status": "completed",
	}

	res, err := c.Session.Http.R().
		SetContext(ctx).
		SetQueryParams(rangeParams).
		Get(c.api("reports-new/getSittingIdsByTestForm/"))
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch sitting ids")
		return nil, err
	}
	// ids come back keyed by test id then form id
	var byTest map[string]map[string][]string
	err = json.Unmarshal(res.Body(), &byTest)
	if err != nil {
		span.SetStatus(codes.Error, "sitting ids were not json")
		return nil, fmt.Errorf("unexpected sitting id response: %w", err)
	}
	ids := byTest[test.TestId][form.FormId]
	span.SetAttributes(attribute.Int("sitting_count", len(ids)))

	return paging.FetchDetails(ctx, ids, sittingChunkSize,
		func(ctx context.Context, chunk []string) ([]Sitting, error) {
			res, err := c.Session.Http.R().
				SetContext(ctx).
				SetQueryParams(rangeParams).
				SetHeader("Content-Type", "application/json").
				SetBody(map[string]any{
					"ids":            chunk,
					"security_token": c.securityToken,
				}).
				Post(c.api("reports-new/getGroupReportSittingsByIds.ajax"))
			if err != nil {
				return nil, err
			}
			var sittings []Sitting
			err = json.Unmarshal(res.Body(), &sittings)
			if err != nil {
				return nil, fmt.Errorf("unexpected sitting response: %w", err)
			}
			return sittings, nil
		})
}

// AllPATSittings fetches sittings for every form of every PAT test within
// the date range.
func (c *Client) AllPATSittings(ctx context.Context, from, to time.Time) ([]Sitting, error) {
	ctx, span := tracer.Start(ctx, "client:AllPATSittings")
	defer span.End()

	var all []Sitting
	for _, test := range c.tests {
		if test.ReportType != "Pat" {
			continue
		}
		for _, form := range test.Forms {
			sittings, err := c.PATSittings(ctx, test, form, from, to)
			if err != nil {
				span.SetStatus(codes.Error, "failed to fetch sittings")
				return nil, err
			}
			all = append(all, sittings...)
		}
	}
	return all, nil
}

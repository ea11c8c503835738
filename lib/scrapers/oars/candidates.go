package oars

import (
	"context"
	"encoding/json"
	"fmt"

	"edexport-backend/lib/paging"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// candidateChunkSize is the most candidate ids getCandidatesByIds accepts
// per request.
const candidateChunkSize = 50

// Candidate is one candidate record as the portal returns it. The field set
// varies between schools so the record is kept as a raw object.
type Candidate map[string]any

func (c Candidate) Id() string {
	id, _ := c["id"].(string)
	return id
}

// Candidates fetches the full candidate roster: every candidate id first,
// then detail records in chunks. When enrolled is true only currently
// enrolled candidates are listed.
func (c *Client) Candidates(ctx context.Context, enrolled bool) ([]Candidate, error) {
	ctx, span := tracer.Start(ctx, "client:Candidates",
		trace.WithAttributes(attribute.Bool("enrolled", enrolled)))
	defer span.End()

	enrolledParam := "0"
	if enrolled {
		enrolledParam = "1"
	}
	res, err := c.Session.Http.R().
		SetContext(ctx).
		SetQueryParam("enrolled", enrolledParam).
		Get(c.api("candidates/getCandidateIds"))
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch candidate ids")
		return nil, err
	}
	var ids []string
	err = json.Unmarshal(res.Body(), &ids)
	if err != nil {
		span.SetStatus(codes.Error, "candidate ids were not json")
		return nil, fmt.Errorf("unexpected candidate id response: %w", err)
	}
	span.SetAttributes(attribute.Int("candidate_count", len(ids)))

	return paging.FetchDetails(ctx, ids, candidateChunkSize,
		func(ctx context.Context, chunk []string) ([]Candidate, error) {
			res, err := c.Session.Http.R().
				SetContext(ctx).
				SetHeader("Content-Type", "application/json").
				SetBody(map[string]any{
					"extraFields":    []string{"password_visible"},
					"ids":            chunk,
					"security_token": c.securityToken,
					"withForms":      "true",
				}).
				Post(c.api("candidates/getCandidatesByIds/"))
			if err != nil {
				return nil, err
			}
			var candidates []Candidate
			err = json.Unmarshal(res.Body(), &candidates)
			if err != nil {
				return nil, fmt.Errorf("unexpected candidate detail response: %w", err)
			}
			return candidates, nil
		})
}

package compass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"edexport-backend/lib/htmlutil"
	"edexport-backend/lib/paging"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

// Cycle is one reporting cycle as the paged grids return it.
type Cycle struct {
	Id   int    `json:"id"`
	Name string `json:"name"`
	Year int    `json:"year"`
}

// AcademicGroup is one academic year grouping of learning tasks. The group
// with id -1 stands for "all years" and is not exportable on its own.
type AcademicGroup struct {
	Id   int    `json:"id"`
	Name string `json:"name"`
}

func dispatchMs() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// pagedGrid fetches one page of an ExtJS paged grid endpoint. The grids all
// take the same page/start/limit triple and answer {"d": [...]}.
func pagedGrid[T any](ctx context.Context, c *Client, path string) paging.PageFunc[T] {
	return func(ctx context.Context, page, pageSize int) ([]T, error) {
		res, err := c.Session.Http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json; charset=utf-8").
			SetQueryParam("_dc", dispatchMs()).
			SetBody(map[string]int{
				"page":  page,
				"start": pageSize * (page - 1),
				"limit": pageSize,
			}).
			Post(path)
		if err != nil {
			return nil, err
		}

		var envelope struct {
			D []T `json:"d"`
		}
		err = json.Unmarshal(res.Body(), &envelope)
		if err != nil {
			return nil, fmt.Errorf("unexpected paged grid response: %w", err)
		}
		return envelope.D, nil
	}
}

// ReportCycles walks the semester report cycle grid, 25 cycles per page.
func (c *Client) ReportCycles(ctx context.Context) ([]Cycle, error) {
	ctx, span := tracer.Start(ctx, "client:ReportCycles")
	defer span.End()

	cycles, err := paging.Walk(25, pagedGrid[Cycle](ctx, c, "/Services/Reports.svc/GetCycles")).All(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list report cycles")
		return nil, err
	}
	return cycles, nil
}

// ProgressReportCycles walks the progress report cycle grid, which serves
// smaller pages of 10.
func (c *Client) ProgressReportCycles(ctx context.Context) ([]Cycle, error) {
	ctx, span := tracer.Start(ctx, "client:ProgressReportCycles")
	defer span.End()

	cycles, err := paging.Walk(10, pagedGrid[Cycle](
		ctx, c, "/Services/Gpa.svc/GetCyclesForPagedGrid?sessionstate=readonly",
	)).All(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list progress report cycles")
		return nil, err
	}
	return cycles, nil
}

var schoolConfigKeyRegex = regexp.MustCompile(`Compass\.referenceDataCacheKeys\.schoolConfigKey = '([^']*)'`)

// AcademicGroups lists the academic years learning tasks can be exported
// for. The reference data cache wants a school config key that only appears
// inline on the learning tasks administration page, so that page is fetched
// and scraped first.
func (c *Client) AcademicGroups(ctx context.Context) ([]AcademicGroup, error) {
	ctx, span := tracer.Start(ctx, "client:AcademicGroups")
	defer span.End()

	res, err := c.Session.Http.R().
		SetContext(ctx).
		Get("/Communicate/LearningTasksAdministration.aspx")
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch learning tasks administration page")
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse learning tasks administration html")
		return nil, err
	}
	key := htmlutil.FindScriptMatch(doc, schoolConfigKeyRegex)
	if key == "" {
		span.SetStatus(codes.Error, "failed to find school config key")
		return nil, fmt.Errorf("could not find the school config cache key")
	}

	walker := paging.Walk(25, func(ctx context.Context, page, pageSize int) ([]AcademicGroup, error) {
		res, err := c.Session.Http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"sessionstate": "readonly",
				"v":            key,
				"page":         strconv.Itoa(page),
				"start":        strconv.Itoa(pageSize * (page - 1)),
				"limit":        strconv.Itoa(pageSize),
			}).
			Get("/Services/ReferenceDataCache.svc/GetAllAcademicGroups")
		if err != nil {
			return nil, err
		}

		var envelope struct {
			D []AcademicGroup `json:"d"`
		}
		err = json.Unmarshal(res.Body(), &envelope)
		if err != nil {
			return nil, fmt.Errorf("unexpected academic groups response: %w", err)
		}
		return envelope.D, nil
	})

	groups, err := walker.All(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list academic groups")
		return nil, err
	}
	return groups, nil
}

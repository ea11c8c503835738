package compass

import (
	"context"
	"encoding/json"
	"fmt"

	"edexport-backend/lib/asyncjob"
	"edexport-backend/lib/filestore"
	"edexport-backend/lib/session"

	"go.opentelemetry.io/otel/codes"
)

// jobBackend speaks the LongRunningFileRequest service. Every response comes
// wrapped in a {"d": ...} envelope, and the parameters of a queued task are a
// json document nested inside a json string.
type jobBackend struct {
	s *session.Session
}

func (b jobBackend) Submit(ctx context.Context, spec asyncjob.Spec) (string, error) {
	params, err := json.Marshal(spec.Params)
	if err != nil {
		return "", err
	}

	res, err := b.s.Http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetBody(map[string]string{
			"type":       spec.Type,
			"parameters": string(params),
		}).
		Post("/Services/LongRunningFileRequest.svc/QueueTask")
	if err != nil {
		return "", err
	}

	var envelope struct {
		D string `json:"d"`
	}
	err = json.Unmarshal(res.Body(), &envelope)
	if err != nil {
		return "", fmt.Errorf("unexpected queue task response: %w", err)
	}
	// an empty guid means the portal dropped the request, the job client
	// retries those
	return envelope.D, nil
}

func (b jobBackend) Poll(ctx context.Context, id string) (int, error) {
	res, err := b.s.Http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetBody(map[string]string{"guid": id}).
		Post("/Services/LongRunningFileRequest.svc/PollTaskStatus")
	if err != nil {
		return 0, err
	}

	var envelope struct {
		D struct {
			RequestStatus int `json:"requestStatus"`
		} `json:"d"`
	}
	err = json.Unmarshal(res.Body(), &envelope)
	if err != nil {
		return 0, fmt.Errorf("unexpected poll task response: %w", err)
	}
	return envelope.D.RequestStatus, nil
}

func (b jobBackend) Result(ctx context.Context, id string) (asyncjob.Result, error) {
	res, err := b.s.Http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetBody(map[string]string{"guid": id}).
		Post("/Services/LongRunningFileRequest.svc/GetTask")
	if err != nil {
		return asyncjob.Result{}, err
	}

	var envelope struct {
		D struct {
			Filename  string `json:"filename"`
			CdnFileId string `json:"cdn_fileId"`
		} `json:"d"`
	}
	err = json.Unmarshal(res.Body(), &envelope)
	if err != nil {
		return asyncjob.Result{}, fmt.Errorf("unexpected get task response: %w", err)
	}
	if envelope.D.CdnFileId == "" {
		return asyncjob.Result{}, fmt.Errorf("task %q has no file attached", id)
	}
	return asyncjob.Result{
		ContentId: envelope.D.CdnFileId,
		Filename:  envelope.D.Filename,
	}, nil
}

func (b jobBackend) Download(ctx context.Context, result asyncjob.Result) ([]byte, error) {
	res, err := b.s.Http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"FileDownloadType": "9",
			"file":             result.ContentId,
			"fileName":         result.Filename,
		}).
		Get("/Services/FileDownload/FileRequestHandler")
	if err != nil {
		return nil, err
	}
	return res.Body(), nil
}

// ExportLearningTasks queues a learning tasks export for one academic year
// and materializes the produced csv under dir. Compass names the file
// "LearningTasks-<year name>.csv".
func (c *Client) ExportLearningTasks(ctx context.Context, yearId int, yearName, dir string) (filestore.File, error) {
	ctx, span := tracer.Start(ctx, "client:ExportLearningTasks")
	defer span.End()

	file, err := c.jobs.Export(ctx, asyncjob.Spec{
		Type: "47",
		Params: map[string]any{
			"academicYearId":   yearId,
			"academicYearName": yearName,
		},
	}, dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "learning tasks export failed")
		return filestore.File{}, err
	}
	return file, nil
}

// ExportReports queues a semester reports export for one report cycle.
func (c *Client) ExportReports(ctx context.Context, cycleId int, dir string) (filestore.File, error) {
	ctx, span := tracer.Start(ctx, "client:ExportReports")
	defer span.End()

	file, err := c.jobs.Export(ctx, asyncjob.Spec{
		Type: "2",
		Params: map[string]any{
			"cycleId": cycleId,
		},
	}, dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reports export failed")
		return filestore.File{}, err
	}
	return file, nil
}

// ExportProgressReports queues a progress report export for one cycle.
func (c *Client) ExportProgressReports(ctx context.Context, cycleId int, cycleName, dir string) (filestore.File, error) {
	ctx, span := tracer.Start(ctx, "client:ExportProgressReports")
	defer span.End()

	file, err := c.jobs.Export(ctx, asyncjob.Spec{
		Type: "35",
		Params: map[string]any{
			"cycleId":     cycleId,
			"cycleName":   cycleName,
			"displayType": 1,
		},
	}, dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "progress reports export failed")
		return filestore.File{}, err
	}
	return file, nil
}

package compass

import (
	"context"
	"time"

	"edexport-backend/lib/filestore"

	"go.opentelemetry.io/otel/codes"
)

// sdsMembers are the four csv files inside a Compass SDS bulk export.
var sdsMembers = []string{
	"StudentEnrollment.csv",
	"Teacher.csv",
	"TeacherRoster.csv",
	"Section.csv",
}

// ExportStudentDetails downloads the student details csv through the direct
// csv handler. Unlike the bulk exports this endpoint is synchronous.
func (c *Client) ExportStudentDetails(ctx context.Context, dir string) (filestore.File, error) {
	ctx, span := tracer.Start(ctx, "client:ExportStudentDetails")
	defer span.End()

	res, err := c.Session.Http.R().
		SetContext(ctx).
		SetQueryParam("type", "38").
		Get("/Services/FileDownload/CsvRequestHandler")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "student details download failed")
		return filestore.File{}, err
	}
	return filestore.Save(res.Body(), dir, "StudentDetails.csv")
}

// ExtractSDSExport unpacks the enrolment csvs from a previously acquired SDS
// bulk zip (those archives can only be queued through the portal ui) and
// deletes the archive. A non-zero date stamps each csv so consecutive days
// of enrolment data can sit in one directory.
func ExtractSDSExport(archivePath, dir string, date time.Time) ([]filestore.File, error) {
	return filestore.ExtractMembers(archivePath, sdsMembers, dir, date)
}

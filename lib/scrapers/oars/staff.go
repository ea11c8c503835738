package oars

import (
	"context"
	"encoding/json"
	"fmt"

	"edexport-backend/lib/filestore"

	"go.opentelemetry.io/otel/codes"
)

// ExportStaff asks the portal to build the staff spreadsheet and saves it to
// dir as <school>-staff.xlsx.
func (c *Client) ExportStaff(ctx context.Context, dir string) (filestore.File, error) {
	ctx, span := tracer.Start(ctx, "client:ExportStaff")
	defer span.End()

	exportName := c.school + "-staff"
	res, err := c.Session.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"export_name":    exportName,
			"security_token": c.securityToken,
		}).
		Post(c.api("staff/exportExcel"))
	if err != nil {
		span.SetStatus(codes.Error, "failed to request staff export")
		return filestore.File{}, err
	}
	var export struct {
		Filename string `json:"filename"`
	}
	err = json.Unmarshal(res.Body(), &export)
	if err != nil || export.Filename == "" {
		span.SetStatus(codes.Error, "staff export gave no filename")
		return filestore.File{}, fmt.Errorf("staff export gave no filename")
	}

	res, err = c.Session.Http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"filePath":        export.Filename,
			"security[token]": c.securityToken,
		}).
		Get(c.api("clients/downloadFile"))
	if err != nil {
		span.SetStatus(codes.Error, "failed to download staff export")
		return filestore.File{}, err
	}

	return filestore.Save(res.Body(), dir, exportName+".xlsx")
}

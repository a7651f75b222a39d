package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/fiscalflow/internal/domain"
	"github.com/gosuda/fiscalflow/internal/reports"
)

type GetReportInput struct {
	ID string `path:"id" minLength:"1" maxLength:"64" doc:"Report id"`
}

type GetReportOutput struct {
	Body *reports.Artifact
}

type DownloadReportOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

// RegisterReportRoutes registers the report artifact endpoints.
func RegisterReportRoutes(api huma.API, svc ReportService) {
	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{id}",
		Summary:     "Get report metadata and base64 content",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, input *GetReportInput) (*GetReportOutput, error) {
		a, err := svc.Get(ctx, input.ID)
		if err != nil {
			return nil, reportError(err)
		}
		return &GetReportOutput{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "download-report",
		Method:      http.MethodGet,
		Path:        "/reports/{id}/pdf",
		Summary:     "Download the report PDF",
		Tags:        []string{"Reports"},
	}, func(ctx context.Context, input *GetReportInput) (*DownloadReportOutput, error) {
		a, err := svc.Get(ctx, input.ID)
		if err != nil {
			return nil, reportError(err)
		}
		return &DownloadReportOutput{
			ContentType:        "application/pdf",
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", a.FileName),
			Body:               a.Bytes(),
		}, nil
	})
}

func reportError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return huma.Error400BadRequest("invalid report id")
	case errors.Is(err, reports.ErrReportNotFound):
		return huma.Error404NotFound("report not found")
	case errors.Is(err, reports.ErrReportExpired):
		return huma.NewError(http.StatusGone, "report expired")
	case errors.Is(err, reports.ErrInvalidArtifact):
		return huma.Error422UnprocessableEntity("stored report is not a valid PDF")
	default:
		return huma.Error500InternalServerError("failed to load report", err)
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/fiscalflow/internal/domain"
)

// ReportRepo reads generated artifacts from holded_reports, which the
// workflow engine fills.
type ReportRepo struct {
	pool *pgxpool.Pool
}

func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

func (r *ReportRepo) GetByID(ctx context.Context, id string) (*domain.Report, error) {
	var rep domain.Report
	var reportType *string

	err := r.pool.QueryRow(ctx,
		`SELECT id::text, file_name, pdf_data, report_type, created_at
		 FROM holded_reports WHERE id::text = $1`,
		id,
	).Scan(&rep.ID, &rep.FileName, &rep.PDFData, &reportType, &rep.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reportRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reportRepo.GetByID: %w", err)
	}

	rep.Type = derefStr(reportType)
	return &rep, nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

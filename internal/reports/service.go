// Package reports serves the PDF artifacts the remote agent generates and
// refers to by identifier.
package reports

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosuda/fiscalflow/internal/domain"
)

var (
	ErrReportNotFound  = errors.New("reports: report not found")
	ErrReportExpired   = errors.New("reports: report expired")
	ErrInvalidArtifact = errors.New("reports: stored artifact is not a valid PDF")
)

const defaultType = "Fiscal"

var pdfMagic = []byte("%PDF") //nolint:gochecknoglobals // file signature

// Artifact is a report ready to hand to a client.
type Artifact struct {
	ID       string    `json:"id"`
	FileName string    `json:"file_name"`
	Data     string    `json:"pdf_data"` // base64
	Size     int       `json:"size"`
	Date     time.Time `json:"date"`
	Type     string    `json:"type"`

	raw []byte
}

// Bytes returns the decoded PDF.
func (a *Artifact) Bytes() []byte {
	return a.raw
}

type Service struct {
	repo domain.ReportRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewService creates the artifact service. A zero ttl keeps reports forever.
func NewService(repo domain.ReportRepository, ttl time.Duration) *Service {
	return &Service{repo: repo, ttl: ttl, now: time.Now}
}

// Get loads and verifies one report.
func (s *Service) Get(ctx context.Context, id string) (*Artifact, error) {
	if !validID(id) {
		return nil, fmt.Errorf("reports.Service.Get: id %q: %w", id, domain.ErrInvalidRequest)
	}

	rep, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("reports.Service.Get: %w", ErrReportNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reports.Service.Get: %w", err)
	}

	if s.ttl > 0 && !rep.CreatedAt.IsZero() && s.now().Sub(rep.CreatedAt) > s.ttl {
		return nil, fmt.Errorf("reports.Service.Get: %w", ErrReportExpired)
	}

	raw, err := decodePDF(rep.PDFData)
	if err != nil {
		return nil, fmt.Errorf("reports.Service.Get: report %s: %w", id, err)
	}

	a := &Artifact{
		ID:       rep.ID,
		FileName: rep.FileName,
		Data:     base64.StdEncoding.EncodeToString(raw),
		Size:     len(raw),
		Date:     rep.CreatedAt,
		Type:     rep.Type,
		raw:      raw,
	}
	if a.Type == "" {
		a.Type = defaultType
	}
	if a.FileName == "" {
		a.FileName = fmt.Sprintf("reporte_fiscal_%s_%s.pdf", id, rep.CreatedAt.Format(time.DateOnly))
	}
	return a, nil
}

func validID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && c != '-' {
			return false
		}
	}
	return true
}

// decodePDF accepts plain base64 or a data URL and checks the PDF signature.
func decodePDF(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len(";base64,"):]
	}
	data = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, data)

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", ErrInvalidArtifact)
	}
	if !bytes.HasPrefix(raw, pdfMagic) {
		return nil, ErrInvalidArtifact
	}
	return raw, nil
}

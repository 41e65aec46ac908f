package export

import (
	"context"
	"fmt"
	"time"
)

// Service provides env export functionality
type Service struct {
	source Source
	now    func() time.Time
}

// NewService creates a new export service
func NewService(source Source) *Service {
	return &Service{source: source, now: time.Now}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	switch req.Format {
	case FormatHTML, FormatPDF:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	e, err := s.source.Snapshot(ctx, req.Eid)
	if err != nil {
		return nil, fmt.Errorf("get env: %w", err)
	}

	data := TemplateData{
		Eid:       e.ID,
		Generated: s.now(),
		Panes:     []TemplatePane{},
	}
	for _, p := range e.Panes() {
		data.Panes = append(data.Panes, templatePane(p))
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	if req.Format == FormatPDF {
		return exportPDF(ctx, html, e.ID)
	}
	return &Result{
		Data:     []byte(html),
		Filename: sanitizeFilename(e.ID) + ".html",
		MimeType: "text/html; charset=utf-8",
	}, nil
}

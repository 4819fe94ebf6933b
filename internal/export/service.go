package export

import (
	"fmt"

	"rostrum/api/internal/resolution"
)

// Service provides resolution export functionality
type Service struct{}

// NewService creates a new export service
func NewService() *Service {
	return &Service{}
}

// Export generates an export in the requested format
func (s *Service) Export(req Request) (*Result, error) {
	data := TemplateData{
		Committee:     req.Committee,
		Bloc:          req.Bloc,
		Forum:         req.Resolution.Forum,
		QuestionOf:    req.Resolution.QuestionOf,
		SubmittedBy:   req.Resolution.SubmittedBy,
		CoSubmittedBy: req.Resolution.CoSubmittedBy,
		Paragraphs:    splitParagraphs(resolution.Render(req.Resolution)),
	}

	html, err := RenderResolutionHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	title := req.Bloc + "-resolution"

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, title)
	case FormatDOCX:
		return exportDOCX(html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

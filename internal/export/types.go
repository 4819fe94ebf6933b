// Package export renders a resolution into its printable document form and
// converts it to PDF (headless Chrome) or DOCX (pandoc).
package export

import (
	"errors"

	"rostrum/api/internal/resolution"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatHTML, FormatPDF, FormatDOCX:
		return Format(s), true
	default:
		return "", false
	}
}

// Request contains parameters for an export operation
type Request struct {
	Committee  string
	Bloc       string
	Resolution resolution.Resolution
	Format     Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)

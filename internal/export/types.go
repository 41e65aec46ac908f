// Package export renders an env's panes as a standalone HTML or PDF report.
package export

import (
	"context"
	"errors"

	"panehub/server/internal/env"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// Request contains parameters for an export operation
type Request struct {
	Eid    string
	Format Format
}

// Source yields a point-in-time copy of an env.
type Source interface {
	Snapshot(ctx context.Context, eid string) (*env.Env, error)
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
	// ErrUnsupportedFormat is returned for formats other than html and pdf.
	ErrUnsupportedFormat = errors.New("export format unsupported")
)

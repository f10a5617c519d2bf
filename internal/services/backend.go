package services

import (
	"context"

	"github.com/Lllllllleong/pdfassembler/internal/models"
)

// Backend is the PDF processing collaborator. Failures are reported as
// *BackendError.
type Backend interface {
	// ExtractPages splits a file into pages. A file that needs a password and
	// was given none fails with PDF_PASSWORD_REQUIRED; a wrong password fails
	// with PDF_PASSWORD_INCORRECT.
	ExtractPages(ctx context.Context, req models.ExtractRequest) (*models.Document, error)
	// RenderFullResolution returns one page at full resolution.
	RenderFullResolution(ctx context.Context, req models.RenderRequest) (*models.FullImage, error)
	// ExportSelection writes the selected pages, in order, to a new file.
	ExportSelection(ctx context.Context, req models.ExportRequest) (*models.ExportResponse, error)
}

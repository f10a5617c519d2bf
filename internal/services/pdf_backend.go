package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Lllllllleong/pdfassembler/internal/models"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	pdfMIMEType      = "application/pdf"
	maxPageTrimLimit = 8
)

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// PDFBackend implements Backend on top of pdfcpu. Source files are read from
// the local disk; exports are written to outputDir on fs.
type PDFBackend struct {
	fs        afero.Fs
	outputDir string
	tempDir   string
}

// NewPDFBackend returns a backend writing exports below outputDir.
func NewPDFBackend(fs afero.Fs, outputDir string) *PDFBackend {
	return &PDFBackend{fs: fs, outputDir: outputDir, tempDir: os.TempDir()}
}

// ExtractPages reads the page dimensions of a PDF, or of an image or text file
// after converting it to a PDF.
func (b *PDFBackend) ExtractPages(ctx context.Context, req models.ExtractRequest) (*models.Document, error) {
	logCtx := slog.With("filePath", req.FilePath, "documentId", req.DocumentID)

	if err := validation.ValidateStruct(&req,
		validation.Field(&req.FilePath, validation.Required),
		validation.Field(&req.DocumentID, validation.Required),
	); err != nil {
		return nil, backendError(models.CodeInvalidRequest, req.FilePath, err)
	}
	if _, err := os.Stat(req.FilePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, backendError(models.CodeFileNotFound, req.FilePath, err)
		}
		return nil, backendError(models.CodeLoad, req.FilePath, err)
	}

	sourcePath := req.FilePath
	ext := strings.ToLower(filepath.Ext(req.FilePath))
	switch {
	case ext == ".pdf":
	case imageExtensions[ext]:
		converted, err := b.convertImage(req.FilePath, req.DocumentID)
		if err != nil {
			return nil, backendError(models.CodeLoad, req.FilePath, err)
		}
		logCtx.Info("Converted image to PDF.", "tempPath", converted)
		sourcePath = converted
	case ext == ".txt":
		converted, err := b.convertText(req.FilePath, req.DocumentID)
		if err != nil {
			return nil, backendError(models.CodeLoad, req.FilePath, err)
		}
		logCtx.Info("Converted text to PDF.", "tempPath", converted)
		sourcePath = converted
	default:
		return nil, backendError(models.CodeUnsupportedFile, req.FilePath, fmt.Errorf("unsupported extension %q", ext))
	}

	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, backendError(models.CodeLoad, req.FilePath, err)
	}

	doc := &models.Document{
		ID:              req.DocumentID,
		DisplayName:     filepath.Base(req.FilePath),
		SourceFilePath:  sourcePath,
		DecryptionState: models.DecryptionNotApplicable,
	}
	// Open without a password first; the credential is kept only when the
	// file cannot be read without it.
	dims, err := api.PageDims(bytes.NewReader(content), readConfig(""))
	if err != nil {
		openErr := classifyOpenError(req.FilePath, "", err)
		if openErr.Code != models.CodePasswordRequired || req.Password == "" {
			return nil, openErr
		}
		dims, err = api.PageDims(bytes.NewReader(content), readConfig(req.Password))
		if err != nil {
			return nil, classifyOpenError(req.FilePath, req.Password, err)
		}
		doc.Credential = req.Password
		doc.DecryptionState = models.DecryptionUnlocked
	}

	doc.Pages = make([]models.Page, 0, len(dims))
	for i, dim := range dims {
		doc.Pages = append(doc.Pages, models.Page{
			ID:              fmt.Sprintf("%s_%d", req.DocumentID, i),
			SourceFilePath:  sourcePath,
			SourcePageIndex: i,
			Preview:         fmt.Sprintf("%s#page=%d", sourcePath, i+1),
			Width:           dim.Width,
			Height:          dim.Height,
		})
	}
	logCtx.Info("Pages extracted.", "pageCount", len(doc.Pages))
	return doc, nil
}

// RenderFullResolution returns the page as a standalone single page PDF.
func (b *PDFBackend) RenderFullResolution(ctx context.Context, req models.RenderRequest) (*models.FullImage, error) {
	content, err := os.ReadFile(req.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, backendError(models.CodeFileNotFound, req.FilePath, err)
		}
		return nil, backendError(models.CodeLoad, req.FilePath, err)
	}
	conf := readConfig(req.Password)
	dims, err := api.PageDims(bytes.NewReader(content), conf)
	if err != nil {
		return nil, classifyOpenError(req.FilePath, req.Password, err)
	}
	if req.PageIndex < 0 || req.PageIndex >= len(dims) {
		return nil, &BackendError{Code: models.CodePageNotFound, FilePath: req.FilePath, PageIndex: req.PageIndex}
	}

	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(content), &out, []string{strconv.Itoa(req.PageIndex + 1)}, conf); err != nil {
		return nil, &BackendError{Code: models.CodePageLoad, FilePath: req.FilePath, PageIndex: req.PageIndex, Err: err}
	}
	return &models.FullImage{
		Data:     out.Bytes(),
		MIMEType: pdfMIMEType,
		Width:    dims[req.PageIndex].Width,
		Height:   dims[req.PageIndex].Height,
	}, nil
}

// ExportSelection decrypts the sources that need it, cuts every selected page
// into its own file, merges them in selection order and optionally encrypts
// the result.
func (b *PDFBackend) ExportSelection(ctx context.Context, req models.ExportRequest) (*models.ExportResponse, error) {
	logCtx := slog.With("fileName", req.FileName, "pageCount", len(req.Pages))
	if err := ValidateExportRequest(req); err != nil {
		return nil, backendError(models.CodeInvalidRequest, "", err)
	}

	tempDir, err := os.MkdirTemp(b.tempDir, "pdf-export-*")
	if err != nil {
		return nil, backendError(models.CodeOutputPath, "", fmt.Errorf("failed to create temp dir: %w", err))
	}
	defer os.RemoveAll(tempDir)

	sources, err := b.prepareSources(tempDir, req.Pages)
	if err != nil {
		return nil, err
	}

	pageFiles, err := b.trimPages(ctx, logCtx, tempDir, sources, req.Pages)
	if err != nil {
		return nil, err
	}

	merged := filepath.Join(tempDir, "merged.pdf")
	if err := api.MergeCreateFile(pageFiles, merged, false, relaxedConfig()); err != nil {
		return nil, backendError(models.CodeSave, "", fmt.Errorf("failed to merge pages: %w", err))
	}

	final := merged
	if req.Password != "" {
		final = filepath.Join(tempDir, "encrypted.pdf")
		conf := model.NewAESConfiguration(req.Password, req.Password, req.Encryption.KeyLength())
		if err := api.EncryptFile(merged, final, conf); err != nil {
			return nil, backendError(models.CodeEncrypt, "", err)
		}
	}

	outputPath, err := UniqueOutputPath(b.fs, b.outputDir, req.FileName)
	if err != nil {
		return nil, backendError(models.CodeOutputPath, b.outputDir, err)
	}
	content, err := os.ReadFile(final)
	if err != nil {
		return nil, backendError(models.CodeSave, outputPath, err)
	}
	if err := afero.WriteFile(b.fs, outputPath, content, 0o644); err != nil {
		return nil, backendError(models.CodeSave, outputPath, err)
	}

	logCtx.Info("Export written.", "outputPath", outputPath, "encrypted", req.Password != "")
	return &models.ExportResponse{
		FileName:   filepath.Base(outputPath),
		OutputPath: outputPath,
		PageCount:  len(req.Pages),
	}, nil
}

type exportSource struct {
	path      string
	pageCount int
}

// prepareSources resolves every distinct source file once. Password protected
// sources are decrypted into tempDir.
func (b *PDFBackend) prepareSources(tempDir string, pages []models.ExportPage) (map[string]exportSource, error) {
	sources := make(map[string]exportSource)
	for _, page := range pages {
		key := sourceKey(page)
		if _, ok := sources[key]; ok {
			continue
		}

		path := page.FilePath
		if page.Password != "" {
			path = filepath.Join(tempDir, fmt.Sprintf("source_%03d.pdf", len(sources)))
			if err := api.DecryptFile(page.FilePath, path, readConfig(page.Password)); err != nil {
				return nil, &BackendError{Code: models.CodePageDecrypt, FilePath: page.FilePath, PageIndex: page.PageIndex, Err: err}
			}
		}

		count, err := api.PageCountFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, backendError(models.CodeFileNotFound, page.FilePath, err)
			}
			return nil, &BackendError{Code: models.CodePageLoad, FilePath: page.FilePath, PageIndex: page.PageIndex, Err: err}
		}
		sources[key] = exportSource{path: path, pageCount: count}
	}

	for _, page := range pages {
		if page.PageIndex >= sources[sourceKey(page)].pageCount {
			return nil, &BackendError{Code: models.CodePageNotFound, FilePath: page.FilePath, PageIndex: page.PageIndex}
		}
	}
	return sources, nil
}

// trimPages writes each selected page to its own file, concurrently. The
// returned paths are in selection order.
func (b *PDFBackend) trimPages(ctx context.Context, logCtx *slog.Logger, tempDir string, sources map[string]exportSource, pages []models.ExportPage) ([]string, error) {
	logCtx.Info("Starting concurrent page extraction.")
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxPageTrimLimit)

	pageFiles := make([]string, len(pages))
	for i, page := range pages {
		pageFiles[i] = filepath.Join(tempDir, fmt.Sprintf("page_%05d.pdf", i))
		source := sources[sourceKey(page)]
		out := pageFiles[i]

		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			selected := []string{strconv.Itoa(page.PageIndex + 1)}
			if err := api.TrimFile(source.path, out, selected, relaxedConfig()); err != nil {
				return &BackendError{Code: models.CodePageLoad, FilePath: page.FilePath, PageIndex: page.PageIndex, Err: err}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logCtx.Error("One or more pages failed to extract.", "error", err)
		var be *BackendError
		if errors.As(err, &be) {
			return nil, be
		}
		return nil, backendError(models.CodePageLoad, "", err)
	}
	return pageFiles, nil
}

// convertImage imports an image into a temporary single page PDF named after
// the document, so the same document always maps to the same file.
func (b *PDFBackend) convertImage(imagePath, documentID string) (string, error) {
	out := filepath.Join(b.tempDir, documentID+".pdf")
	if err := os.Remove(out); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to clear %s: %w", out, err)
	}
	if err := api.ImportImagesFile([]string{imagePath}, out, nil, relaxedConfig()); err != nil {
		return "", fmt.Errorf("failed to import image: %w", err)
	}
	return out, nil
}

// ValidateExportRequest checks an export request before any file is touched.
func ValidateExportRequest(req models.ExportRequest) error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.FileName, validation.Required),
		validation.Field(&req.Pages, validation.Required, validation.Each(validation.By(validateExportPage))),
		validation.Field(&req.Encryption, validation.In(models.AES128, models.AES256)),
	)
}

func validateExportPage(value interface{}) error {
	page, ok := value.(models.ExportPage)
	if !ok {
		return fmt.Errorf("unexpected page type %T", value)
	}
	return validation.ValidateStruct(&page,
		validation.Field(&page.FilePath, validation.Required),
		validation.Field(&page.PageIndex, validation.Min(0)),
	)
}

// classifyOpenError maps a pdfcpu read failure to a backend code. Password
// problems are told apart by message, the only signal pdfcpu gives.
func classifyOpenError(filePath, password string, err error) *BackendError {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "password") || strings.Contains(msg, "encrypt") {
		if password == "" {
			return backendError(models.CodePasswordRequired, filePath, err)
		}
		return backendError(models.CodePasswordIncorrect, filePath, err)
	}
	return backendError(models.CodeLoad, filePath, err)
}

func sourceKey(page models.ExportPage) string {
	return page.FilePath + "\x00" + page.Password
}

func relaxedConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func readConfig(password string) *model.Configuration {
	conf := relaxedConfig()
	if password != "" {
		conf.UserPW = password
		conf.OwnerPW = password
	}
	return conf
}

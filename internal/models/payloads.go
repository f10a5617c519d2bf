package models

import "time"

// These structs define the request and response payloads exchanged with the
// PDF backend that extracts, renders and exports pages.

// ErrorCode identifies a backend failure in a form the UI can translate.
type ErrorCode string

const (
	CodePasswordRequired  ErrorCode = "PDF_PASSWORD_REQUIRED"
	CodePasswordIncorrect ErrorCode = "PDF_PASSWORD_INCORRECT"
	CodeLoad              ErrorCode = "PDF_LOAD_ERROR"
	CodeFileNotFound      ErrorCode = "PDF_FILE_NOT_FOUND"
	CodeUnsupportedFile   ErrorCode = "PDF_UNSUPPORTED_FILE"
	CodePageNotFound      ErrorCode = "PDF_PAGE_NOT_FOUND"
	CodePageLoad          ErrorCode = "PDF_PAGE_LOAD_ERROR"
	CodePageDecrypt       ErrorCode = "PDF_PAGE_DECRYPT_ERROR"
	CodeOutputPath        ErrorCode = "PDF_OUTPUT_PATH_ERROR"
	CodeEncrypt           ErrorCode = "PDF_ENCRYPT_ERROR"
	CodeSave              ErrorCode = "PDF_SAVE_ERROR"
	CodeInvalidRequest    ErrorCode = "PDF_INVALID_REQUEST"
)

// EncryptionLevel selects the AES key length used when an export is
// password protected.
type EncryptionLevel string

const (
	AES128 EncryptionLevel = "AES128"
	AES256 EncryptionLevel = "AES256"
)

// KeyLength returns the key length in bits. The zero value means AES-128.
func (l EncryptionLevel) KeyLength() int {
	if l == AES256 {
		return 256
	}
	return 128
}

// ExtractRequest asks the backend to split a file into pages.
type ExtractRequest struct {
	FilePath   string `json:"filePath"`
	Password   string `json:"password,omitempty"`
	DocumentID string `json:"documentId,omitempty"` // reused on unlock so the document keeps its identity
}

// RenderRequest asks for a full resolution rendering of a single page.
type RenderRequest struct {
	FilePath  string `json:"filePath"`
	PageIndex int    `json:"pageIndex"`
	Password  string `json:"password,omitempty"`
}

// FullImage is the result of a RenderRequest.
type FullImage struct {
	Data     []byte  `json:"data"`
	MIMEType string  `json:"mimeType"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// ExportPage references one source page of an export selection.
type ExportPage struct {
	FilePath  string `json:"filePath"`
	PageIndex int    `json:"pageIndex"`
	Password  string `json:"password,omitempty"`
}

// ExportRequest is the input for an export. Pages are written in order.
type ExportRequest struct {
	FileName   string          `json:"fileName"`
	Pages      []ExportPage    `json:"pages"`
	Password   string          `json:"password,omitempty"`
	Encryption EncryptionLevel `json:"encryption,omitempty"`
}

// ExportResponse is the output of an export.
type ExportResponse struct {
	FileName     string `json:"fileName"`
	OutputPath   string `json:"outputPath"`
	PublishedURI string `json:"publishedUri,omitempty"`
	PageCount    int    `json:"pageCount"`
}

// ExportRecord tracks one export in Firestore.
type ExportRecord struct {
	FileName     string    `firestore:"fileName,omitempty"`
	Status       string    `firestore:"status,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	PageCount    int       `firestore:"pageCount,omitempty"`
	Encrypted    bool      `firestore:"encrypted,omitempty"`
	OutputPath   string    `firestore:"outputPath,omitempty"`
	PublishedURI string    `firestore:"publishedUri,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt,omitempty"`
}

// Export record statuses.
const (
	ExportStatusExporting = "EXPORTING"
	ExportStatusComplete  = "COMPLETE"
	ExportStatusFailed    = "FAILED"
)

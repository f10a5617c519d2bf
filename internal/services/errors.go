package services

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/pdfassembler/internal/models"
)

// ErrNotLocked is returned when unlocking a document that has no pending
// password.
var ErrNotLocked = errors.New("document is not locked")

// BackendError is the typed failure returned by a Backend. Code is stable and
// meant for the UI; Err carries the underlying cause.
type BackendError struct {
	Code      models.ErrorCode
	FileName  string
	FilePath  string
	PageIndex int
	Err       error
}

func (e *BackendError) Error() string {
	msg := string(e.Code)
	if e.FilePath != "" {
		msg += " " + e.FilePath
	}
	if e.Code == models.CodePageNotFound || e.Code == models.CodePageLoad {
		msg += fmt.Sprintf(" page %d", e.PageIndex)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsCode reports whether err is a BackendError with the given code.
func IsCode(err error, code models.ErrorCode) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Code == code
}

// CodeOf returns the code of a BackendError, or the empty code.
func CodeOf(err error) models.ErrorCode {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func backendError(code models.ErrorCode, filePath string, err error) *BackendError {
	return &BackendError{Code: code, FilePath: filePath, Err: err}
}

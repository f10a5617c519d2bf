package services

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const defaultExportName = "output"

// UniqueOutputPath returns a path for fileName inside dir that does not exist
// yet: name.pdf, then name_0.pdf, name_1.pdf and so on. The directory is
// created if needed.
func UniqueOutputPath(fs afero.Fs, dir, fileName string) (string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir %s: %w", dir, err)
	}

	stem := exportStem(fileName)
	candidate := filepath.Join(dir, stem+".pdf")
	for counter := 0; ; counter++ {
		exists, err := afero.Exists(fs, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d.pdf", stem, counter))
	}
}

// exportStem strips directories and a trailing .pdf from a user supplied name.
func exportStem(fileName string) string {
	name := filepath.Base(strings.TrimSpace(fileName))
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		name = name[:len(name)-len(".pdf")]
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		return defaultExportName
	}
	return name
}

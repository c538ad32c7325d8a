// Package store persists the current request's artifacts: the uploaded
// file, the processed CSV, and a small SQLite catalog describing what is
// on disk. Nothing else outlives a request.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Files is the artifact directory pair. Identical sanitized filenames
// overwrite each other; for a single-user tool that collision behavior is
// documented and accepted rather than disambiguated.
type Files struct {
	UploadsDir   string
	ProcessedDir string
}

// NewFiles creates both directories if needed.
func NewFiles(uploads, processed string) (*Files, error) {
	for _, dir := range []string{uploads, processed} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &Files{UploadsDir: uploads, ProcessedDir: processed}, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName reduces a client-supplied filename to a safe base name:
// path components are stripped, anything outside [A-Za-z0-9._-] collapses
// to "_", and leading dots are removed so no name can hide or traverse.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	return name
}

// SaveUpload writes the raw upload under its sanitized name and returns
// that name.
func (f *Files) SaveUpload(name string, data []byte) (string, error) {
	clean := SanitizeName(name)
	if clean == "" {
		return "", fmt.Errorf("unusable filename %q", name)
	}
	if err := os.WriteFile(filepath.Join(f.UploadsDir, clean), data, 0o644); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return clean, nil
}

// SaveProcessed writes the encoded output under name (already derived from
// a sanitized base).
func (f *Files) SaveProcessed(name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(f.ProcessedDir, name), data, 0o644); err != nil {
		return fmt.Errorf("save processed: %w", err)
	}
	return nil
}

// ProcessedPath returns the on-disk path for a processed artifact, or an
// error if name does not survive sanitization unchanged (defense for the
// download handler, which receives the name from the URL).
func (f *Files) ProcessedPath(name string) (string, error) {
	if name == "" || SanitizeName(name) != name {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(f.ProcessedDir, name), nil
}

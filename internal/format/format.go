// Package format decides which structural parser handles an upload.
//
// Detection is by file extension only, and the extension is authoritative:
// a ".json" file that contains CSV is a malformed-JSON error downstream, not
// a CSV file. This is a deliberate simplification carried over from the
// original tool; content sniffing is out of scope.
package format

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format tags the recognized input families.
type Format string

const (
	// Text is unstructured delimited text (.log/.txt); it takes the
	// pattern-inference path.
	Text Format = "text"
	// JSON is a JSON array of objects.
	JSON Format = "json"
	// JSONL is newline-delimited JSON objects. Detect never returns JSONL
	// directly; the JSON parser reports it when the line-delimited branch
	// actually ran.
	JSONL Format = "jsonl"
	// XML is a document whose root's children are records.
	XML Format = "xml"
	// CSV is comma-separated with a header row.
	CSV Format = "csv"
)

var byExtension = map[string]Format{
	"txt":  Text,
	"log":  Text,
	"json": JSON,
	"xml":  XML,
	"csv":  CSV,
}

// AllowedExtensions returns the accepted extensions (lowercase, no dot),
// sorted the way they are shown to users.
func AllowedExtensions() []string {
	return []string{"txt", "log", "json", "xml", "csv"}
}

// Detect maps a filename to its Format. The extension comparison is
// case-insensitive, so "data.CSV" is accepted identically to "data.csv".
func Detect(filename string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return "", fmt.Errorf("%q has no file extension", filename)
	}
	f, ok := byExtension[ext]
	if !ok {
		return "", fmt.Errorf("file type %q not allowed (want one of: %s)",
			ext, strings.Join(AllowedExtensions(), ", "))
	}
	return f, nil
}

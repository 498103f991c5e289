// Package extract turns files into plain text for embedding.
//
// Plain-text formats are read directly. Office Open XML and OpenDocument
// files are zip archives whose XML parts are stripped to character data.
// PDFs are parsed with pdfcpu and only their text layer is kept.
// Formats without a decoder return ErrUnsupportedFormat.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedFormat is returned for extensions no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Extractor returns at most maxChars characters of text from a file.
type Extractor interface {
	Extract(path string, maxChars int) (string, error)
}

// FileExtractor dispatches on the lowercase file extension.
type FileExtractor struct{}

func New() *FileExtractor {
	return &FileExtractor{}
}

var textExtensions = map[string]bool{
	"txt": true, "md": true, "rs": true, "ts": true, "tsx": true, "js": true,
	"py": true, "toml": true, "yaml": true, "yml": true, "json": true, "sh": true,
	"css": true, "html": true, "csv": true, "rtf": true,
}

func (e *FileExtractor) Extract(path string, maxChars int) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	switch {
	case textExtensions[ext]:
		return readTextFile(path, maxChars)
	case ext == "pdf":
		return extractPDF(path, maxChars)
	case ext == "docx":
		return extractZipXML(path, maxChars, func(name string) bool { return name == "word/document.xml" })
	case ext == "pptx":
		return extractZipXML(path, maxChars, isSlidePart)
	case ext == "xlsx":
		return extractZipXML(path, maxChars, func(name string) bool { return name == "xl/sharedStrings.xml" })
	case ext == "odt" || ext == "odp" || ext == "ods":
		return extractZipXML(path, maxChars, func(name string) bool { return name == "content.xml" })
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func readTextFile(path string, maxChars int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), "�"))
	}
	return Truncate(string(data), maxChars), nil
}

// Truncate returns the first n characters (runes) of s.
func Truncate(s string, n int) string {
	if n < 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

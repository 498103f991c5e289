package extract

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	f.Close()
}

func TestExtract_TextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	os.WriteFile(path, []byte("hello world"), 0644)

	got, err := New().Extract(path, 1000)
	if err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_TruncatesByCharacters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.MD")
	os.WriteFile(path, []byte("héllo wörld"), 0644)

	got, err := New().Extract(path, 5)
	if err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}
	if got != "héllo" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_Unsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.exe")
	os.WriteFile(path, []byte("binary"), 0644)

	_, err := New().Extract(path, 100)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtract_Docx(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.docx")
	writeZip(t, path, map[string]string{
		"word/document.xml": `<w:document><w:body><w:p><w:r><w:t>Quarterly</w:t></w:r><w:r><w:t>report</w:t></w:r></w:p></w:body></w:document>`,
		"word/styles.xml":   `<styles>ignored</styles>`,
	})

	got, err := New().Extract(path, 1000)
	if err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}
	if got != "Quarterly report" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_PptxSlidesInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.pptx")
	writeZip(t, path, map[string]string{
		"ppt/slides/slide2.xml": `<p:sld><a:t>second</a:t></p:sld>`,
		"ppt/slides/slide1.xml": `<p:sld><a:t>first</a:t></p:sld>`,
	})

	got, err := New().Extract(path, 1000)
	if err != nil {
		t.Fatalf("Extract() failed: %v", err)
	}
	if got != "first\nsecond" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_EmptyArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.odt")
	writeZip(t, path, map[string]string{"meta.xml": "<meta/>"})

	_, err := New().Extract(path, 1000)
	if err == nil || !strings.Contains(err.Error(), "no text content") {
		t.Errorf("expected no text content error, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc" {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("ab", 10); got != "ab" {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("日本語テキスト", 2); got != "日本" {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("abc", 0); got != "" {
		t.Errorf("Truncate() = %q", got)
	}
}

func TestExtract_InvalidPDF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	os.WriteFile(path, []byte("not a pdf"), 0644)

	_, err := New().Extract(path, 1000)
	if err == nil {
		t.Fatal("expected an error for a malformed pdf")
	}
	if errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("pdf reported as unsupported: %v", err)
	}
}

func TestTextFromContentStream(t *testing.T) {
	stream := []byte("BT\n/F1 12 Tf\n72 712 Td\n(Quarterly) Tj\n0 -14 Td\n[(re) -20 (port)] TJ\nT*\n(caf\\351 \\(draft\\)) '\nET\n")

	got := textFromContentStream(stream)
	want := "Quarterly report caf\xe9 (draft)"
	if got != want {
		t.Errorf("textFromContentStream() = %q, want %q", got, want)
	}
}

func TestDecodePDFString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`plain`, "plain"},
		{`a\nb`, "a\nb"},
		{`\(x\)`, "(x)"},
		{`\040space`, " space"},
		{`\101B`, "AB"},
		{`tail\`, `tail\`},
	}
	for _, tt := range tests {
		if got := decodePDFString([]byte(tt.in)); got != tt.want {
			t.Errorf("decodePDFString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

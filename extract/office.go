package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

func isSlidePart(name string) bool {
	return strings.HasPrefix(name, "ppt/slides/slide") && strings.HasSuffix(name, ".xml")
}

// extractZipXML concatenates the character data of every archive member
// accepted by match, in name order, stopping once maxChars is reached.
func extractZipXML(path string, maxChars int, match func(name string) bool) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	var parts []*zip.File
	for _, f := range zr.File {
		if match(f.Name) {
			parts = append(parts, f)
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Name < parts[j].Name })

	var b strings.Builder
	for _, f := range parts {
		text, err := xmlText(f)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(text)
		if maxChars >= 0 && b.Len() >= maxChars {
			break
		}
	}

	if b.Len() == 0 {
		return "", fmt.Errorf("no text content found in %s", path)
	}
	return Truncate(b.String(), maxChars), nil
}

// xmlText returns the whitespace-normalised character data of an XML member.
func xmlText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	dec.Strict = false

	var words []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if cd, ok := tok.(xml.CharData); ok {
			words = append(words, strings.Fields(string(cd))...)
		}
	}
	return strings.Join(words, " "), nil
}

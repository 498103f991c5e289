package indexer

import (
	"bufio"
	"log"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is an optional per-root file of extra exclude patterns.
const IgnoreFileName = ".burrowignore"

// ExcludeMatcher applies gitignore-style patterns to paths under one index root.
// Patterns come from the config file and from the root's .burrowignore, if any.
type ExcludeMatcher struct {
	root    string
	matcher *ignore.GitIgnore
}

func NewExcludeMatcher(root string, patterns []string) *ExcludeMatcher {
	lines := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}

	ignorePath := filepath.Join(root, IgnoreFileName)
	extra, err := readIgnoreLines(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to read %s: %v", ignorePath, err)
	}
	lines = append(lines, extra...)

	m := &ExcludeMatcher{root: root}
	if len(lines) > 0 {
		m.matcher = ignore.CompileIgnoreLines(lines...)
	}
	return m
}

// ShouldExclude reports whether path (absolute, under root) matches a pattern.
// Directory patterns like "node_modules/" match the directory itself.
func (m *ExcludeMatcher) ShouldExclude(path string, isDir bool) bool {
	if m == nil || m.matcher == nil {
		return false
	}

	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)

	if m.matcher.MatchesPath(rel) {
		return true
	}
	return isDir && m.matcher.MatchesPath(rel+"/")
}

func readIgnoreLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

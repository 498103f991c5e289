package indexer

import (
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Scanner finds indexable files under a set of roots.
type Scanner struct {
	roots       []string
	extensions  map[string]bool
	maxFileSize int64
	exclude     []string
}

func NewScanner(roots, extensions []string, maxFileSize int64, excludePatterns []string) *Scanner {
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return &Scanner{
		roots:       roots,
		extensions:  exts,
		maxFileSize: maxFileSize,
		exclude:     excludePatterns,
	}
}

// IsIndexable reports whether path names a regular, non-hidden file with an
// allowed extension and a size within the cap. Symlinks are followed.
func (s *Scanner) IsIndexable(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" || !s.extensions[ext] {
		return false
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Size() <= s.maxFileSize
}

func (s *Scanner) Roots() []string {
	return s.roots
}

// Skipped reports whether a walk would prune path: it lies outside every
// root, has a dot-prefixed component below its root, or matches an exclude
// pattern.
func (s *Scanner) Skipped(path string, isDir bool) bool {
	for _, root := range s.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
			if strings.HasPrefix(part, ".") {
				return true
			}
		}
		return NewExcludeMatcher(root, s.exclude).ShouldExclude(path, isDir)
	}
	return true
}

// Scan walks every root and returns the indexable files in discovery order.
// Missing roots are skipped. Hidden entries and excluded paths are pruned,
// and each real directory is entered at most once so symlink cycles end.
func (s *Scanner) Scan() []string {
	var files []string
	visited := make(map[string]bool)

	for _, root := range s.roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		m := NewExcludeMatcher(root, s.exclude)
		s.walkDir(root, m, visited, &files)
	}
	return files
}

func (s *Scanner) walkDir(dir string, m *ExcludeMatcher, visited map[string]bool, files *[]string) {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return
	}
	if visited[real] {
		return
	}
	visited[real] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("Warning: failed to read directory %s: %v", dir, err)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)

		// Stat follows symlinks, so linked directories are descended into.
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if info.IsDir() {
			if m.ShouldExclude(path, true) {
				continue
			}
			s.walkDir(path, m, visited, files)
			continue
		}

		if m.ShouldExclude(path, false) {
			continue
		}
		if s.IsIndexable(path) {
			*files = append(*files, path)
		}
	}
}

// fileMtime returns the modification time of path in fractional unix seconds,
// or 0 when the file cannot be stat'ed.
func fileMtime(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(info.ModTime().UnixNano()) / 1e9
}

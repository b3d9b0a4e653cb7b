package scanner

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

type FileInfo struct {
	Path string
	Size int64
}

// Scanner walks a directory tree looking for container build files.
type Scanner struct {
	rootDir  string
	patterns []string
	skipDirs map[string]bool
}

// DefaultSkipDirs are never descended into.
var DefaultSkipDirs = []string{".git", "node_modules", "vendor"}

// New creates a scanner rooted at rootDir. Extra glob patterns, matched
// against base names, extend the built-in Dockerfile naming conventions.
func New(rootDir string, patterns ...string) *Scanner {
	skip := make(map[string]bool, len(DefaultSkipDirs))
	for _, d := range DefaultSkipDirs {
		skip[d] = true
	}
	return &Scanner{
		rootDir:  rootDir,
		patterns: patterns,
		skipDirs: skip,
	}
}

// Scan returns every matching file, sorted by path.
func (s *Scanner) Scan() ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != s.rootDir && s.skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		if !s.isTargetFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{Path: path, Size: info.Size()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, err
}

func (s *Scanner) isTargetFile(path string) bool {
	base := filepath.Base(path)
	if IsDockerfile(base) {
		return true
	}
	for _, pattern := range s.patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// IsDockerfile reports whether name follows a container build file naming
// convention: Dockerfile, Containerfile, Dockerfile.<suffix> or
// <prefix>.Dockerfile (case-insensitive).
func IsDockerfile(name string) bool {
	lower := strings.ToLower(filepath.Base(name))
	for _, stem := range []string{"dockerfile", "containerfile"} {
		switch {
		case lower == stem,
			strings.HasPrefix(lower, stem+".") && len(lower) > len(stem)+1,
			strings.HasSuffix(lower, "."+stem) && len(lower) > len(stem)+1:
			return true
		}
	}
	return false
}

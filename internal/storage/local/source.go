// Package local reads list files from the local filesystem.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local source.
type Config struct {
	// BaseDir resolves relative paths; empty means the working directory.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Source opens files below BaseDir, or anywhere for absolute paths.
type Source struct {
	baseDir string
}

// New creates a local Source.
func New(cfg Config) *Source {
	return &Source{baseDir: cfg.BaseDir}
}

// Open opens path, accepting an optional file:// prefix.
func (s *Source) Open(_ context.Context, path string) (io.ReadCloser, error) {
	path = strings.TrimPrefix(path, "file://")
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	full := path
	if !filepath.IsAbs(path) && s.baseDir != "" {
		full = filepath.Join(s.baseDir, path)
		cleanBase := filepath.Clean(s.baseDir)
		if !strings.HasPrefix(filepath.Clean(full), cleanBase+string(filepath.Separator)) {
			return nil, fmt.Errorf("path traversal detected")
		}
	}
	f, err := os.Open(full) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", full, err)
	}
	return f, nil
}

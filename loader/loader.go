// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package loader extracts raw page texts from documents on disk.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/pdfrag/core"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

var (
	// ErrNotFound indicates the document path does not exist or is a directory.
	ErrNotFound = fmt.Errorf("%w: document not found", core.ErrInput)

	// ErrUnsupportedType indicates a file extension with no registered loader.
	ErrUnsupportedType = fmt.Errorf("%w: unsupported document type", core.ErrInput)

	// ErrUnreadable indicates the document exists but could not be parsed.
	ErrUnreadable = fmt.Errorf("%w: unreadable document", core.ErrInput)
)

// Loader returns the raw texts of a document, one entry per page or section.
type Loader interface {
	Load(ctx context.Context, path string) ([]string, error)
}

// FileLoader loads PDF and plain-text files from the local filesystem.
type FileLoader struct {
	password string
	logger   *slog.Logger
}

var _ Loader = (*FileLoader)(nil)

// Option configures a FileLoader.
type Option func(*FileLoader)

// WithPassword sets the password used to open encrypted PDFs.
func WithPassword(password string) Option {
	return func(l *FileLoader) {
		l.password = password
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *FileLoader) {
		l.logger = logger
	}
}

// NewFileLoader creates a FileLoader.
func NewFileLoader(opts ...Option) *FileLoader {
	l := &FileLoader{logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "loader")
	return l
}

// Load reads path and returns its page texts.
func (l *FileLoader) Load(ctx context.Context, path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, core.Transient(err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, core.Transient(err)
	}
	defer f.Close()

	var docs []schema.Document
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		var opts []documentloaders.PDFOptions
		if l.password != "" {
			opts = append(opts, documentloaders.WithPassword(l.password))
		}
		docs, err = documentloaders.NewPDF(f, info.Size(), opts...).Load(ctx)
	case ".txt", ".md", ".text":
		docs, err = documentloaders.NewText(f).Load(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, path, err)
	}

	pages := make([]string, 0, len(docs))
	for _, doc := range docs {
		pages = append(pages, doc.PageContent)
	}
	l.logger.Debug("loaded document", "path", path, "pages", len(pages))
	return pages, nil
}

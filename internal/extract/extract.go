// Package extract pulls plain text out of uploaded documents.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupported is returned for file types without an extractor.
var ErrUnsupported = errors.New("unsupported document type")

// Extractor reads the text of one document format.
type Extractor interface {
	Extract(ctx context.Context, r io.ReaderAt, size int64) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, r io.ReaderAt, size int64) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, r io.ReaderAt, size int64) (string, error) {
	return f(ctx, r, size)
}

var extractors = map[string]Extractor{
	".txt":  ExtractorFunc(plainText),
	".text": ExtractorFunc(plainText),
	".md":   ExtractorFunc(plainText),
	".docx": ExtractorFunc(docxText),
	".pdf":  ExtractorFunc(pdfText),
}

// For returns the extractor for a file name's extension.
func For(name string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(name))
	e, ok := extractors[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	return e, nil
}

// Supported lists the accepted extensions.
func Supported() []string {
	exts := make([]string, 0, len(extractors))
	for ext := range extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// File extracts the text of a named document.
func File(ctx context.Context, name string, r io.ReaderAt, size int64) (string, error) {
	e, err := For(name)
	if err != nil {
		return "", err
	}
	text, err := e.Extract(ctx, r, size)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(name), err)
	}
	return strings.TrimSpace(text), nil
}

func plainText(_ context.Context, r io.ReaderAt, size int64) (string, error) {
	b, err := io.ReadAll(io.NewSectionReader(r, 0, size))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}

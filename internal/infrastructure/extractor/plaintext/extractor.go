package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/core/ports"
)

type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Extract reads a stored corpus. Invalid UTF-8 sequences are replaced rather
// than rejected; files containing NUL bytes are treated as binary.
func (e *Extractor) Extract(ctx context.Context, imp *domain.CorpusImport) (string, error) {
	reader, err := e.storage.Open(ctx, imp.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open corpus file: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read corpus file: %w", err)
	}

	if bytes.IndexByte(raw, 0) >= 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract corpus", fmt.Errorf("binary file: %s", imp.Filename))
	}
	if !utf8.Valid(raw) {
		raw = bytes.ToValidUTF8(raw, []byte(string(utf8.RuneError)))
	}

	raw = bytes.TrimPrefix(raw, utf8BOM)
	return strings.TrimSpace(string(raw)), nil
}

// Package extractor parses uploaded document bytes into plain text plus page
// count and container metadata. PDF parsing is delegated to an opaque
// third-party library; plain text (from the transcription front-end) passes
// through with whitespace normalisation only.
//
// The extractor validates declared media type, file extension, and size
// before touching the document bytes, so malformed uploads are rejected
// without side effects.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxFileSize is the maximum accepted upload size in bytes (50 MiB).
const MaxFileSize = 50 << 20

// Sentinel errors returned by Extract. Callers match with errors.Is.
var (
	// ErrUnsupportedFormat is returned when the declared media type or file
	// extension is outside the supported set.
	ErrUnsupportedFormat = errors.New("extractor: unsupported format")

	// ErrCorruptDocument is returned when the document bytes cannot be parsed.
	ErrCorruptDocument = errors.New("extractor: corrupt document")

	// ErrDocumentTooLarge is returned when the upload exceeds MaxFileSize.
	ErrDocumentTooLarge = errors.New("extractor: document too large")

	// ErrEmptyInput is returned for zero-length or whitespace-only input.
	ErrEmptyInput = errors.New("extractor: empty input")
)

// supportedTypes maps accepted media types to their required file extensions.
var supportedTypes = map[string][]string{
	"application/pdf": {".pdf"},
	"text/plain":      {".txt", ".text"},
}

// Result holds the output of a successful extraction.
type Result struct {
	// Text is the extracted plain text. Pages are separated by blank lines
	// so the structure analyzer can recover page boundaries.
	Text string

	// PageCount is the number of pages in the source document.
	// Always 1 for plain text input.
	PageCount int

	// Metadata holds container-level metadata (title, author, producer)
	// when the source format carries any. May be empty, never nil.
	Metadata map[string]string
}

// Extract validates and parses raw document bytes into plain text.
// mediaType is the declared MIME type of the upload; filename is the original
// file name used for extension validation.
func Extract(data []byte, mediaType, filename string) (*Result, error) {
	if err := Validate(data, mediaType, filename); err != nil {
		return nil, err
	}

	switch normalizeMediaType(mediaType) {
	case "application/pdf":
		return extractPDF(data)
	case "text/plain":
		return extractPlainText(data)
	default:
		// Unreachable after Validate, kept for defence in depth.
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mediaType)
	}
}

// Validate checks declared media type, file extension, and size without
// parsing the document. It is exposed separately so the HTTP layer can
// reject bad uploads before buffering the full body.
func Validate(data []byte, mediaType, filename string) error {
	mt := normalizeMediaType(mediaType)

	exts, ok := supportedTypes[mt]
	if !ok {
		return fmt.Errorf("%w: media type %q", ErrUnsupportedFormat, mediaType)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !contains(exts, ext) {
		return fmt.Errorf("%w: extension %q does not match media type %q", ErrUnsupportedFormat, ext, mediaType)
	}

	if len(data) > MaxFileSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrDocumentTooLarge, len(data), MaxFileSize)
	}
	if len(data) == 0 {
		return ErrEmptyInput
	}

	return nil
}

// extractPDF parses PDF bytes into per-page text joined by blank lines.
func extractPDF(data []byte) (res *Result, err error) {
	// The PDF library panics on some malformed inputs; convert those into
	// ErrCorruptDocument so the pipeline reports a typed stage failure.
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%w: parser panic: %v", ErrCorruptDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	pageCount := reader.NumPage()
	if pageCount == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrCorruptDocument)
	}

	var pages []string
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, perr := page.GetPlainText(nil)
		if perr != nil {
			// A single unreadable page is tolerated; attribution is
			// best-effort and the remaining pages still carry content.
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}

	text := strings.TrimSpace(strings.Join(pages, "\n\n\n"))
	if text == "" {
		return nil, fmt.Errorf("%w: no extractable text (scanned or image-only PDF?)", ErrEmptyInput)
	}

	return &Result{
		Text:      text,
		PageCount: pageCount,
		Metadata:  pdfMetadata(reader),
	}, nil
}

// extractPlainText passes text input through with minimal normalisation.
func extractPlainText(data []byte) (*Result, error) {
	text := strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n"))
	if text == "" {
		return nil, ErrEmptyInput
	}
	return &Result{
		Text:      text,
		PageCount: 1,
		Metadata:  map[string]string{},
	}, nil
}

// pdfMetadata reads container metadata from the PDF trailer Info dictionary.
// Missing or malformed entries are silently skipped.
func pdfMetadata(reader *pdf.Reader) map[string]string {
	meta := map[string]string{}

	defer func() {
		// Trailer traversal can panic on malformed xref tables; metadata is
		// optional so a partial map is returned as-is.
		_ = recover()
	}()

	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return meta
	}
	for _, key := range []string{"Title", "Author", "Subject", "Producer", "Creator"} {
		if v := info.Key(key); !v.IsNull() {
			if s := strings.TrimSpace(v.Text()); s != "" {
				meta[strings.ToLower(key)] = s
			}
		}
	}
	return meta
}

// normalizeMediaType strips parameters ("; charset=utf-8") and lowercases.
func normalizeMediaType(mt string) string {
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// contains reports whether list includes s.
func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

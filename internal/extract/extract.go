// Package extract turns uploaded documents into plain text suitable for a
// session context.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUnsupportedFormat is returned for documents that cannot be turned into
// text: unknown types, corrupt archives, image-only PDFs and non-UTF text.
var ErrUnsupportedFormat = errors.New("extract: unsupported format")

// ErrTooLarge is returned when a document exceeds the size limit.
var ErrTooLarge = errors.New("extract: document too large")

// DefaultMaxBytes bounds the raw upload and the extracted docx or pdf text.
const DefaultMaxBytes = 10 << 20

// Format is a supported document format.
type Format string

const (
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
	FormatDOCX     Format = "docx"
	FormatPDF      Format = "pdf"
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var mimeFormats = map[string]Format{
	"text/plain":      FormatText,
	"text/markdown":   FormatMarkdown,
	"text/x-markdown": FormatMarkdown,
	docxMIME:          FormatDOCX,
	"application/pdf": FormatPDF,
}

var extFormats = map[string]Format{
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".docx":     FormatDOCX,
	".pdf":      FormatPDF,
}

// Detect picks a format from the content type, falling back to the file
// extension when the type is missing or generic.
func Detect(filename, contentType string) (Format, error) {
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			if f, ok := mimeFormats[mt]; ok {
				return f, nil
			}
		}
	}
	if f, ok := extFormats[strings.ToLower(filepath.Ext(filename))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedFormat, filename, contentType)
}

// Extractor converts documents to text.
type Extractor struct {
	MaxBytes int64
}

func (x Extractor) limit() int64 {
	if x.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return x.MaxBytes
}

// Extract reads r fully and returns its text.
func (x Extractor) Extract(r io.Reader, f Format) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, x.limit()+1))
	if err != nil {
		return "", fmt.Errorf("extract: read: %w", err)
	}
	if int64(len(data)) > x.limit() {
		return "", ErrTooLarge
	}

	var text string
	switch f {
	case FormatText:
		text, err = decodeText(data)
	case FormatMarkdown:
		text, err = decodeText(data)
		if err == nil {
			text = stripMarkdown(text)
		}
	case FormatDOCX:
		text, err = docxText(data, x.limit())
	case FormatPDF:
		text, err = pdfText(data, x.limit())
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(norm.NFC.String(text)), nil
}

// File detects the format of a named upload and extracts it.
func (x Extractor) File(filename, contentType string, r io.Reader) (string, error) {
	f, err := Detect(filename, contentType)
	if err != nil {
		return "", err
	}
	return x.Extract(r, f)
}

// decodeText decodes UTF-8, honoring a UTF-8 or UTF-16 byte order mark.
func decodeText(data []byte) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	// The decoder substitutes U+FFFD for invalid input.
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupportedFormat)
	}
	return string(out), nil
}

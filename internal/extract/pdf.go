package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfText returns the text layer of a PDF, one page after another.
// The reader panics on some malformed objects; those become ErrUnsupportedFormat.
func pdfText(data []byte, limit int64) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: pdf: %v", ErrUnsupportedFormat, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %w", ErrUnsupportedFormat, err)
	}

	var (
		sb    strings.Builder
		fonts = make(map[string]*pdf.Font)
	)
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		pageText, err := p.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("%w: pdf page %d: %w", ErrUnsupportedFormat, i, err)
		}
		sb.WriteString(strings.TrimSpace(pageText))
		sb.WriteByte('\n')
		if int64(sb.Len()) > limit {
			return "", ErrTooLarge
		}
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: pdf has no text layer", ErrUnsupportedFormat)
	}
	return sb.String(), nil
}

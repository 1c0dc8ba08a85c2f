package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// docxText returns the paragraph text of a Word document, one paragraph
// per line.
func docxText(data []byte, limit int64) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: docx: %w", ErrUnsupportedFormat, err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("%w: docx: missing %s", ErrUnsupportedFormat, docxBody)
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("%w: docx: %w", ErrUnsupportedFormat, err)
	}
	defer func() { _ = rc.Close() }()

	lr := &io.LimitedReader{R: rc, N: limit + 1}
	text, err := paragraphs(xml.NewDecoder(lr))
	if lr.N <= 0 {
		return "", ErrTooLarge
	}
	if err != nil {
		return "", fmt.Errorf("%w: docx: %w", ErrUnsupportedFormat, err)
	}
	return text, nil
}

// paragraphs walks WordprocessingML collecting w:t runs. Tabs and breaks
// are kept; each w:p ends a line.
func paragraphs(dec *xml.Decoder) (string, error) {
	var (
		sb     strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(el)
			}
		}
	}
}

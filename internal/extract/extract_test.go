package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, filename, contentType string
		want                        Format
		wantErr                     bool
	}{
		{"plain mime", "", "text/plain; charset=utf-8", FormatText, false},
		{"markdown mime", "notes", "text/markdown", FormatMarkdown, false},
		{"docx mime", "", docxMIME, FormatDOCX, false},
		{"generic mime uses extension", "manual.DOCX", "application/octet-stream", FormatDOCX, false},
		{"extension only", "readme.md", "", FormatMarkdown, false},
		{"pdf", "alarms.pdf", "", FormatPDF, false},
		{"unknown", "photo.png", "image/png", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Detect(tt.filename, tt.contentType)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Errorf("err = %v, want ErrUnsupportedFormat", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Detect = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestExtract_Text(t *testing.T) {
	t.Parallel()

	var x Extractor
	got, err := x.Extract(strings.NewReader("  SRVO-023 stop error excess\n"), FormatText)
	if err != nil || got != "SRVO-023 stop error excess" {
		t.Errorf("Extract = %q, %v", got, err)
	}

	utf16 := []byte{0xFF, 0xFE, 'h', 0, 'i', 0}
	if got, err := x.Extract(bytes.NewReader(utf16), FormatText); err != nil || got != "hi" {
		t.Errorf("UTF-16 = %q, %v", got, err)
	}

	if _, err := x.Extract(bytes.NewReader([]byte{0xfd, 'a'}), FormatText); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("invalid UTF-8 err = %v", err)
	}
}

func TestExtract_Markdown(t *testing.T) {
	t.Parallel()

	src := "# Maintenance\n\n" +
		"Check the **pulsecoder** cable and see [the manual](https://example.com).\n\n" +
		"- Replace *battery*\n" +
		"- Reset `SRVO-062`\n\n" +
		"```\nCOLD START\n```\n" +
		"<b>done</b>\n"

	got, err := Extractor{}.Extract(strings.NewReader(src), FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	want := "Maintenance\n\n" +
		"Check the pulsecoder cable and see the manual.\n\n" +
		"Replace battery\n" +
		"Reset SRVO-062\n\n" +
		"COLD START\n\n" +
		"done"
	if got != want {
		t.Errorf("got:\n%q\nwant:\n%q", got, want)
	}
}

func buildDOCX(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Torque value:</w:t></w:r><w:r><w:tab/><w:t xml:space="preserve">12 Nm</w:t></w:r></w:p>
<w:p><w:r><w:t>Line one</w:t><w:br/><w:t>Line two</w:t></w:r></w:p>
</w:body>
</w:document>`

func TestExtract_DOCX(t *testing.T) {
	t.Parallel()

	data := buildDOCX(t, map[string]string{"word/document.xml": documentXML})
	got, err := Extractor{}.File("manual.docx", "", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if want := "Torque value:\t12 Nm\nLine one\nLine two"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// buildPDF writes a minimal single-font PDF with one page per content
// stream and a correct cross-reference table.
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	// Objects: 1 catalog, 2 page tree, 3 font, then a page and its content per page.
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	var kids []string
	for _, content := range pages {
		pageID := len(objs) + 1
		kids = append(kids, fmt.Sprintf("%d 0 R", pageID))
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", pageID+1),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestExtract_PDF(t *testing.T) {
	t.Parallel()

	data := buildPDF(t,
		"BT /F1 12 Tf 72 712 Td (SRVO-023 Stop error excess) Tj ET",
		"BT /F1 12 Tf 72 712 Td (Torque value: 12 Nm) Tj ET",
	)
	got, err := Extractor{}.File("alarms.pdf", "application/pdf", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if want := "SRVO-023 Stop error excess\nTorque value: 12 Nm"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtract_Unsupported(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		f    Format
	}{
		{"pdf truncated", []byte("%PDF-1.7"), FormatPDF},
		{"pdf without text", buildPDF(t, "0 0 m 10 10 l S"), FormatPDF},
		{"docx not a zip", []byte("plain"), FormatDOCX},
		{"docx without body", buildDOCX(t, map[string]string{"other.xml": "<x/>"}), FormatDOCX},
		{"unknown format", []byte("x"), Format("rtf")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := (Extractor{}).Extract(bytes.NewReader(tt.data), tt.f); !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("err = %v, want ErrUnsupportedFormat", err)
			}
		})
	}
}

func TestExtract_TooLarge(t *testing.T) {
	t.Parallel()

	x := Extractor{MaxBytes: 8}
	if _, err := x.Extract(strings.NewReader("0123456789"), FormatText); !errors.Is(err, ErrTooLarge) {
		t.Errorf("raw err = %v", err)
	}

	big := buildDOCX(t, map[string]string{"word/document.xml": "<w:document>" + strings.Repeat("<w:p/>", 200) + "</w:document>"})
	x = Extractor{MaxBytes: int64(len(big))}
	if _, err := x.Extract(bytes.NewReader(big), FormatDOCX); !errors.Is(err, ErrTooLarge) {
		t.Errorf("docx body err = %v", err)
	}
}

package ocr

import (
	"context"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// NativePDF reads the text layer of a PDF in-process. It needs no external
// binary but loses column layout, so pdftotext is preferred when installed.
type NativePDF struct{}

// ExtractText returns the text of each page, separated by blank lines.
// Pages that fail to decode are skipped.
func (NativePDF) ExtractText(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return "", eris.Wrapf(err, "ocr: stat %s", path)
	}
	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", eris.Wrapf(err, "ocr: parse pdf %s", path)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", nil
	}
	return strings.Join(pages, "\n\n") + "\n", nil
}

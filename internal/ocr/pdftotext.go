package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText reads text-layer PDFs with poppler's pdftotext binary.
type PdfToText struct {
	binPath string
}

// NewPdfToText uses binPath, or "pdftotext" on PATH when empty.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// pageBreaks turns pdftotext's form feeds into the blank-line page
// separator the Mistral reader uses.
var pageBreaks = strings.NewReplacer("\f", "\n\n")

// ExtractText runs pdftotext in layout mode, which keeps "Label: value"
// pairs on one line.
func (p *PdfToText) ExtractText(ctx context.Context, path string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", path, "-")
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", path, strings.TrimSpace(stderr.String()))
	}
	text := strings.TrimRight(pageBreaks.Replace(stdout.String()), "\n")
	if text == "" {
		return "", nil
	}
	return text + "\n", nil
}

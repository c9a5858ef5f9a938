package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docfill/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"

	// maxErrorBody bounds how much of a failed response ends up in the error.
	maxErrorBody = 512
)

var imageMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// MistralOCR reads PDFs and scanned images through the Mistral OCR API.
// Network failures, 429 and 5xx are returned as transient errors.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewMistralOCR returns a MistralOCR using model, or the default OCR model when empty.
func NewMistralOCR(apiKey, model string) *MistralOCR {
	if model == "" {
		model = defaultMistralModel
	}
	return &MistralOCR{apiKey: apiKey, model: model, endpoint: mistralOCREndpoint, client: &http.Client{}}
}

type ocrRequest struct {
	Model    string      `json:"model"`
	Document ocrDocument `json:"document"`
}

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type ocrResponse struct {
	Pages []ocrPage `json:"pages"`
}

type ocrPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// inlineDocument embeds the file as a data URL; images and PDFs use different document types.
func inlineDocument(path string, data []byte) ocrDocument {
	encoded := base64.StdEncoding.EncodeToString(data)
	if mime, ok := imageMIME[strings.ToLower(filepath.Ext(path))]; ok {
		return ocrDocument{Type: "image_url", ImageURL: "data:" + mime + ";base64," + encoded}
	}
	return ocrDocument{Type: "document_url", DocumentURL: "data:application/pdf;base64," + encoded}
}

// ExtractText returns the markdown of every page, separated by blank lines.
func (m *MistralOCR) ExtractText(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read %s", path)
	}

	body, err := m.post(ctx, ocrRequest{Model: m.model, Document: inlineDocument(path, data)})
	if err != nil {
		return "", err
	}

	var parsed ocrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", eris.Wrap(err, "ocr: unmarshal mistral response")
	}

	pages := make([]string, 0, len(parsed.Pages))
	for _, p := range parsed.Pages {
		pages = append(pages, p.Markdown)
	}
	return strings.Join(pages, "\n\n"), nil
}

func (m *MistralOCR) post(ctx context.Context, payload ocrRequest) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: marshal mistral request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "ocr: mistral API call"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read mistral response")
	}
	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	err = eris.Errorf("ocr: mistral API returned %d: %s", resp.StatusCode, body)
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(err, resp.StatusCode)
	}
	return nil, err
}

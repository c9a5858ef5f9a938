package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/sells-group/docfill/internal/model"
)

// LabelConfidence is the confidence of a value read from a "Label: value" line.
const LabelConfidence = 65

var labelLineRe = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 _.'/()#-]{0,60}?)\s*:\s*(\S.*?)\s*$`)

// detector finds one kind of value anywhere in the text.
type detector struct {
	field      string
	re         *regexp.Regexp
	confidence float64
}

var detectors = []detector{
	{field: "email", re: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), confidence: 80},
	{field: "url", re: regexp.MustCompile(`https?://[^\s<>"']+`), confidence: 75},
	{field: "phone", re: regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]\d{4}\b`), confidence: 70},
	{field: "date", re: regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})\b`), confidence: 65},
	{field: "zip", re: regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`), confidence: 60},
}

// PatternExtractor reads labelled lines and well-known value shapes from
// plain text. It makes no network calls.
type PatternExtractor struct{}

// NewPatternExtractor creates a PatternExtractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

// Extract implements Extractor. The first occurrence of a label or shape
// wins.
func (p *PatternExtractor) Extract(ctx context.Context, in Input) (model.DocumentData, error) {
	out := model.DocumentData{}
	if strings.TrimSpace(in.Text) == "" {
		return out, nil
	}

	for _, line := range strings.Split(in.Text, "\n") {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m := labelLineRe.FindStringSubmatch(line)
		if m == nil || isURLScheme(m[1], m[2]) {
			continue
		}
		label := strings.TrimSpace(m[1])
		if _, seen := out[label]; seen {
			continue
		}
		out[label] = model.Structured(model.ExtractedFieldResult{
			Value:      m[2],
			Confidence: LabelConfidence,
			Source:     model.SourceOCR,
			RawText:    strings.TrimSpace(line),
		})
	}

	text := in.Text
	for _, d := range detectors {
		loc := d.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		v := text[loc[0]:loc[1]]
		out[d.field] = model.Structured(model.ExtractedFieldResult{
			Value:      v,
			Confidence: d.confidence,
			Source:     model.SourcePattern,
			RawText:    v,
		})
		// Keep later detectors from matching inside an accepted value,
		// e.g. the digits of a phone number as a zip code.
		text = text[:loc[0]] + strings.Repeat(" ", loc[1]-loc[0]) + text[loc[1]:]
	}

	return out, nil
}

// isURLScheme rejects "https: //example.com" style splits of a bare URL.
func isURLScheme(label, rest string) bool {
	l := strings.ToLower(label)
	return (strings.HasSuffix(l, "http") || strings.HasSuffix(l, "https")) && strings.HasPrefix(rest, "//")
}

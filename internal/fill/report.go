package fill

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/sells-group/docfill/internal/model"
)

// reportMarkdown renders with GFM tables. Raw HTML in field names or
// failure causes stays escaped.
var reportMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// FormatPercent renders a 0-100 confidence as a whole percentage, rounding
// half away from zero.
func FormatPercent(c float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(c)))
}

// FormatReport generates a human-readable fill report.
func FormatReport(schemaName string, mappings []model.FieldMapping, res model.FillResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Fill Report: %s\n\n", schemaName)

	b.WriteString("## Summary\n")
	mapped := 0
	for _, m := range mappings {
		if m.Mapped() {
			mapped++
		}
	}
	fmt.Fprintf(&b, "- Form fields: %d\n", len(mappings))
	fmt.Fprintf(&b, "- Mapped: %d\n", mapped)
	fmt.Fprintf(&b, "- Filled: %d\n", len(res.FilledFields))
	fmt.Fprintf(&b, "- Failed: %d\n", len(res.FailedFields))
	if res.OverallConfidence != nil {
		fmt.Fprintf(&b, "- Overall confidence: %s\n", FormatPercent(*res.OverallConfidence))
	} else {
		b.WriteString("- Overall confidence: n/a\n")
	}
	b.WriteString("\n")

	b.WriteString("## Mappings\n")
	b.WriteString("| Form field | Source | Confidence | Strategy |\n")
	b.WriteString("|:-----------|:-------|-----------:|:---------|\n")
	for _, m := range mappings {
		src := "-"
		conf := "-"
		if m.Mapped() {
			src = "`" + m.Source() + "`"
			conf = FormatPercent(m.Confidence)
		}
		strategy := string(m.Strategy)
		if m.ManualOverride {
			strategy = string(model.StrategyManual)
		}
		if strategy == "" {
			strategy = string(model.StrategyNone)
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", m.FormField, src, conf, strategy)
	}
	b.WriteString("\n")

	if len(res.FailedFields) > 0 {
		b.WriteString("## Failed Fields\n")
		for _, f := range res.FailedFields {
			fmt.Fprintf(&b, "- **%s**: %s\n", f.Field, f.Cause)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Warnings\n")
	if len(res.Warnings) == 0 {
		b.WriteString("None.\n")
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "- %s\n", w)
	}

	return b.String()
}

// RenderReportHTML converts a FormatReport report to an HTML fragment.
func RenderReportHTML(report string) (string, error) {
	var buf bytes.Buffer
	if err := reportMarkdown.Convert([]byte(report), &buf); err != nil {
		return "", eris.Wrap(err, "fill: render report")
	}
	return buf.String(), nil
}

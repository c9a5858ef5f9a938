package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/docfill/internal/config"
	"github.com/sells-group/docfill/internal/model"
	"github.com/sells-group/docfill/pkg/anthropic"
)

const (
	// DefaultLLMConfidence applies when the model returns a bare value.
	DefaultLLMConfidence = 70

	defaultMaxTokens = 2048
	maxPromptChars   = 60_000
)

const llmSystemPrompt = `You extract data from client documents so it can be used to fill forms.
Return a single JSON object and nothing else. Each key is a field name in camelCase
(for example firstName, lastName, dateOfBirth, email, phone, streetAddress, city, state,
postalCode, employer, annualIncome). Each value is an object {"value": ..., "confidence": N}
where N is 0-100 and reflects how clearly the document states the value.
Omit fields the document does not contain. Do not guess.`

// LLMExtractor asks an Anthropic model to extract fields as JSON.
type LLMExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	hints     []string
}

// LLMOption configures an LLMExtractor.
type LLMOption func(*LLMExtractor)

// WithFieldHints adds field names the model should look for.
func WithFieldHints(names ...string) LLMOption {
	return func(e *LLMExtractor) { e.hints = append(e.hints, names...) }
}

// NewLLMExtractor creates an LLMExtractor. Requests are limited to
// cfg.RequestsPerSecond; zero or less disables limiting.
func NewLLMExtractor(client anthropic.Client, cfg config.AnthropicConfig, opts ...LLMOption) *LLMExtractor {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	e := &LLMExtractor{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		limiter:   rate.NewLimiter(limit, 1),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract implements Extractor. Documents without text are not sent.
func (e *LLMExtractor) Extract(ctx context.Context, in Input) (model.DocumentData, error) {
	if strings.TrimSpace(in.Text) == "" {
		return model.DocumentData{}, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extract: llm rate limit")
	}

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System: []anthropic.SystemBlock{
			{Text: llmSystemPrompt, CacheControl: &anthropic.CacheControl{TTL: "5m"}},
		},
		Messages: []anthropic.Message{{Role: "user", Content: e.prompt(in)}},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: llm request for %s", in.Filename)
	}
	resp.Usage.LogCost(e.model, in.Filename)

	data, err := parseLLMAnswer(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(err, "extract: llm answer for %s", in.Filename)
	}
	zap.L().Debug("extract: llm fields",
		zap.String("filename", in.Filename),
		zap.Int("fields", len(data)),
	)
	return data, nil
}

func (e *LLMExtractor) prompt(in Input) string {
	text := truncateUTF8(in.Text, maxPromptChars)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Document: %s\n", in.Filename)
	if len(e.hints) > 0 {
		fmt.Fprintf(&sb, "Fields of interest: %s\n", strings.Join(e.hints, ", "))
	}
	sb.WriteString("\n<document>\n")
	sb.WriteString(text)
	sb.WriteString("\n</document>")
	return sb.String()
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// llmFieldSchema accepts a bare scalar or {"value": ..., "confidence": N}.
// Confidence is clamped later rather than rejected.
var llmFieldSchema = jsonschema.MustCompileString("llm-field.json", `{
	"anyOf": [
		{"type": ["string", "number", "boolean", "null"]},
		{
			"type": "object",
			"required": ["value"],
			"properties": {
				"value": {"type": ["string", "number", "boolean", "null"]},
				"confidence": {"type": "number"}
			}
		}
	]
}`)

// parseLLMAnswer decodes the model's JSON object. Entries may be
// {"value", "confidence"} objects or bare values; empty values are dropped.
func parseLLMAnswer(text string) (model.DocumentData, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "decode json")
	}

	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)

	out := model.DocumentData{}
	for _, name := range names {
		if err := llmFieldSchema.Validate(raw[name]); err != nil {
			zap.L().Warn("extract: dropping malformed llm field", zap.String("field", name), zap.Error(err))
			continue
		}
		value, conf := raw[name], float64(DefaultLLMConfidence)
		if m, ok := value.(map[string]any); ok {
			if v, has := m["value"]; has {
				value = v
				if c, ok := m["confidence"].(float64); ok {
					conf = clamp(c, 0, 100)
				}
			}
		}
		if model.IsEmptyValue(value) {
			continue
		}
		r := model.ExtractedFieldResult{Value: value, Confidence: conf, Source: model.SourceLLM}
		if s, ok := value.(string); ok {
			r.RawText = s
		}
		out[name] = model.Structured(r)
	}
	return out, nil
}

// cleanJSON strips markdown fences and surrounding prose from a model answer.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

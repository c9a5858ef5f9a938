package extract

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docfill/internal/config"
	"github.com/sells-group/docfill/internal/model"
	"github.com/sells-group/docfill/internal/resilience"
	"github.com/sells-group/docfill/pkg/anthropic"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 120, OutputTokens: 30},
	}
}

func fixed(data model.DocumentData) Extractor {
	return Func(func(context.Context, Input) (model.DocumentData, error) { return data, nil })
}

func result(v any, conf float64, src model.Source) model.FieldValue {
	return model.Structured(model.ExtractedFieldResult{Value: v, Confidence: conf, Source: src})
}

func fastRetry() resilience.RetryConfig {
	cfg := resilience.Attempts(3, nil)
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond
	return cfg
}

func TestPatternExtractor_LabelsAndShapes(t *testing.T) {
	text := "APPLICANT INFORMATION\n" +
		"First Name: Ana\n" +
		"Last Name:  Lima \n" +
		"Date of Birth: 03/14/1985\n" +
		"Contact ana.lima@example.com or (555) 201-3344\n" +
		"Mailing: 12 Oak St, Springfield, IL 62704\n" +
		"See https://example.com/apply\n"

	data, err := NewPatternExtractor().Extract(context.Background(), Input{Filename: "intake.txt", Text: text})
	require.NoError(t, err)

	first := data["First Name"].Result
	require.NotNil(t, first)
	assert.Equal(t, "Ana", first.Value)
	assert.Equal(t, model.SourceOCR, first.Source)
	assert.Equal(t, float64(LabelConfidence), first.Confidence)
	assert.Equal(t, "First Name: Ana", first.RawText)
	assert.Equal(t, "Lima", data["Last Name"].Result.Value)

	assert.Equal(t, "ana.lima@example.com", data["email"].Result.Value)
	assert.Equal(t, float64(80), data["email"].Result.Confidence)
	assert.Equal(t, model.SourcePattern, data["email"].Result.Source)
	assert.Equal(t, "(555) 201-3344", data["phone"].Result.Value)
	assert.Equal(t, "03/14/1985", data["date"].Result.Value)
	assert.Equal(t, "62704", data["zip"].Result.Value)
	assert.Equal(t, "https://example.com/apply", data["url"].Result.Value)

	assert.NotContains(t, data, "See https")
}

func TestPatternExtractor_FirstLabelWins(t *testing.T) {
	data, err := NewPatternExtractor().Extract(context.Background(), Input{Text: "Name: Ana\nName: Bea\n"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", data["Name"].Result.Value)
}

func TestPatternExtractor_EmptyText(t *testing.T) {
	data, err := NewPatternExtractor().Extract(context.Background(), Input{Text: "  \n"})
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestLLMExtractor_ParsesAnswer(t *testing.T) {
	mc := new(mockAnthropic)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 2048 &&
			len(req.Messages) == 1 &&
			req.Messages[0].Role == "user"
	})).Return(textResponse("```json\n"+
		`{"firstName": {"value": "Ana", "confidence": 93},`+
		` "annualIncome": 85000,`+
		` "middleName": {"value": "", "confidence": 10},`+
		` "score": {"value": "x", "confidence": 180},`+
		` "dependents": ["Leo", "Mia"],`+
		` "address": {"street": "1 Main St"},`+
		` "employer": {"value": "Acme", "confidence": "high"}}`+
		"\n```"), nil)

	ex := NewLLMExtractor(mc, config.AnthropicConfig{Model: "claude-haiku-4-5-20251001"}, WithFieldHints("firstName"))
	data, err := ex.Extract(context.Background(), Input{Filename: "w2.pdf", Text: "Employee: Ana"})
	require.NoError(t, err)

	assert.Equal(t, model.ExtractedFieldResult{Value: "Ana", Confidence: 93, Source: model.SourceLLM, RawText: "Ana"}, *data["firstName"].Result)
	assert.Equal(t, 85000.0, data["annualIncome"].Result.Value)
	assert.Equal(t, float64(DefaultLLMConfidence), data["annualIncome"].Result.Confidence)
	assert.Equal(t, 100.0, data["score"].Result.Confidence)
	assert.NotContains(t, data, "middleName")
	for _, malformed := range []string{"dependents", "address", "employer"} {
		assert.NotContains(t, data, malformed)
	}
	assert.Len(t, data, 3)
	mc.AssertExpectations(t)
}

func TestLLMExtractor_EmptyTextSkipsCall(t *testing.T) {
	mc := new(mockAnthropic)
	data, err := NewLLMExtractor(mc, config.AnthropicConfig{}).Extract(context.Background(), Input{Text: ""})
	require.NoError(t, err)
	assert.Empty(t, data)
	mc.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestLLMExtractor_BadJSON(t *testing.T) {
	mc := new(mockAnthropic)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("I could not find anything."), nil)

	_, err := NewLLMExtractor(mc, config.AnthropicConfig{}).Extract(context.Background(), Input{Filename: "a.pdf", Text: "x"})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "short", truncateUTF8("short", 10))
	assert.Equal(t, "abc", truncateUTF8("abcdef", 3))
	// "é" is two bytes; a cut through it backs off to the rune start.
	assert.Equal(t, "caf", truncateUTF8("café", 4))
	assert.Equal(t, "café", truncateUTF8("café", 5))
	assert.Equal(t, "", truncateUTF8("日本", 2))
}

func TestLLMExtractor_PromptTruncatedOnRuneBoundary(t *testing.T) {
	e := &LLMExtractor{}
	text := strings.Repeat("a", maxPromptChars-1) + "ü" + "tail"
	p := e.prompt(Input{Filename: "scan.pdf", Text: text})

	assert.True(t, utf8.ValidString(p))
	assert.NotContains(t, p, "ü")
	assert.NotContains(t, p, "tail")
}

func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON("Here you go: {\"a\":1} done"))
}

func TestChain_HigherConfidenceWinsLaterWinsTies(t *testing.T) {
	first := fixed(model.DocumentData{
		"email": result("a@b.com", 80, model.SourcePattern),
		"name":  result("Ana", 65, model.SourceOCR),
		"city":  result("Austin", 70, model.SourceOCR),
	})
	second := fixed(model.DocumentData{
		"email": result("ana@b.com", 60, model.SourceLLM),
		"name":  result("Ana Lima", 90, model.SourceLLM),
		"city":  result("Dallas", 70, model.SourceLLM),
		"zip":   result("", 99, model.SourceLLM),
	})

	data, err := Chain{first, second}.Extract(context.Background(), Input{})
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", data["email"].Result.Value)
	assert.Equal(t, "Ana Lima", data["name"].Result.Value)
	assert.Equal(t, "Dallas", data["city"].Result.Value)
	assert.NotContains(t, data, "zip")
}

func TestChain_SkipsFailures(t *testing.T) {
	bad := Func(func(context.Context, Input) (model.DocumentData, error) { return nil, errors.New("boom") })
	good := fixed(model.DocumentData{"a": result("1", 50, model.SourceOCR)})

	data, err := Chain{bad, good}.Extract(context.Background(), Input{})
	require.NoError(t, err)
	assert.Len(t, data, 1)

	_, err = Chain{bad, bad}.Extract(context.Background(), Input{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all extractors failed")
}

func TestChain_NormalizesLegacy(t *testing.T) {
	data, err := Chain{fixed(model.DocumentData{"a": model.LegacyValue("x")})}.Extract(context.Background(), Input{})
	require.NoError(t, err)
	require.False(t, data["a"].IsLegacy())
	assert.Equal(t, model.SourcePattern, data["a"].Result.Source)
}

func TestSafe_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	inner := Func(func(context.Context, Input) (model.DocumentData, error) {
		if calls.Add(1) == 1 {
			return nil, resilience.NewTransientError(errors.New("rate limited"), 429)
		}
		return model.DocumentData{"a": result("1", 50, model.SourceLLM)}, nil
	})

	data, err := Safe("llm", inner, time.Second, fastRetry()).Extract(context.Background(), Input{})
	require.NoError(t, err)
	assert.Len(t, data, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSafe_PermanentFailureYieldsNoFields(t *testing.T) {
	var calls atomic.Int32
	inner := Func(func(context.Context, Input) (model.DocumentData, error) {
		calls.Add(1)
		return nil, errors.New("bad request")
	})

	data, err := Safe("llm", inner, time.Second, fastRetry()).Extract(context.Background(), Input{Filename: "a.pdf"})
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Empty(t, data)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSafe_TimeoutYieldsNoFields(t *testing.T) {
	inner := Func(func(ctx context.Context, _ Input) (model.DocumentData, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	data, err := Safe("slow", inner, 5*time.Millisecond, fastRetry()).Extract(context.Background(), Input{})
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestSafe_NilDataBecomesEmpty(t *testing.T) {
	data, err := Safe("nil", fixed(nil), 0, fastRetry()).Extract(context.Background(), Input{})
	require.NoError(t, err)
	assert.NotNil(t, data)
}

package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docfill/internal/resilience"
)

func newTestClient(baseURL string) *sdkClient {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey("test-key"),
			option.WithBaseURL(baseURL),
			option.WithMaxRetries(0),
		),
	}
}

// messagesAPI answers every request with status and body, recording the last request body.
func messagesAPI(t *testing.T, status int, body map[string]any, got *map[string]any) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		if got != nil {
			raw, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.NoError(t, json.Unmarshal(raw, got))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body) //nolint:errcheck
	}))
	t.Cleanup(ts.Close)
	return ts
}

func extractionAnswer() map[string]any {
	return map[string]any{
		"id":   "msg_extract_1",
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": `{"email": {"value": "ana@example.com",`},
			{"type": "text", "text": ` "confidence": 92}}`},
		},
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":                812,
			"output_tokens":               40,
			"cache_creation_input_tokens": 1500,
			"cache_read_input_tokens":     0,
		},
	}
}

func TestSDKClient_CreateMessage(t *testing.T) {
	var sent map[string]any
	ts := messagesAPI(t, http.StatusOK, extractionAnswer(), &sent)

	temp := 0.0
	resp, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   2048,
		System:      []SystemBlock{{Text: "Extract form fields.", CacheControl: &CacheControl{TTL: "5m"}}},
		Messages:    []Message{{Role: "user", Content: "Email: ana@example.com"}},
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, "msg_extract_1", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, `{"email": {"value": "ana@example.com", "confidence": 92}}`, resp.Text())
	assert.Equal(t, int64(812), resp.Usage.InputTokens)
	assert.Equal(t, int64(1500), resp.Usage.CacheCreationInputTokens)

	assert.Equal(t, "claude-haiku-4-5-20251001", sent["model"])
	assert.EqualValues(t, 2048, sent["max_tokens"])
	system, ok := sent["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	assert.Contains(t, system[0], "cache_control")
	msgs, ok := sent["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestSDKClient_CreateMessage_ServerErrorIsTransient(t *testing.T) {
	ts := messagesAPI(t, http.StatusServiceUnavailable, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"},
	}, nil)

	_, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 64,
		Messages:  []Message{{Role: "user", Content: "Name: Ana"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
	assert.True(t, resilience.IsTransient(err))
}

func TestSDKClient_CreateMessage_BadRequestNotTransient(t *testing.T) {
	ts := messagesAPI(t, http.StatusBadRequest, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "invalid_request_error", "message": "max_tokens: too large"},
	}, nil)

	_, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 1 << 30,
		Messages:  []Message{{Role: "user", Content: "Name: Ana"}},
	})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestFromSDKMessage_EmptyContent(t *testing.T) {
	resp := fromSDKMessage(&sdk.Message{ID: "msg_empty", StopReason: "max_tokens"})
	assert.Empty(t, resp.Content)
	assert.Empty(t, resp.Text())
	assert.Equal(t, "max_tokens", resp.StopReason)
}

func TestMessageResponse_TextSkipsNonTextBlocks(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: `{"firstName":`},
		{Type: "tool_use"},
		{Type: "text", Text: `"Ana"}`},
	}}
	assert.Equal(t, `{"firstName":"Ana"}`, resp.Text())
}

func TestNewClient(t *testing.T) {
	assert.NotNil(t, NewClient("test-api-key"))
}

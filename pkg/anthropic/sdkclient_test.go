package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient creates an sdkClient pointing at a local test server.
func newTestClient(baseURL string) *sdkClient {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey("test-key"),
			option.WithBaseURL(baseURL),
			option.WithMaxRetries(0),
		),
	}
}

func writeMessage(w http.ResponseWriter, id, text string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
		"id":   id,
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"model":       "claude-sonnet-4-5-20250929",
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":                1500,
			"output_tokens":               200,
			"cache_creation_input_tokens": 0,
			"cache_read_input_tokens":     900,
		},
	})
}

func writeAPIError(w http.ResponseWriter, status int, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
		"type": "error",
		"error": map[string]any{
			"type":    kind,
			"message": "test failure",
		},
	})
}

func TestSDKClient_CreateMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		writeMessage(w, "msg_test_001", `{"confidence":0.9}`)
	}))
	defer ts.Close()

	client := newTestClient(ts.URL)
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: "Hello"}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "msg_test_001", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, `{"confidence":0.9}`, resp.Text())
	assert.Equal(t, int64(1500), resp.Usage.InputTokens)
	assert.Equal(t, int64(900), resp.Usage.CacheReadInputTokens)
}

func TestSDKClient_CreateMessage_SendsImagesAndSystem(t *testing.T) {
	img := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}

	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))
		writeMessage(w, "msg_img", "{}")
	}))
	defer ts.Close()

	temp := 0.0
	client := newTestClient(ts.URL)
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   2048,
		Temperature: &temp,
		System:      BuildCachedSystemBlocks("You read HVAC nameplates.", "1h"),
		Messages: []Message{{
			Role:    "user",
			Content: "Extract the label fields.",
			Images:  []ImageBlock{{MediaType: "image/jpeg", Data: img}},
		}},
	})
	require.NoError(t, err)

	system, ok := body["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	assert.Equal(t, "You read HVAC nameplates.", system[0].(map[string]any)["text"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	content := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)

	imageBlock := content[0].(map[string]any)
	assert.Equal(t, "image", imageBlock["type"])
	source := imageBlock["source"].(map[string]any)
	assert.Equal(t, "base64", source["type"])
	assert.Equal(t, "image/jpeg", source["media_type"])
	assert.Equal(t, base64.StdEncoding.EncodeToString(img), source["data"])

	textBlock := content[1].(map[string]any)
	assert.Equal(t, "text", textBlock["type"])
	assert.Equal(t, "Extract the label fields.", textBlock["text"])
}

func TestSDKClient_CreateMessage_Error(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		kind      string
		retryable bool
	}{
		{"server error", http.StatusInternalServerError, "api_error", true},
		{"overloaded", 529, "overloaded_error", true},
		{"rate limited", http.StatusTooManyRequests, "rate_limit_error", true},
		{"bad request", http.StatusBadRequest, "invalid_request_error", false},
		{"unauthorized", http.StatusUnauthorized, "authentication_error", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeAPIError(w, tt.status, tt.kind)
			}))
			defer ts.Close()

			client := newTestClient(ts.URL)
			_, err := client.CreateMessage(context.Background(), MessageRequest{
				Model:     "claude-sonnet-4-5-20250929",
				MaxTokens: 1024,
				Messages:  []Message{{Role: "user", Content: "Hello"}},
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "anthropic: create message")
			assert.Equal(t, tt.status, StatusCode(err))
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

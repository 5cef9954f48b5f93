package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSDKMessage(t *testing.T) {
	sdkMsg := &sdk.Message{
		ID:           "msg_test_123",
		Model:        "claude-sonnet-4-5-20250929",
		StopReason:   "end_turn",
		StopSequence: "STOP",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: `{"structuredData":{"brand":"Carrier"}}`},
			{Type: "text", Text: "Second block"},
		},
		Usage: sdk.Usage{
			InputTokens:              100,
			OutputTokens:             50,
			CacheCreationInputTokens: 2000,
			CacheReadInputTokens:     3000,
		},
	}

	resp := fromSDKMessage(sdkMsg)
	require.NotNil(t, resp)
	assert.Equal(t, "msg_test_123", resp.ID)
	assert.Equal(t, "claude-sonnet-4-5-20250929", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "STOP", resp.StopSequence)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "text", resp.Content[0].Type)
	assert.Equal(t, "Second block", resp.Content[1].Text)
	assert.Equal(t, int64(100), resp.Usage.InputTokens)
	assert.Equal(t, int64(50), resp.Usage.OutputTokens)
	assert.Equal(t, int64(2000), resp.Usage.CacheCreationInputTokens)
	assert.Equal(t, int64(3000), resp.Usage.CacheReadInputTokens)
}

func TestFromSDKMessage_EmptyContent(t *testing.T) {
	resp := fromSDKMessage(&sdk.Message{ID: "msg_empty", StopReason: "max_tokens"})
	require.NotNil(t, resp)
	assert.Empty(t, resp.Content)
	assert.Empty(t, resp.Text())
	assert.Equal(t, "max_tokens", resp.StopReason)
}

func TestToSDKMessages_Roles(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "Question"},
		{Role: "assistant", Content: "Answer"},
		{Role: "unknown", Content: "Follow-up"},
	}
	sdkMsgs := toSDKMessages(msgs)
	require.Len(t, sdkMsgs, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, sdkMsgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, sdkMsgs[1].Role)
	assert.Equal(t, sdk.MessageParamRoleUser, sdkMsgs[2].Role)
}

func TestToSDKMessages_ImagesBeforeText(t *testing.T) {
	msgs := []Message{{
		Role:    "user",
		Content: "Read this nameplate",
		Images: []ImageBlock{
			{MediaType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}},
			{MediaType: "image/png", Data: []byte("\x89PNG")},
		},
	}}
	sdkMsgs := toSDKMessages(msgs)
	require.Len(t, sdkMsgs, 1)

	content := sdkMsgs[0].Content
	require.Len(t, content, 3)
	assert.NotNil(t, content[0].OfImage)
	assert.NotNil(t, content[1].OfImage)
	require.NotNil(t, content[2].OfText)
	assert.Equal(t, "Read this nameplate", content[2].OfText.Text)
}

func TestToSDKMessages_ImagesOnly(t *testing.T) {
	msgs := []Message{{
		Role:   "user",
		Images: []ImageBlock{{MediaType: "image/webp", Data: []byte("RIFF")}},
	}}
	sdkMsgs := toSDKMessages(msgs)
	require.Len(t, sdkMsgs, 1)
	require.Len(t, sdkMsgs[0].Content, 1)
	assert.NotNil(t, sdkMsgs[0].Content[0].OfImage)
}

func TestToSDKMessages_EmptyMessageKeepsTextBlock(t *testing.T) {
	sdkMsgs := toSDKMessages([]Message{{Role: "user"}})
	require.Len(t, sdkMsgs, 1)
	require.Len(t, sdkMsgs[0].Content, 1)
	assert.NotNil(t, sdkMsgs[0].Content[0].OfText)
}

func TestToSDKMessages_Empty(t *testing.T) {
	assert.Empty(t, toSDKMessages(nil))
}

func TestToSDKSystemBlocks(t *testing.T) {
	blocks := []SystemBlock{
		{Text: "First block"},
		{Text: "Cached context", CacheControl: &CacheControl{TTL: "1h"}},
		{Text: "No TTL", CacheControl: &CacheControl{}},
	}
	sdkBlocks := toSDKSystemBlocks(blocks)
	require.Len(t, sdkBlocks, 3)
	assert.Equal(t, "First block", sdkBlocks[0].Text)
	assert.Equal(t, "Cached context", sdkBlocks[1].Text)
	assert.Equal(t, sdk.CacheControlEphemeralTTL("1h"), sdkBlocks[1].CacheControl.TTL)
	assert.Empty(t, sdkBlocks[2].CacheControl.TTL)
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	client := NewClient(Options{APIKey: "test-api-key", BaseURL: "http://localhost:1"})
	require.NotNil(t, client)
}

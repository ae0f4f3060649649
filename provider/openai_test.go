package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// sseServer scripts a chat/completions SSE response and captures the request.
func sseServer(t *testing.T, lines []string) (*openaiClient, *[]byte) {
	t.Helper()
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured = body
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", line)
		}
	}))
	t.Cleanup(srv.Close)

	client := newOpenAIClient("sk-test", zap.NewNop())
	client.baseURL = srv.URL
	return client, &captured
}

func collect(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var out []Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, chunk)
		case <-timeout:
			t.Fatal("timed out draining stream")
		}
	}
}

func TestOpenAIStreamText(t *testing.T) {
	client, _ := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`{"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`,
		`[DONE]`,
	})

	ch, err := client.Stream(context.Background(), Request{Model: "gpt-4o", MaxTokens: 256,
		Turns: []Turn{{Role: RoleUser, Parts: []Part{{Type: PartText, Text: "hi"}}}}})
	require.NoError(t, err)

	chunks := collect(t, ch)
	require.Len(t, chunks, 3)
	assert.Equal(t, ChunkText, chunks[0].Type)
	assert.Equal(t, "Hel", chunks[0].Text)
	assert.Equal(t, "lo", chunks[1].Text)

	finish := chunks[2]
	assert.Equal(t, ChunkFinish, finish.Type)
	assert.Equal(t, "stop", finish.StopReason)
	require.NotNil(t, finish.Usage)
	assert.Equal(t, int64(12), finish.Usage.InputTokens)
	assert.Equal(t, int64(15), finish.Usage.TotalTokens)
}

func TestOpenAIStreamToolCallAccumulation(t *testing.T) {
	client, _ := sseServer(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"listResources","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"kind\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Pod\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`[DONE]`,
	})

	ch, err := client.Stream(context.Background(), Request{Model: "gpt-4o",
		Turns: []Turn{{Role: RoleUser, Parts: []Part{{Type: PartText, Text: "pods?"}}}}})
	require.NoError(t, err)

	chunks := collect(t, ch)
	require.Len(t, chunks, 2)

	use := chunks[0]
	require.Equal(t, ChunkToolUse, use.Type)
	assert.Equal(t, "call_1", use.ToolUse.ID)
	assert.Equal(t, "listResources", use.ToolUse.Name)
	assert.JSONEq(t, `{"kind":"Pod"}`, string(use.ToolUse.Input))

	assert.Equal(t, "tool-use", chunks[1].StopReason)
}

func TestOpenAIStreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	client := newOpenAIClient("sk-bad", zap.NewNop())
	client.baseURL = srv.URL

	_, err := client.Stream(context.Background(), Request{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Incorrect API key")
}

func TestOpenAIRequestShape(t *testing.T) {
	client, captured := sseServer(t, []string{`[DONE]`})

	req := Request{
		Model:     "gpt-4o",
		System:    "You help with Kubernetes.",
		MaxTokens: 1024,
		Tools: []ToolSpec{{
			Name:        "listResources",
			Description: "Lists resources",
			InputSchema: map[string]interface{}{"type": "object"},
		}},
		Turns: []Turn{
			{Role: RoleUser, Parts: []Part{{Type: PartText, Text: "restart web"}}},
			{Role: RoleAssistant, Parts: []Part{
				{Type: PartText, Text: "Checking."},
				{Type: PartToolCall, ToolCallID: "call_1", ToolName: "listResources", Input: json.RawMessage(`{"kind":"Pod"}`)},
			}},
			{Role: RoleTool, Parts: []Part{
				{Type: PartToolResult, ToolCallID: "call_1", ToolName: "listResources", Result: json.RawMessage(`{"count":2}`)},
			}},
		},
	}

	ch, err := client.Stream(context.Background(), req)
	require.NoError(t, err)
	collect(t, ch)

	body := gjson.ParseBytes(*captured)
	assert.True(t, body.Get("stream").Bool())
	assert.True(t, body.Get("stream_options.include_usage").Bool())
	assert.Equal(t, int64(1024), body.Get("max_completion_tokens").Int())

	msgs := body.Get("messages").Array()
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Get("role").String())
	assert.Equal(t, "user", msgs[1].Get("role").String())
	assert.Equal(t, "assistant", msgs[2].Get("role").String())
	assert.Equal(t, "call_1", msgs[2].Get("tool_calls.0.id").String())
	assert.Equal(t, "tool", msgs[3].Get("role").String())
	assert.Equal(t, "call_1", msgs[3].Get("tool_call_id").String())

	assert.Equal(t, "listResources", body.Get("tools.0.function.name").String())
}

func TestFactoryUnknownProvider(t *testing.T) {
	factory := NewFactory(zap.NewNop())
	_, err := factory.Client(ID("mystery"), "sk")
	assert.Error(t, err)
}

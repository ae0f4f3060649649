package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const openaiBaseURL = "https://api.openai.com/v1"

type openaiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func newOpenAIClient(apiKey string, log *zap.Logger) *openaiClient {
	return &openaiClient{
		apiKey:  apiKey,
		baseURL: openaiBaseURL,
		// No request timeout: streams are long-lived, lifetime is bound to ctx.
		httpClient: &http.Client{},
		log:        log,
	}
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
}

type openaiToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiTool struct {
	Type     string            `json:"type"`
	Function openaiFunctionDef `json:"function"`
}

type openaiFunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type openaiRequest struct {
	Model         string          `json:"model"`
	Messages      []openaiMessage `json:"messages"`
	Tools         []openaiTool    `json:"tools,omitempty"`
	MaxTokens     int64           `json:"max_completion_tokens,omitempty"`
	Stream        bool            `json:"stream"`
	StreamOptions struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options"`
}

type openaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (c *openaiClient) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	body := openaiRequest{
		Model:     req.Model,
		Messages:  c.buildMessages(req),
		Tools:     buildOpenAITools(req.Tools),
		MaxTokens: req.MaxTokens,
		Stream:    true,
	}
	body.StreamOptions.IncludeUsage = true

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = string(data)
		}
		return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, msg)
	}

	ch := make(chan Chunk, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		c.consume(ctx, resp.Body, ch)
	}()
	return ch, nil
}

// pendingToolCall accumulates streamed tool_calls deltas by index.
type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

func (c *openaiClient) consume(ctx context.Context, body io.Reader, ch chan<- Chunk) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	pending := map[int]*pendingToolCall{}
	var order []int
	finishReason := ""
	var usage *Usage

	flushToolCalls := func() bool {
		for _, idx := range order {
			tc := pending[idx]
			input := tc.args.String()
			if input == "" {
				input = "{}"
			}
			use := &ToolUse{ID: tc.id, Name: tc.name, Input: json.RawMessage(input)}
			if !emit(ctx, ch, Chunk{Type: ChunkToolUse, ToolUse: use}) {
				return false
			}
		}
		return true
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk openaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.log.Warn("openai: skipping malformed stream chunk", zap.Error(err))
			continue
		}
		if chunk.Usage != nil {
			usage = &Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			if !emit(ctx, ch, Chunk{Type: ChunkText, Text: choice.Delta.Content}) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			entry, ok := pending[tc.Index]
			if !ok {
				entry = &pendingToolCall{}
				pending[tc.Index] = entry
				order = append(order, tc.Index)
			}
			if tc.ID != "" {
				entry.id = tc.ID
			}
			if tc.Function.Name != "" {
				entry.name = tc.Function.Name
			}
			entry.args.WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
	}

	if err := scanner.Err(); err != nil {
		emit(ctx, ch, Chunk{Type: ChunkError, Err: err})
		return
	}

	if !flushToolCalls() {
		return
	}

	stop := "stop"
	switch finishReason {
	case "tool_calls":
		stop = "tool-use"
	case "length":
		stop = "length"
	case "", "stop":
		stop = "stop"
	default:
		stop = finishReason
	}
	if usage == nil {
		usage = &Usage{}
	}
	emit(ctx, ch, Chunk{Type: ChunkFinish, StopReason: stop, Usage: usage})
}

func (c *openaiClient) buildMessages(req Request) []openaiMessage {
	var messages []openaiMessage
	if req.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.System})
	}

	for _, turn := range req.Turns {
		switch turn.Role {
		case RoleUser:
			for _, part := range turn.Parts {
				if part.Type == PartText && part.Text != "" {
					messages = append(messages, openaiMessage{Role: "user", Content: part.Text})
				}
			}
		case RoleAssistant:
			msg := openaiMessage{Role: "assistant"}
			for _, part := range turn.Parts {
				switch part.Type {
				case PartText:
					msg.Content += part.Text
				case PartToolCall:
					msg.ToolCalls = append(msg.ToolCalls, openaiToolCall{
						ID:   part.ToolCallID,
						Type: "function",
						Function: openaiFunction{
							Name:      part.ToolName,
							Arguments: string(part.Input),
						},
					})
				}
			}
			if msg.Content != "" || len(msg.ToolCalls) > 0 {
				messages = append(messages, msg)
			}
		case RoleTool:
			for _, part := range turn.Parts {
				if part.Type == PartToolResult {
					messages = append(messages, openaiMessage{
						Role:       "tool",
						ToolCallID: part.ToolCallID,
						Content:    string(part.Result),
					})
				}
			}
		}
	}

	return messages
}

func buildOpenAITools(specs []ToolSpec) []openaiTool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]openaiTool, len(specs))
	for i, spec := range specs {
		tools[i] = openaiTool{
			Type: "function",
			Function: openaiFunctionDef{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.InputSchema,
			},
		}
	}
	return tools
}

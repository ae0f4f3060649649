package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

type anthropicClient struct {
	client anthropic.Client
	log    *zap.Logger
}

func newAnthropicClient(apiKey string, log *zap.Logger) *anthropicClient {
	return &anthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		log:    log,
	}
}

func (c *anthropicClient) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  buildMessages(req.Turns),
		Tools:     buildTools(req.Tools),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	ch := make(chan Chunk, 16)

	go func() {
		defer close(ch)
		defer stream.Close()

		acc := anthropic.Message{}
		var current *ToolUse
		var inputBuf strings.Builder

		for stream.Next() {
			if ctx.Err() != nil {
				return
			}
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				emit(ctx, ch, Chunk{Type: ChunkError, Err: err})
				return
			}

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if ev.ContentBlock.Type == "tool_use" {
					current = &ToolUse{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name}
					inputBuf.Reset()
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if !emit(ctx, ch, Chunk{Type: ChunkText, Text: delta.Text}) {
						return
					}
				case anthropic.ThinkingDelta:
					if !emit(ctx, ch, Chunk{Type: ChunkThinking, Text: delta.Thinking}) {
						return
					}
				case anthropic.InputJSONDelta:
					inputBuf.WriteString(delta.PartialJSON)
				}
			case anthropic.ContentBlockStopEvent:
				if current != nil {
					input := inputBuf.String()
					if input == "" {
						input = "{}"
					}
					current.Input = json.RawMessage(input)
					if !emit(ctx, ch, Chunk{Type: ChunkToolUse, ToolUse: current}) {
						return
					}
					current = nil
				}
			}
		}

		if err := stream.Err(); err != nil {
			emit(ctx, ch, Chunk{Type: ChunkError, Err: err})
			return
		}

		usage := &Usage{
			InputTokens:  acc.Usage.InputTokens,
			OutputTokens: acc.Usage.OutputTokens,
			TotalTokens:  acc.Usage.InputTokens + acc.Usage.OutputTokens,
		}
		emit(ctx, ch, Chunk{
			Type:       ChunkFinish,
			StopReason: mapStopReason(acc.StopReason),
			Usage:      usage,
		})
	}()

	return ch, nil
}

func mapStopReason(reason anthropic.StopReason) string {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return "stop"
	case anthropic.StopReasonToolUse:
		return "tool-use"
	case anthropic.StopReasonMaxTokens:
		return "length"
	default:
		return string(reason)
	}
}

// buildMessages converts neutral turns to the Anthropic message format. The
// API expects tool results inside user messages and strict
// user/assistant alternation.
func buildMessages(turns []Turn) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	for _, turn := range turns {
		switch turn.Role {
		case RoleUser:
			var blocks []anthropic.ContentBlockParamUnion
			for _, part := range turn.Parts {
				if part.Type == PartText && part.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				}
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewUserMessage(blocks...))
			}
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			for _, part := range turn.Parts {
				switch part.Type {
				case PartText:
					if part.Text != "" {
						blocks = append(blocks, anthropic.NewTextBlock(part.Text))
					}
				case PartToolCall:
					blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolCallID, part.Input, part.ToolName))
				}
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		case RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, part := range turn.Parts {
				if part.Type == PartToolResult {
					blocks = append(blocks, anthropic.NewToolResultBlock(part.ToolCallID, string(part.Result), part.IsError))
				}
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewUserMessage(blocks...))
			}
		}
	}

	return messages
}

func buildTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(specs))
	for i, spec := range specs {
		properties := spec.InputSchema["properties"]
		required, _ := spec.InputSchema["required"].([]string)

		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: properties,
			Required:   required,
			Type:       "object",
		}

		toolUnion := anthropic.ToolUnionParamOfTool(inputSchema, spec.Name)
		if desc := toolUnion.OfTool; desc != nil {
			desc.Description = anthropic.Opt(spec.Description)
		}

		tools[i] = toolUnion
	}
	return tools
}

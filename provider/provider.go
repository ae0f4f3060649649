// Package provider abstracts the streaming model-call capability behind a
// small client interface so the chat orchestrator stays independent of any
// one vendor SDK.
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// ID identifies a configured model provider.
type ID string

const (
	Anthropic ID = "anthropic"
	OpenAI    ID = "openai"
)

// Role of a structured turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType discriminates the content parts of a Turn.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// Part is one content element of a structured turn.
type Part struct {
	Type       PartType
	Text       string
	ToolCallID string
	ToolName   string
	Input      json.RawMessage // tool-call arguments
	Result     json.RawMessage // tool-result payload
	IsError    bool
}

// Turn is one exchange unit in the format a model-call API requires.
type Turn struct {
	Role  Role
	Parts []Part
}

// ToolSpec describes a callable function declared to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Request carries everything needed for one streaming model call.
type Request struct {
	Model     string
	System    string
	Turns     []Turn
	Tools     []ToolSpec
	MaxTokens int64
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// ChunkType discriminates stream chunks.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkThinking ChunkType = "thinking"
	ChunkToolUse  ChunkType = "tool-use"
	ChunkFinish   ChunkType = "finish"
	ChunkError    ChunkType = "error"
)

// ToolUse is a complete model-initiated tool invocation, emitted once its
// input JSON has fully accumulated.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Chunk is one element of a provider's event stream.
type Chunk struct {
	Type       ChunkType
	Text       string
	ToolUse    *ToolUse
	StopReason string
	Usage      *Usage
	Err        error
}

// Client streams one model response. The returned channel is closed after
// the terminal finish or error chunk. Cancelling ctx stops the stream.
type Client interface {
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Factory resolves a provider id and credential to a streaming client.
type Factory interface {
	Client(id ID, apiKey string) (Client, error)
}

type defaultFactory struct {
	log *zap.Logger
}

// NewFactory returns the built-in factory covering the anthropic and openai
// providers.
func NewFactory(log *zap.Logger) Factory {
	return &defaultFactory{log: log}
}

func (f *defaultFactory) Client(id ID, apiKey string) (Client, error) {
	switch id {
	case Anthropic:
		return newAnthropicClient(apiKey, f.log), nil
	case OpenAI:
		return newOpenAIClient(apiKey, f.log), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", id)
	}
}

// emit delivers a chunk unless ctx is already cancelled.
func emit(ctx context.Context, ch chan<- Chunk, chunk Chunk) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- chunk:
		return true
	}
}

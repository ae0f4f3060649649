package chat

import "encoding/json"

// StreamEvent is the tagged union delivered over the stream channel. Each
// variant carries the conversation id so listeners can discard events for
// conversations they are not bound to.
type StreamEvent interface {
	EventType() string
	Conversation() string
}

// Usage is the token accounting attached to a finish event.
type Usage struct {
	InputTokens  int64 `json:"inputTokens,omitempty"`
	OutputTokens int64 `json:"outputTokens,omitempty"`
	TotalTokens  int64 `json:"totalTokens,omitempty"`
}

type TextDeltaEvent struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

func (e TextDeltaEvent) EventType() string    { return "text-delta" }
func (e TextDeltaEvent) Conversation() string { return e.ConversationID }

// ReasoningDeltaEvent carries the model's auxiliary thinking text, kept on a
// separate channel from regular content.
type ReasoningDeltaEvent struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

func (e ReasoningDeltaEvent) EventType() string    { return "reasoning-delta" }
func (e ReasoningDeltaEvent) Conversation() string { return e.ConversationID }

type ToolCallEvent struct {
	ConversationID string          `json:"conversationId"`
	ToolCallID     string          `json:"toolCallId"`
	ToolName       string          `json:"toolName"`
	Input          json.RawMessage `json:"input"`
}

func (e ToolCallEvent) EventType() string    { return "tool-call" }
func (e ToolCallEvent) Conversation() string { return e.ConversationID }

type ToolResultEvent struct {
	ConversationID string          `json:"conversationId"`
	ToolCallID     string          `json:"toolCallId"`
	ToolName       string          `json:"toolName"`
	Result         json.RawMessage `json:"result"`
	IsError        bool            `json:"isError"`
}

func (e ToolResultEvent) EventType() string    { return "tool-result" }
func (e ToolResultEvent) Conversation() string { return e.ConversationID }

type ConfirmationRequiredEvent struct {
	ConversationID string `json:"conversationId"`
	ToolCallID     string `json:"toolCallId"`
	ToolName       string `json:"toolName"`
	Description    string `json:"description"`
}

func (e ConfirmationRequiredEvent) EventType() string    { return "confirmation-required" }
func (e ConfirmationRequiredEvent) Conversation() string { return e.ConversationID }

type FinishEvent struct {
	ConversationID string `json:"conversationId"`
	FinishReason   string `json:"finishReason"`
	Usage          Usage  `json:"usage"`
}

func (e FinishEvent) EventType() string    { return "finish" }
func (e FinishEvent) Conversation() string { return e.ConversationID }

type ErrorEvent struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

func (e ErrorEvent) EventType() string    { return "error" }
func (e ErrorEvent) Conversation() string { return e.ConversationID }

// StreamSender pushes stream events toward the UI listener. Implementations
// must preserve emission order per conversation.
type StreamSender interface {
	Send(event StreamEvent)
}

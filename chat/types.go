// Package chat implements the AI-chat streaming orchestrator: request
// validation, per-conversation streaming sessions, the message converter
// feeding the model-call layer, and stream-error classification.
package chat

import (
	"encoding/json"

	"kubechat/provider"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a model-initiated request to invoke a tool.
type ToolCall struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Input      json.RawMessage `json:"input"`
}

// ToolResult is the outcome of one tool call.
type ToolResult struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Result     json.RawMessage `json:"result"`
	IsError    bool            `json:"isError,omitempty"`
}

// Message is the request/persisted conversation turn format.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// Confirmation describes a mutating tool call awaiting user approval.
type Confirmation struct {
	ToolCallID  string `json:"toolCallId"`
	ToolName    string `json:"toolName"`
	Description string `json:"description"`
}

// SendMessageRequest starts a streaming session.
type SendMessageRequest struct {
	ConversationID string      `json:"conversationId"`
	ClusterID      string      `json:"clusterId"`
	Provider       provider.ID `json:"providerId"`
	Messages       []Message   `json:"messages"`
}

// SendMessageAck is the synchronous response to a send-message request.
// Accepted does not imply completion; progress is observed on the stream
// channel only.
type SendMessageAck struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// ConfirmActionRequest resolves a pending tool confirmation.
type ConfirmActionRequest struct {
	ConversationID string `json:"conversationId"`
	ToolCallID     string `json:"toolCallId"`
	Confirmed      bool   `json:"confirmed"`
}

// ConfirmActionResponse reports whether the confirmed tool actually ran.
type ConfirmActionResponse struct {
	Executed bool   `json:"executed"`
	Error    string `json:"error,omitempty"`
}

// Credential is the per-provider configuration the orchestrator needs to
// start a stream.
type Credential struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// CredentialSource resolves provider credentials. Implemented by the
// preferences store; the orchestrator only consumes it.
type CredentialSource interface {
	Credential(id provider.ID) (Credential, bool)
}

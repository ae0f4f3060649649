package chat

import (
	"kubechat/provider"
)

const (
	defaultMaxMessages = 50
	defaultKeepRecent  = 20
)

// Truncate bounds a conversation history to maxMessages. Histories over the
// limit keep the first message (the original user intent) plus the
// keepRecent most recent ones; the first message is never duplicated when it
// already falls inside the kept tail.
func Truncate(messages []Message, maxMessages, keepRecent int) []Message {
	if len(messages) <= maxMessages {
		return messages
	}
	if len(messages) <= keepRecent {
		return messages
	}
	recent := messages[len(messages)-keepRecent:]
	out := make([]Message, 0, keepRecent+1)
	out = append(out, messages[0])
	out = append(out, recent...)
	return out
}

// ToTurns translates an ordered conversation history into the structured
// turn format the model-call layer requires.
//
// Assistant placeholders (no content, no tool calls) and tool messages with
// no results are dropped: they represent in-progress state that must never
// reach the model.
func ToTurns(messages []Message) []provider.Turn {
	var turns []provider.Turn

	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			if msg.Content == "" {
				continue
			}
			turns = append(turns, provider.Turn{
				Role:  provider.RoleUser,
				Parts: []provider.Part{{Type: provider.PartText, Text: msg.Content}},
			})

		case RoleAssistant:
			if msg.Content == "" && len(msg.ToolCalls) == 0 {
				continue
			}
			var parts []provider.Part
			if msg.Content != "" {
				parts = append(parts, provider.Part{Type: provider.PartText, Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, provider.Part{
					Type:       provider.PartToolCall,
					ToolCallID: call.ToolCallID,
					ToolName:   call.ToolName,
					Input:      call.Input,
				})
			}
			turns = append(turns, provider.Turn{Role: provider.RoleAssistant, Parts: parts})

		case RoleTool:
			if len(msg.ToolResults) == 0 {
				continue
			}
			parts := make([]provider.Part, 0, len(msg.ToolResults))
			for _, result := range msg.ToolResults {
				parts = append(parts, provider.Part{
					Type:       provider.PartToolResult,
					ToolCallID: result.ToolCallID,
					ToolName:   result.ToolName,
					Result:     result.Result,
					IsError:    result.IsError,
				})
			}
			turns = append(turns, provider.Turn{Role: provider.RoleTool, Parts: parts})
		}
	}

	return turns
}

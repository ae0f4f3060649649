package chat

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kubechat/provider"
)

func makeHistory(n int) []Message {
	msgs := make([]Message, n)
	for i := range msgs {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		msgs[i] = Message{Role: role, Content: fmt.Sprintf("message %d", i)}
	}
	return msgs
}

func TestTruncate(t *testing.T) {
	t.Run("short history is identity", func(t *testing.T) {
		for _, n := range []int{0, 1, 20, 50} {
			msgs := makeHistory(n)
			assert.Equal(t, msgs, Truncate(msgs, 50, 20), "length %d", n)
		}
	})

	t.Run("long history keeps first plus recent", func(t *testing.T) {
		msgs := makeHistory(120)
		got := Truncate(msgs, 50, 20)
		require.Len(t, got, 21)
		assert.Equal(t, "message 0", got[0].Content)
		assert.Equal(t, "message 100", got[1].Content)
		assert.Equal(t, "message 119", got[20].Content)
	})

	t.Run("first message never duplicated", func(t *testing.T) {
		msgs := makeHistory(60)
		got := Truncate(msgs, 10, 60)
		require.Len(t, got, 60)
		seen := map[string]int{}
		for _, m := range got {
			seen[m.Content]++
		}
		assert.Equal(t, 1, seen["message 0"])
	})
}

func TestToTurns(t *testing.T) {
	t.Run("user message becomes a user turn", func(t *testing.T) {
		turns := ToTurns([]Message{{Role: RoleUser, Content: "how many pods?"}})
		require.Len(t, turns, 1)
		assert.Equal(t, provider.RoleUser, turns[0].Role)
		require.Len(t, turns[0].Parts, 1)
		assert.Equal(t, "how many pods?", turns[0].Parts[0].Text)
	})

	t.Run("assistant with tool calls orders text before invocations", func(t *testing.T) {
		turns := ToTurns([]Message{{
			Role:    RoleAssistant,
			Content: "Let me check.",
			ToolCalls: []ToolCall{
				{ToolCallID: "t1", ToolName: "listResources", Input: json.RawMessage(`{"kind":"Pod"}`)},
				{ToolCallID: "t2", ToolName: "getEvents", Input: json.RawMessage(`{}`)},
			},
		}})
		require.Len(t, turns, 1)
		require.Len(t, turns[0].Parts, 3)
		assert.Equal(t, provider.PartText, turns[0].Parts[0].Type)
		assert.Equal(t, "t1", turns[0].Parts[1].ToolCallID)
		assert.Equal(t, "t2", turns[0].Parts[2].ToolCallID)
	})

	t.Run("empty assistant placeholder is dropped", func(t *testing.T) {
		turns := ToTurns([]Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant},
		})
		require.Len(t, turns, 1)
		assert.Equal(t, provider.RoleUser, turns[0].Role)
	})

	t.Run("tool message maps each result to a part", func(t *testing.T) {
		turns := ToTurns([]Message{{
			Role: RoleTool,
			ToolResults: []ToolResult{
				{ToolCallID: "t1", ToolName: "listResources", Result: json.RawMessage(`{"count":3}`)},
				{ToolCallID: "t2", ToolName: "getEvents", Result: json.RawMessage(`{"error":"boom"}`), IsError: true},
			},
		}})
		require.Len(t, turns, 1)
		assert.Equal(t, provider.RoleTool, turns[0].Role)
		require.Len(t, turns[0].Parts, 2)
		assert.False(t, turns[0].Parts[0].IsError)
		assert.True(t, turns[0].Parts[1].IsError)
	})

	t.Run("tool message without results is dropped", func(t *testing.T) {
		assert.Empty(t, ToTurns([]Message{{Role: RoleTool}}))
	})

	t.Run("alternation survives a full tool round trip", func(t *testing.T) {
		turns := ToTurns([]Message{
			{Role: RoleUser, Content: "check the cluster"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ToolCallID: "t1", ToolName: "getClusterInfo", Input: json.RawMessage(`{}`)}}},
			{Role: RoleTool, ToolResults: []ToolResult{{ToolCallID: "t1", ToolName: "getClusterInfo", Result: json.RawMessage(`{"nodeCount":3}`)}}},
			{Role: RoleAssistant, Content: "You have 3 nodes."},
		})
		require.Len(t, turns, 4)
		assert.Equal(t, provider.RoleUser, turns[0].Role)
		assert.Equal(t, provider.RoleAssistant, turns[1].Role)
		assert.Equal(t, provider.RoleTool, turns[2].Role)
		assert.Equal(t, provider.RoleAssistant, turns[3].Role)
	})
}

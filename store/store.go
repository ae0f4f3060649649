// Package store holds the consumer-side conversation state: the message
// history, streaming status, and per-message tool sub-state, mutated only
// through named actions. Subscribers are notified after every action.
package store

import (
	"sync"
	"sync/atomic"
	"time"

	"kubechat/chat"
)

// nextMessageID assigns unique, creation-ordered ids process-wide.
var nextMessageID atomic.Int64

// Message is one turn in the conversation as the UI sees it.
type Message struct {
	ID                  int64
	Role                string
	Content             string
	Reasoning           string
	Timestamp           time.Time
	IsError             bool
	ToolCalls           []chat.ToolCall
	ToolResults         []chat.ToolResult
	Usage               *chat.Usage
	PendingConfirmation *chat.Confirmation
}

// Store is the conversation state machine. All actions are atomic; the
// mutex stands in for the single-threaded event loop of the UI process.
type Store struct {
	mu             sync.Mutex
	conversationID string
	messages       []Message
	streaming      bool

	subMu sync.Mutex
	subs  map[int]func()
	next  int
}

func New(conversationID string) *Store {
	return &Store{
		conversationID: conversationID,
		subs:           map[int]func(){},
	}
}

// Subscribe registers a callback invoked after every state change. The
// returned function unsubscribes.
func (s *Store) Subscribe(fn func()) func() {
	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// ConversationID returns the conversation this store is bound to.
func (s *Store) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// IsStreaming reports whether a response is currently streaming.
func (s *Store) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Messages returns a snapshot of the history.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// History converts the current messages to the request format sent with the
// next send-message call. Error turns are skipped.
func (s *Store) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		if msg.IsError {
			continue
		}
		out = append(out, chat.Message{
			Role:        msg.Role,
			Content:     msg.Content,
			ToolCalls:   msg.ToolCalls,
			ToolResults: msg.ToolResults,
		})
	}
	return out
}

// ApplyEvent maps a wire event onto store actions. Events for other
// conversations are discarded, so multiple sessions can stream at once
// without cross-talk.
func (s *Store) ApplyEvent(event chat.StreamEvent) {
	if event.Conversation() != s.ConversationID() {
		return
	}
	switch ev := event.(type) {
	case chat.TextDeltaEvent:
		s.AppendTextDelta(ev.Text)
	case chat.ReasoningDeltaEvent:
		s.AppendReasoningDelta(ev.Text)
	case chat.ToolCallEvent:
		s.AddToolCall(chat.ToolCall{ToolCallID: ev.ToolCallID, ToolName: ev.ToolName, Input: ev.Input})
	case chat.ToolResultEvent:
		s.AddToolResult(chat.ToolResult{ToolCallID: ev.ToolCallID, ToolName: ev.ToolName, Result: ev.Result, IsError: ev.IsError})
	case chat.ConfirmationRequiredEvent:
		s.AddConfirmationRequired(chat.Confirmation{ToolCallID: ev.ToolCallID, ToolName: ev.ToolName, Description: ev.Description})
	case chat.FinishEvent:
		usage := ev.Usage
		s.FinishStreaming(&usage)
	case chat.ErrorEvent:
		s.AddErrorMessage(ev.Message)
	}
}

// AddUserMessage appends a new user message.
func (s *Store) AddUserMessage(text string) {
	s.mu.Lock()
	s.messages = append(s.messages, newMessage(chat.RoleUser, text))
	s.mu.Unlock()
	s.notify()
}

// StartAssistantMessage appends an empty assistant message and marks the
// conversation as streaming.
func (s *Store) StartAssistantMessage() {
	s.mu.Lock()
	s.messages = append(s.messages, newMessage(chat.RoleAssistant, ""))
	s.streaming = true
	s.mu.Unlock()
	s.notify()
}

// AppendTextDelta appends text to the current assistant message, creating a
// new one when the last message is not assistant-role. This is what keeps
// assistant text after a tool result in a fresh message, preserving strict
// role alternation.
func (s *Store) AppendTextDelta(text string) {
	s.mu.Lock()
	msg := s.currentAssistantLocked()
	msg.Content += text
	s.mu.Unlock()
	s.notify()
}

// AppendReasoningDelta appends to the current assistant message's reasoning
// channel.
func (s *Store) AppendReasoningDelta(text string) {
	s.mu.Lock()
	msg := s.currentAssistantLocked()
	msg.Reasoning += text
	s.mu.Unlock()
	s.notify()
}

// AddToolCall records a tool call on the current assistant message,
// deduplicated by tool call id.
func (s *Store) AddToolCall(call chat.ToolCall) {
	s.mu.Lock()
	msg := s.currentAssistantLocked()
	for _, existing := range msg.ToolCalls {
		if existing.ToolCallID == call.ToolCallID {
			s.mu.Unlock()
			return
		}
	}
	msg.ToolCalls = append(msg.ToolCalls, call)
	s.mu.Unlock()
	s.notify()
}

// AddToolResult appends a tool-role message holding the result,
// deduplicated against the immediately preceding tool message.
func (s *Store) AddToolResult(result chat.ToolResult) {
	s.mu.Lock()
	if n := len(s.messages); n > 0 && s.messages[n-1].Role == chat.RoleTool {
		last := &s.messages[n-1]
		for _, existing := range last.ToolResults {
			if existing.ToolCallID == result.ToolCallID {
				s.mu.Unlock()
				return
			}
		}
		last.ToolResults = append(last.ToolResults, result)
		s.mu.Unlock()
		s.notify()
		return
	}
	msg := newMessage(chat.RoleTool, "")
	msg.ToolResults = []chat.ToolResult{result}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify()
}

// AddConfirmationRequired attaches a pending confirmation to the last
// message when it is assistant-role.
func (s *Store) AddConfirmationRequired(confirmation chat.Confirmation) {
	s.mu.Lock()
	if n := len(s.messages); n > 0 && s.messages[n-1].Role == chat.RoleAssistant {
		s.messages[n-1].PendingConfirmation = &confirmation
	}
	s.mu.Unlock()
	s.notify()
}

// FinishStreaming attaches usage to the most recent assistant message and
// clears the streaming flag.
func (s *Store) FinishStreaming(usage *chat.Usage) {
	s.mu.Lock()
	if usage != nil {
		for i := len(s.messages) - 1; i >= 0; i-- {
			if s.messages[i].Role == chat.RoleAssistant {
				s.messages[i].Usage = usage
				break
			}
		}
	}
	s.streaming = false
	s.mu.Unlock()
	s.notify()
}

// AddErrorMessage appends an assistant message flagged as an error and
// clears the streaming flag.
func (s *Store) AddErrorMessage(text string) {
	s.mu.Lock()
	msg := newMessage(chat.RoleAssistant, text)
	msg.IsError = true
	s.messages = append(s.messages, msg)
	s.streaming = false
	s.mu.Unlock()
	s.notify()
}

// Clear resets the history and rebinds the store to a new conversation.
// Invoked when the bound cluster changes.
func (s *Store) Clear(conversationID string) {
	s.mu.Lock()
	s.messages = nil
	s.streaming = false
	s.conversationID = conversationID
	s.mu.Unlock()
	s.notify()
}

// currentAssistantLocked returns the last message when it is
// assistant-role, appending a fresh assistant message otherwise.
func (s *Store) currentAssistantLocked() *Message {
	if n := len(s.messages); n > 0 && s.messages[n-1].Role == chat.RoleAssistant {
		return &s.messages[n-1]
	}
	s.messages = append(s.messages, newMessage(chat.RoleAssistant, ""))
	return &s.messages[len(s.messages)-1]
}

func newMessage(role, content string) Message {
	return Message{
		ID:        nextMessageID.Add(1),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

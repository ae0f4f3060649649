package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kubechat/chat"
)

func recv(t *testing.T, ch <-chan chat.StreamEvent) chat.StreamEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a, cancelA := hub.Subscribe()
	b, cancelB := hub.Subscribe()
	defer cancelA()
	defer cancelB()

	hub.Send(chat.TextDeltaEvent{ConversationID: "c1", Text: "hello"})

	for _, ch := range []<-chan chat.StreamEvent{a, b} {
		ev := recv(t, ch)
		delta, ok := ev.(chat.TextDeltaEvent)
		require.True(t, ok)
		assert.Equal(t, "hello", delta.Text)
	}
}

func TestHubPreservesOrder(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Send(chat.TextDeltaEvent{ConversationID: "c1", Text: "one"})
	hub.Send(chat.TextDeltaEvent{ConversationID: "c1", Text: "two"})
	hub.Send(chat.FinishEvent{ConversationID: "c1", FinishReason: "stop"})

	assert.Equal(t, "one", recv(t, ch).(chat.TextDeltaEvent).Text)
	assert.Equal(t, "two", recv(t, ch).(chat.TextDeltaEvent).Text)
	assert.Equal(t, "finish", recv(t, ch).EventType())
}

func TestHubCarriesConversationID(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Send(chat.TextDeltaEvent{ConversationID: "c1", Text: "x"})
	hub.Send(chat.TextDeltaEvent{ConversationID: "c2", Text: "y"})

	assert.Equal(t, "c1", recv(t, ch).Conversation())
	assert.Equal(t, "c2", recv(t, ch).Conversation())
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ch, cancel := hub.Subscribe()

	cancel()
	cancel() // second call is a no-op

	_, open := <-ch
	assert.False(t, open)

	// Sending after unsubscribe must not panic or deliver.
	hub.Send(chat.TextDeltaEvent{ConversationID: "c1", Text: "late"})
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop())
	slow, cancelSlow := hub.Subscribe()
	defer cancelSlow()

	// Overfill the subscriber buffer; Send must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultBuffer+10; i++ {
			hub.Send(chat.TextDeltaEvent{ConversationID: "c1", Text: "x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked on a slow subscriber")
	}

	assert.Len(t, slow, defaultBuffer)
}

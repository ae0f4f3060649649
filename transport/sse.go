package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"kubechat/chat"
)

// ChatHandler is the orchestrator surface the server binds to HTTP.
type ChatHandler interface {
	HandleSendMessage(ctx context.Context, req chat.SendMessageRequest) chat.SendMessageAck
	Cancel(conversationID string) bool
	ConfirmAction(ctx context.Context, req chat.ConfirmActionRequest) chat.ConfirmActionResponse
}

// Server exposes the four wire channels over HTTP: send-message as
// request/ack, the stream as Server-Sent Events, and cancel and
// confirm-action as plain POSTs.
type Server struct {
	handler ChatHandler
	hub     *Hub
	log     *zap.Logger
}

func NewServer(handler ChatHandler, hub *Hub, log *zap.Logger) *Server {
	return &Server{handler: handler, hub: hub, log: log}
}

// Handler returns the routing mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/send", s.handleSend)
	mux.HandleFunc("/api/chat/stream", s.handleStream)
	mux.HandleFunc("/api/chat/cancel", s.handleCancel)
	mux.HandleFunc("/api/chat/confirm", s.handleConfirm)
	return mux
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chat.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.handler.HandleSendMessage(r.Context(), req))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]bool{"cancelled": s.handler.Cancel(req.ConversationID)})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chat.ConfirmActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.handler.ConfirmAction(r.Context(), req))
}

// handleStream subscribes the client to the event stream. An optional
// conversationId query parameter filters to one conversation.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	filter := r.URL.Query().Get("conversationId")
	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if filter != "" && event.Conversation() != filter {
				continue
			}
			if err := writeSSE(w, event); err != nil {
				s.log.Debug("stream write failed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event chat.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType(), data)
	return err
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

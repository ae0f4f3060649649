package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"kubechat/kube"
	"kubechat/provider"
	"kubechat/tool"
)

// maxSteps bounds the number of model/tool round-trips in one streaming
// session before the loop is forced to stop.
const maxSteps = 5

// Orchestrator validates send-message requests, runs cancellable streaming
// sessions against a model provider, and relays discrete wire events to the
// stream sender. One stream may be active per conversation id at a time; a
// second request replaces the previous cancellation handle.
type Orchestrator struct {
	providers provider.Factory
	clusters  kube.ClusterLookup
	tools     *tool.Registry
	sender    StreamSender
	creds     CredentialSource
	log       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
	pending  map[string]pendingConfirmation
}

type session struct {
	cancel context.CancelFunc
}

type pendingConfirmation struct {
	clusterID string
	toolName  string
	input     map[string]interface{}
}

// NewOrchestrator wires the orchestrator's collaborators. All dependencies
// are required.
func NewOrchestrator(
	providers provider.Factory,
	clusters kube.ClusterLookup,
	tools *tool.Registry,
	sender StreamSender,
	creds CredentialSource,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		providers: providers,
		clusters:  clusters,
		tools:     tools,
		sender:    sender,
		creds:     creds,
		log:       log,
		sessions:  map[string]*session{},
		pending:   map[string]pendingConfirmation{},
	}
}

// HandleSendMessage validates the request synchronously and, when accepted,
// continues streaming asynchronously. Acceptance never implies completion:
// all further progress is observed on the stream channel.
func (o *Orchestrator) HandleSendMessage(ctx context.Context, req SendMessageRequest) SendMessageAck {
	if req.ConversationID == "" {
		return SendMessageAck{Error: "conversationId is required"}
	}
	if len(req.Messages) == 0 {
		return SendMessageAck{Error: "messages must not be empty"}
	}

	cred, ok := o.creds.Credential(req.Provider)
	if !ok || cred.APIKey == "" {
		return SendMessageAck{Error: fmt.Sprintf("no API key configured for provider %q", req.Provider)}
	}

	cluster, ok := o.clusters.GetClusterByID(req.ClusterID)
	if !ok {
		return SendMessageAck{Error: fmt.Sprintf("cluster %q not found", req.ClusterID)}
	}
	if !cluster.Accessible {
		return SendMessageAck{Error: fmt.Sprintf("cluster %q is not reachable", req.ClusterID)}
	}

	client, err := o.providers.Client(req.Provider, cred.APIKey)
	if err != nil {
		return SendMessageAck{Error: err.Error()}
	}

	// The stream outlives the request; its lifetime is bound to the
	// cancellation handle, not the caller's context.
	streamCtx, cancel := context.WithCancel(context.Background())
	sess := o.register(req.ConversationID, cancel)

	o.log.Info("chat stream accepted",
		zap.String("conversation", req.ConversationID),
		zap.String("cluster", req.ClusterID),
		zap.String("provider", string(req.Provider)))

	go o.stream(streamCtx, sess, client, cred, cluster, req)

	return SendMessageAck{Accepted: true}
}

// Cancel aborts the in-flight stream for a conversation. Returns true when
// a handle existed and was aborted.
func (o *Orchestrator) Cancel(conversationID string) bool {
	o.mu.Lock()
	sess, ok := o.sessions[conversationID]
	if ok {
		delete(o.sessions, conversationID)
	}
	o.mu.Unlock()

	if !ok {
		return false
	}
	sess.cancel()
	o.log.Info("chat stream cancelled", zap.String("conversation", conversationID))
	return true
}

// ConfirmAction resolves a parked mutating tool call. When confirmed the
// call executes and its result is emitted on the stream channel; otherwise
// it is discarded.
func (o *Orchestrator) ConfirmAction(ctx context.Context, req ConfirmActionRequest) ConfirmActionResponse {
	key := pendingKey(req.ConversationID, req.ToolCallID)

	o.mu.Lock()
	pc, ok := o.pending[key]
	if ok {
		delete(o.pending, key)
	}
	o.mu.Unlock()

	if !ok {
		return ConfirmActionResponse{Error: fmt.Sprintf("no pending confirmation for tool call %q", req.ToolCallID)}
	}

	if !req.Confirmed {
		o.sender.Send(ToolResultEvent{
			ConversationID: req.ConversationID,
			ToolCallID:     req.ToolCallID,
			ToolName:       pc.toolName,
			Result:         json.RawMessage(`{"error":"action was not confirmed by the user"}`),
			IsError:        true,
		})
		return ConfirmActionResponse{}
	}

	result, isErr := o.tools.Execute(ctx, pc.toolName, tool.Context{ClusterID: pc.clusterID}, pc.input)
	o.sender.Send(ToolResultEvent{
		ConversationID: req.ConversationID,
		ToolCallID:     req.ToolCallID,
		ToolName:       pc.toolName,
		Result:         result,
		IsError:        isErr,
	})
	if isErr {
		return ConfirmActionResponse{Error: errorMessage(result)}
	}
	return ConfirmActionResponse{Executed: true}
}

func (o *Orchestrator) register(conversationID string, cancel context.CancelFunc) *session {
	sess := &session{cancel: cancel}
	o.mu.Lock()
	if prev, ok := o.sessions[conversationID]; ok {
		// Replace-on-duplicate: the previous loop keeps running but loses
		// its handle. Logged because this usually means the caller failed
		// to serialize requests.
		o.log.Warn("replacing active stream handle", zap.String("conversation", conversationID))
		prev.cancel()
	}
	o.sessions[conversationID] = sess
	o.mu.Unlock()
	return sess
}

// deregister removes the session only when it still owns the slot; an
// overwritten session must not remove its replacement.
func (o *Orchestrator) deregister(conversationID string, sess *session) {
	o.mu.Lock()
	if o.sessions[conversationID] == sess {
		delete(o.sessions, conversationID)
	}
	o.mu.Unlock()
	sess.cancel()
}

func (o *Orchestrator) stream(ctx context.Context, sess *session, client provider.Client, cred Credential, cluster kube.Cluster, req SendMessageRequest) {
	defer o.deregister(req.ConversationID, sess)

	err := o.run(ctx, client, cred, cluster, req)
	if err == nil {
		return
	}

	msg, cancelled := classifyStreamError(err)
	if cancelled {
		o.sender.Send(FinishEvent{ConversationID: req.ConversationID, FinishReason: "cancelled"})
		return
	}
	o.log.Warn("chat stream failed",
		zap.String("conversation", req.ConversationID),
		zap.Error(err))
	o.sender.Send(ErrorEvent{ConversationID: req.ConversationID, Message: msg})
}

func (o *Orchestrator) run(ctx context.Context, client provider.Client, cred Credential, cluster kube.Cluster, req SendMessageRequest) error {
	convID := req.ConversationID
	turns := ToTurns(Truncate(req.Messages, defaultMaxMessages, defaultKeepRecent))
	system := systemPromptFor(cluster.ContextName)
	specs := o.tools.Specs()

	var usage Usage

	for step := 0; step < maxSteps; step++ {
		chunks, err := client.Stream(ctx, provider.Request{
			Model:     cred.Model,
			System:    system,
			Turns:     turns,
			Tools:     specs,
			MaxTokens: cred.MaxTokens,
		})
		if err != nil {
			return err
		}

		var text strings.Builder
		var uses []*provider.ToolUse
		stopReason := ""

		for chunk := range chunks {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			switch chunk.Type {
			case provider.ChunkText:
				text.WriteString(chunk.Text)
				o.sender.Send(TextDeltaEvent{ConversationID: convID, Text: chunk.Text})
			case provider.ChunkThinking:
				o.sender.Send(ReasoningDeltaEvent{ConversationID: convID, Text: chunk.Text})
			case provider.ChunkToolUse:
				uses = append(uses, chunk.ToolUse)
			case provider.ChunkFinish:
				stopReason = chunk.StopReason
				if chunk.Usage != nil {
					usage.InputTokens += chunk.Usage.InputTokens
					usage.OutputTokens += chunk.Usage.OutputTokens
				}
			case provider.ChunkError:
				return chunk.Err
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if len(uses) == 0 {
			if stopReason == "" || stopReason == "tool-use" {
				stopReason = "stop"
			}
			o.finish(convID, stopReason, usage)
			return nil
		}

		turns = append(turns, assistantTurn(text.String(), uses))
		resultTurn, err := o.runTools(ctx, convID, req.ClusterID, uses)
		if err != nil {
			return err
		}
		turns = append(turns, resultTurn)
	}

	// Step budget exhausted with tool calls still pending.
	o.finish(convID, "tool-calls", usage)
	return nil
}

// runTools executes each tool call in order, emitting tool-call and
// tool-result events, and returns the tool-result turn fed back to the
// model. Mutating tools are parked for confirmation instead of executing.
func (o *Orchestrator) runTools(ctx context.Context, convID, clusterID string, uses []*provider.ToolUse) (provider.Turn, error) {
	parts := make([]provider.Part, 0, len(uses))

	for _, use := range uses {
		if ctx.Err() != nil {
			return provider.Turn{}, ctx.Err()
		}

		o.sender.Send(ToolCallEvent{
			ConversationID: convID,
			ToolCallID:     use.ID,
			ToolName:       use.Name,
			Input:          use.Input,
		})

		input := map[string]interface{}{}
		if len(use.Input) > 0 {
			if err := json.Unmarshal(use.Input, &input); err != nil {
				o.log.Debug("unparseable tool input", zap.String("tool", use.Name), zap.Error(err))
			}
		}

		if def, ok := o.tools.Get(use.Name); ok && def.Mutating {
			o.park(convID, clusterID, use, input)
			o.sender.Send(ConfirmationRequiredEvent{
				ConversationID: convID,
				ToolCallID:     use.ID,
				ToolName:       use.Name,
				Description:    def.Description,
			})
			parts = append(parts, provider.Part{
				Type:       provider.PartToolResult,
				ToolCallID: use.ID,
				ToolName:   use.Name,
				Result:     json.RawMessage(`{"status":"confirmation-required","message":"This action needs explicit user approval before it can run."}`),
			})
			continue
		}

		result, isErr := o.tools.Execute(ctx, use.Name, tool.Context{ClusterID: clusterID}, input)
		o.sender.Send(ToolResultEvent{
			ConversationID: convID,
			ToolCallID:     use.ID,
			ToolName:       use.Name,
			Result:         result,
			IsError:        isErr,
		})
		parts = append(parts, provider.Part{
			Type:       provider.PartToolResult,
			ToolCallID: use.ID,
			ToolName:   use.Name,
			Result:     result,
			IsError:    isErr,
		})
	}

	return provider.Turn{Role: provider.RoleTool, Parts: parts}, nil
}

func (o *Orchestrator) park(convID, clusterID string, use *provider.ToolUse, input map[string]interface{}) {
	o.mu.Lock()
	o.pending[pendingKey(convID, use.ID)] = pendingConfirmation{
		clusterID: clusterID,
		toolName:  use.Name,
		input:     input,
	}
	o.mu.Unlock()
}

func (o *Orchestrator) finish(convID, reason string, usage Usage) {
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	o.sender.Send(FinishEvent{ConversationID: convID, FinishReason: reason, Usage: usage})
}

func assistantTurn(text string, uses []*provider.ToolUse) provider.Turn {
	var parts []provider.Part
	if text != "" {
		parts = append(parts, provider.Part{Type: provider.PartText, Text: text})
	}
	for _, use := range uses {
		parts = append(parts, provider.Part{
			Type:       provider.PartToolCall,
			ToolCallID: use.ID,
			ToolName:   use.Name,
			Input:      use.Input,
		})
	}
	return provider.Turn{Role: provider.RoleAssistant, Parts: parts}
}

func pendingKey(conversationID, toolCallID string) string {
	return conversationID + "/" + toolCallID
}

func errorMessage(result json.RawMessage) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(result, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return string(result)
}

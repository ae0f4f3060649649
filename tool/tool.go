// Package tool implements the schema-described cluster tools the chat
// orchestrator declares to the model, backed by a kube.QueryExecutor.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"kubechat/kube"
	"kubechat/provider"
)

// Definition describes one callable tool.
type Definition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	// Mutating tools are not executed until the user confirms them.
	Mutating bool
	Execute  func(ctx context.Context, tc Context, input map[string]interface{}) (interface{}, error)
}

// Context carries per-invocation information to a tool.
type Context struct {
	ClusterID string
}

// Registry manages the available tools.
type Registry struct {
	executor kube.QueryExecutor
	log      *zap.Logger
	tools    map[string]*Definition
	order    []string
}

// NewRegistry creates a registry with the four built-in cluster tools.
func NewRegistry(executor kube.QueryExecutor, log *zap.Logger) *Registry {
	r := &Registry{
		executor: executor,
		log:      log,
		tools:    map[string]*Definition{},
	}
	r.Register(r.listResourcesTool())
	r.Register(r.getResourceTool())
	r.Register(r.getClusterInfoTool())
	r.Register(r.getEventsTool())
	return r
}

// Register adds a tool to the registry, replacing any previous definition
// with the same name.
func (r *Registry) Register(def *Definition) {
	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = def
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	def, ok := r.tools[name]
	return def, ok
}

// Specs returns the declarations for every registered tool, in registration
// order.
func (r *Registry) Specs() []provider.ToolSpec {
	specs := make([]provider.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		def := r.tools[name]
		specs = append(specs, provider.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return specs
}

// Execute runs a tool and encodes its outcome as JSON. Failures never
// escape: any error becomes an {"error": ...} payload with isError set, so
// the model's reasoning loop can continue.
func (r *Registry) Execute(ctx context.Context, name string, tc Context, input map[string]interface{}) (result json.RawMessage, isError bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("tool panicked", zap.String("tool", name), zap.Any("panic", rec))
			result, isError = errorPayload(fmt.Sprintf("tool %s failed: %v", name, rec)), true
		}
	}()

	def, ok := r.tools[name]
	if !ok {
		return errorPayload(fmt.Sprintf("unknown tool: %s", name)), true
	}

	out, err := def.Execute(ctx, tc, input)
	if err != nil {
		r.log.Debug("tool returned error", zap.String("tool", name), zap.Error(err))
		return errorPayload(err.Error()), true
	}

	data, err := json.Marshal(out)
	if err != nil {
		return errorPayload(fmt.Sprintf("encode tool result: %v", err)), true
	}
	return data, false
}

func errorPayload(msg string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return data
}

func stringParam(input map[string]interface{}, key string) string {
	if v, ok := input[key].(string); ok {
		return v
	}
	return ""
}

package kube

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Executor runs queries through controller-runtime clients built from
// kubeconfig contexts. Clients are cached per cluster id.
type Executor struct {
	kubeconfig string
	log        *zap.Logger

	mu      sync.Mutex
	clients map[string]client.Client
}

// NewExecutor creates an executor reading contexts from the given kubeconfig
// path; an empty path falls back to the default loading rules.
func NewExecutor(kubeconfig string, log *zap.Logger) *Executor {
	return &Executor{
		kubeconfig: kubeconfig,
		log:        log,
		clients:    map[string]client.Client{},
	}
}

// NewExecutorWithClient wires a pre-built client under a fixed cluster id.
// Used by tests and embedders that already hold a connection.
func NewExecutorWithClient(clusterID string, c client.Client, log *zap.Logger) *Executor {
	return &Executor{
		log:     log,
		clients: map[string]client.Client{clusterID: c},
	}
}

func (e *Executor) Execute(ctx context.Context, q Query) Result {
	c, err := e.clientFor(q.ClusterID)
	if err != nil {
		return errorResult(0, fmt.Sprintf("connect to cluster %q: %v", q.ClusterID, err))
	}

	switch q.Operation {
	case OperationGet:
		return e.get(ctx, c, q.Resource)
	case OperationList:
		return e.list(ctx, c, q.Resource)
	default:
		return errorResult(0, fmt.Sprintf("unsupported operation %q", q.Operation))
	}
}

func (e *Executor) get(ctx context.Context, c client.Client, ref ResourceRef) Result {
	obj := &unstructured.Unstructured{}
	obj.SetAPIVersion(ref.APIVersion)
	obj.SetKind(ref.Kind)

	key := types.NamespacedName{Name: ref.Name, Namespace: ref.Namespace}
	if err := c.Get(ctx, key, obj); err != nil {
		return apiErrorResult(err)
	}
	return dataResult(obj)
}

func (e *Executor) list(ctx context.Context, c client.Client, ref ResourceRef) Result {
	list := &unstructured.UnstructuredList{}
	list.SetAPIVersion(ref.APIVersion)
	list.SetKind(ref.Kind + "List")

	var opts []client.ListOption
	if ref.Namespace != "" {
		opts = append(opts, client.InNamespace(ref.Namespace))
	}
	if ref.LabelSelector != "" {
		selector, err := labels.Parse(ref.LabelSelector)
		if err != nil {
			return errorResult(0, fmt.Sprintf("invalid label selector %q: %v", ref.LabelSelector, err))
		}
		opts = append(opts, client.MatchingLabelsSelector{Selector: selector})
	}
	if ref.FieldSelector != "" {
		selector, err := fields.ParseSelector(ref.FieldSelector)
		if err != nil {
			return errorResult(0, fmt.Sprintf("invalid field selector %q: %v", ref.FieldSelector, err))
		}
		opts = append(opts, client.MatchingFieldsSelector{Selector: selector})
	}

	if err := c.List(ctx, list, opts...); err != nil {
		return apiErrorResult(err)
	}
	return dataResult(list)
}

func (e *Executor) clientFor(clusterID string) (client.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[clusterID]; ok {
		return c, nil
	}

	config, err := restConfigForContext(e.kubeconfig, clusterID)
	if err != nil {
		return nil, err
	}

	scheme := runtime.NewScheme()
	if err := corev1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register scheme: %w", err)
	}

	c, err := client.New(config, client.Options{Scheme: scheme})
	if err != nil {
		return nil, err
	}
	e.clients[clusterID] = c
	return c, nil
}

func dataResult(obj interface{}) Result {
	data, err := json.Marshal(obj)
	if err != nil {
		return errorResult(0, fmt.Sprintf("encode result: %v", err))
	}
	return Result{Success: true, Data: data}
}

func errorResult(code int, message string) Result {
	return Result{Success: false, Error: &QueryError{Code: code, Message: message}}
}

func apiErrorResult(err error) Result {
	code := 0
	switch {
	case apierrors.IsNotFound(err):
		code = 404
	case apierrors.IsForbidden(err):
		code = 403
	case apierrors.IsUnauthorized(err):
		code = 401
	case apierrors.IsTimeout(err) || apierrors.IsServerTimeout(err):
		code = 504
	}
	return errorResult(code, err.Error())
}

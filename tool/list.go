package tool

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"kubechat/kube"
)

func (r *Registry) listResourcesTool() *Definition {
	return &Definition{
		Name: "listResources",
		Description: `Lists Kubernetes resources of a given kind in the connected cluster. Returns a bounded summary (name, namespace, status, creation time, labels) for each matching resource, never full resource bodies. Omit apiVersion to use the default for the kind. Omit namespace to list across all namespaces.`,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "The Kubernetes kind to list, e.g. Pod, Deployment, Service",
				},
				"apiVersion": map[string]interface{}{
					"type":        "string",
					"description": "Optional apiVersion, e.g. apps/v1. Defaults per kind.",
				},
				"namespace": map[string]interface{}{
					"type":        "string",
					"description": "Optional namespace. Omit to list across all namespaces.",
				},
				"labelSelector": map[string]interface{}{
					"type":        "string",
					"description": "Optional label selector, e.g. app=nginx",
				},
			},
			"required": []string{"kind"},
		},
		Execute: r.executeListResources,
	}
}

func (r *Registry) executeListResources(ctx context.Context, tc Context, input map[string]interface{}) (interface{}, error) {
	kind := stringParam(input, "kind")
	if kind == "" {
		return nil, fmt.Errorf("kind parameter is required")
	}
	namespace := stringParam(input, "namespace")

	res := r.executor.Execute(ctx, kube.Query{
		ClusterID: tc.ClusterID,
		Operation: kube.OperationList,
		Resource: kube.ResourceRef{
			APIVersion:    resolveAPIVersion(kind, stringParam(input, "apiVersion")),
			Kind:          kind,
			Namespace:     namespace,
			LabelSelector: stringParam(input, "labelSelector"),
		},
	})
	if !res.Success {
		return nil, fmt.Errorf("failed to list %s: %s", kind, res.Error.Message)
	}

	items := gjson.GetBytes(res.Data, "items").Array()
	summaries := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, map[string]interface{}{
			"name":      item.Get("metadata.name").String(),
			"namespace": item.Get("metadata.namespace").String(),
			"status":    deriveStatus(item),
			"createdAt": item.Get("metadata.creationTimestamp").String(),
			"labels":    labelMap(item),
		})
	}

	return map[string]interface{}{
		"kind":      kind,
		"namespace": namespace,
		"count":     len(summaries),
		"items":     summaries,
	}, nil
}

// deriveStatus reduces a resource to a single human-readable status string.
func deriveStatus(item gjson.Result) string {
	if phase := item.Get("status.phase"); phase.Exists() {
		return phase.String()
	}
	if ready := item.Get("status.readyReplicas"); ready.Exists() {
		return fmt.Sprintf("%d/%d ready", ready.Int(), item.Get("status.replicas").Int())
	}
	status := ""
	item.Get("status.conditions").ForEach(func(_, cond gjson.Result) bool {
		if cond.Get("type").String() == "Ready" {
			if cond.Get("status").String() == "True" {
				status = "Ready"
			} else {
				status = "NotReady"
			}
			return false
		}
		return true
	})
	return status
}

func labelMap(item gjson.Result) map[string]string {
	labels := map[string]string{}
	for k, v := range item.Get("metadata.labels").Map() {
		labels[k] = v.String()
	}
	return labels
}

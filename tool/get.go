package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"kubechat/kube"
)

func (r *Registry) getResourceTool() *Definition {
	return &Definition{
		Name: "getResource",
		Description: `Fetches a single Kubernetes resource by kind and name. Returns the full resource body, except for Secrets, where data values are redacted and only the key names are returned.`,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "The Kubernetes kind, e.g. Pod, Deployment, Secret",
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "The resource name",
				},
				"namespace": map[string]interface{}{
					"type":        "string",
					"description": "The namespace, for namespaced resources",
				},
				"apiVersion": map[string]interface{}{
					"type":        "string",
					"description": "Optional apiVersion. Defaults per kind.",
				},
			},
			"required": []string{"kind", "name"},
		},
		Execute: r.executeGetResource,
	}
}

func (r *Registry) executeGetResource(ctx context.Context, tc Context, input map[string]interface{}) (interface{}, error) {
	kind := stringParam(input, "kind")
	name := stringParam(input, "name")
	if kind == "" || name == "" {
		return nil, fmt.Errorf("kind and name parameters are required")
	}
	namespace := stringParam(input, "namespace")

	res := r.executor.Execute(ctx, kube.Query{
		ClusterID: tc.ClusterID,
		Operation: kube.OperationGet,
		Resource: kube.ResourceRef{
			APIVersion: resolveAPIVersion(kind, stringParam(input, "apiVersion")),
			Kind:       kind,
			Name:       name,
			Namespace:  namespace,
		},
	})
	if !res.Success {
		if res.Error.Code == 404 {
			if namespace != "" {
				return nil, fmt.Errorf("%s %q not found in namespace %q", kind, name, namespace)
			}
			return nil, fmt.Errorf("%s %q not found", kind, name)
		}
		return nil, fmt.Errorf("failed to get %s %q: %s", kind, name, res.Error.Message)
	}

	if kind == "Secret" {
		return redactSecret(res.Data)
	}
	return json.RawMessage(res.Data), nil
}

// redactSecret strips every data value from a Secret, returning only the
// sorted key names. Values never leave this function.
func redactSecret(data []byte) (interface{}, error) {
	keys := []string{}
	for key := range gjson.GetBytes(data, "data").Map() {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	redacted, err := sjson.DeleteBytes(data, "data")
	if err != nil {
		return nil, fmt.Errorf("redact secret: %w", err)
	}
	if redacted, err = sjson.DeleteBytes(redacted, "stringData"); err != nil {
		return nil, fmt.Errorf("redact secret: %w", err)
	}
	if redacted, err = sjson.SetBytes(redacted, "dataKeys", keys); err != nil {
		return nil, fmt.Errorf("redact secret: %w", err)
	}
	redacted, err = sjson.SetBytes(redacted, "note", "Secret data values are redacted; only key names are shown.")
	if err != nil {
		return nil, fmt.Errorf("redact secret: %w", err)
	}
	return json.RawMessage(redacted), nil
}

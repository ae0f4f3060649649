package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"kubechat/kube"
)

const maxEvents = 50

func (r *Registry) getEventsTool() *Definition {
	return &Definition{
		Name: "getEvents",
		Description: `Fetches recent Kubernetes events, optionally filtered by namespace and by the name or kind of the involved object. Returns at most the 50 most recent events, newest first.`,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"namespace": map[string]interface{}{
					"type":        "string",
					"description": "Optional namespace to filter events by",
				},
				"involvedObjectName": map[string]interface{}{
					"type":        "string",
					"description": "Optional name of the object the events relate to",
				},
				"involvedObjectKind": map[string]interface{}{
					"type":        "string",
					"description": "Optional kind of the object the events relate to, e.g. Pod",
				},
			},
		},
		Execute: r.executeGetEvents,
	}
}

func (r *Registry) executeGetEvents(ctx context.Context, tc Context, input map[string]interface{}) (interface{}, error) {
	var selectors []string
	if name := stringParam(input, "involvedObjectName"); name != "" {
		selectors = append(selectors, "involvedObject.name="+name)
	}
	if kind := stringParam(input, "involvedObjectKind"); kind != "" {
		selectors = append(selectors, "involvedObject.kind="+kind)
	}

	res := r.executor.Execute(ctx, kube.Query{
		ClusterID: tc.ClusterID,
		Operation: kube.OperationList,
		Resource: kube.ResourceRef{
			APIVersion:    "v1",
			Kind:          "Event",
			Namespace:     stringParam(input, "namespace"),
			FieldSelector: strings.Join(selectors, ","),
		},
	})
	if !res.Success {
		return nil, fmt.Errorf("failed to list events: %s", res.Error.Message)
	}

	items := gjson.GetBytes(res.Data, "items").Array()
	sort.SliceStable(items, func(i, j int) bool {
		return eventTimestamp(items[i]) > eventTimestamp(items[j])
	})
	if len(items) > maxEvents {
		items = items[:maxEvents]
	}

	events := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		events = append(events, map[string]interface{}{
			"type":          item.Get("type").String(),
			"reason":        item.Get("reason").String(),
			"message":       item.Get("message").String(),
			"namespace":     item.Get("metadata.namespace").String(),
			"involvedKind":  item.Get("involvedObject.kind").String(),
			"involvedName":  item.Get("involvedObject.name").String(),
			"count":         item.Get("count").Int(),
			"lastTimestamp": eventTimestamp(item),
		})
	}

	return map[string]interface{}{
		"count":  len(events),
		"events": events,
	}, nil
}

// eventTimestamp prefers lastTimestamp, falling back to the creation
// timestamp for events that never repeated. RFC 3339 strings sort lexically.
func eventTimestamp(item gjson.Result) string {
	if ts := item.Get("lastTimestamp").String(); ts != "" && ts != "null" {
		return ts
	}
	return item.Get("metadata.creationTimestamp").String()
}

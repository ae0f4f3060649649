package tool

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"

	"kubechat/kube"
)

func (r *Registry) getClusterInfoTool() *Definition {
	return &Definition{
		Name: "getClusterInfo",
		Description: `Returns a summary of the connected cluster: node readiness and kubelet versions, plus the list of namespaces. Takes no parameters.`,
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Execute: r.executeGetClusterInfo,
	}
}

func (r *Registry) executeGetClusterInfo(ctx context.Context, tc Context, _ map[string]interface{}) (interface{}, error) {
	var wg sync.WaitGroup
	var nodesRes, namespacesRes kube.Result

	// Both queries run concurrently; a failure in one never hides the other.
	wg.Add(2)
	go func() {
		defer wg.Done()
		nodesRes = r.executor.Execute(ctx, kube.Query{
			ClusterID: tc.ClusterID,
			Operation: kube.OperationList,
			Resource:  kube.ResourceRef{APIVersion: "v1", Kind: "Node"},
		})
	}()
	go func() {
		defer wg.Done()
		namespacesRes = r.executor.Execute(ctx, kube.Query{
			ClusterID: tc.ClusterID,
			Operation: kube.OperationList,
			Resource:  kube.ResourceRef{APIVersion: "v1", Kind: "Namespace"},
		})
	}()
	wg.Wait()

	info := map[string]interface{}{}

	if nodesRes.Success {
		nodes := []map[string]interface{}{}
		readyCount := 0
		for _, node := range gjson.GetBytes(nodesRes.Data, "items").Array() {
			ready := nodeReady(node)
			if ready {
				readyCount++
			}
			nodes = append(nodes, map[string]interface{}{
				"name":           node.Get("metadata.name").String(),
				"ready":          ready,
				"kubeletVersion": node.Get("status.nodeInfo.kubeletVersion").String(),
			})
		}
		info["nodes"] = nodes
		info["nodeCount"] = len(nodes)
		info["readyNodes"] = readyCount
	} else {
		info["nodesError"] = fmt.Sprintf("failed to list nodes: %s", nodesRes.Error.Message)
	}

	if namespacesRes.Success {
		namespaces := []string{}
		for _, ns := range gjson.GetBytes(namespacesRes.Data, "items").Array() {
			namespaces = append(namespaces, ns.Get("metadata.name").String())
		}
		info["namespaces"] = namespaces
		info["namespaceCount"] = len(namespaces)
	} else {
		info["namespacesError"] = fmt.Sprintf("failed to list namespaces: %s", namespacesRes.Error.Message)
	}

	return info, nil
}

func nodeReady(node gjson.Result) bool {
	ready := false
	node.Get("status.conditions").ForEach(func(_, cond gjson.Result) bool {
		if cond.Get("type").String() == "Ready" {
			ready = cond.Get("status").String() == "True"
			return false
		}
		return true
	})
	return ready
}

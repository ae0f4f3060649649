// Package kube provides the cluster-query boundary the chat tools run
// against: a small executor interface for list/get operations plus a
// kubeconfig-backed cluster lookup.
package kube

import (
	"context"
	"encoding/json"
)

// Operation names a query kind.
type Operation string

const (
	OperationList Operation = "list"
	OperationGet  Operation = "get"
)

// ResourceRef identifies the target of a query.
type ResourceRef struct {
	APIVersion    string `json:"apiVersion"`
	Kind          string `json:"kind"`
	Name          string `json:"name,omitempty"`
	Namespace     string `json:"namespace,omitempty"`
	LabelSelector string `json:"labelSelector,omitempty"`
	FieldSelector string `json:"fieldSelector,omitempty"`
}

// Query is one cluster request.
type Query struct {
	ClusterID string      `json:"clusterId"`
	Operation Operation   `json:"operation"`
	Resource  ResourceRef `json:"resource"`
}

// QueryError carries a status code alongside the message, so callers can
// distinguish not-found from other failures.
type QueryError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Result is the outcome of a query. Data holds the raw JSON encoding of the
// fetched object or list when Success is true.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *QueryError     `json:"error,omitempty"`
}

// QueryExecutor executes list/get queries against a cluster.
type QueryExecutor interface {
	Execute(ctx context.Context, q Query) Result
}

// Cluster describes one connectable cluster.
type Cluster struct {
	ID          string
	ContextName string
	Accessible  bool
}

// ClusterLookup resolves a cluster id to connection metadata.
type ClusterLookup interface {
	GetClusterByID(id string) (Cluster, bool)
}

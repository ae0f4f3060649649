package kube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func newFakeExecutor(t *testing.T, objs ...runtime.Object) *Executor {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, corev1.AddToScheme(scheme))
	c := fake.NewClientBuilder().WithScheme(scheme).WithRuntimeObjects(objs...).Build()
	return NewExecutorWithClient("test", c, zap.NewNop())
}

func pod(name, namespace string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

func TestExecutorGet(t *testing.T) {
	exec := newFakeExecutor(t, pod("web-1", "default", map[string]string{"app": "web"}))

	res := exec.Execute(context.Background(), Query{
		ClusterID: "test",
		Operation: OperationGet,
		Resource:  ResourceRef{APIVersion: "v1", Kind: "Pod", Name: "web-1", Namespace: "default"},
	})
	require.True(t, res.Success, "got error: %+v", res.Error)

	out := gjson.ParseBytes(res.Data)
	assert.Equal(t, "web-1", out.Get("metadata.name").String())
	assert.Equal(t, "Pod", out.Get("kind").String())
}

func TestExecutorGetNotFound(t *testing.T) {
	exec := newFakeExecutor(t)

	res := exec.Execute(context.Background(), Query{
		ClusterID: "test",
		Operation: OperationGet,
		Resource:  ResourceRef{APIVersion: "v1", Kind: "Pod", Name: "ghost", Namespace: "default"},
	})
	require.False(t, res.Success)
	assert.Equal(t, 404, res.Error.Code)
}

func TestExecutorList(t *testing.T) {
	exec := newFakeExecutor(t,
		pod("web-1", "default", map[string]string{"app": "web"}),
		pod("web-2", "default", map[string]string{"app": "web"}),
		pod("job-1", "batch", map[string]string{"app": "job"}),
	)

	t.Run("all namespaces", func(t *testing.T) {
		res := exec.Execute(context.Background(), Query{
			ClusterID: "test",
			Operation: OperationList,
			Resource:  ResourceRef{APIVersion: "v1", Kind: "Pod"},
		})
		require.True(t, res.Success, "got error: %+v", res.Error)
		assert.Len(t, gjson.GetBytes(res.Data, "items").Array(), 3)
	})

	t.Run("namespace scoped", func(t *testing.T) {
		res := exec.Execute(context.Background(), Query{
			ClusterID: "test",
			Operation: OperationList,
			Resource:  ResourceRef{APIVersion: "v1", Kind: "Pod", Namespace: "batch"},
		})
		require.True(t, res.Success)
		items := gjson.GetBytes(res.Data, "items").Array()
		require.Len(t, items, 1)
		assert.Equal(t, "job-1", items[0].Get("metadata.name").String())
	})

	t.Run("label selector", func(t *testing.T) {
		res := exec.Execute(context.Background(), Query{
			ClusterID: "test",
			Operation: OperationList,
			Resource:  ResourceRef{APIVersion: "v1", Kind: "Pod", LabelSelector: "app=web"},
		})
		require.True(t, res.Success)
		assert.Len(t, gjson.GetBytes(res.Data, "items").Array(), 2)
	})

	t.Run("invalid label selector", func(t *testing.T) {
		res := exec.Execute(context.Background(), Query{
			ClusterID: "test",
			Operation: OperationList,
			Resource:  ResourceRef{APIVersion: "v1", Kind: "Pod", LabelSelector: "app==&&bad"},
		})
		require.False(t, res.Success)
		assert.Contains(t, res.Error.Message, "invalid label selector")
	})
}

func TestExecutorUnknownCluster(t *testing.T) {
	exec := newFakeExecutor(t)

	res := exec.Execute(context.Background(), Query{
		ClusterID: "nonexistent-context",
		Operation: OperationList,
		Resource:  ResourceRef{APIVersion: "v1", Kind: "Pod"},
	})
	require.False(t, res.Success)
	assert.Contains(t, res.Error.Message, "nonexistent-context")
}

func TestExecutorUnsupportedOperation(t *testing.T) {
	exec := newFakeExecutor(t)

	res := exec.Execute(context.Background(), Query{
		ClusterID: "test",
		Operation: Operation("delete"),
		Resource:  ResourceRef{APIVersion: "v1", Kind: "Pod", Name: "web-1"},
	})
	require.False(t, res.Success)
	assert.Contains(t, res.Error.Message, "unsupported operation")
}

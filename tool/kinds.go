package tool

// defaultAPIVersions maps a Kubernetes kind to the apiVersion used when the
// model omits one.
var defaultAPIVersions = map[string]string{
	"Pod":                     "v1",
	"Service":                 "v1",
	"ConfigMap":               "v1",
	"Secret":                  "v1",
	"Namespace":               "v1",
	"Node":                    "v1",
	"Event":                   "v1",
	"Endpoints":               "v1",
	"PersistentVolume":        "v1",
	"PersistentVolumeClaim":   "v1",
	"ServiceAccount":          "v1",
	"ReplicationController":   "v1",
	"Deployment":              "apps/v1",
	"ReplicaSet":              "apps/v1",
	"StatefulSet":             "apps/v1",
	"DaemonSet":               "apps/v1",
	"Job":                     "batch/v1",
	"CronJob":                 "batch/v1",
	"Ingress":                 "networking.k8s.io/v1",
	"IngressClass":            "networking.k8s.io/v1",
	"NetworkPolicy":           "networking.k8s.io/v1",
	"HorizontalPodAutoscaler": "autoscaling/v2",
	"PodDisruptionBudget":     "policy/v1",
	"Role":                    "rbac.authorization.k8s.io/v1",
	"RoleBinding":             "rbac.authorization.k8s.io/v1",
	"ClusterRole":             "rbac.authorization.k8s.io/v1",
	"ClusterRoleBinding":      "rbac.authorization.k8s.io/v1",
	"StorageClass":            "storage.k8s.io/v1",
	"CustomResourceDefinition": "apiextensions.k8s.io/v1",
}

// resolveAPIVersion picks the caller-supplied apiVersion, falling back to
// the default for the kind and finally to core v1.
func resolveAPIVersion(kind, apiVersion string) string {
	if apiVersion != "" {
		return apiVersion
	}
	if v, ok := defaultAPIVersions[kind]; ok {
		return v
	}
	return "v1"
}

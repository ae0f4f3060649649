package kube

import (
	"sort"
	"time"

	"go.uber.org/zap"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

const defaultProbeTimeout = 5 * time.Second

// KubeconfigLookup resolves cluster ids against kubeconfig contexts. A
// cluster is accessible when its API server answers a version probe.
type KubeconfigLookup struct {
	kubeconfig   string
	probeTimeout time.Duration
	log          *zap.Logger
}

func NewKubeconfigLookup(kubeconfig string, log *zap.Logger) *KubeconfigLookup {
	return &KubeconfigLookup{
		kubeconfig:   kubeconfig,
		probeTimeout: defaultProbeTimeout,
		log:          log,
	}
}

func (l *KubeconfigLookup) GetClusterByID(id string) (Cluster, bool) {
	contexts, err := l.loadContexts()
	if err != nil {
		l.log.Warn("load kubeconfig", zap.Error(err))
		return Cluster{}, false
	}
	if _, ok := contexts[id]; !ok {
		return Cluster{}, false
	}
	return Cluster{
		ID:          id,
		ContextName: id,
		Accessible:  l.probe(id),
	}, true
}

// Clusters returns every kubeconfig context with its reachability, sorted by
// name. Used by the CLI cluster listing.
func (l *KubeconfigLookup) Clusters() []Cluster {
	contexts, err := l.loadContexts()
	if err != nil {
		l.log.Warn("load kubeconfig", zap.Error(err))
		return nil
	}
	clusters := make([]Cluster, 0, len(contexts))
	for name := range contexts {
		clusters = append(clusters, Cluster{
			ID:          name,
			ContextName: name,
			Accessible:  l.probe(name),
		})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	return clusters
}

func (l *KubeconfigLookup) loadContexts() (map[string]*clientcmdapi.Context, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if l.kubeconfig != "" {
		rules.ExplicitPath = l.kubeconfig
	}
	raw, err := rules.Load()
	if err != nil {
		return nil, err
	}
	return raw.Contexts, nil
}

func (l *KubeconfigLookup) probe(contextName string) bool {
	config, err := restConfigForContext(l.kubeconfig, contextName)
	if err != nil {
		l.log.Debug("build rest config", zap.String("context", contextName), zap.Error(err))
		return false
	}
	config.Timeout = l.probeTimeout

	dc, err := discovery.NewDiscoveryClientForConfig(config)
	if err != nil {
		return false
	}
	if _, err := dc.ServerVersion(); err != nil {
		l.log.Debug("cluster unreachable", zap.String("context", contextName), zap.Error(err))
		return false
	}
	return true
}

// restConfigForContext builds a rest.Config for the named kubeconfig
// context using the default loading rules.
func restConfigForContext(kubeconfig, contextName string) (*rest.Config, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		rules,
		&clientcmd.ConfigOverrides{CurrentContext: contextName},
	).ClientConfig()
}

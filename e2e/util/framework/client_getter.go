package framework

import (
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/cli-runtime/pkg/resource"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
)

type clientGetter struct {
	restConfig     *rest.Config
	discoveryCache discovery.CachedDiscoveryInterface
	restMapper     meta.RESTMapper
}

var _ resource.RESTClientGetter = &clientGetter{}

// NewClientGetter returns a RESTClientGetter for the cluster of restConfig.
// Discovery is deferred until a mapping is first needed, so a getter used by
// a local builder never talks to the server.
func NewClientGetter(restConfig *rest.Config) (resource.RESTClientGetter, error) {
	client, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, err
	}
	discoveryCache := memory.NewMemCacheClient(client)
	return &clientGetter{
		restConfig:     restConfig,
		discoveryCache: discoveryCache,
		restMapper:     restmapper.NewDeferredDiscoveryRESTMapper(discoveryCache),
	}, nil
}

func (c *clientGetter) ToRESTConfig() (*rest.Config, error) {
	return c.restConfig, nil
}

func (c *clientGetter) ToDiscoveryClient() (discovery.CachedDiscoveryInterface, error) {
	return c.discoveryCache, nil
}

func (c *clientGetter) ToRESTMapper() (meta.RESTMapper, error) {
	return c.restMapper, nil
}

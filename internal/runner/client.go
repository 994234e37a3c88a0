package runner

import (
	"net/http"

	"github.com/ppiankov/tagwatch/internal/config"
	"github.com/ppiankov/tagwatch/internal/metrics"
	"github.com/ppiankov/tagwatch/internal/registry"
	"github.com/ppiankov/tagwatch/internal/tlsutil"
)

// NewRegistryClient builds the registry client described by cfg: request
// timeout, extra CA, plain-HTTP hosts and token endpoint credentials.
func NewRegistryClient(cfg config.Config, m *metrics.Counters) (*registry.Client, error) {
	transport, err := tlsutil.Transport(cfg.RegistryCA)
	if err != nil {
		return nil, err
	}

	opts := []registry.Option{
		registry.WithHTTPClient(&http.Client{Transport: transport, Timeout: cfg.RegistryTimeout}),
		registry.WithInsecureHosts(cfg.InsecureHosts),
	}
	if cfg.RegistryAuthFile != "" {
		keychain, err := registry.LoadKeychain(cfg.RegistryAuthFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, registry.WithKeychain(keychain))
	}
	if m != nil {
		opts = append(opts, registry.WithMetrics(m))
	}
	return registry.NewClient(opts...), nil
}

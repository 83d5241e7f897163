package llm

import (
	"fmt"
	"os"
	"sync"

	"github.com/wayfarer-ai/wayfarer/pkg/config"
)

// Registry resolves {providerId, key} pairs from requests into Clients.
// Provider API keys are read from the environment variable each provider
// names in configuration. Clients are cached per (provider, model).
type Registry struct {
	providers config.ProvidersConfig

	mu      sync.Mutex
	clients map[string]Client
}

// NewRegistry creates a registry over the configured providers.
func NewRegistry(providers config.ProvidersConfig) *Registry {
	return &Registry{
		providers: providers,
		clients:   make(map[string]Client),
	}
}

// Client returns a client for the given provider id and model key. An empty
// model falls back to the provider's default.
func (r *Registry) Client(providerID, model string) (Client, error) {
	p, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider: %s", providerID)
	}
	if model == "" {
		model = p.DefaultModel
	}
	if model == "" {
		return nil, fmt.Errorf("provider %s: no model requested and no default configured", providerID)
	}

	cacheKey := providerID + "/" + model
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[cacheKey]; ok {
		return c, nil
	}

	apiKey := os.Getenv(p.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s: environment variable %s is not set", providerID, p.APIKeyEnv)
	}
	c := NewOpenAIClient(p.BaseURL, apiKey, model, p.Temperature)
	r.clients[cacheKey] = c
	return c, nil
}

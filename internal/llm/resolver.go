package llm

import (
	"fmt"
	"strings"
)

// Resolver maps "provider/modelName" identifiers to a configured provider.
// It is built once at startup and read-only afterwards.
type Resolver struct {
	defaultProvider string
	providers       map[string]Provider
}

// NewResolver indexes providers by name. Later providers with the same name win.
func NewResolver(defaultProvider string, providers ...Provider) *Resolver {
	r := &Resolver{
		defaultProvider: strings.TrimSpace(defaultProvider),
		providers:       make(map[string]Provider, len(providers)),
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Resolve splits modelID at the first "/" and returns the provider and the provider-side model name.
// An id without "/" uses the default provider.
func (r *Resolver) Resolve(modelID string) (Provider, string, error) {
	modelID = strings.TrimSpace(modelID)
	name, model := r.defaultProvider, modelID
	if prefix, rest, ok := strings.Cut(modelID, "/"); ok {
		name, model = prefix, rest
	}
	if model == "" {
		return nil, "", fmt.Errorf("empty model name in %q", modelID)
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q (model %q)", ErrUnknownProvider, name, modelID)
	}
	return p, model, nil
}

// Providers returns the configured provider names.
func (r *Resolver) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	return names
}

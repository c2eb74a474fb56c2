package providers

import (
	"fmt"
	"sort"
	"sync"

	"chatrelay/pkg/config"
	"chatrelay/pkg/message"
)

// ErrUnknownProvider marks lookups for a backend nobody registered.
type ErrUnknownProvider struct {
	Provider string
}

func (e *ErrUnknownProvider) Error() string {
	return fmt.Sprintf("unknown AI provider %q", e.Provider)
}

// Factory builds a handler bound to one dispatch target, with the model
// resolved from the URL override or the backend default.
type Factory func(target message.DispatchTarget) (Handler, error)

// Registry maps provider names to handler factories. Registration happens
// once at startup; lookups are read-only afterwards.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Resolve constructs a handler for the target's provider.
func (r *Registry) Resolve(target message.DispatchTarget) (Handler, error) {
	r.mu.RLock()
	factory, ok := r.factories[target.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrUnknownProvider{Provider: target.Provider}
	}
	return factory(target)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// backendSpec pairs a registry name with its display label, used as the
// prefix of every delivered reply chunk.
type backendSpec struct {
	name    string
	display string
	cfg     config.ProviderConfig
	raw     bool
}

// BuildRegistry registers every enabled backend from the configuration.
func BuildRegistry(cfg *config.ProvidersConfig, q Enqueuer) (*Registry, error) {
	reg := NewRegistry()
	backends := []backendSpec{
		{name: "deepseek", display: "DeepSeek", cfg: cfg.DeepSeek},
		{name: "groq", display: "Groq", cfg: cfg.Groq},
		{name: "qwen", display: "通义千问", cfg: cfg.Qwen},
		{name: "geekai", display: "GeekAI", cfg: cfg.GeekAI},
		{name: "tencent", display: "Tencent", cfg: cfg.Tencent, raw: true},
	}
	for _, b := range backends {
		if !b.cfg.Enabled {
			continue
		}
		if b.raw {
			reg.Register(b.name, NewTencentFactory(b.name, b.display, b.cfg, q))
			continue
		}
		factory, err := NewOpenAIFactory(b.name, b.display, b.cfg, q)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", b.name, err)
		}
		reg.Register(b.name, factory)
	}
	return reg, nil
}

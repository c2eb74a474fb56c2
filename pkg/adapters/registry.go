package adapters

import (
	"fmt"
	"sort"
	"sync"

	"chatrelay/pkg/config"
	"chatrelay/pkg/message"
)

// ErrUnknownSource marks lookups for a platform nobody registered.
type ErrUnknownSource struct {
	Source string
}

func (e *ErrUnknownSource) Error() string {
	return fmt.Sprintf("unknown source platform %q", e.Source)
}

// Factory builds an adapter bound to one dispatch target, so platform
// credentials that vary per (provider, model) resolve at construction.
type Factory func(target message.DispatchTarget) (SourceAdapter, error)

// Registry maps platform names to adapter factories. Registration happens
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

// Resolve constructs an adapter for the target's source platform.
func (r *Registry) Resolve(target message.DispatchTarget) (SourceAdapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[target.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrUnknownSource{Source: target.Source}
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

// BuildRegistry registers every enabled platform from the configuration.
func BuildRegistry(cfg *config.SourcesConfig) (*Registry, error) {
	reg := NewRegistry()
	if cfg.WeChat.Enabled {
		reg.Register("wechat", NewWeChatFactory(cfg.WeChat))
	}
	if cfg.WeCom.Enabled {
		factory, err := NewWeComFactory(cfg.WeCom)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", "wecom", err)
		}
		reg.Register("wecom", factory)
	}
	if cfg.Feishu.Enabled {
		reg.Register("feishu", NewFeishuFactory(cfg.Feishu))
	}
	return reg, nil
}

// ValidateStartup constructs one adapter per registered platform so broken
// configuration fails at boot, not on the first request.
func (r *Registry) ValidateStartup() error {
	for _, name := range r.Names() {
		if _, err := r.Resolve(message.DispatchTarget{Source: name}); err != nil {
			return fmt.Errorf("adapter %q failed startup validation: %w", name, err)
		}
	}
	return nil
}

package providers

import (
	"fmt"
	"sync"

	"hubconnect/internal/backend/models"
)

// New builds the adapter for kind.
func New(kind models.ProviderKind, cfg Config, opts ...Option) (Adapter, error) {
	switch kind {
	case models.ProviderGitHub:
		return NewGitHub(cfg, opts...), nil
	case models.ProviderGitLab:
		gitlab, err := NewGitLab(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return gitlab, nil
	case models.ProviderSlack:
		return NewSlack(cfg, opts...), nil
	case models.ProviderNotion:
		return NewNotion(cfg, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", kind)
	}
}

// Registry maps provider kinds to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.ProviderKind]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.ProviderKind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds a, replacing any adapter of the same kind.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Kind()] = a
}

func (r *Registry) Get(kind models.ProviderKind) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	return a, ok
}

// Kinds lists registered providers in display order.
func (r *Registry) Kinds() []models.ProviderKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]models.ProviderKind, 0, len(r.adapters))
	for _, k := range models.AllProviders {
		if _, ok := r.adapters[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

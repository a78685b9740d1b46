package harness

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Loader builds an EngineFactory for a named engine.
type Loader func(fixture Fixture, logger *slog.Logger) (EngineFactory, error)

// Registry maps engine names to loaders. Selection is always explicit.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]Loader)}
}

// DefaultRegistry holds the bundled backtest engine.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("backtest", func(fx Fixture, logger *slog.Logger) (EngineFactory, error) {
		return NewBacktestFactory(fx, logger), nil
	})
	return r
}

func (r *Registry) Register(name string, loader Loader) error {
	if name == "" {
		return errors.New("register engine: name is required")
	}
	if loader == nil {
		return fmt.Errorf("register engine %q: loader is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.loaders[name]; ok {
		return fmt.Errorf("register engine %q: already registered", name)
	}
	r.loaders[name] = loader
	return nil
}

func (r *Registry) Resolve(name string) (Loader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loaders[name]
	if !ok {
		return nil, newError(KindEngineConstruction, "resolve engine",
			fmt.Errorf("unknown engine %q (registered: %v)", name, r.namesLocked()))
	}
	return l, nil
}

// Load resolves name and builds its factory.
func (r *Registry) Load(name string, fixture Fixture, logger *slog.Logger) (EngineFactory, error) {
	l, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := l(fixture, logger)
	if err != nil {
		return nil, newError(KindEngineConstruction, "load engine "+name, err)
	}
	return f, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.loaders))
	for n := range r.loaders {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

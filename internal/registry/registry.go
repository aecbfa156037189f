// Package registry maintains the set of detection engines known to the
// service and their live availability.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/typesift/typesift/internal/engine"
	"github.com/typesift/typesift/internal/model"
)

// Registry owns engine metadata. Engines are registered once at construction,
// only their status may change afterwards, through Refresh.
type Registry struct {
	mx      sync.RWMutex
	engines map[string]engine.Engine
	status  map[string]string
	order   []string
}

// New builds a registry from the given engines. Duplicate names are an error,
// an empty engine set is legal (and distinct from discovery failure).
func New(engines ...engine.Engine) (*Registry, error) {
	r := &Registry{
		engines: make(map[string]engine.Engine, len(engines)),
		status:  make(map[string]string, len(engines)),
	}
	for _, e := range engines {
		name := e.Name()
		if name == "" {
			return nil, fmt.Errorf("engine with empty name: %w", model.ErrRegistryUnavailable)
		}
		if _, dup := r.engines[name]; dup {
			return nil, fmt.Errorf("duplicate engine %q: %w", name, model.ErrRegistryUnavailable)
		}
		r.engines[name] = e
		r.status[name] = model.EngineAvailable
		r.order = append(r.order, name)
	}
	sort.Strings(r.order)
	return r, nil
}

// FromConfig builds the registry with the built-in engines plus every
// subprocess engine declared in cfg. Subprocess engines are probed once,
// a failing probe registers the engine as unavailable rather than dropping
// it, so its state stays visible to callers.
func FromConfig(ctx context.Context, cfg model.Config) (*Registry, error) {
	engines := []engine.Engine{
		engine.NewMagic(),
		engine.NewMime(),
		engine.NewPem(),
	}
	for _, sub := range cfg.Engines {
		engines = append(engines, engine.NewSubprocess(sub.Name, sub.Version, sub.Path, sub.Args...))
	}

	r, err := New(engines...)
	if err != nil {
		return nil, err
	}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns every registered engine ordered by name.
func (r *Registry) List() []model.Engine {
	r.mx.RLock()
	defer r.mx.RUnlock()

	out := make([]model.Engine, 0, len(r.order))
	for _, name := range r.order {
		e := r.engines[name]
		out = append(out, model.Engine{
			Name:    name,
			Version: e.Version(),
			Status:  r.status[name],
		})
	}
	return out
}

// Available reports whether the named engine exists and currently answers
// its probe.
func (r *Registry) Available(name string) bool {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.status[name] == model.EngineAvailable
}

// Get returns the engine implementation for name.
func (r *Registry) Get(name string) (engine.Engine, error) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	e, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("engine %q: %w", name, model.ErrNotFound)
	}
	return e, nil
}

// Select resolves a scan's engine restriction into concrete engines, ordered
// by name for reproducible results. Empty restriction means every available
// engine. Unknown names are an options error, unavailable ones are skipped.
func (r *Registry) Select(names []string) ([]engine.Engine, error) {
	r.mx.RLock()
	defer r.mx.RUnlock()

	if len(names) == 0 {
		out := make([]engine.Engine, 0, len(r.order))
		for _, name := range r.order {
			if r.status[name] == model.EngineAvailable {
				out = append(out, r.engines[name])
			}
		}
		return out, nil
	}

	picked := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := r.engines[name]; !ok {
			return nil, fmt.Errorf("unknown engine %q: %w", name, model.ErrInvalidOptions)
		}
		picked[name] = struct{}{}
	}
	out := make([]engine.Engine, 0, len(picked))
	for _, name := range r.order {
		if _, ok := picked[name]; !ok {
			continue
		}
		if r.status[name] == model.EngineAvailable {
			out = append(out, r.engines[name])
		}
	}
	return out, nil
}

// Refresh re-probes every engine which exposes a probe. In-process engines
// are always available.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mx.Lock()
	defer r.mx.Unlock()

	for _, name := range r.order {
		p, ok := r.engines[name].(engine.Prober)
		if !ok {
			r.status[name] = model.EngineAvailable
			continue
		}
		if err := p.Probe(ctx); err != nil {
			slog.WarnContext(ctx, "engine probe failed", "engine", name, "error", err)
			r.status[name] = model.EngineUnavailable
			continue
		}
		r.status[name] = model.EngineAvailable
	}
	return ctx.Err()
}

// Status returns the live status of every engine.
func (r *Registry) Status() map[string]string {
	r.mx.RLock()
	defer r.mx.RUnlock()

	out := make(map[string]string, len(r.status))
	for name, st := range r.status {
		out[name] = st
	}
	return out
}

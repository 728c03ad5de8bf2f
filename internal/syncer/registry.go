package syncer

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry owns one Engine per open group. Engines are created through the
// factory on first Start and run as goroutines until stopped individually
// or all at once. Pollers for different groups are fully independent.
type Registry struct {
	factory func(groupID string) *Engine

	mu      sync.Mutex
	engines map[string]*Engine
	g       errgroup.Group
}

func NewRegistry(factory func(groupID string) *Engine) *Registry {
	return &Registry{
		factory: factory,
		engines: make(map[string]*Engine),
	}
}

// Start launches the poller for groupID if it is not already running and
// returns the engine either way.
func (r *Registry) Start(ctx context.Context, groupID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[groupID]; ok {
		return e
	}

	e := r.factory(groupID)
	r.engines[groupID] = e
	r.g.Go(func() error {
		defer func() {
			r.mu.Lock()
			delete(r.engines, groupID)
			r.mu.Unlock()
		}()
		return e.Run(ctx)
	})
	return e
}

// Get returns the running engine for groupID, or nil.
func (r *Registry) Get(groupID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engines[groupID]
}

// Stop signals the poller for groupID to exit. It does not wait.
func (r *Registry) Stop(groupID string) {
	r.mu.Lock()
	e := r.engines[groupID]
	r.mu.Unlock()
	if e != nil {
		e.Stop()
	}
}

// StopAll signals every poller and waits for all of them to exit.
func (r *Registry) StopAll() error {
	r.mu.Lock()
	for _, e := range r.engines {
		e.Stop()
	}
	r.mu.Unlock()
	return r.g.Wait()
}

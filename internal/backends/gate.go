package backends

import (
	"apollocfg/internal/ports"
	"apollocfg/internal/types"
	"context"
	"sync"
)

// ReleaseGate skips writes whose release key is the one last persisted for the namespace, so an unchanged
// namespace costs no cache I/O. Snapshots without a release key are always written.
// Writes across all namespaces are serialized by one lock; they are rare and small.
type ReleaseGate struct {
	store     ports.CacheStore
	mu        sync.Mutex
	persisted map[string]string
}

func NewReleaseGate(store ports.CacheStore) *ReleaseGate {
	return &ReleaseGate{store: store, persisted: make(map[string]string)}
}

func (g *ReleaseGate) Write(ctx context.Context, snap *types.Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ns, rk := snap.Namespace(), snap.ReleaseKey()
	if last, ok := g.persisted[ns]; ok && rk != "" && last == rk {
		return nil
	}
	if err := g.store.Write(ctx, snap); err != nil {
		return err
	}
	g.persisted[ns] = rk
	return nil
}

// Read passes through. A stored release key, when the backend keeps one, primes the gate.
func (g *ReleaseGate) Read(ctx context.Context, namespace string) (*types.Snapshot, error) {
	snap, err := g.store.Read(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if rk := snap.ReleaseKey(); rk != "" {
		g.mu.Lock()
		if _, ok := g.persisted[namespace]; !ok {
			g.persisted[namespace] = rk
		}
		g.mu.Unlock()
	}
	return snap, nil
}

func (g *ReleaseGate) Namespaces(ctx context.Context) ([]string, error) {
	return g.store.Namespaces(ctx)
}

// Persisted returns the release key last written for namespace.
func (g *ReleaseGate) Persisted(namespace string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rk, ok := g.persisted[namespace]
	return rk, ok
}

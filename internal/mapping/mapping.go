package mapping

import (
	"apollocfg/internal/ports"
	"apollocfg/internal/types"
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var timeNow = time.Now

func SetTimeNowFn(f func() time.Time) {
	timeNow = f
}

func RestoreTimeNow() {
	timeNow = time.Now
}

// Mapping is the read view of one namespace. Every read checks how long ago the snapshot was refreshed and,
// past the refresh interval, fetches synchronously before answering. Updates pushed by the notifier go through
// Apply. The lock only covers the snapshot pointer and the refresh time, so readers keep being served the old
// snapshot while a fetch is in flight elsewhere.
type Mapping struct {
	namespace     string
	refresher     ports.Refresher
	interval      time.Duration
	caseSensitive bool

	mu          sync.Mutex
	snapshot    *types.Snapshot
	source      types.Source
	lastRefresh time.Time
}

func New(namespace string, refresher ports.Refresher, interval time.Duration, caseSensitive bool) *Mapping {
	return &Mapping{
		namespace:     namespace,
		refresher:     refresher,
		interval:      interval,
		caseSensitive: caseSensitive,
		source:        types.SourceEmpty,
	}
}

func (m *Mapping) Namespace() string { return m.namespace }

// Apply installs a fetch result and restarts the refresh interval. An empty result never replaces a snapshot
// already held. It returns the snapshot it replaced and the one now in place, both read under one lock.
func (m *Mapping) Apply(res types.FetchResult) (prev, next *types.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev = m.snapshot
	m.lastRefresh = timeNow()
	if res.Snapshot == nil || (res.Source == types.SourceEmpty && m.snapshot != nil) {
		return prev, m.snapshot
	}
	m.snapshot = res.Snapshot
	m.source = res.Source
	return prev, m.snapshot
}

// Refresh fetches now, whatever the age of the current snapshot.
func (m *Mapping) Refresh(ctx context.Context) types.FetchResult {
	res := m.refresher.Fetch(ctx, m.namespace)
	if res.Degraded() {
		log.WithError(res.Err).WithFields(log.Fields{
			"namespace": m.namespace,
			"source":    res.Source.String(),
		}).Debug("mapping refreshed in degraded mode")
	}
	m.Apply(res)
	return res
}

// Snapshot returns the current snapshot, refreshing first when it is older than the refresh interval.
// The result is never nil.
func (m *Mapping) Snapshot(ctx context.Context) *types.Snapshot {
	m.mu.Lock()
	snap, last := m.snapshot, m.lastRefresh
	m.mu.Unlock()
	if snap != nil && timeNow().Sub(last) <= m.interval {
		return snap
	}
	m.Refresh(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return types.EmptySnapshot(m.namespace)
	}
	return m.snapshot
}

// Source tells where the current snapshot came from.
func (m *Mapping) Source() types.Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

func (m *Mapping) LastRefresh() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRefresh
}

// Lookup returns the value of key. Without case sensitivity the keys are compared lower-cased with a linear scan.
func (m *Mapping) Lookup(ctx context.Context, key string) (string, bool) {
	snap := m.Snapshot(ctx)
	if m.caseSensitive {
		return snap.Get(key)
	}
	return snap.GetFold(key)
}

// Get returns the value of key, or def when the key is absent.
func (m *Mapping) Get(ctx context.Context, key, def string) string {
	if v, ok := m.Lookup(ctx, key); ok {
		return v
	}
	return def
}

func (m *Mapping) Contains(ctx context.Context, key string) bool {
	_, ok := m.Lookup(ctx, key)
	return ok
}

func (m *Mapping) Len(ctx context.Context) int {
	return m.Snapshot(ctx).Len()
}

// Keys returns the keys of one snapshot in sorted order.
func (m *Mapping) Keys(ctx context.Context) []string {
	return m.Snapshot(ctx).Keys()
}

// Range iterates one snapshot in key order until fn returns false.
func (m *Mapping) Range(ctx context.Context, fn func(key, value string) bool) {
	m.Snapshot(ctx).Range(fn)
}

// Current returns the snapshot in place without any freshness check; nil before the first refresh.
func (m *Mapping) Current() *types.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

package fetcher

import (
	"apollocfg/internal/discovery"
	"apollocfg/internal/ports"
	"apollocfg/internal/transport"
	"apollocfg/internal/types"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads whole namespaces from the config service and keeps the last snapshot of each in memory.
// Successful fetches are persisted to the cache store; failed ones fall back to it, then to the in-memory copy.
// Concurrent Fetch calls for one namespace share a single request.
type Fetcher struct {
	getter    ports.Getter
	locator   *discovery.Locator
	store     ports.CacheStore
	endpoints transport.Endpoints
	timeout   time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	snapshots map[string]*types.Snapshot
}

func New(getter ports.Getter, locator *discovery.Locator, store ports.CacheStore, opts types.Options) *Fetcher {
	return &Fetcher{
		getter:  getter,
		locator: locator,
		store:   store,
		endpoints: transport.Endpoints{
			AppID:   opts.AppID,
			Cluster: opts.Cluster,
			OpenAPI: opts.OpenAPI,
			IP:      opts.IP,
		},
		timeout:   opts.Timeout,
		snapshots: map[string]*types.Snapshot{},
	}
}

// Fetch never fails. The result's Source tells whether the snapshot came from the config service, the cache
// store, the previous in-memory snapshot, or nowhere.
func (f *Fetcher) Fetch(ctx context.Context, namespace string) types.FetchResult {
	v, _, _ := f.group.Do(namespace, func() (any, error) {
		// Callers joining an in-flight fetch must not lose it to the first caller's cancellation.
		return f.fetch(context.WithoutCancel(ctx), namespace), nil
	})
	return v.(types.FetchResult)
}

// Snapshot returns the in-memory snapshot of namespace, nil if it was never loaded.
func (f *Fetcher) Snapshot(namespace string) *types.Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshots[namespace]
}

// Preload fills memory from the cache store for every namespace it holds, without touching the network.
// Namespaces already in memory are left alone. It returns the namespaces loaded.
func (f *Fetcher) Preload(ctx context.Context) ([]string, error) {
	namespaces, err := f.store.Namespaces(ctx)
	if err != nil {
		return nil, err
	}
	loaded := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		if f.Snapshot(ns) != nil {
			continue
		}
		snap, err := f.store.Read(ctx, ns)
		if err != nil {
			log.WithError(err).WithField("namespace", ns).Warn("skipping unreadable cache entry")
			continue
		}
		f.set(snap)
		loaded = append(loaded, ns)
	}
	return loaded, nil
}

func (f *Fetcher) fetch(ctx context.Context, namespace string) types.FetchResult {
	current := f.Snapshot(namespace)
	base := f.locator.Current(ctx)
	url := f.endpoints.Config(base, namespace, current.ReleaseKey())

	resp, err := f.getter.Get(ctx, url, f.timeout)
	if err != nil {
		log.WithError(err).WithField("namespace", namespace).Warn("config fetch failed")
		f.locator.Failover(ctx, base)
		return f.fallback(ctx, namespace, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var body types.ConfigResponse
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			err = types.Err(types.ErrProtocol, err, "decode %s", url)
			log.WithError(err).WithField("namespace", namespace).Warn("config fetch failed")
			return f.fallback(ctx, namespace, err)
		}
		snap := types.NewSnapshot(namespace, body.ReleaseKey, body.Configurations)
		f.set(snap)
		if err := f.store.Write(ctx, snap); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"namespace":  namespace,
				"releaseKey": snap.ReleaseKey(),
			}).Error("failed to persist config")
		}
		log.WithFields(log.Fields{
			"namespace":  namespace,
			"releaseKey": snap.ReleaseKey(),
			"keys":       snap.Len(),
		}).Debug("config fetched")
		return types.FetchResult{Snapshot: snap, Source: types.SourceFresh}

	case http.StatusNotModified:
		if current != nil {
			return types.FetchResult{Snapshot: current, Source: types.SourceFresh}
		}
	}

	err = transport.StatusError(url, resp)
	log.WithError(err).WithField("namespace", namespace).Warn("config fetch failed")
	return f.fallback(ctx, namespace, err)
}

func (f *Fetcher) fallback(ctx context.Context, namespace string, cause error) types.FetchResult {
	snap, err := f.store.Read(ctx, namespace)
	if err == nil {
		f.set(snap)
		log.WithField("namespace", namespace).Warn("serving config from cache")
		return types.FetchResult{Snapshot: snap, Source: types.SourceCached, Err: cause}
	}
	if !errors.Is(err, types.ErrNotFound) {
		log.WithError(err).WithField("namespace", namespace).Warn("cache read failed")
		cause = errors.Join(cause, err)
	}
	if current := f.Snapshot(namespace); current != nil {
		return types.FetchResult{Snapshot: current, Source: types.SourceStale, Err: cause}
	}
	return types.FetchResult{Snapshot: types.EmptySnapshot(namespace), Source: types.SourceEmpty, Err: cause}
}

func (f *Fetcher) set(snap *types.Snapshot) {
	f.mu.Lock()
	f.snapshots[snap.Namespace()] = snap
	f.mu.Unlock()
}

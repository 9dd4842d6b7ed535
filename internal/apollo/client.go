package apollo

import (
	"apollocfg/internal/backends"
	"apollocfg/internal/discovery"
	"apollocfg/internal/fetcher"
	"apollocfg/internal/mapping"
	"apollocfg/internal/notifier"
	"apollocfg/internal/ports"
	"apollocfg/internal/pub"
	"apollocfg/internal/transport"
	"apollocfg/internal/types"
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// warmUpConcurrency bounds the parallel initial fetches.
const warmUpConcurrency = 4

// ChangeListener receives the key-level changes of every namespace refreshed by a notification.
type ChangeListener func(ctx context.Context, event types.ChangeEvent)

// Client keeps every configured namespace of one app/cluster available in memory. Reads are served by a
// per-namespace Mapping; a single long poll pushes updates into them once Start is called.
type Client struct {
	opts      types.Options
	store     ports.CacheStore
	fetcher   *fetcher.Fetcher
	notifier  *notifier.Notifier
	mappings  map[string]*mapping.Mapping
	publisher ports.ChangePublisher

	mu        sync.RWMutex
	listeners []ChangeListener
	// announced is the snapshot change events were last computed against, per namespace.
	announced map[string]*types.Snapshot
}

type clientConfig struct {
	getter          ports.Getter
	store           ports.CacheStore
	publisher       ports.ChangePublisher
	notifierOptions []notifier.Option
	skipWarmUp      bool
}

type Option func(*clientConfig)

// WithGetter replaces the signed HTTP transport.
func WithGetter(g ports.Getter) Option { return func(c *clientConfig) { c.getter = g } }

// WithStore replaces the cache store selected by Options.CacheBackend.
func WithStore(s ports.CacheStore) Option { return func(c *clientConfig) { c.store = s } }

// WithPublisher forwards change events to p instead of the SNS topic in Options.ChangeTopicARN.
func WithPublisher(p ports.ChangePublisher) Option { return func(c *clientConfig) { c.publisher = p } }

func WithNotifierOptions(opts ...notifier.Option) Option {
	return func(c *clientConfig) { c.notifierOptions = append(c.notifierOptions, opts...) }
}

// WithoutWarmUp skips the initial fetch; namespaces load on first read instead.
func WithoutWarmUp() Option { return func(c *clientConfig) { c.skipWarmUp = true } }

// New validates opts, opens the cache store, loads what it holds and fetches every namespace once.
// It fails only on invalid options or a cache store that cannot be opened; an unreachable config service
// leaves the client serving cached or empty configuration. The long poll is not running until Start.
func New(ctx context.Context, opts types.Options, options ...Option) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cfg := &clientConfig{}
	for _, o := range options {
		o(cfg)
	}

	if cfg.store == nil {
		st, err := backends.NewCacheStore(ctx, opts)
		if err != nil {
			return nil, err
		}
		cfg.store = st
	}
	if cfg.getter == nil {
		cfg.getter = transport.NewClient(opts.AppID, opts.Secret)
	}
	if cfg.publisher == nil && opts.ChangeTopicARN != "" {
		p, err := pub.SNSFromEnv(ctx, opts.ChangeTopicARN)
		if err != nil {
			return nil, err
		}
		cfg.publisher = p
	}

	locator := discovery.NewLocator(cfg.getter, opts.ServerURL, opts.Discovery && !opts.OpenAPI, opts.Timeout)
	f := fetcher.New(cfg.getter, locator, cfg.store, opts)
	c := &Client{
		opts:      opts,
		store:     cfg.store,
		fetcher:   f,
		notifier:  notifier.New(cfg.getter, locator, f, opts, cfg.notifierOptions...),
		mappings:  make(map[string]*mapping.Mapping, len(opts.Namespaces)),
		publisher: cfg.publisher,
		announced: make(map[string]*types.Snapshot, len(opts.Namespaces)),
	}
	for _, ns := range opts.Namespaces {
		c.mappings[ns] = mapping.New(ns, f, opts.RefreshInterval, opts.CaseSensitive)
	}
	c.notifier.OnUpdate(c.handleUpdate)

	if loaded, err := f.Preload(ctx); err != nil {
		log.WithError(err).Warn("failed to preload cache store")
	} else if len(loaded) > 0 {
		log.WithField("namespaces", loaded).Debug("preloaded cached config")
	}
	if !cfg.skipWarmUp {
		c.warmUp(ctx)
	}
	for ns, m := range c.mappings {
		if snap := m.Current(); snap != nil {
			c.announced[ns] = snap
		}
	}
	return c, nil
}

func (c *Client) warmUp(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmUpConcurrency)
	for _, ns := range c.opts.Namespaces {
		m := c.mappings[ns]
		g.Go(func() error {
			res := m.Refresh(gctx)
			entry := log.WithFields(log.Fields{
				"appId":      c.opts.AppID,
				"namespace":  ns,
				"source":     res.Source.String(),
				"releaseKey": res.Snapshot.ReleaseKey(),
			})
			if res.Degraded() {
				entry.WithError(res.Err).Warn("namespace loaded in degraded mode")
			} else {
				entry.Info("namespace loaded")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Start launches the long poll. It is a no-op when already running.
func (c *Client) Start(ctx context.Context) { c.notifier.Start(ctx) }

// Stop ends the long poll and waits for it; no update is applied after Stop returns. Safe to call repeatedly.
func (c *Client) Stop() { c.notifier.Stop() }

func (c *Client) Running() bool { return c.notifier.Running() }

func (c *Client) Options() types.Options { return c.opts }

func (c *Client) Namespaces() []string { return append([]string(nil), c.opts.Namespaces...) }

// Mapping returns the view of namespace, nil when namespace is not configured.
func (c *Client) Mapping(namespace string) *mapping.Mapping { return c.mappings[namespace] }

// Snapshot returns the current snapshot of namespace, refreshing it when stale. An unconfigured namespace
// yields an empty snapshot.
func (c *Client) Snapshot(ctx context.Context, namespace string) *types.Snapshot {
	m := c.mappings[namespace]
	if m == nil {
		return types.EmptySnapshot(namespace)
	}
	return m.Snapshot(ctx)
}

// Value returns key from namespace or def.
func (c *Client) Value(ctx context.Context, namespace, key, def string) string {
	m := c.mappings[namespace]
	if m == nil {
		return def
	}
	return m.Get(ctx, key, def)
}

// Lookup returns key from namespace, honoring Options.CaseSensitive.
func (c *Client) Lookup(ctx context.Context, namespace, key string) (string, bool) {
	m := c.mappings[namespace]
	if m == nil {
		return "", false
	}
	return m.Lookup(ctx, key)
}

// JSONValue decodes the JSON document stored under key into out.
func (c *Client) JSONValue(ctx context.Context, namespace, key string, out any) error {
	m := c.mappings[namespace]
	if m == nil {
		return types.Err(types.ErrNotFound, nil, "namespace %q is not configured", namespace)
	}
	return m.GetJSON(ctx, key, out)
}

// NotificationID is the last notification id seen for namespace.
func (c *Client) NotificationID(namespace string) (int64, bool) {
	return c.notifier.NotificationID(namespace)
}

// OnChange registers fn for change events. Listeners run on the polling goroutine and must not call Stop.
func (c *Client) OnChange(fn ChangeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Client) handleUpdate(ctx context.Context, namespace string, notificationID int64, res types.FetchResult) {
	m := c.mappings[namespace]
	if m == nil {
		return
	}
	prev, next := m.Apply(res)
	c.mu.Lock()
	base, ok := c.announced[namespace]
	if !ok {
		base = prev
	}
	c.announced[namespace] = next
	c.mu.Unlock()
	changes := types.Diff(base, next)
	if len(changes) == 0 {
		return
	}

	event := types.ChangeEvent{
		AppID:          c.opts.AppID,
		Cluster:        c.opts.Cluster,
		Namespace:      namespace,
		ReleaseKey:     next.ReleaseKey(),
		NotificationID: notificationID,
		Source:         res.Source.String(),
		Changes:        changes,
		At:             time.Now().UTC(),
	}
	log.WithFields(log.Fields{
		"namespace":      namespace,
		"notificationId": notificationID,
		"releaseKey":     event.ReleaseKey,
		"changes":        len(changes),
	}).Info("config changed")

	c.mu.RLock()
	listeners := append([]ChangeListener(nil), c.listeners...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, event)
	}
	if c.publisher != nil {
		if err := c.publisher.PublishChange(ctx, event); err != nil {
			log.WithError(err).WithField("namespace", namespace).Error("failed to publish change event")
		}
	}
}

// CachedNamespaces lists the namespaces the cache store holds for this app.
func (c *Client) CachedNamespaces(ctx context.Context) ([]string, error) {
	return c.store.Namespaces(ctx)
}

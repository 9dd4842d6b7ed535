package apollo

import (
	"apollocfg/internal/types"
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// registryKey is the normalized Options: every field that changes how a client behaves, with the namespace
// list sorted.
type registryKey struct {
	server          string
	appID           string
	secret          string
	cluster         string
	namespaces      string
	refreshInterval time.Duration
	caseSensitive   bool
	cacheDir        string
	cacheBackend    string
	timeout         time.Duration
	pollTimeout     time.Duration
	openAPI         bool
	discovery       bool
	ip              string
	changeTopicARN  string
}

// Registry hands out one running Client per distinct Options, so asking twice for the same configuration
// shares one long poll. Options that differ in any field, the secret or case sensitivity included, get
// separate clients. The caller owns the Registry and closes it.
type Registry struct {
	options []Option

	mu      sync.Mutex
	clients map[registryKey]*Client
}

// NewRegistry builds a registry whose clients are created with options.
func NewRegistry(options ...Option) *Registry {
	return &Registry{options: options, clients: map[registryKey]*Client{}}
}

// Get returns the running client for opts, creating and starting it on first use. The long poll outlives ctx;
// it ends with Close.
func (r *Registry) Get(ctx context.Context, opts types.Options) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	key := keyOf(opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		return c, nil
	}
	c, err := New(ctx, opts, r.options...)
	if err != nil {
		return nil, err
	}
	c.Start(context.WithoutCancel(ctx))
	r.clients[key] = c
	return c, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close stops every client and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	clients := r.clients
	r.clients = map[registryKey]*Client{}
	r.mu.Unlock()
	for _, c := range clients {
		c.Stop()
	}
}

func keyOf(opts types.Options) registryKey {
	namespaces := append([]string(nil), opts.Namespaces...)
	sort.Strings(namespaces)
	return registryKey{
		server:          opts.ServerURL,
		appID:           opts.AppID,
		secret:          opts.Secret,
		cluster:         opts.Cluster,
		namespaces:      strings.Join(namespaces, "\x00"),
		refreshInterval: opts.RefreshInterval,
		caseSensitive:   opts.CaseSensitive,
		cacheDir:        opts.CacheDir,
		cacheBackend:    opts.CacheBackend,
		timeout:         opts.Timeout,
		pollTimeout:     opts.PollTimeout,
		openAPI:         opts.OpenAPI,
		discovery:       opts.Discovery,
		ip:              opts.IP,
		changeTopicARN:  opts.ChangeTopicARN,
	}
}

package discovery

import (
	"apollocfg/internal/ports"
	"apollocfg/internal/types"
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jellydator/ttlcache/v3"
	log "github.com/sirupsen/logrus"
)

const (
	// ServicesPath lists the config service instances registered with the meta server.
	ServicesPath = "/services/config"

	DefaultListTTL     = 5 * time.Minute
	DefaultFallbackTTL = 30 * time.Second

	listKey = "config-services"
)

// Locator resolves the base URL of the config service. With discovery on, it asks the meta server for the
// registered instances and remembers the list for DefaultListTTL. Without discovery, or when the meta server does
// not answer with at least one instance, the configured server URL is the only candidate.
type Locator struct {
	getter      ports.Getter
	serverURL   string
	enabled     bool
	timeout     time.Duration
	fallbackTTL time.Duration

	cache *ttlcache.Cache[string, []string]

	mu      sync.Mutex
	current string
}

func NewLocator(getter ports.Getter, serverURL string, enabled bool, timeout time.Duration) *Locator {
	return &Locator{
		getter:      getter,
		serverURL:   strings.TrimRight(serverURL, "/"),
		enabled:     enabled,
		timeout:     timeout,
		fallbackTTL: DefaultFallbackTTL,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, []string](DefaultListTTL),
			ttlcache.WithDisableTouchOnHit[string, []string](),
		),
	}
}

// Current returns the address requests should go to. It sticks to the last selected address as long as that
// address is still a candidate.
func (l *Locator) Current(ctx context.Context) string {
	candidates := l.Candidates(ctx)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range candidates {
		if c == l.current {
			return c
		}
	}
	l.current = candidates[0]
	return l.current
}

// Failover moves away from failed and returns the new address. With a single candidate the same address is
// returned.
func (l *Locator) Failover(ctx context.Context, failed string) string {
	candidates := l.Candidates(ctx)
	l.mu.Lock()
	defer l.mu.Unlock()
	next := candidates[0]
	for i, c := range candidates {
		if c == failed {
			next = candidates[(i+1)%len(candidates)]
			break
		}
	}
	if next != failed {
		log.WithFields(log.Fields{
			"from": failed,
			"to":   next,
		}).Info("switching config service")
	}
	l.current = next
	return next
}

// Candidates returns the known config service addresses, never an empty list.
func (l *Locator) Candidates(ctx context.Context) []string {
	if !l.enabled {
		return []string{l.serverURL}
	}
	if item := l.cache.Get(listKey); item != nil {
		return item.Value()
	}
	list, err := l.discover(ctx)
	if err != nil || len(list) == 0 {
		log.WithError(err).WithField("url", l.serverURL).Debug("service discovery unavailable, using server url")
		list = []string{l.serverURL}
		l.cache.Set(listKey, list, l.fallbackTTL)
		return list
	}
	l.cache.Set(listKey, list, ttlcache.DefaultTTL)
	return list
}

// Invalidate drops the cached list so the next call asks the meta server again.
func (l *Locator) Invalidate() {
	l.cache.Delete(listKey)
}

func (l *Locator) discover(ctx context.Context) ([]string, error) {
	url := l.serverURL + ServicesPath
	resp, err := l.getter.Get(ctx, url, l.timeout)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.TransportError{Kind: types.KindServer, URL: url, StatusCode: resp.StatusCode}
	}
	var instances []types.ServiceInstance
	if err := json.Unmarshal(resp.Body, &instances); err != nil {
		return nil, types.Err(types.ErrProtocol, err, "decode %s", url)
	}
	out := make([]string, 0, len(instances))
	seen := make(map[string]struct{}, len(instances))
	for _, in := range instances {
		u := strings.TrimRight(strings.TrimSpace(in.HomepageURL), "/")
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}

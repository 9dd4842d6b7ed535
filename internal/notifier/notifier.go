package notifier

import (
	"apollocfg/internal/discovery"
	"apollocfg/internal/ports"
	"apollocfg/internal/transport"
	"apollocfg/internal/types"
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultBackoffInitial = time.Second
	DefaultBackoffMax     = 2 * time.Minute
)

// UpdateFunc is called from the polling goroutine after a notified namespace was re-fetched.
// It must not call Stop.
type UpdateFunc func(ctx context.Context, namespace string, notificationID int64, result types.FetchResult)

// Notifier runs the notifications/v2 long poll for a fixed set of namespaces. Each time the config service
// reports a new notification id for a namespace, that namespace alone is re-fetched and the registered
// callbacks run.
type Notifier struct {
	getter      ports.Getter
	locator     *discovery.Locator
	refresher   ports.Refresher
	endpoints   transport.Endpoints
	pollTimeout time.Duration

	backoffInitial time.Duration
	backoffMax     time.Duration

	mu       sync.RWMutex
	ids      map[string]int64
	messages map[string]*types.NotificationMessages
	onUpdate []UpdateFunc

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Notifier)

// WithBackoff sets the wait after a failed poll. The wait doubles per consecutive failure up to maxWait.
func WithBackoff(initial, maxWait time.Duration) Option {
	return func(n *Notifier) {
		n.backoffInitial = initial
		n.backoffMax = maxWait
	}
}

func New(getter ports.Getter, locator *discovery.Locator, refresher ports.Refresher, opts types.Options, options ...Option) *Notifier {
	n := &Notifier{
		getter:    getter,
		locator:   locator,
		refresher: refresher,
		endpoints: transport.Endpoints{
			AppID:   opts.AppID,
			Cluster: opts.Cluster,
			OpenAPI: opts.OpenAPI,
			IP:      opts.IP,
		},
		pollTimeout:    opts.PollTimeout,
		backoffInitial: DefaultBackoffInitial,
		backoffMax:     DefaultBackoffMax,
		ids:            make(map[string]int64, len(opts.Namespaces)),
		messages:       make(map[string]*types.NotificationMessages, len(opts.Namespaces)),
	}
	for _, ns := range opts.Namespaces {
		n.ids[ns] = types.InitialNotificationID
	}
	for _, o := range options {
		o(n)
	}
	return n
}

// OnUpdate registers fn for every namespace refreshed by a notification.
func (n *Notifier) OnUpdate(fn UpdateFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onUpdate = append(n.onUpdate, fn)
}

// NotificationID returns the last notification id seen for namespace.
func (n *Notifier) NotificationID(namespace string) (int64, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	id, ok := n.ids[namespace]
	return id, ok
}

// Messages returns a copy of the message ids merged for namespace.
func (n *Notifier) Messages(namespace string) map[string]int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := map[string]int64{}
	if m := n.messages[namespace]; m != nil {
		for k, v := range m.Details {
			out[k] = v
		}
	}
	return out
}

// Namespaces returns the watched namespaces in sorted order.
func (n *Notifier) Namespaces() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.ids))
	for ns := range n.ids {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Running reports whether the polling goroutine is active.
func (n *Notifier) Running() bool {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	return n.done != nil
}

// Start launches the polling goroutine. Calling Start on a running notifier does nothing.
func (n *Notifier) Start(ctx context.Context) {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if n.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})
	go n.run(ctx, n.done)
	log.WithFields(log.Fields{
		"appId":      n.endpoints.AppID,
		"cluster":    n.endpoints.Cluster,
		"namespaces": n.Namespaces(),
	}).Info("long poll started")
}

// Stop cancels the polling goroutine and waits for it to exit. It is safe to call more than once and from
// any goroutine except an UpdateFunc.
func (n *Notifier) Stop() {
	n.runMu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.WithField("appId", n.endpoints.AppID).Info("long poll stopped")
}

func (n *Notifier) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = n.backoffInitial
	bo.MaxInterval = n.backoffMax
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}
		_, err := n.PollOnce(ctx)
		switch {
		case err == nil:
			bo.Reset()
			failures = 0
			continue
		case ctx.Err() != nil:
			return
		case types.IsTimeout(err):
			// No answer within the poll timeout counts as "nothing changed".
			continue
		}

		failures++
		entry := log.WithError(err).WithField("failures", failures)
		if failures > 1 {
			entry.Warn("long poll keeps failing")
		} else {
			entry.Debug("long poll failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// PollOnce issues one long poll and handles its answer. It returns the namespaces that were re-fetched.
// A 304 returns no namespaces and no error. A connection failure moves the locator to the next config service.
func (n *Notifier) PollOnce(ctx context.Context) ([]string, error) {
	param, err := json.Marshal(n.current())
	if err != nil {
		return nil, err
	}
	base := n.locator.Current(ctx)
	url := n.endpoints.Notifications(base, param)

	resp, err := n.getter.Get(ctx, url, n.pollTimeout)
	if err != nil {
		var te *types.TransportError
		if errors.As(err, &te) && te.Kind == types.KindConnection && ctx.Err() == nil {
			n.locator.Failover(ctx, base)
		}
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusNotModified:
		return nil, nil
	case http.StatusOK:
	default:
		return nil, transport.StatusError(url, resp)
	}

	var notifications []types.Notification
	if err := json.Unmarshal(resp.Body, &notifications); err != nil {
		return nil, types.Err(types.ErrProtocol, err, "decode %s", url)
	}

	var changed []string
	for _, nt := range notifications {
		if !n.advance(nt) {
			continue
		}
		changed = append(changed, nt.NamespaceName)
		log.WithFields(log.Fields{
			"namespace":      nt.NamespaceName,
			"notificationId": nt.NotificationID,
		}).Debug("namespace changed")

		res := n.refresher.Fetch(ctx, nt.NamespaceName)
		n.mu.RLock()
		callbacks := append([]UpdateFunc(nil), n.onUpdate...)
		n.mu.RUnlock()
		for _, fn := range callbacks {
			fn(ctx, nt.NamespaceName, nt.NotificationID, res)
		}
	}
	return changed, nil
}

// current is the notification list sent to the config service, sorted by namespace.
func (n *Notifier) current() []types.Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]types.Notification, 0, len(n.ids))
	for ns, id := range n.ids {
		out = append(out, types.Notification{NamespaceName: ns, NotificationID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NamespaceName < out[j].NamespaceName })
	return out
}

// advance records a reported notification and tells whether it moved the namespace forward.
// Ids never go backwards; unknown namespaces are ignored.
func (n *Notifier) advance(nt types.Notification) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, ok := n.ids[nt.NamespaceName]
	if !ok || nt.NotificationID <= id {
		return false
	}
	n.ids[nt.NamespaceName] = nt.NotificationID
	if nt.Messages != nil {
		m := n.messages[nt.NamespaceName]
		if m == nil {
			m = &types.NotificationMessages{}
			n.messages[nt.NamespaceName] = m
		}
		m.Merge(nt.Messages)
	}
	return true
}

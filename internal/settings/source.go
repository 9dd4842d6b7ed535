// Package settings exposes a client namespace to code that loads typed settings from flat key/values.
package settings

import (
	"apollocfg/internal/apollo"
	"apollocfg/internal/types"
	"context"
)

// Source reads one namespace of a Client. Keys the config service does not have are reported as absent so
// the caller's other sources (environment, defaults) can supply them.
type Source struct {
	client    *apollo.Client
	namespace string
	owned     bool
}

// New reads namespace from client; an empty namespace means the client's first one. The client stays owned
// by the caller.
func New(client *apollo.Client, namespace string) *Source {
	if namespace == "" {
		namespace = client.Namespaces()[0]
	}
	return &Source{client: client, namespace: namespace}
}

// Open creates a client for opts, starts its long poll and reads its first namespace. Stop ends the client.
func Open(ctx context.Context, opts types.Options, options ...apollo.Option) (*Source, error) {
	client, err := apollo.New(ctx, opts, options...)
	if err != nil {
		return nil, err
	}
	client.Start(context.WithoutCancel(ctx))
	s := New(client, "")
	s.owned = true
	return s, nil
}

func (s *Source) Namespace() string { return s.namespace }

func (s *Source) Client() *apollo.Client { return s.client }

// Lookup returns the remote value of key.
func (s *Source) Lookup(ctx context.Context, key string) (string, bool) {
	return lookup(s.snapshot(ctx), key, s.client.Options().CaseSensitive)
}

// Values returns the remote values of the given keys, all read from one snapshot. Absent keys are left out.
func (s *Source) Values(ctx context.Context, keys []string) map[string]string {
	snap := s.snapshot(ctx)
	caseSensitive := s.client.Options().CaseSensitive
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := lookup(snap, k, caseSensitive); ok {
			out[k] = v
		}
	}
	return out
}

// Stop ends the long poll when the Source opened its own client. A Source built with New leaves the client
// running. Safe to call more than once.
func (s *Source) Stop() {
	if s.owned {
		s.client.Stop()
	}
}

func (s *Source) snapshot(ctx context.Context) *types.Snapshot {
	return s.client.Snapshot(ctx, s.namespace)
}

func lookup(snap *types.Snapshot, key string, caseSensitive bool) (string, bool) {
	if caseSensitive {
		return snap.Get(key)
	}
	return snap.GetFold(key)
}

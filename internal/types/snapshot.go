package types

import (
	"sort"
	"strings"
)

const (
	DefaultCluster   = "default"
	DefaultNamespace = "application"

	// InitialNotificationID marks a namespace that has never been fetched.
	InitialNotificationID int64 = -1
)

// Snapshot is an immutable set of key/values for one namespace, tagged with the release key the config service
// assigned to it. A refresh builds a new Snapshot and swaps the pointer; a Snapshot is never mutated in place.
// All methods are safe on a nil receiver, which behaves as an empty snapshot.
type Snapshot struct {
	namespace  string
	releaseKey string
	values     map[string]string
}

// NewSnapshot copies values so the caller may keep mutating its map.
func NewSnapshot(namespace, releaseKey string, values map[string]string) *Snapshot {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &Snapshot{namespace: namespace, releaseKey: releaseKey, values: cp}
}

// EmptySnapshot is the snapshot handed out when neither the remote service nor the cache has anything.
func EmptySnapshot(namespace string) *Snapshot {
	return &Snapshot{namespace: namespace, values: map[string]string{}}
}

func (s *Snapshot) Namespace() string {
	if s == nil {
		return ""
	}
	return s.namespace
}

func (s *Snapshot) ReleaseKey() string {
	if s == nil {
		return ""
	}
	return s.releaseKey
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

func (s *Snapshot) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

// GetFold matches key case-insensitively. This is a linear scan over the keys; when two keys differ only by case
// the lexically smallest one wins so the result is stable.
func (s *Snapshot) GetFold(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	lowered := strings.ToLower(key)
	found := ""
	ok := false
	for k := range s.values {
		if strings.ToLower(k) != lowered {
			continue
		}
		if !ok || k < found {
			found, ok = k, true
		}
	}
	if !ok {
		return "", false
	}
	return s.values[found], true
}

// Keys returns the keys in sorted order.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns a copy of the key/values.
func (s *Snapshot) Values() map[string]string {
	out := make(map[string]string, s.Len())
	if s == nil {
		return out
	}
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Range calls fn for every key in sorted order until fn returns false.
func (s *Snapshot) Range(fn func(key, value string) bool) {
	for _, k := range s.Keys() {
		if !fn(k, s.values[k]) {
			return
		}
	}
}

// Source tells a caller which tier a FetchResult came from.
type Source int

const (
	SourceFresh  Source = iota // answered by the config service
	SourceCached               // loaded from the durable cache store
	SourceStale                // remote and cache failed; the previous in-memory snapshot was kept
	SourceEmpty                // nothing available anywhere
)

var SourceTextMap = map[Source]string{
	SourceFresh:  "fresh",
	SourceCached: "cached",
	SourceStale:  "stale",
	SourceEmpty:  "empty",
}

func (s Source) String() string { return SourceTextMap[s] }

// FetchResult always carries a non-nil Snapshot. Err explains why Source is not SourceFresh; it is informational
// and callers are expected to keep serving the snapshot.
type FetchResult struct {
	Snapshot *Snapshot
	Source   Source
	Err      error
}

// Degraded reports whether the result did not come from the config service.
func (r FetchResult) Degraded() bool { return r.Source != SourceFresh }

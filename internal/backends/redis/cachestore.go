package redis

import (
	"apollocfg/internal/backends/codec"
	"apollocfg/internal/types"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// The app id sits in braces: app ids never contain them, so one app's prefix is never a prefix of another's.
	cacheKeyNameTemplate = "_apollo_cfg:{%s}:%s"

	scanBatch = 100
)

// CacheStore keeps each namespace in a hash with the encoded snapshot and its release key, so several hosts of
// the same app can share one fallback copy. A single HSET replaces both fields atomically.
type CacheStore struct {
	cli   *redis.Client
	appID string
	ttl   time.Duration
}

// NewCacheStore stores entries without expiry when ttl is 0.
func NewCacheStore(cli *redis.Client, appID string, ttl time.Duration) *CacheStore {
	return &CacheStore{cli: cli, appID: appID, ttl: ttl}
}

func (s *CacheStore) Write(ctx context.Context, snap *types.Snapshot) error {
	data, err := codec.EncodeSnapshot(snap)
	if err != nil {
		return types.Err(types.ErrCache, err, "encode namespace %s", snap.Namespace())
	}
	key := s.key(snap.Namespace())
	out := s.cli.HSet(ctx, key, map[string]any{
		"release_key": snap.ReleaseKey(),
		"data":        data,
	})
	if out.Err() != nil {
		return types.Err(types.ErrCache, out.Err(), "hset %s", key)
	}
	if s.ttl > 0 {
		if err := s.cli.Expire(ctx, key, s.ttl).Err(); err != nil {
			return types.Err(types.ErrCache, err, "expire %s", key)
		}
	}
	return nil
}

func (s *CacheStore) Read(ctx context.Context, namespace string) (*types.Snapshot, error) {
	out := s.cli.HGet(ctx, s.key(namespace), "data")
	if out.Err() != nil {
		if errors.Is(out.Err(), redis.Nil) {
			return nil, types.ErrNotFound
		}
		return nil, types.Err(types.ErrCache, out.Err(), "hget %s", s.key(namespace))
	}
	return codec.DecodeSnapshot(out.Val())
}

func (s *CacheStore) Namespaces(ctx context.Context) ([]string, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return nil, types.Err(types.ErrCache, err, "scan")
	}
	prefix := s.key("")
	namespaces := make([]string, 0, len(keys))
	for _, k := range keys {
		if ns, ok := strings.CutPrefix(k, prefix); ok && ns != "" {
			namespaces = append(namespaces, ns)
		}
	}
	sort.Strings(namespaces)
	return namespaces, nil
}

// ClearAll drops every entry of the app. Used in tests only.
func (s *CacheStore) ClearAll(ctx context.Context) error {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.cli.Del(ctx, keys...).Err()
}

// scanKeys lists the keys of this app with SCAN.
func (s *CacheStore) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.cli.Scan(ctx, 0, s.key("*"), scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (s *CacheStore) key(namespace string) string {
	return fmt.Sprintf(cacheKeyNameTemplate, s.appID, namespace)
}

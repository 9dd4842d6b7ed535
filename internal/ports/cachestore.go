package ports

import (
	"apollocfg/internal/types"
	"context"
)

// CacheStore persists the last successful snapshot of each namespace so a client can serve configuration when
// the config service is unreachable, including across process restarts.
// Implementations MUST replace an entry atomically: a concurrent Read sees the old or the new snapshot, never a
// partial one.
type CacheStore interface {
	// Write replaces the stored snapshot for snap.Namespace().
	Write(ctx context.Context, snap *types.Snapshot) error

	// Read returns the stored snapshot for namespace.
	// MUST return types.ErrNotFound if nothing is stored, and an error matching types.ErrCache if the stored entry
	// cannot be decoded.
	Read(ctx context.Context, namespace string) (*types.Snapshot, error)

	// Namespaces lists the namespaces that currently have an entry.
	Namespaces(ctx context.Context) ([]string, error)
}

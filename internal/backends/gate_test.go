package backends

import (
	"apollocfg/internal/backends/disk"
	"apollocfg/internal/types"
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	mu     sync.Mutex
	writes int
	data   map[string]*types.Snapshot
}

func (c *countingStore) Write(ctx context.Context, snap *types.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if c.data == nil {
		c.data = map[string]*types.Snapshot{}
	}
	c.data[snap.Namespace()] = snap
	return nil
}

func (c *countingStore) Read(ctx context.Context, namespace string) (*types.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.data[namespace]; ok {
		return s, nil
	}
	return nil, types.ErrNotFound
}

func (c *countingStore) Namespaces(ctx context.Context) ([]string, error) { return nil, nil }

func TestReleaseGateSkipsUnchangedReleaseKey(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{}
	g := NewReleaseGate(inner)

	snap := types.NewSnapshot("application", "r1", map[string]string{"k": "v"})
	require.NoError(t, g.Write(ctx, snap))
	require.NoError(t, g.Write(ctx, snap))
	assert.Equal(t, 1, inner.writes)

	require.NoError(t, g.Write(ctx, types.NewSnapshot("application", "r2", map[string]string{"k": "v2"})))
	assert.Equal(t, 2, inner.writes)

	// gating is per namespace
	require.NoError(t, g.Write(ctx, types.NewSnapshot("other", "r2", nil)))
	assert.Equal(t, 3, inner.writes)

	rk, ok := g.Persisted("application")
	assert.True(t, ok)
	assert.Equal(t, "r2", rk)
}

func TestReleaseGateAlwaysWritesWithoutReleaseKey(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{}
	g := NewReleaseGate(inner)
	require.NoError(t, g.Write(ctx, types.NewSnapshot("application", "", nil)))
	require.NoError(t, g.Write(ctx, types.NewSnapshot("application", "", nil)))
	assert.Equal(t, 2, inner.writes)
}

func TestReleaseGatePrimedByRead(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{data: map[string]*types.Snapshot{
		"application": types.NewSnapshot("application", "r9", map[string]string{"k": "v"}),
	}}
	g := NewReleaseGate(inner)
	_, err := g.Read(ctx, "application")
	require.NoError(t, err)
	require.NoError(t, g.Write(ctx, types.NewSnapshot("application", "r9", map[string]string{"k": "v"})))
	assert.Equal(t, 0, inner.writes)
}

func TestReleaseGateOverDiskStore(t *testing.T) {
	ctx := context.Background()
	st, err := disk.NewStore(t.TempDir(), "app")
	require.NoError(t, err)
	g := NewReleaseGate(st)

	require.NoError(t, g.Write(ctx, types.NewSnapshot("application", "r1", map[string]string{"k": "v"})))
	info1, err := os.Stat(st.Path("application"))
	require.NoError(t, err)

	// remove the file: a gated write with the same key must not recreate it
	require.NoError(t, os.Remove(st.Path("application")))
	require.NoError(t, g.Write(ctx, types.NewSnapshot("application", "r1", map[string]string{"k": "v"})))
	_, err = os.Stat(st.Path("application"))
	assert.True(t, os.IsNotExist(err))
	assert.NotNil(t, info1)
}

package disk

import (
	"apollocfg/internal/types"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite

	dir   string
	store *Store
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupTest() {
	s.dir = filepath.Join(s.T().TempDir(), "cache")
	st, err := NewStore(s.dir, "app")
	s.Require().NoError(err)
	s.store = st
}

func (s *StoreTestSuite) TestWriteThenRead() {
	ctx := context.Background()
	snap := types.NewSnapshot("application", "r1", map[string]string{
		"database.host": "localhost",
		"database.port": "5432",
	})
	s.NoError(s.store.Write(ctx, snap))

	got, err := s.store.Read(ctx, "application")
	s.Require().NoError(err)
	s.Equal(snap.Values(), got.Values())
	s.Equal("application", got.Namespace())

	b, err := os.ReadFile(filepath.Join(s.dir, "app_configuration_application.txt"))
	s.Require().NoError(err)
	s.JSONEq(`{"database.host":"localhost","database.port":"5432"}`, string(b))
}

func (s *StoreTestSuite) TestWriteReplacesAndLeavesNoTempFiles() {
	ctx := context.Background()
	s.NoError(s.store.Write(ctx, types.NewSnapshot("application", "r1", map[string]string{"a": "1"})))
	s.NoError(s.store.Write(ctx, types.NewSnapshot("application", "r2", map[string]string{"b": "2"})))

	got, err := s.store.Read(ctx, "application")
	s.Require().NoError(err)
	s.Equal(map[string]string{"b": "2"}, got.Values())

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.tmp"))
	s.NoError(err)
	s.Empty(matches)
}

func (s *StoreTestSuite) TestReadMissing() {
	_, err := s.store.Read(context.Background(), "nope")
	s.True(errors.Is(err, types.ErrNotFound))
}

func (s *StoreTestSuite) TestReadCorrupt() {
	s.Require().NoError(os.WriteFile(s.store.Path("broken"), []byte("{not json"), 0o644))
	_, err := s.store.Read(context.Background(), "broken")
	s.True(errors.Is(err, types.ErrCache))
}

func (s *StoreTestSuite) TestNamespaces() {
	ctx := context.Background()
	s.NoError(s.store.Write(ctx, types.NewSnapshot("application", "r1", nil)))
	s.NoError(s.store.Write(ctx, types.NewSnapshot("db_settings", "r1", nil)))
	s.Require().NoError(os.WriteFile(filepath.Join(s.dir, "other_configuration_x.txt"), []byte("{}"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(s.dir, "app_configuration_x.txt.swp"), []byte("{}"), 0o644))

	got, err := s.store.Namespaces(ctx)
	s.NoError(err)
	s.Equal([]string{"application", "db_settings"}, got)
}

func (s *StoreTestSuite) TestNewStoreFailsWhenDirIsAFile() {
	file := filepath.Join(s.T().TempDir(), "file")
	s.Require().NoError(os.WriteFile(file, nil, 0o644))
	_, err := NewStore(filepath.Join(file, "sub"), "app")
	s.True(errors.Is(err, types.ErrCache))
}

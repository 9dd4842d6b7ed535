package disk

import (
	"apollocfg/internal/types"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

const (
	fileNameTemplate = "%s_configuration_%s.txt"
	tempPattern      = ".apollocfg-*.tmp"
)

// Store keeps one JSON file per (appID, namespace) under dir. The file holds the plain configuration map so it
// stays readable by other clients sharing the directory. Writes go to a temp file that is renamed into place.
type Store struct {
	dir   string
	appID string
	mu    sync.Mutex // serializes writes for every namespace of the app
}

// NewStore creates dir when missing. Failing to do so is fatal for the client: without a cache directory
// there is neither fallback nor persistence.
func NewStore(dir, appID string) (*Store, error) {
	if dir == "" {
		return nil, types.Err(types.ErrCache, nil, "cache directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.Err(types.ErrCache, err, "create cache directory %s", dir)
	}
	return &Store{dir: dir, appID: appID}, nil
}

func (s *Store) Dir() string { return s.dir }

// Path is the file backing namespace.
func (s *Store) Path(namespace string) string {
	return filepath.Join(s.dir, fmt.Sprintf(fileNameTemplate, s.appID, namespace))
}

func (s *Store) Write(ctx context.Context, snap *types.Snapshot) error {
	b, err := json.Marshal(snap.Values())
	if err != nil {
		return types.Err(types.ErrCache, err, "encode namespace %s", snap.Namespace())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return types.Err(types.ErrCache, err, "create temp file in %s", s.dir)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return types.Err(types.ErrCache, err, "write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return types.Err(types.ErrCache, err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return types.Err(types.ErrCache, err, "close %s", tmpName)
	}
	target := s.Path(snap.Namespace())
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return types.Err(types.ErrCache, err, "rename into %s", target)
	}
	log.WithFields(log.Fields{
		"namespace":  snap.Namespace(),
		"releaseKey": snap.ReleaseKey(),
		"path":       target,
	}).Debug("cache file written")
	return nil
}

func (s *Store) Read(ctx context.Context, namespace string) (*types.Snapshot, error) {
	path := s.Path(namespace)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.ErrNotFound
		}
		return nil, types.Err(types.ErrCache, err, "read %s", path)
	}
	var values map[string]string
	if err := json.Unmarshal(b, &values); err != nil {
		return nil, types.Err(types.ErrCache, err, "decode %s", path)
	}
	return types.NewSnapshot(namespace, "", values), nil
}

func (s *Store) Namespaces(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, types.Err(types.ErrCache, err, "list %s", s.dir)
	}
	prefix := s.appID + "_configuration_"
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".txt" || !strings.HasPrefix(name, prefix) {
			continue
		}
		ns := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".txt")
		if ns != "" {
			out = append(out, ns)
		}
	}
	sort.Strings(out)
	return out, nil
}

package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/domain/model"
)

const (
	artifactMetaSuffix = ".meta.json"
	lockRetryDelay     = 25 * time.Millisecond
)

type artifactMeta struct {
	ContentType string `json:"content_type"`
	FileName    string `json:"file_name"`
}

// FSArtifactStore keeps artifacts as files below a root directory. Writes hold an
// exclusive file lock so several processes can share the directory; the mutex
// covers goroutines of this process, which share one flock handle.
type FSArtifactStore struct {
	root string
	mu   sync.Mutex
	lock *flock.Flock
}

var _ core.ArtifactStore = (*FSArtifactStore)(nil)

// NewFSArtifactStore creates the root directory if needed.
func NewFSArtifactStore(root string) (*FSArtifactStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	return &FSArtifactStore{
		root: root,
		lock: flock.New(filepath.Join(root, ".artifacts.lock")),
	}, nil
}

// Put writes the artifact atomically and returns its reference.
func (s *FSArtifactStore) Put(ctx context.Context, key string, a *model.Artifact) (model.ResultRef, error) {
	path, err := s.path(key)
	if err != nil {
		return model.ResultRef{}, err
	}
	meta, err := json.Marshal(artifactMeta{ContentType: a.ContentType, FileName: a.FileName})
	if err != nil {
		return model.ResultRef{}, fmt.Errorf("encode artifact meta: %w", err)
	}

	err = s.withLock(ctx, func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
		if err := writeAtomic(path+artifactMetaSuffix, meta); err != nil {
			return err
		}
		return writeAtomic(path, a.Data)
	})
	if err != nil {
		return model.ResultRef{}, fmt.Errorf("put artifact %s: %w", key, err)
	}
	return a.Ref(key), nil
}

// Get reads an artifact.
func (s *FSArtifactStore) Get(_ context.Context, key string) (*model.Artifact, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("get artifact %s: %w", key, model.ErrArtifactNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", key, err)
	}

	var meta artifactMeta
	if raw, err := os.ReadFile(path + artifactMetaSuffix); err == nil {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode artifact meta %s: %w", key, err)
		}
	}
	if meta.FileName == "" {
		meta.FileName = filepath.Base(path)
	}
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}
	return &model.Artifact{ContentType: meta.ContentType, FileName: meta.FileName, Data: data}, nil
}

// Delete removes an artifact. Missing artifacts are not an error.
func (s *FSArtifactStore) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	return s.withLock(ctx, func() error {
		for _, p := range []string{path, path + artifactMetaSuffix} {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("delete artifact %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *FSArtifactStore) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock artifacts dir: %w", err)
	}
	if !locked {
		return errors.New("lock artifacts dir: not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

// path maps a slash-separated key to a file below root, rejecting escapes.
func (s *FSArtifactStore) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrArtifactKeyRequired
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", ErrArtifactKeyRequired
		}
	}
	if strings.HasSuffix(key, artifactMetaSuffix) {
		return "", ErrArtifactKeyRequired
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

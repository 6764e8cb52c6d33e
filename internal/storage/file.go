package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "remindbot/pkg/logx"
)

// fileStore keeps the blob in a single file.
//
// Save writes <path>.tmp, fsyncs it, renames it over <path> and fsyncs the
// directory, so readers see either the old or the new content.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// A leftover temp file means a crash mid-write; the main file is intact.
	if err := os.Remove(path + ".tmp"); err == nil {
		log.Warn("removed stale temp file", logx.String("path", path+".tmp"))
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Load(ctx context.Context) ([]byte, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return b, nil
}

func (s *fileStore) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if d, err := os.Open(filepath.Dir(s.path)); err == nil {
		// Not every platform supports fsync on directories.
		if err := d.Sync(); err != nil {
			s.log.Debug("dir sync failed", logx.Err(err))
		}
		_ = d.Close()
	}
	return nil
}

func (s *fileStore) Close() error { return nil }

package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Store persists a single opaque blob.
//
// Load returns (nil, nil) when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file": JSON file, replaced with write-temp + fsync + rename
//   - "sqlite": single-row table in a SQLite database file
//   - "redis": single key on a redis server
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	Addr     string // redis only
	Password string
	DB       int
	Key      string
}

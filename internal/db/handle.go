package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrQuiesced is returned by DB while a restore holds the store file.
var ErrQuiesced = errors.New("store is quiesced")

// Handle owns the live *sql.DB. The backup engine closes it before swapping the
// underlying file and reopens it afterwards; everything else fetches the
// current pool through DB on each call.
type Handle struct {
	mu       sync.RWMutex
	path     string
	maxOpen  int
	busy     time.Duration
	sqdb     *sql.DB
	quiesced bool
}

// Open opens the SQLite file at path and applies migrations.
func Open(ctx context.Context, path string, maxOpen int, busyTimeout time.Duration) (*Handle, error) {
	h := &Handle{path: path, maxOpen: maxOpen, busy: busyTimeout}
	sqdb, err := h.open(ctx)
	if err != nil {
		return nil, err
	}
	h.sqdb = sqdb
	return h, nil
}

// FromDB wraps an already opened pool. The handle has no path, so it cannot
// be quiesced and resumed.
func FromDB(sqdb *sql.DB) *Handle {
	return &Handle{sqdb: sqdb}
}

func (h *Handle) open(ctx context.Context) (*sql.DB, error) {
	sqdb, err := OpenSQLite(h.path, h.maxOpen, h.busy)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := Migrate(ctx, sqdb); err != nil {
		_ = sqdb.Close()
		return nil, err
	}
	return sqdb, nil
}

func (h *Handle) Path() string { return h.path }

func (h *Handle) BusyTimeout() time.Duration { return h.busy }

func (h *Handle) DB() (*sql.DB, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.quiesced || h.sqdb == nil {
		return nil, ErrQuiesced
	}
	return h.sqdb, nil
}

// Quiesce closes the pool. Calls to DB fail with ErrQuiesced until Resume.
func (h *Handle) Quiesce() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.path == "" {
		return errors.New("handle has no backing file")
	}
	if h.quiesced {
		return nil
	}
	h.quiesced = true
	if h.sqdb == nil {
		return nil
	}
	err := h.sqdb.Close()
	h.sqdb = nil
	return err
}

// Resume reopens the file at Path and re-applies migrations.
func (h *Handle) Resume(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.quiesced {
		return nil
	}
	sqdb, err := h.open(ctx)
	if err != nil {
		return err
	}
	h.sqdb = sqdb
	h.quiesced = false
	return nil
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sqdb == nil {
		return nil
	}
	err := h.sqdb.Close()
	h.sqdb = nil
	h.quiesced = true
	return err
}

package main

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/casilisto/sync/internal/models"
)

// fileSource keeps the shopping list as a JSON file the user can edit
// with anything. Writes done by Apply update the file's mtime, so the
// watcher must remember the mtimes it produced itself to avoid sync
// loops.
type fileSource struct {
	path string

	mu        sync.Mutex
	ownMtimes map[int64]struct{}
}

func newFileSource(path string) *fileSource {
	return &fileSource{
		path:      path,
		ownMtimes: make(map[int64]struct{}),
	}
}

func (f *fileSource) Path() string {
	return f.path
}

func (f *fileSource) Snapshot(ctx context.Context) (*models.SyncData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *fileSource) Apply(ctx context.Context, data *models.SyncData) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.path, buf, 0o644); err != nil {
		return err
	}

	if st, err := os.Stat(f.path); err == nil {
		f.ownMtimes[st.ModTime().UnixMilli()] = struct{}{}
	}
	return nil
}

func (f *fileSource) LastModified(ctx context.Context) (int64, error) {
	st, err := os.Stat(f.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return st.ModTime().UnixMilli(), nil
}

// Watch polls the file's mtime and reports edits made outside Apply.
func (f *fileSource) Watch(ctx context.Context, interval time.Duration, onChange func()) {
	go func() {
		var lastSeen int64
		if st, err := os.Stat(f.path); err == nil {
			lastSeen = st.ModTime().UnixMilli()
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				st, err := os.Stat(f.path)
				if err != nil {
					continue
				}
				mtime := st.ModTime().UnixMilli()
				if mtime == lastSeen {
					continue
				}
				lastSeen = mtime

				f.mu.Lock()
				_, own := f.ownMtimes[mtime]
				delete(f.ownMtimes, mtime)
				f.mu.Unlock()

				if !own {
					onChange()
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (f *fileSource) read() (*models.SyncData, error) {
	data := &models.SyncData{}

	buf, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		data.Normalize()
		return data, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(buf, data); err != nil {
		return nil, err
	}
	data.Normalize()
	return data, nil
}

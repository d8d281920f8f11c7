// Package replay keeps a bounded FIFO of recent push frames and persists it
// across restarts so freshly-connected clients can catch up.
package replay

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const saveDebounce = 5 * time.Second

// Entry is one buffered push frame in raw wire form.
type Entry struct {
	Frame     []byte
	Timestamp int64 // unix milliseconds
}

type persistedEntry struct {
	Frame     string `json:"frame"`
	Timestamp int64  `json:"timestamp"`
}

// Buffer is a bounded FIFO with debounced file persistence. Overflow evicts
// the oldest entries. A corrupt or missing file loads as empty.
type Buffer struct {
	logger   *slog.Logger
	path     string
	capacity int

	mu        sync.Mutex
	entries   []Entry
	saveTimer *time.Timer
	now       func() time.Time
}

func NewBuffer(path string, capacity int, logger *slog.Logger) *Buffer {
	return &Buffer{
		logger:   logger,
		path:     path,
		capacity: capacity,
		now:      time.Now,
	}
}

// Load replaces the buffer contents with the persisted entries, if any.
func (b *Buffer) Load() {
	raw, err := os.ReadFile(filepath.Clean(b.path))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			b.logger.Warn("read push buffer file failed", "path", b.path, "error", err)
		}
		return
	}

	var persisted []persistedEntry
	if err := json.Unmarshal(raw, &persisted); err != nil {
		b.logger.Warn("push buffer file corrupt, starting empty", "path", b.path, "error", err)
		return
	}

	entries := make([]Entry, 0, len(persisted))
	for _, p := range persisted {
		frame, err := base64.StdEncoding.DecodeString(p.Frame)
		if err != nil {
			b.logger.Warn("push buffer entry corrupt, skipping", "error", err)
			continue
		}
		entries = append(entries, Entry{Frame: frame, Timestamp: p.Timestamp})
	}
	if len(entries) > b.capacity {
		entries = entries[len(entries)-b.capacity:]
	}

	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()
	b.logger.Info("push buffer loaded", "entries", len(entries))
}

// Add appends a push frame, evicting the oldest entry when full, and
// schedules a debounced save.
func (b *Buffer) Add(frame []byte) {
	entry := Entry{Frame: frame, Timestamp: b.now().UnixMilli()}

	b.mu.Lock()
	b.entries = append(b.entries, entry)
	if len(b.entries) > b.capacity {
		b.entries = b.entries[len(b.entries)-b.capacity:]
	}
	b.scheduleSaveLocked()
	b.mu.Unlock()
}

// Snapshot returns the buffered entries in insertion order.
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the current number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Flush writes the buffer to disk immediately, cancelling any pending
// debounced save. Called on graceful shutdown.
func (b *Buffer) Flush() error {
	b.mu.Lock()
	if b.saveTimer != nil {
		b.saveTimer.Stop()
		b.saveTimer = nil
	}
	entries := make([]Entry, len(b.entries))
	copy(entries, b.entries)
	b.mu.Unlock()

	return b.save(entries)
}

func (b *Buffer) scheduleSaveLocked() {
	if b.saveTimer != nil {
		b.saveTimer.Reset(saveDebounce)
		return
	}
	b.saveTimer = time.AfterFunc(saveDebounce, func() {
		b.mu.Lock()
		b.saveTimer = nil
		entries := make([]Entry, len(b.entries))
		copy(entries, b.entries)
		b.mu.Unlock()

		if err := b.save(entries); err != nil {
			b.logger.Warn("save push buffer failed", "error", err)
		}
	})
}

func (b *Buffer) save(entries []Entry) error {
	persisted := make([]persistedEntry, 0, len(entries))
	for _, e := range entries {
		persisted = append(persisted, persistedEntry{
			Frame:     base64.StdEncoding.EncodeToString(e.Frame),
			Timestamp: e.Timestamp,
		})
	}

	raw, err := json.Marshal(persisted)
	if err != nil {
		return fmt.Errorf("encode push buffer: %w", err)
	}

	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create push buffer dir: %w", err)
		}
	}

	tmpPath := b.path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp push buffer: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		return fmt.Errorf("rename temp push buffer: %w", err)
	}

	return nil
}

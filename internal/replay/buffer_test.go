package replay

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBufferEvictsOldestOnOverflow(t *testing.T) {
	b := NewBuffer(filepath.Join(t.TempDir(), "buf.json"), 3, testLogger())

	for i := byte(0); i < 5; i++ {
		b.Add([]byte{i})
	}

	entries := b.Snapshot()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []byte{2, 3, 4} {
		if entries[i].Frame[0] != want {
			t.Fatalf("entry %d: expected frame %d, got %d", i, want, entries[i].Frame[0])
		}
	}
}

func TestBufferSnapshotPreservesOrder(t *testing.T) {
	b := NewBuffer(filepath.Join(t.TempDir(), "buf.json"), 10, testLogger())

	frames := [][]byte{{0x3E, 0x01}, {0x3E, 0x02}, {0x3E, 0x03}}
	for _, f := range frames {
		b.Add(f)
	}

	entries := b.Snapshot()
	if len(entries) != len(frames) {
		t.Fatalf("expected %d entries, got %d", len(frames), len(entries))
	}
	for i := range frames {
		if !bytes.Equal(entries[i].Frame, frames[i]) {
			t.Fatalf("entry %d: expected %x, got %x", i, frames[i], entries[i].Frame)
		}
	}
}

func TestBufferFlushAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buf.json")

	b := NewBuffer(path, 10, testLogger())
	b.Add([]byte{0x3E, 0x01, 0x00, 0x80})
	b.Add([]byte{0x3E, 0x01, 0x00, 0x81})
	if err := b.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	reloaded := NewBuffer(path, 10, testLogger())
	reloaded.Load()

	got := reloaded.Snapshot()
	want := b.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %d entries after reload, got %d", len(want), len(got))
	}
	for i := range want {
		if !bytes.Equal(got[i].Frame, want[i].Frame) {
			t.Fatalf("entry %d: expected %x, got %x", i, want[i].Frame, got[i].Frame)
		}
		if got[i].Timestamp != want[i].Timestamp {
			t.Fatalf("entry %d: expected timestamp %d, got %d", i, want[i].Timestamp, got[i].Timestamp)
		}
	}
}

func TestBufferLoadTrimsToCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buf.json")

	big := NewBuffer(path, 10, testLogger())
	for i := byte(0); i < 5; i++ {
		big.Add([]byte{i})
	}
	if err := big.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	small := NewBuffer(path, 2, testLogger())
	small.Load()

	entries := small.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Frame[0] != 3 || entries[1].Frame[0] != 4 {
		t.Fatalf("expected newest entries kept, got %x %x", entries[0].Frame, entries[1].Frame)
	}
}

func TestBufferLoadMissingFile(t *testing.T) {
	b := NewBuffer(filepath.Join(t.TempDir(), "missing.json"), 10, testLogger())
	b.Load()

	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d entries", b.Len())
	}
}

func TestBufferLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buf.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	b := NewBuffer(path, 10, testLogger())
	b.Load()

	if b.Len() != 0 {
		t.Fatalf("expected empty buffer from corrupt file, got %d entries", b.Len())
	}
}

func TestBufferLoadSkipsCorruptEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buf.json")
	raw := `[{"frame":"!!!","timestamp":1},{"frame":"PgEAgA==","timestamp":2}]`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	b := NewBuffer(path, 10, testLogger())
	b.Load()

	entries := b.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("expected 1 valid entry, got %d", len(entries))
	}
	if !bytes.Equal(entries[0].Frame, []byte{0x3E, 0x01, 0x00, 0x80}) {
		t.Fatalf("unexpected frame %x", entries[0].Frame)
	}
}

func TestBufferFlushCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "buf.json")

	b := NewBuffer(path, 10, testLogger())
	b.Add([]byte{0x01})
	if err := b.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected buffer file to exist: %v", err)
	}
}

package cache

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/wasmsandbox/core/internal/runtime"
)

// DiskStore persists guest module bytes under a content-hash-named file
// tree so a process restart can skip re-fetching the source bytes, per
// spec.md §6. Writes are atomic: staged to a temp file in the same
// directory, then os.Rename'd into place, so a concurrent reader never
// observes a partially-written file.
type DiskStore struct {
	dir     string
	watcher *fsnotify.Watcher
	onEvict func(hash [32]byte)
}

// NewDiskStore creates (if needed) dir and returns a DiskStore rooted
// there. onEvict, if non-nil, is invoked when fsnotify reports a stored
// entry was removed or replaced out-of-band, so the caller can
// Invalidate the in-memory ModuleCache entry too.
func NewDiskStore(dir string, onEvict func(hash [32]byte)) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	ds := &DiskStore{dir: dir, watcher: w, onEvict: onEvict}
	go ds.watch()
	return ds, nil
}

func (d *DiskStore) watch() {
	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			hash, ok := hashFromPath(ev.Name)
			if ok && d.onEvict != nil {
				d.onEvict(hash)
			}
		case _, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the filesystem watcher.
func (d *DiskStore) Close() error {
	return d.watcher.Close()
}

func (d *DiskStore) path(hash [32]byte) string {
	return filepath.Join(d.dir, hex.EncodeToString(hash[:])+".wasm")
}

func hashFromPath(p string) ([32]byte, bool) {
	var hash [32]byte
	name := filepath.Base(p)
	name = name[:len(name)-len(filepath.Ext(name))]
	raw, err := hex.DecodeString(name)
	if err != nil || len(raw) != len(hash) {
		return hash, false
	}
	copy(hash[:], raw)
	return hash, true
}

// Store writes mod's original bytes to disk under its content hash,
// atomically via a temp-file-then-rename in the same directory.
func (d *DiskStore) Store(ctx context.Context, hash [32]byte, mod *runtime.Module) error {
	wasmBytes, ok := mod.Native.(rawBytesHolder)
	if !ok {
		return nil // backend doesn't retain raw bytes; persistence is best-effort
	}
	tmp, err := os.CreateTemp(d.dir, "staging-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(wasmBytes.RawBytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, d.path(hash))
}

// Load recompiles the module stored under hash, if present.
func (d *DiskStore) Load(ctx context.Context, hash [32]byte, rt runtime.Runtime) (*runtime.Module, bool, error) {
	wasmBytes, err := os.ReadFile(d.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	mod, err := rt.Compile(ctx, wasmBytes)
	if err != nil {
		return nil, false, err
	}
	return mod, true, nil
}

// rawBytesHolder is an optional interface a backend's Module.Native value
// may implement to expose the original source bytes for disk persistence.
type rawBytesHolder interface {
	RawBytes() []byte
}

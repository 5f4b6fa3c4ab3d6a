package sandbox

import (
	"context"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/wasmsandbox/core/internal/instance"
	"github.com/wasmsandbox/core/internal/marshal"
)

// startHotReload watches path for writes/renames and, on change, recompiles
// the new bytes, swaps in a freshly built instance and terminates the old
// one. Supplemental feature (WithWatchedFile), grounded on
// opa/loader/file/loader.go's change-driven bundle reloader.
func (s *Sandbox) startHotReload(path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	s.stopHotReload = make(chan struct{})

	go s.watchLoop(path)
	return nil
}

func (s *Sandbox) watchLoop(path string) {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.reloadFrom(path)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("hot reload watcher error", "path", path, "error", err.Error())
		case <-s.stopHotReload:
			return
		}
	}
}

// reloadFrom recompiles path's current bytes and swaps the primary
// instance onto the new module. Manager.Reset only ever rebinds to the
// Module it was constructed with (instance/manager.go), so a genuine
// module change needs a fresh Manager rather than a Reset.
func (s *Sandbox) reloadFrom(path string) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		s.log.Warn("hot reload read failed", "path", path, "error", err.Error())
		return
	}

	ctx := context.Background()
	mod, err := s.cache.GetOrCompile(ctx, wasmBytes)
	if err != nil {
		s.log.Warn("hot reload compile failed", "path", path, "error", err.Error())
		return
	}

	fresh, err := instance.New(ctx, s.rt, mod, s.cfg, s.caps, s.governor, s.instanceStateObserver)
	if err != nil {
		s.log.Warn("hot reload instantiate failed", "path", path, "error", err.Error())
		return
	}

	s.live.Lock()
	old := s.mgr
	s.module = mod
	s.mgr = fresh
	s.caller = marshal.NewCaller(fresh, s.codecs, defaultAllocExport, defaultDeallocExport, defaultSentinelOffset, s.log)
	s.live.Unlock()

	if err := old.Terminate(ctx, true); err != nil {
		s.log.Warn("hot reload old instance terminate failed", "path", path, "error", err.Error())
	}
}

func (s *Sandbox) stopHotReloadIfRunning() {
	if s.watcher == nil {
		return
	}
	close(s.stopHotReload)
	s.watcher.Close()
}

// Package config provides configuration management utilities including
// file watching and signal handling for dynamic configuration reload.
package config

import (
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// ReloadFunc is called when a reload is triggered. path is the file that
// changed, or the config path for SIGHUP. Errors are logged and the watcher
// keeps running.
type ReloadFunc func(path string) error

// SetupSIGHUPHandler calls reloadFn with configPath on every SIGHUP.
// The returned function stops signal delivery.
//
// Usage:
//
//	stop := SetupSIGHUPHandler("/path/to/config.yaml", server.Reload)
//	defer stop()
//	// Now: kill -HUP <pid> triggers reload
func SetupSIGHUPHandler(configPath string, reloadFn ReloadFunc) (stop func()) {
	// Buffered channel prevents signal loss if handler is busy
	sighup := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sighup, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sighup:
				log.Info("SIGHUP received, reloading configuration...")
				if err := reloadFn(configPath); err != nil {
					log.Errorf("Configuration reload failed: %v", err)
				}
			case <-done:
				return
			}
		}
	}()

	log.Info("SIGHUP handler configured for config reload")
	return func() {
		signal.Stop(sighup)
		close(done)
	}
}

// Watcher calls a ReloadFunc when one of its files changes. Files can be
// added while it runs.
type Watcher struct {
	fs       *fsnotify.Watcher
	reloadFn ReloadFunc

	mu sync.RWMutex
	// cleaned file path -> path as given by the caller
	watched map[string]string
	dirs    map[string]bool
}

// WatchFiles watches files for changes and calls reloadFn with the path of
// the file that changed. Empty paths are ignored.
//
// IMPORTANT: Watches directories (not files) for atomic write compatibility.
// Editors write to a temp file and rename it over the original, which
// replaces the inode a file-level watch would be attached to.
//
// Returns the watcher for cleanup (caller should defer watcher.Close()).
//
// Usage:
//
//	watcher, err := WatchFiles([]string{cfgPath, passwordPath}, server.Reload)
//	if err != nil {
//	    log.Warnf("File watcher setup failed: %v", err)
//	} else {
//	    defer watcher.Close()
//	}
func WatchFiles(paths []string, reloadFn ReloadFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fs:       fsw,
		reloadFn: reloadFn,
		watched:  make(map[string]string, len(paths)),
		dirs:     make(map[string]bool, len(paths)),
	}
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}

	go w.run()
	return w, nil
}

// Add starts watching path. Adding an empty or already watched path is a
// no-op.
func (w *Watcher) Add(path string) error {
	if path == "" {
		return nil
	}
	clean := filepath.Clean(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.watched[clean]; ok {
		return nil
	}
	dir := filepath.Dir(clean)
	if !w.dirs[dir] {
		if err := w.fs.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.watched[clean] = path
	log.Infof("Watching file: %s", path)
	return nil
}

// WatchList returns the watched directories.
func (w *Watcher) WatchList() []string {
	return w.fs.WatchList()
}

// Close stops the watcher. No reload is triggered afterwards.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) lookup(name string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	path, ok := w.watched[filepath.Clean(name)]
	return path, ok
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			path, isWatched := w.lookup(event.Name)
			if !isWatched {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				log.Infof("%s changed, reloading...", path)
				if err := w.reloadFn(path); err != nil {
					log.Errorf("Configuration reload failed: %v", err)
				}
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Errorf("File watcher error: %v", err)
		}
	}
}

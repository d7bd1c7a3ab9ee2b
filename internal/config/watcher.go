package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rnmehta/dinevox/internal/menu"
)

// Watcher monitors the config file, and the menu file it references, for
// changes and calls the respective callback when a file is modified. It uses
// polling (not fsnotify) to keep dependencies minimal.
type Watcher struct {
	path         string
	interval     time.Duration
	onChange     func(old, new *Config)
	onMenuChange func(old, new *menu.MenuFile)

	mu          sync.Mutex
	current     *Config
	currentMenu *menu.MenuFile
	done        chan struct{}
	stopOnce    sync.Once

	// last known file state for change detection
	lastMtime time.Time
	lastHash  [sha256.Size]byte

	menuPath      string
	lastMenuMtime time.Time
	lastMenuHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithMenuChange registers a callback invoked when the menu file referenced
// by restaurant.menu_file changes on disk. The callback receives the previous
// and the newly loaded menu.
func WithMenuChange(fn func(old, new *menu.MenuFile)) WatcherOption {
	return func(w *Watcher) { w.onMenuChange = fn }
}

// NewWatcher creates a config file watcher. It loads the initial config (and
// the menu file, when one is configured) immediately and starts polling in a
// background goroutine.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	// Load initial config.
	cfg, hash, mtime, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.lastHash = hash
	w.lastMtime = mtime
	w.menuPath = cfg.Restaurant.MenuFile

	if w.menuPath != "" {
		mf, mhash, mmtime, err := w.loadMenuAndHash()
		if err != nil {
			return nil, fmt.Errorf("config: watcher initial menu load: %w", err)
		}
		w.currentMenu = mf
		w.lastMenuHash = mhash
		w.lastMenuMtime = mmtime
	}

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// CurrentMenu returns the most recently loaded valid menu, or nil when no
// menu file is configured.
func (w *Watcher) CurrentMenu() *menu.MenuFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentMenu
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

// poll runs in a background goroutine, checking the watched files periodically.
func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
			w.checkMenu()
		}
	}
}

// check reads the config file and, if it has changed and is valid, calls
// onChange and updates the current config.
func (w *Watcher) check() {
	// Quick mtime check first to avoid hashing unchanged files.
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	if info.ModTime().Equal(mtime) {
		return
	}

	// Mtime moved, so read and hash the new contents.
	cfg, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		slog.Warn("config watcher: failed to load config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()

	if hash == w.lastHash {
		// File was touched but content is identical.
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}

	old := w.current
	w.current = cfg
	w.lastHash = hash
	w.lastMtime = newMtime
	// A config reload may point at a different menu file; forget the old
	// menu state so checkMenu reloads from the new path.
	if cfg.Restaurant.MenuFile != w.menuPath {
		w.menuPath = cfg.Restaurant.MenuFile
		w.lastMenuMtime = time.Time{}
		w.lastMenuHash = [sha256.Size]byte{}
	}
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)

	// Invoke the callback outside the lock so it can safely call Current().
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// checkMenu reads the menu file and, if it has changed and is valid, calls
// onMenuChange and updates the current menu.
func (w *Watcher) checkMenu() {
	w.mu.Lock()
	path := w.menuPath
	mtime := w.lastMenuMtime
	w.mu.Unlock()

	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Warn("config watcher: cannot stat menu file", "path", path, "err", err)
		return
	}
	if info.ModTime().Equal(mtime) {
		return
	}

	mf, hash, newMtime, err := w.loadMenuAndHash()
	if err != nil {
		slog.Warn("config watcher: failed to load menu", "path", path, "err", err)
		return
	}

	w.mu.Lock()

	if hash == w.lastMenuHash {
		w.lastMenuMtime = newMtime
		w.mu.Unlock()
		return
	}

	old := w.currentMenu
	w.currentMenu = mf
	w.lastMenuHash = hash
	w.lastMenuMtime = newMtime
	w.mu.Unlock()

	// Log an item-level diff so menu edits are auditable from the logs.
	if old != nil {
		for _, c := range MenuDiff(old, mf) {
			slog.Info("config watcher: menu changed", "path", path, "change", c.String())
		}
	} else {
		slog.Info("config watcher: menu loaded", "path", path)
	}

	if w.onMenuChange != nil {
		w.onMenuChange(old, mf)
	}
}

// loadAndHash reads the config file, parses + validates it, and returns the
// config alongside the file's SHA-256 hash and modification time. If the
// config is invalid, it returns an error (the caller should keep the old one).
func (w *Watcher) loadAndHash() (*Config, [sha256.Size]byte, time.Time, error) {
	data, info, err := readFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, time.Time{}, err
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, [sha256.Size]byte{}, time.Time{}, err
	}

	return cfg, sha256.Sum256(data), info.ModTime(), nil
}

// loadMenuAndHash is the menu-file analogue of loadAndHash.
func (w *Watcher) loadMenuAndHash() (*menu.MenuFile, [sha256.Size]byte, time.Time, error) {
	w.mu.Lock()
	path := w.menuPath
	w.mu.Unlock()

	data, info, err := readFile(path)
	if err != nil {
		return nil, [sha256.Size]byte{}, time.Time{}, err
	}

	mf, err := menu.LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, [sha256.Size]byte{}, time.Time{}, err
	}

	return mf, sha256.Sum256(data), info.ModTime(), nil
}

// readFile reads path fully into memory and returns the bytes with the
// file's stat info. The stat comes from the open handle so the mtime matches
// the bytes even if the file is replaced mid-read.
func readFile(path string) ([]byte, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}

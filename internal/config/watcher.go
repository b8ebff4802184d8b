package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const (
	watchDebounce = 100 * time.Millisecond
	pollInterval  = 5 * time.Second
)

// Watcher reloads the config file, and the .env next to it, when either
// changes on disk. Each successful reload is passed to the callback together
// with the previous config; failed reloads are logged and the previous config
// stays in effect.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(old, new *Config)

	mu       sync.Mutex
	current  *Config
	lastMod  time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewWatcher(path string, current *Config, onReload func(old, new *Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     path,
		watcher:  fw,
		onReload: onReload,
		current:  current,
		stopChan: make(chan struct{}),
	}
	w.lastMod = w.modTime()
	return w, nil
}

// Start watches the config directory, falling back to polling when the
// directory cannot be watched.
func (w *Watcher) Start() {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch config directory, polling instead")
		go w.poll()
		return
	}
	go w.watch()
	log.Info().Str("path", w.path).Msg("Watching config for changes")
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
	})
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload re-reads the config immediately, e.g. on SIGHUP.
func (w *Watcher) Reload() {
	w.reload()
}

func (w *Watcher) relevant(name string) bool {
	base := filepath.Base(name)
	return name == w.path || base == filepath.Base(w.path) || base == ".env"
}

func (w *Watcher) watch() {
	var pending <-chan time.Time
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev.Name) || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Editors write in several steps; reload once they settle.
			pending = time.After(watchDebounce)
		case <-pending:
			pending = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mod := w.modTime()
			w.mu.Lock()
			changed := mod.After(w.lastMod)
			w.mu.Unlock()
			if changed {
				w.reload()
			}
		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) modTime() time.Time {
	var latest time.Time
	for _, p := range []string{w.path, filepath.Join(filepath.Dir(w.path), ".env")} {
		if st, err := os.Stat(p); err == nil && st.ModTime().After(latest) {
			latest = st.ModTime()
		}
	}
	return latest
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("Config reload failed, keeping previous config")
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.lastMod = w.modTime()
	w.mu.Unlock()

	changes := Diff(old, cfg)
	if len(changes) == 0 {
		log.Debug().Str("path", w.path).Msg("Config reloaded, nothing changed")
	} else {
		log.Info().Strs("changes", changes).Msg("Config reloaded")
	}
	if w.onReload != nil {
		w.onReload(old, cfg)
	}
}

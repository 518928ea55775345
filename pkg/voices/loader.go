package voices

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader loads and optionally hot-reloads voice catalogs from YAML files.
type Loader struct {
	dir string

	mu       sync.RWMutex
	catalogs map[string]*Catalog
}

// NewLoader creates a loader for the given directory.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:      dir,
		catalogs: make(map[string]*Catalog),
	}
}

// LoadAll loads all .yaml and .yml files from the configured directory.
// A failed reload keeps the previous catalogs.
func (l *Loader) LoadAll() (map[string]*Catalog, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read voice dir %q: %w", l.dir, err)
	}

	result := make(map[string]*Catalog)
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		c, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		if _, dup := result[c.Backend]; dup {
			return nil, fmt.Errorf("load %q: backend %q already has a catalog", path, c.Backend)
		}
		result[c.Backend] = c
	}

	l.mu.Lock()
	l.catalogs = result
	l.mu.Unlock()

	return result, nil
}

// Get returns the catalog for a backend.
func (l *Loader) Get(backend string) (*Catalog, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.catalogs[backend]
	return c, ok
}

// All returns every loaded catalog.
func (l *Loader) All() map[string]*Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make(map[string]*Catalog, len(l.catalogs))
	for k, v := range l.catalogs {
		result[k] = v
	}
	return result
}

// Resolve maps a requested voice to the one sent to the backend. An empty
// voice selects the catalog default. Backends without a catalog accept any
// voice unchanged.
func (l *Loader) Resolve(backend, voice string) (string, error) {
	c, ok := l.Get(backend)
	if !ok {
		return voice, nil
	}
	if voice == "" {
		return c.Default(), nil
	}
	if !c.Has(voice) {
		return "", fmt.Errorf("%w %q for backend %s", ErrUnknownVoice, voice, backend)
	}
	return voice, nil
}

func loadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if c.Backend == "" {
		c.Backend = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// WatchAndReload watches the catalog directory and reloads on change.
// This blocks until the done channel is closed.
func (l *Loader) WatchAndReload(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isYAML(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if _, err := l.LoadAll(); err != nil {
					slog.Warn("voice catalog reload failed", slog.String("error", err.Error()))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

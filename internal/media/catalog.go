package media

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"trackmix/pkg/models"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Catalog lists the built-in effect clips in the library's effects
// directory and, once watching, keeps the list current as files come and go.
type Catalog struct {
	library *Library
	logger  *logrus.Logger

	mu      sync.RWMutex
	effects map[string]models.Effect
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewCatalog creates an empty catalog. Call Scan to populate it.
func NewCatalog(library *Library, logger *logrus.Logger) *Catalog {
	return &Catalog{
		library: library,
		logger:  logger,
		effects: make(map[string]models.Effect),
	}
}

// Scan rebuilds the catalog from the effects directory. A missing directory
// yields an empty catalog.
func (c *Catalog) Scan() error {
	dir := c.library.EffectsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.WithField("effects_dir", dir).Warn("Effects directory does not exist")
			c.mu.Lock()
			c.effects = make(map[string]models.Effect)
			c.mu.Unlock()
			return nil
		}
		return err
	}

	effects := make(map[string]models.Effect, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		p := filepath.Join(dir, entry.Name())
		if effect, ok := c.describe(p); ok {
			effects[p] = effect
		}
	}

	c.mu.Lock()
	c.effects = effects
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"effects_dir": dir,
		"count":       len(effects),
	}).Info("Effects catalog scanned")
	return nil
}

// List returns the effects sorted by name.
func (c *Catalog) List() []models.Effect {
	c.mu.RLock()
	out := make([]models.Effect, 0, len(c.effects))
	for _, e := range c.effects {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].File < out[j].File
	})
	return out
}

func (c *Catalog) describe(p string) (models.Effect, bool) {
	name := filepath.Base(p)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return models.Effect{}, false
	}
	extractor := c.library.Extractor()
	if !extractor.IsAudioFile(p) {
		return models.Effect{}, false
	}
	fileURL, err := c.library.URLFor(p)
	if err != nil {
		return models.Effect{}, false
	}

	effect := models.Effect{
		Name: strings.TrimSuffix(name, filepath.Ext(name)),
		File: fileURL,
	}
	if info, err := extractor.ExtractFromFile(p); err == nil {
		if info.Title != "" {
			effect.Name = info.Title
		}
		effect.DurationMs = info.DurationMs
	}
	return effect, true
}

// Watch starts an fsnotify watcher on the effects directory.
func (c *Catalog) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(c.library.EffectsDir()); err != nil {
		watcher.Close()
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.watcher = watcher
	c.done = done
	c.mu.Unlock()

	go c.watchFiles(watcher, done)

	c.logger.WithField("effects_dir", c.library.EffectsDir()).Info("Effects watcher started")
	return nil
}

// Stop closes the watcher, if any.
func (c *Catalog) Stop() {
	c.mu.Lock()
	watcher := c.watcher
	done := c.done
	c.watcher = nil
	c.mu.Unlock()

	if watcher != nil {
		watcher.Close()
		<-done
	}
}

func (c *Catalog) watchFiles(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			c.handleFileEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.WithError(err).Error("Effects watcher error")
		}
	}
}

func (c *Catalog) handleFileEvent(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		c.mu.Lock()
		_, existed := c.effects[event.Name]
		delete(c.effects, event.Name)
		c.mu.Unlock()
		if existed {
			c.logger.WithField("file", event.Name).Info("Effect removed")
		}

	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		effect, ok := c.describe(event.Name)
		if !ok {
			return
		}
		c.mu.Lock()
		c.effects[event.Name] = effect
		c.mu.Unlock()
		c.logger.WithFields(logrus.Fields{
			"file": event.Name,
			"name": effect.Name,
		}).Debug("Effect updated")
	}
}

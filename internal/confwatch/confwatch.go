// Package confwatch applies settings from an optional KEY=VALUE file and
// keeps them live. Edits to the file are written through to the settings
// store, then the affected subsystems reload without a restart.
package confwatch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/config"
	"github.com/saltyorg/subrewind/internal/database"
	"github.com/saltyorg/subrewind/internal/logging"
	"github.com/saltyorg/subrewind/internal/monitor"
	"github.com/saltyorg/subrewind/internal/web/sse"
)

// debounceDelay coalesces the event bursts editors produce on save.
const debounceDelay = 500 * time.Millisecond

// Watcher watches one settings file and applies changes to the database.
type Watcher struct {
	db        *database.DB
	path      string
	monitor   *monitor.Monitor
	sseBroker *sse.Broker

	watcher *fsnotify.Watcher
	running bool
	mu      sync.Mutex
	wg      sync.WaitGroup
	done    chan struct{}

	timerMu sync.Mutex
	timer   *time.Timer
}

// New creates a watcher for the given settings file. The file does not have
// to exist yet; its directory does, because the watch is placed on the
// directory so atomic replaces (rename over the file) are seen.
func New(db *database.DB, path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config file path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		db:      db,
		path:    abs,
		watcher: fsWatcher,
		done:    make(chan struct{}),
	}, nil
}

// SetMonitor sets the monitor reloaded after monitor.* or plex.* changes.
func (w *Watcher) SetMonitor(m *monitor.Monitor) {
	w.monitor = m
}

// SetSSEBroker sets the broker notified when the file changes settings.
func (w *Watcher) SetSSEBroker(b *sse.Broker) {
	w.sseBroker = b
}

// Path returns the watched file path.
func (w *Watcher) Path() string {
	return w.path
}

// Start applies the file once if it exists, then begins watching. A missing
// file is not an error; the watcher idles until it appears.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	if _, err := os.Stat(w.path); err == nil {
		if err := w.apply(); err != nil {
			log.Error().Err(err).Str("path", w.path).Msg("Failed to apply settings file")
		}
	} else {
		log.Info().Str("path", w.path).Msg("Settings file not present yet, watching for it")
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	w.running = true
	w.wg.Add(1)
	go w.eventLoop()

	log.Info().Str("path", w.path).Msg("Settings file watcher started")
	return nil
}

// Stop halts the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	w.watcher.Close()
	w.wg.Wait()

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()

	log.Info().Msg("Settings file watcher stopped")
}

// eventLoop filters directory events down to the watched file.
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				// Stored settings stay as they are; only log it
				log.Debug().Str("path", w.path).Msg("Settings file removed")
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.scheduleApply()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Settings file watcher error")
		}
	}
}

// scheduleApply (re)arms the debounce timer.
func (w *Watcher) scheduleApply() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, func() {
		if err := w.apply(); err != nil {
			log.Error().Err(err).Str("path", w.path).Msg("Failed to apply settings file")
		}
	})
}

// apply parses the file and writes changed values through to the settings
// store, then reloads the subsystems the changed keys belong to.
func (w *Watcher) apply() error {
	values, err := parseFile(w.path)
	if err != nil {
		return err
	}

	var logChanged, monitorChanged bool
	changed := 0

	for key, value := range values {
		current, err := w.db.GetSetting(key)
		if err != nil {
			return err
		}
		if current == value {
			continue
		}
		if err := w.db.SetSetting(key, value); err != nil {
			return err
		}
		changed++
		switch {
		case strings.HasPrefix(key, "log."):
			logChanged = true
		case strings.HasPrefix(key, "monitor."), strings.HasPrefix(key, "plex."):
			monitorChanged = true
		}
		if key == "plex.token" {
			log.Info().Str("key", key).Msg("Setting updated from file")
		} else {
			log.Info().Str("key", key).Str("value", value).Msg("Setting updated from file")
		}
	}

	if changed == 0 {
		return nil
	}

	loader := config.NewLoader(w.db)

	if logChanged {
		logging.Apply(loader.String("log.level", "info"), loader, logging.FilePathForDB(w.db.Path()))
	}

	if monitorChanged && w.monitor != nil {
		if err := w.monitor.Reload(); err != nil {
			log.Error().Err(err).Msg("Failed to restart monitor after settings file change")
		}
	}

	if w.sseBroker != nil {
		w.sseBroker.Broadcast(sse.Event{Type: sse.EventSettingsChanged, Data: map[string]any{"section": "file"}})
	}

	log.Info().Int("changed", changed).Str("path", w.path).Msg("Applied settings file")
	return nil
}

// parseFile reads KEY=VALUE lines. Blank lines and # comments are skipped;
// keys must be known settings.
func parseFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			log.Warn().Str("path", path).Int("line", lineNo).Msg("Skipping malformed settings line")
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if _, known := database.DefaultSettings[key]; !known {
			log.Warn().Str("path", path).Int("line", lineNo).Str("key", key).Msg("Skipping unknown settings key")
			continue
		}

		values[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

package config

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce drops the burst of events editors emit for a single save.
const debounce = 100 * time.Millisecond

// Watch reloads path whenever it changes and hands every valid config to fn.
// Invalid files are logged and skipped; the previous config stays in effect.
// The directory is watched rather than the file so that editors replacing the
// file by rename are followed. Watch returns when ctx is done.
func Watch(ctx context.Context, path string, fn func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	// a reload fires once the file has been quiet for debounce
	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if name, err := filepath.Abs(event.Name); err != nil || name != abs {
				continue
			}
			reload = time.After(debounce)
		case <-reload:
			reload = nil
			cfg, err := Load(abs)
			if err != nil {
				log.Printf("Config: reload %s: %v", abs, err)
				continue
			}
			log.Printf("Config: reloaded %s", abs)
			fn(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Config: watch %s: %v", abs, err)
		}
	}
}

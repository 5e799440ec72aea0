package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"partybot/pkg/logx"
)

// Watch re-reads the config file whenever it changes on disk and calls
// onChange with each successfully parsed result. Parse failures keep the
// previous config and are only logged, so a half-saved edit never takes
// the bot down.
//
// Editors replace files via rename, so the watch is on the parent
// directory rather than the file itself. Events are debounced because a
// single save commonly produces several write events.
func Watch(ctx context.Context, path string, log logx.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()

		var debounce *time.Timer
		reload := func() {
			cfg, err := Load(path)
			if err != nil {
				log.Warn("config reload failed; keeping previous config", logx.Err(err))
				return
			}
			log.Info("config reloaded", logx.String("path", path))
			onChange(cfg)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, reload)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", logx.Err(err))
			}
		}
	}()

	return nil
}

package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reports changes to the content of the file at path. The directory is
// watched so editors that replace the file are seen too. The channel closes
// when ctx ends or the watcher fails.
func Watch(ctx context.Context, path string) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config file watcher: %w", err)
	}

	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("adding config directory to watcher: %w", err)
	}

	changes := make(chan struct{}, 1)
	lastHash, _ := fileHash(path)

	go func() {
		defer close(changes)
		defer func() {
			if err := w.Close(); err != nil {
				slog.Error("closing config file watcher", "error", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}

				h, err := fileHash(path)
				if err != nil || h == lastHash {
					continue
				}
				lastHash = h

				slog.Debug("config file modified", "file", event.Name)
				select {
				case changes <- struct{}{}:
				default:
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("config watcher", "error", err)
				return
			}
		}
	}()

	return changes, nil
}

func fileHash(path string) ([32]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

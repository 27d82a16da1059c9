package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Tail follows a growing file. It copies what the file already holds, then
// copies each append as fsnotify reports it. The tail ends cleanly when the
// file is removed or renamed, and with ctx.Err() when ctx is done. dst is
// closed for writing on every return.
func Tail(ctx context.Context, path string, dst Sink, cfg Config) (int64, error) {
	f := newFeed(dst, cfg)
	path = filepath.Clean(path)

	file, err := os.Open(path)
	if err != nil {
		return 0, f.finish(fmt.Errorf("live: tail %s: %w", path, err))
	}
	defer file.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return 0, f.finish(fmt.Errorf("live: watch %s: %w", path, err))
	}
	defer watcher.Close()
	// The directory is watched so removal is reported while the file is
	// still open.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return 0, f.finish(fmt.Errorf("live: watch %s: %w", path, err))
	}

	chunk := make([]byte, f.cfg.ChunkSize)
	drain := func() error {
		for {
			n, err := file.Read(chunk)
			if n > 0 {
				if werr := f.write(ctx, chunk[:n], f.cfg.Sync); werr != nil {
					return werr
				}
			}
			if errors.Is(err, io.EOF) || (err == nil && n == 0) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("live: read %s: %w", path, err)
			}
		}
	}

	// Appends made between Open and Add are picked up here.
	if err := drain(); err != nil {
		return f.total, f.finish(err)
	}
	f.cfg.Logger.Debug("tailing file", "source", f.cfg.Name, "path", path)

	for {
		select {
		case <-ctx.Done():
			return f.total, f.finish(ctx.Err())

		case event, ok := <-watcher.Events:
			if !ok {
				return f.total, f.finish(nil)
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) {
				if err := drain(); err != nil {
					return f.total, f.finish(err)
				}
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				// The open descriptor still reads whatever was written last.
				if err := drain(); err != nil {
					return f.total, f.finish(err)
				}
				return f.total, f.finish(nil)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return f.total, f.finish(nil)
			}
			return f.total, f.finish(fmt.Errorf("live: watch %s: %w", path, err))
		}
	}
}

package bake

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch re-bakes sources under sourceRoot whenever they are created or written, until
// ctx is cancelled. Each result is passed to onResult when it is non-nil.
func (b *Baker) Watch(ctx context.Context, sourceRoot, exportRoot string, onResult func(Result)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	absExport, _ := filepath.Abs(exportRoot)
	if err := watchRecursive(watcher, sourceRoot, absExport); err != nil {
		return err
	}
	b.log.Info("watching", zap.String("source", sourceRoot), zap.String("export", exportRoot))

	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
		wg      sync.WaitGroup
	)
	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok && t.Stop() {
			t.Reset(b.opts.WatchDelay)
			return
		}
		wg.Add(1)
		var t *time.Timer
		t = time.AfterFunc(b.opts.WatchDelay, func() {
			defer wg.Done()
			mu.Lock()
			if pending[path] == t {
				delete(pending, path)
			}
			mu.Unlock()

			res, err := b.BakeFile(path, sourceRoot, exportRoot)
			if err != nil {
				b.log.Warn("watch", zap.String("path", path), zap.Error(err))
				return
			}
			if onResult != nil {
				onResult(res)
			}
		})
		pending[path] = t
	}
	defer func() {
		mu.Lock()
		for path, t := range pending {
			if t.Stop() {
				wg.Done()
			}
			delete(pending, path)
		}
		mu.Unlock()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := watchRecursive(watcher, e.Name, absExport); err != nil {
						b.log.Warn("watch directory", zap.String("path", e.Name), zap.Error(err))
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if _, ok := Classify(e.Name, b.opts.TextureExtensions, b.opts.SceneExtensions); ok {
				schedule(e.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			b.log.Warn("watcher error", zap.Error(err))
		}
	}
}

// watchRecursive adds dir and every directory below it, except hidden ones and skip.
func watchRecursive(watcher *fsnotify.Watcher, dir, skip string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if skip != "" {
			if abs, err := filepath.Abs(path); err == nil && abs == skip {
				return filepath.SkipDir
			}
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

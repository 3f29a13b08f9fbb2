package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tendant/odm-dispatcher/internal/dispatch"
)

var defaultExts = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
}

// FSConfig configures the inbox watcher. Dir must not be the shared mount's
// images directory, or saved inputs would trigger themselves.
type FSConfig struct {
	Dir         string
	AllowedExts map[string]struct{}
	InitialScan bool
	// Debounce coalesces the create/write burst of one file copy.
	Debounce time.Duration
	// ProcessedDir receives inbox files once their input is saved, so a
	// rescan never launches them again. Defaults to Dir/processed.
	ProcessedDir string
}

// WatchDir dispatches every new file dropped into cfg.Dir until ctx ends.
func WatchDir(ctx context.Context, cfg FSConfig, runner *Runner, logger *slog.Logger) error {
	if cfg.Dir == "" {
		return errors.New("no inbox directory provided")
	}
	if cfg.AllowedExts == nil {
		cfg.AllowedExts = defaultExts
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = filepath.Join(cfg.Dir, "processed")
	}
	if err := os.MkdirAll(cfg.ProcessedDir, 0o755); err != nil {
		return fmt.Errorf("create processed dir: %w", err)
	}
	logger = logger.With("trigger", "fs", "dir", cfg.Dir)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(cfg.Dir); err != nil {
		return err
	}

	var mu sync.Mutex
	pending := map[string]*time.Timer{}
	fire := func(path string) {
		mu.Lock()
		delete(pending, path)
		mu.Unlock()
		dispatchFile(path, cfg.ProcessedDir, runner, logger)
	}
	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok {
			t.Stop()
		}
		pending[path] = time.AfterFunc(cfg.Debounce, func() { fire(path) })
	}

	if cfg.InitialScan {
		entries, err := os.ReadDir(cfg.Dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			p := filepath.Join(cfg.Dir, e.Name())
			if !e.IsDir() && allowed(p, cfg.AllowedExts) {
				schedule(p)
			}
		}
	}

	logger.Info("watching inbox")
	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, t := range pending {
				t.Stop()
			}
			mu.Unlock()
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 && allowed(e.Name, cfg.AllowedExts) {
				schedule(e.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "err", err)
		}
	}
}

func dispatchFile(path, processedDir string, runner *Runner, logger *slog.Logger) {
	f, err := os.Open(path)
	if err != nil {
		logger.Error("open inbox file failed", "path", path, "err", err)
		return
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return
	}
	logger.Info("inbox file ready", "path", path, "bytes", info.Size())
	runner.Go(dispatch.Input{
		Name: filepath.Base(path),
		Body: f,
		OnSaved: func(string) {
			dst := filepath.Join(processedDir, filepath.Base(path))
			if err := os.Rename(path, dst); err != nil {
				logger.Error("move processed inbox file failed", "path", path, "dst", dst, "err", err)
			}
		},
	}, f)
}

func allowed(path string, exts map[string]struct{}) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	_, ok := exts[ext]
	return ok
}

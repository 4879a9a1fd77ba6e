package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/xiaot623/viper/internal/domain"
)

const reloadDebounce = 100 * time.Millisecond

// fileDocument is the YAML layout of a models file.
type fileDocument struct {
	Selected string               `yaml:"selected"`
	Models   []domain.ModelConfig `yaml:"models"`
}

// File is a registry backed by a YAML file. Watch keeps it in sync with
// the file on disk.
type File struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	models   []domain.ModelConfig
	selected string

	debounceMu sync.Mutex
	debounce   *time.Timer
	watcher    *fsnotify.Watcher
}

// LoadFile reads path and returns a registry for it.
func LoadFile(path string, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := &File{path: path, logger: logger}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Reload re-reads the file. On error the previous contents are kept.
func (f *File) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read models file: %w", err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse models file: %w", err)
	}
	for i := range doc.Models {
		if doc.Models[i].Name == "" {
			return fmt.Errorf("models file: model %d has no name", i)
		}
		doc.Models[i].Source = "file"
	}

	f.mu.Lock()
	f.models = doc.Models
	f.selected = doc.Selected
	f.mu.Unlock()
	return nil
}

// Selected implements Registry.
func (f *File) Selected(_ context.Context) (*domain.ModelConfig, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return findModel(f.models, f.selected), nil
}

// List implements Registry.
func (f *File) List(_ context.Context) ([]domain.ModelConfig, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return cloneModels(f.models), nil
}

// Watch reloads the registry whenever the file changes until ctx is done.
// The parent directory is watched so editors that replace the file by
// rename are picked up.
func (f *File) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch models file: %w", err)
	}
	f.watcher = watcher

	go f.watchLoop(ctx)
	f.logger.Info("watching models file", "path", f.path)
	return nil
}

func (f *File) watchLoop(ctx context.Context) {
	defer f.stop()
	name := filepath.Base(f.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			f.scheduleReload()
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Error("models file watcher error", "error", err)
		}
	}
}

func (f *File) scheduleReload() {
	f.debounceMu.Lock()
	defer f.debounceMu.Unlock()

	if f.debounce != nil {
		f.debounce.Stop()
	}
	f.debounce = time.AfterFunc(reloadDebounce, func() {
		if err := f.Reload(); err != nil {
			f.logger.Warn("failed to reload models file", "path", f.path, "error", err)
			return
		}
		f.logger.Info("models file reloaded", "path", f.path)
	})
}

func (f *File) stop() {
	f.debounceMu.Lock()
	if f.debounce != nil {
		f.debounce.Stop()
	}
	f.debounceMu.Unlock()
	f.watcher.Close()
}

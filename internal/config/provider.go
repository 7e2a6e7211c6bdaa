package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Provider holds the active configuration and swaps it when the backing file changes.
type Provider struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	logger *slog.Logger
}

// NewProvider wraps an already loaded configuration. path may be empty when the
// configuration did not come from a file; Watch is then a no-op.
func NewProvider(cfg *Config, path string) *Provider {
	return &Provider{path: path, cfg: cfg}
}

// SetLogger installs the logger used to report reload outcomes.
func (p *Provider) SetLogger(logger *slog.Logger) {
	p.mu.Lock()
	p.logger = logger
	p.mu.Unlock()
}

// Current returns the active configuration. Callers must treat it as read-only.
func (p *Provider) Current() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Path returns the backing file path, if any.
func (p *Provider) Path() string {
	return p.path
}

// Reload re-reads the backing file. A config that fails to parse or validate is
// rejected and the previous one stays active.
func (p *Provider) Reload() error {
	if strings.TrimSpace(p.path) == "" {
		return nil
	}
	cfg, _, _, err := Load(p.path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	return nil
}

// Watch reloads the configuration whenever its file is written, created, or
// renamed into place. It blocks until ctx is cancelled.
func (p *Provider) Watch(ctx context.Context) error {
	if strings.TrimSpace(p.path) == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(p.path)
	file := filepath.Base(p.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, p.reloadAndLog)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger := p.log(); logger != nil {
				logger.Warn("config watcher error", slog.String("path", p.path), slog.Any("error", werr))
			}
		}
	}
}

func (p *Provider) reloadAndLog() {
	logger := p.log()
	if err := p.Reload(); err != nil {
		if logger != nil {
			logger.Warn("config reload rejected; keeping previous configuration",
				slog.String("path", p.path),
				slog.Any("error", err),
			)
		}
		return
	}
	if logger != nil {
		logger.Info("config reloaded", slog.String("path", p.path))
	}
}

func (p *Provider) log() *slog.Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.logger
}

package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"kubechat/chat"
	"kubechat/provider"
)

// Live holds the current configuration and swaps it atomically on reload,
// so long-lived consumers (the orchestrator's credential source) always see
// fresh credentials.
type Live struct {
	mu  sync.RWMutex
	cfg *Config
}

func NewLive(cfg *Config) *Live {
	return &Live{cfg: cfg}
}

func (l *Live) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

func (l *Live) Set(cfg *Config) {
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
}

// Credential implements chat.CredentialSource against the current config.
func (l *Live) Credential(id provider.ID) (chat.Credential, bool) {
	return l.Get().Credential(id)
}

// Watch re-reads the config file whenever it changes and publishes the
// result to live. It blocks until ctx is done. The parent directory is
// watched because editors typically replace the file on save.
func Watch(ctx context.Context, path string, live *Live, log *zap.Logger) error {
	if path == "" {
		path = DefaultPath()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				log.Warn("config reload failed", zap.String("path", path), zap.Error(err))
				continue
			}
			live.Set(cfg)
			log.Info("config reloaded", zap.String("path", path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		}
	}
}

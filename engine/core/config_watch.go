package core

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reloads a config file whenever it changes on disk and publishes
// the validated result. Invalid edits are logged and skipped.
type ConfigWatcher struct {
	path     string
	fsnotify *fsnotify.Watcher
	updates  chan *Config
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewConfigWatcher(path string) (*ConfigWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files with rename+create, which
	// drops a watch placed on the file itself.
	if err := fsWatch.Add(filepath.Dir(absPath)); err != nil {
		fsWatch.Close()
		return nil, err
	}

	cw := &ConfigWatcher{
		path:     absPath,
		fsnotify: fsWatch,
		updates:  make(chan *Config, 1),
		done:     make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.start()
	return cw, nil
}

// Updates delivers reloaded configs. Only the latest pending config is kept.
func (cw *ConfigWatcher) Updates() <-chan *Config {
	return cw.updates
}

func (cw *ConfigWatcher) Close() error {
	var err error
	cw.once.Do(func() {
		close(cw.done)
		err = cw.fsnotify.Close()
		cw.wg.Wait()
	})
	return err
}

func (cw *ConfigWatcher) start() {
	defer cw.wg.Done()
	for {
		select {
		case <-cw.done:
			return
		case event, ok := <-cw.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := LoadConfig(cw.path)
			if err != nil {
				LogWarn("ignoring config change: %s", err)
				continue
			}
			LogInfo("config %s reloaded", cw.path)
			cw.publish(cfg)
		case err, ok := <-cw.fsnotify.Errors:
			if !ok {
				return
			}
			LogError("config watcher: %s", err)
		}
	}
}

func (cw *ConfigWatcher) publish(cfg *Config) {
	// replace a stale pending config rather than block the watcher
	select {
	case <-cw.updates:
	default:
	}
	select {
	case cw.updates <- cfg:
	case <-cw.done:
	}
}

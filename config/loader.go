package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/beadwright/orchestrator/oerr"
)

// Load reads and parses a YAML config file, starting from Default() so
// any field the file omits keeps its documented default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, oerr.New(oerr.External, "reading config file %s", path).Wrap(err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, oerr.New(oerr.Validation, "parsing config file %s", path).Wrap(err)
	}
	return cfg, nil
}

// debounceDelay coalesces rapid successive writes (editors that write a
// file in several syscalls) into a single reload.
const debounceDelay = 100 * time.Millisecond

// Watcher reloads a config file whenever it changes on disk and publishes
// the new Config on Changes. Grounded on kadirpekel-hector's fsnotify-plus-
// debounce-timer file-watch idiom.
type Watcher struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool

	changes chan Config
}

// NewWatcher starts watching path's containing directory for writes to
// path. It does not load the file itself: the first Config on Changes is
// the one reloaded after the first debounced write.
func NewWatcher(ctx context.Context, path string) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, oerr.New(oerr.Validation, "resolving config path %s", path).Wrap(err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, oerr.New(oerr.External, "creating file watcher").Wrap(err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, oerr.New(oerr.External, "watching config directory for %s", absPath).Wrap(err)
	}

	w := &Watcher{path: absPath, watcher: fsw, changes: make(chan Config, 1)}
	go w.run(ctx)
	return w, nil
}

// Changes delivers a freshly loaded Config after every debounced write to
// the watched file. A failed reload is skipped (the prior Config, if any,
// remains in effect) rather than sent as a zero value.
func (w *Watcher) Changes() <-chan Config {
	return w.changes
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.changes)
	defer w.watcher.Close()

	configFile := filepath.Base(w.path)
	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			cfg, err := Load(w.path)
			if err != nil {
				continue
			}
			select {
			case w.changes <- cfg:
			default:
				// Previous reload hasn't been consumed yet; drop this one,
				// the next write will trigger another.
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}

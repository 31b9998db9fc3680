package ml

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var ErrModelNotFound = errors.New("model not found")

const defaultCacheSize = 4

type RegistryConfig struct {
	// Default is the name used when a request names no model.
	Default   string
	Artifacts map[string]Artifact
	CacheSize int
	// Watch evicts a cached model when its artifact file changes.
	Watch       bool
	ONNXLibrary string
}

// Registry resolves model names to loaded classifiers. Loaded models are kept
// in an LRU cache; an evicted model is closed once the last holder releases it.
type Registry struct {
	cfg    RegistryConfig
	logger *zap.Logger
	load   func(Artifact) (PixelClassifier, error)

	mu     sync.Mutex
	loadMu sync.Mutex
	cache  *lru.Cache[string, *entry]

	watcher *fsnotify.Watcher
	watched map[string][]string
	done    chan struct{}
	wg      sync.WaitGroup
}

type entry struct {
	name    string
	model   PixelClassifier
	refs    int
	evicted bool
}

func NewRegistry(cfg RegistryConfig, logger *zap.Logger) (*Registry, error) {
	return newRegistry(cfg, logger, LoadModel)
}

func newRegistry(cfg RegistryConfig, logger *zap.Logger, load func(Artifact) (PixelClassifier, error)) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Artifacts) == 0 {
		return nil, errors.New("registry has no models")
	}
	if _, ok := cfg.Artifacts[cfg.Default]; !ok {
		return nil, fmt.Errorf("default model %q is not registered", cfg.Default)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}

	r := &Registry{
		cfg:    cfg,
		logger: logger.Named("models"),
		load:   load,
		done:   make(chan struct{}),
	}
	cache, err := lru.NewWithEvict[string, *entry](cfg.CacheSize, r.onEvict)
	if err != nil {
		return nil, err
	}
	r.cache = cache

	if cfg.Watch {
		if err := r.startWatch(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Default() string { return r.cfg.Default }

// Names lists the registered model names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.cfg.Artifacts))
	for name := range r.cfg.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Acquire returns the named model, loading it on a cache miss. The empty name
// selects the default model. The caller must call release when done.
func (r *Registry) Acquire(name string) (PixelClassifier, func(), error) {
	if name == "" {
		name = r.cfg.Default
	}
	artifact, ok := r.cfg.Artifacts[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}

	if e := r.hold(name); e != nil {
		return e.model, r.releaser(e), nil
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	if e := r.hold(name); e != nil {
		return e.model, r.releaser(e), nil
	}

	if artifact.Type == TypeONNX {
		if err := InitONNX(r.cfg.ONNXLibrary); err != nil {
			return nil, nil, err
		}
	}
	model, err := r.load(artifact)
	if err != nil {
		return nil, nil, fmt.Errorf("load model %q: %w", name, err)
	}
	r.logger.Info("model loaded", zap.String("name", name), zap.String("type", artifact.Type), zap.String("path", artifact.Path))

	e := &entry{name: name, model: model, refs: 1}
	r.mu.Lock()
	r.cache.Add(name, e)
	r.mu.Unlock()
	return model, r.releaser(e), nil
}

func (r *Registry) hold(name string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache.Get(name)
	if !ok {
		return nil
	}
	e.refs++
	return e
}

func (r *Registry) releaser(e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			e.refs--
			if e.refs == 0 && e.evicted {
				r.closeModel(e)
			}
		})
	}
}

// Evict drops a model from the cache so the next Acquire reloads it.
func (r *Registry) Evict(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Remove(name)
}

// onEvict runs with r.mu held.
func (r *Registry) onEvict(name string, e *entry) {
	e.evicted = true
	r.logger.Debug("model evicted", zap.String("name", name), zap.Int("refs", e.refs))
	if e.refs == 0 {
		r.closeModel(e)
	}
}

func (r *Registry) closeModel(e *entry) {
	c, ok := e.model.(Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		r.logger.Warn("close model", zap.String("name", e.name), zap.Error(err))
	}
}

func (r *Registry) startWatch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("model watcher: %w", err)
	}
	r.watcher = watcher
	r.watched = make(map[string][]string)
	dirs := make(map[string]bool)
	for name, artifact := range r.cfg.Artifacts {
		path := filepath.Clean(artifact.Path)
		r.watched[path] = append(r.watched[path], name)
		dirs[filepath.Dir(path)] = true
	}
	// Directories are watched so that files replaced by rename are still seen.
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	r.wg.Add(1)
	go r.watchLoop()
	return nil
}

func (r *Registry) watchLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			for _, name := range r.watched[filepath.Clean(event.Name)] {
				if r.Evict(name) {
					r.logger.Info("model artifact changed, evicted", zap.String("name", name), zap.String("path", event.Name))
				}
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("model watcher", zap.Error(err))
		}
	}
}

// Close stops the watcher and closes every cached model not currently held.
func (r *Registry) Close() error {
	var err error
	if r.watcher != nil {
		close(r.done)
		err = r.watcher.Close()
		r.wg.Wait()
	}
	r.mu.Lock()
	r.cache.Purge()
	r.mu.Unlock()
	return err
}

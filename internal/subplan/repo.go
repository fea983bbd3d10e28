package subplan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"compatsuite/internal/logging"

	"github.com/fsnotify/fsnotify"
)

const ext = ".xml"

// Repo stores subplans as <name>.xml files in one directory and caches the
// parsed result.
type Repo struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*SubPlan
}

// NewRepo returns a repo over dir. The directory is created on first Save.
func NewRepo(dir string) *Repo {
	return &Repo{dir: dir, cache: make(map[string]*SubPlan)}
}

// Dir returns the subplans directory.
func (r *Repo) Dir() string { return r.dir }

// Path returns the file path of the named subplan.
func (r *Repo) Path(name string) string {
	return filepath.Join(r.dir, name+ext)
}

// Load returns the named subplan.
func (r *Repo) Load(name string) (*SubPlan, error) {
	r.mu.RLock()
	cached, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	f, err := os.Open(r.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: could not retrieve subplan %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to open subplan %q: %w", name, err)
	}
	defer f.Close()

	p, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("subplan %q: %w", name, err)
	}
	logging.SubplanDebug("loaded subplan %s: %d includes, %d excludes",
		name, len(p.includes), len(p.excludes))

	r.mu.Lock()
	r.cache[name] = p
	r.mu.Unlock()
	return p.Clone(), nil
}

// Save writes the subplan atomically, replacing any existing one.
func (r *Repo) Save(name string, p *SubPlan) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid subplan name %q", name)
	}
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("failed to create subplans directory: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := p.Serialize(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write subplan: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.Path(name)); err != nil {
		return fmt.Errorf("failed to install subplan: %w", err)
	}

	r.mu.Lock()
	r.cache[name] = p.Clone()
	r.mu.Unlock()
	logging.Subplan("saved subplan %s (%d entries)", name, p.Len())
	return nil
}

// List returns the names of all stored subplans in sorted order.
func (r *Repo) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list subplans: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

func (r *Repo) invalidate(name string) {
	r.mu.Lock()
	delete(r.cache, name)
	r.mu.Unlock()
}

// Watch drops cached subplans whose files change on disk until ctx is done.
// When onChange is non-nil it is called from the watcher goroutine with the
// name of each changed subplan once its file has been quiet for the debounce
// period, so rapid rewrites are reported once. The watch is registered before
// Watch returns; the returned function waits for the watcher goroutine to
// exit.
func (r *Repo) Watch(ctx context.Context, onChange func(name string)) (wait func() error, err error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create subplans directory: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(r.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", r.dir, err)
	}
	logging.Subplan("watching %s", r.dir)

	done := make(chan error, 1)
	go func() {
		r.watchLoop(ctx, w, onChange)
		done <- w.Close()
	}()
	return func() error { return <-done }, nil
}

const (
	watchDebounce = 200 * time.Millisecond
	watchTick     = 50 * time.Millisecond
)

func (r *Repo) watchLoop(ctx context.Context, w *fsnotify.Watcher, onChange func(string)) {
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(watchTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&^fsnotify.Chmod == 0 {
				continue
			}
			base := filepath.Base(ev.Name)
			if !strings.HasSuffix(base, ext) || strings.HasPrefix(base, ".") {
				continue
			}
			name := strings.TrimSuffix(base, ext)
			logging.SubplanDebug("subplan %s changed (%s), dropping cache", name, ev.Op)
			r.invalidate(name)
			if onChange != nil {
				pending[name] = time.Now()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logging.SubplanWarn("watcher error: %v", err)
		case now := <-ticker.C:
			var ready []string
			for name, at := range pending {
				if now.Sub(at) >= watchDebounce {
					ready = append(ready, name)
				}
			}
			sort.Strings(ready)
			for _, name := range ready {
				delete(pending, name)
				onChange(name)
			}
		}
	}
}

package classifier

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/urbansound/soundscape/internal/errors"
	"github.com/urbansound/soundscape/internal/logger"
)

// DefaultRegistryTTL is how long a loaded model stays cached
const DefaultRegistryTTL = 10 * time.Minute

// Registry caches prototype classifiers by file. The cache key includes
// the file's modification time, so an edited model file is reloaded on the
// next lookup. Expired entries are evicted lazily on access.
type Registry struct {
	cache *cache.Cache
	opts  []PrototypeOption
	mu    sync.Mutex
}

// NewRegistry creates a registry. opts apply to every classifier it builds.
func NewRegistry(ttl time.Duration, opts ...PrototypeOption) *Registry {
	if ttl <= 0 {
		ttl = DefaultRegistryTTL
	}
	// cleanup interval 0 disables the janitor goroutine
	return &Registry{cache: cache.New(ttl, 0), opts: opts}
}

// Get returns the classifier for path, loading it if needed
func (r *Registry) Get(path string) (*PrototypeClassifier, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("prototype model not found: %w", err)).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Build()
	}
	key := fmt.Sprintf("%s@%d", path, info.ModTime().UnixNano())

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, found := r.cache.Get(key); found {
		if c, ok := cached.(*PrototypeClassifier); ok {
			return c, nil
		}
	}

	model, err := LoadPrototypes(path)
	if err != nil {
		return nil, err
	}
	c, err := NewPrototypeClassifier(model, r.opts...)
	if err != nil {
		return nil, err
	}

	r.cache.Set(key, c, cache.DefaultExpiration)
	GetLogger().Info("prototype model loaded",
		logger.String("path", path),
		logger.Int("labels", c.Labels().Len()))
	return c, nil
}

// Len returns the number of cached models
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Flush drops every cached model
func (r *Registry) Flush() {
	r.cache.Flush()
}

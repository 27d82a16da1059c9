package media

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownKind is returned by Create for kinds nobody registered.
var ErrUnknownKind = errors.New("media: unknown source kind")

// Config describes a source to create by kind.
type Config struct {
	// Kind selects the registered factory, e.g. "file" or "s3".
	Kind string `yaml:"kind"`

	// Location is kind-specific: a path, an object key, a URL.
	Location string `yaml:"location"`

	// Params holds kind-specific settings.
	Params map[string]string `yaml:"params"`
}

// Param returns Params[key], or def when unset.
func (c Config) Param(key, def string) string {
	if v, ok := c.Params[key]; ok && v != "" {
		return v
	}
	return def
}

// Factory builds an implementation from a config.
type Factory func(cfg Config) (Impl, error)

var (
	factories    = make(map[string]Factory)
	factoryMutex sync.RWMutex
)

// Register makes a factory available under kind, replacing any previous one.
func Register(kind string, factory Factory) {
	if factory == nil {
		panic("media: nil factory for kind " + kind)
	}
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	factories[kind] = factory
}

// Create builds a source handle from cfg using the factory for cfg.Kind.
func Create(cfg Config, opts ...Option) (*Source, error) {
	factoryMutex.RLock()
	factory, exists := factories[cfg.Kind]
	factoryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}

	impl, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("media: create %s source %q: %w", cfg.Kind, cfg.Location, err)
	}
	return New(cfg.Kind, impl, opts...), nil
}

// Kinds returns the registered kinds in sorted order.
func Kinds() []string {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()

	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

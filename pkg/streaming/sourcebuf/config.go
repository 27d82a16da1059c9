package sourcebuf

import (
	"github.com/vnykmshr/mediaflow/pkg/async"
	"github.com/vnykmshr/mediaflow/pkg/common/validation"
	"github.com/vnykmshr/mediaflow/pkg/metrics"
)

// DefaultWindowSize is the read-ahead window used when none is configured.
const DefaultWindowSize = 64 * 1024

// Config holds configuration options for a buffered source reader.
type Config struct {
	// WindowSize is the capacity of the read-ahead window.
	WindowSize int

	// Dispatcher runs completion handlers. Nil uses async.Inline.
	Dispatcher async.Dispatcher

	// Name labels metrics.
	Name string

	// Metrics receives source counters. Nil disables collection.
	Metrics *metrics.Registry
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize: DefaultWindowSize,
		Dispatcher: async.Inline,
		Name:       "source",
	}
}

func (c Config) withDefaults() (Config, error) {
	d := DefaultConfig()
	if c.WindowSize == 0 {
		c.WindowSize = d.WindowSize
	}
	if err := validation.ValidatePositive("sourcebuf", "WindowSize", c.WindowSize); err != nil {
		return c, err
	}
	if c.Dispatcher == nil {
		c.Dispatcher = d.Dispatcher
	}
	if c.Name == "" {
		c.Name = d.Name
	}
	return c, nil
}

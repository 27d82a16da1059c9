package pcbuf

import (
	"github.com/vnykmshr/mediaflow/pkg/async"
	"github.com/vnykmshr/mediaflow/pkg/common/validation"
	"github.com/vnykmshr/mediaflow/pkg/metrics"
)

// DefaultBlockSize is the minimum size of a block appended by Write.
const DefaultBlockSize = 4096

// Config holds configuration options for a producer/consumer buffer.
type Config struct {
	// BlockSize is the minimum capacity of each new block.
	// Zero uses DefaultBlockSize.
	BlockSize int

	// Dispatcher runs completion handlers. Nil uses async.Inline.
	Dispatcher async.Dispatcher

	// Name labels metrics.
	Name string

	// Metrics receives buffer counters. Nil disables collection.
	Metrics *metrics.Registry
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BlockSize:  DefaultBlockSize,
		Dispatcher: async.Inline,
		Name:       "pcbuf",
	}
}

func (c Config) withDefaults() (Config, error) {
	d := DefaultConfig()
	if c.BlockSize == 0 {
		c.BlockSize = d.BlockSize
	}
	if err := validation.ValidatePositive("pcbuf", "BlockSize", c.BlockSize); err != nil {
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

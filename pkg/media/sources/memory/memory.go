// Package memory provides a media source over an in-memory byte slice.
//
// The bounded stream reads the slice directly. Each live stream replays the
// slice into a fresh producer-consumer buffer, optionally paced, as if the
// bytes were arriving from a network feed.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/vnykmshr/mediaflow/pkg/media"
	"github.com/vnykmshr/mediaflow/pkg/media/live"
	"github.com/vnykmshr/mediaflow/pkg/pace"
	"github.com/vnykmshr/mediaflow/pkg/streaming/pcbuf"
	"github.com/vnykmshr/mediaflow/pkg/streaming/sourcebuf"
	"github.com/vnykmshr/mediaflow/pkg/streaming/stream"
)

// Kind is the registry name of this source.
const Kind = "memory"

func init() {
	media.Register(Kind, create)
}

// create builds a source from cfg. Location holds the content itself;
// the "rate" param paces live replays in bytes per second.
func create(cfg media.Config) (media.Impl, error) {
	opts := Options{}
	if v := cfg.Param("rate", ""); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("memory: invalid rate %q: %w", v, err)
		}
		opts.Rate = pace.Limit(rate)
	}
	return New([]byte(cfg.Location), opts)
}

// Options configures live replays.
type Options struct {
	// Rate paces live streams in bytes per second. Zero replays at full speed.
	Rate pace.Limit

	// BlockSize is the block size of live buffers.
	BlockSize int

	// Feed configures the replay feed. Limiter is set from Rate.
	Feed live.Config
}

// Source serves a fixed byte slice.
type Source struct {
	cursor
	opts Options

	life   sync.Mutex // orders wg.Add against Close
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a source over data. data is not copied.
func New(data []byte, opts Options) (*Source, error) {
	if opts.BlockSize <= 0 {
		opts.BlockSize = pcbuf.DefaultBlockSize
	}
	if opts.Rate < 0 {
		return nil, fmt.Errorf("memory: negative rate %v", opts.Rate)
	}
	if opts.Feed.Name == "" {
		opts.Feed.Name = Kind
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Source{
		cursor: cursor{data: data},
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// LiveStream starts a replay of the content into a new buffer.
func (s *Source) LiveStream() (stream.Buffer, error) {
	s.life.Lock()
	defer s.life.Unlock()

	if s.ctx.Err() != nil {
		return nil, fmt.Errorf("memory: source closed")
	}
	buf := pcbuf.New(s.opts.BlockSize)

	cfg := s.opts.Feed
	if s.opts.Rate > 0 {
		burst := cfg.ChunkSize
		if burst <= 0 {
			burst = live.DefaultChunkSize
		}
		lim, err := pace.New(s.opts.Rate, burst)
		if err != nil {
			return nil, fmt.Errorf("memory: pace: %w", err)
		}
		cfg.Limiter = lim
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		live.Replay(s.ctx, &cursor{data: s.data}, buf, cfg)
	}()
	return buf, nil
}

// Close stops running replays and waits for them to finish.
func (s *Source) Close() error {
	s.life.Lock()
	s.cancel()
	s.life.Unlock()
	s.wg.Wait()
	return nil
}

// Bytes returns the content.
func (s *Source) Bytes() []byte { return s.data }

// cursor reads a byte slice with its own Continue position.
type cursor struct {
	data []byte

	mu  sync.Mutex
	pos int64
}

func (c *cursor) Size() int64 { return int64(len(c.data)) }

func (c *cursor) Read(p []byte, offset int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if offset != sourcebuf.Continue {
		c.pos = offset
	}
	if c.pos < 0 || c.pos >= int64(len(c.data)) {
		return 0, nil
	}
	n := copy(p, c.data[c.pos:])
	c.pos += int64(n)
	return n, nil
}

func (c *cursor) Close() error { return nil }

package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vnykmshr/mediaflow/pkg/metrics"
	"github.com/vnykmshr/mediaflow/pkg/pace"
)

// DefaultChunkSize is the read size used by pumps.
const DefaultChunkSize = 32 * 1024

// Sink is the producer side of a live buffer. *pcbuf.Buffer implements it.
type Sink interface {
	Write(p []byte) int
	Sync()
	CloseWrite() error
	CanRead() bool
}

// errReaderGone stops a feed whose reader closed the buffer.
var errReaderGone = errors.New("live: reader closed")

// Config holds configuration options shared by the producers in this package.
type Config struct {
	// Name labels metrics and log records.
	Name string

	// ChunkSize is the read size. Zero uses DefaultChunkSize.
	ChunkSize int

	// Limiter paces writes. Nil writes as fast as data arrives.
	Limiter *pace.Limiter

	// Sync makes each chunk deliverable to waiting readers immediately.
	Sync bool

	// Metrics receives feed counters. Nil disables collection.
	Metrics *metrics.Registry

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:      "feed",
		ChunkSize: DefaultChunkSize,
		Sync:      true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// feed tracks one producer run.
type feed struct {
	cfg   Config
	dst   Sink
	total int64
}

func newFeed(dst Sink, cfg Config) *feed {
	return &feed{cfg: cfg.withDefaults(), dst: dst}
}

func (f *feed) write(ctx context.Context, p []byte, sync bool) error {
	if !f.dst.CanRead() {
		return errReaderGone
	}
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.WaitN(ctx, len(p)); err != nil {
			return err
		}
	}
	n := f.dst.Write(p)
	if sync {
		f.dst.Sync()
	}
	f.total += int64(n)
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.FeedBytes.WithLabelValues(f.cfg.Name).Add(float64(n))
	}
	if n == 0 && len(p) > 0 {
		return errors.New("live: sink closed for writing")
	}
	return nil
}

// finish closes the sink and reports how the feed ended.
func (f *feed) finish(err error) error {
	f.dst.CloseWrite()
	log := f.cfg.Logger.With("source", f.cfg.Name, "bytes", f.total)
	switch {
	case err == nil:
		log.Debug("feed finished")
	case errors.Is(err, errReaderGone):
		log.Debug("feed reader closed")
		return nil
	case errors.Is(err, context.Canceled):
		log.Debug("feed canceled")
	default:
		if f.cfg.Metrics != nil {
			f.cfg.Metrics.FeedErrors.WithLabelValues(f.cfg.Name).Inc()
		}
		log.Warn("feed failed", "error", err)
	}
	return err
}

// Pump copies r into dst until r is exhausted, then closes dst for writing.
// The write side is closed on every return, so readers of dst always
// terminate. Pump also stops, without error, once the reader closes dst.
// A blocked r.Read is not interrupted by ctx.
func Pump(ctx context.Context, r io.Reader, dst Sink, cfg Config) (int64, error) {
	f := newFeed(dst, cfg)
	chunk := make([]byte, f.cfg.ChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return f.total, f.finish(err)
		}
		n, err := r.Read(chunk)
		if n > 0 {
			if werr := f.write(ctx, chunk[:n], f.cfg.Sync); werr != nil {
				return f.total, f.finish(werr)
			}
		}
		if errors.Is(err, io.EOF) {
			return f.total, f.finish(nil)
		}
		if err != nil {
			return f.total, f.finish(fmt.Errorf("live: read %s: %w", f.cfg.Name, err))
		}
	}
}

// PumpMessages writes each message from msgs to dst and syncs after it, so
// a message is never held back waiting for the next one. It returns when
// msgs is closed or ctx is done.
func PumpMessages(ctx context.Context, msgs <-chan []byte, dst Sink, cfg Config) (int64, error) {
	f := newFeed(dst, cfg)

	for {
		select {
		case <-ctx.Done():
			return f.total, f.finish(ctx.Err())
		case msg, ok := <-msgs:
			if !ok {
				return f.total, f.finish(nil)
			}
			if err := f.write(ctx, msg, true); err != nil {
				return f.total, f.finish(err)
			}
		}
	}
}

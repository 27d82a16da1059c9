package live

import (
	"context"
	"fmt"

	"github.com/vnykmshr/mediaflow/pkg/streaming/sourcebuf"
	"github.com/vnykmshr/mediaflow/pkg/streaming/stream"
)

// Replay feeds a bounded source into dst from offset zero, paced by
// cfg.Limiter when set. The source is not closed.
func Replay(ctx context.Context, src sourcebuf.Source, dst Sink, cfg Config) (int64, error) {
	cfg = cfg.withDefaults()
	buf, err := sourcebuf.NewWithConfig(noClose{src}, sourcebuf.Config{
		WindowSize: cfg.ChunkSize,
		Name:       cfg.Name,
		Metrics:    cfg.Metrics,
	})
	if err != nil {
		dst.CloseWrite()
		return 0, fmt.Errorf("live: replay %s: %w", cfg.Name, err)
	}
	r := stream.NewReader(buf)
	defer r.Close()

	n, err := Pump(ctx, r, dst, cfg)
	if err == nil {
		if serr := buf.Err(); serr != nil {
			err = fmt.Errorf("live: replay %s: %w", cfg.Name, serr)
			if cfg.Metrics != nil {
				cfg.Metrics.FeedErrors.WithLabelValues(cfg.Name).Inc()
			}
			cfg.Logger.Warn("replay source failed", "source", cfg.Name, "bytes", n, "error", serr)
		}
	}
	return n, err
}

type noClose struct{ sourcebuf.Source }

func (noClose) Close() error { return nil }

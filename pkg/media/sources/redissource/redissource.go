// Package redissource provides a media source over a Redis string value.
//
// Bounded reads use STRLEN and GETRANGE, so a value that grows with APPEND
// can be re-read as it grows. The live stream subscribes to a pub/sub
// channel and delivers each message payload in arrival order.
package redissource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/mediaflow/pkg/media"
	"github.com/vnykmshr/mediaflow/pkg/media/live"
	"github.com/vnykmshr/mediaflow/pkg/streaming/pcbuf"
	"github.com/vnykmshr/mediaflow/pkg/streaming/sourcebuf"
	"github.com/vnykmshr/mediaflow/pkg/streaming/stream"
)

// Kind is the registry name of this source.
const Kind = "redis"

// Client is the subset of the go-redis client used for bounded reads.
// *redis.Client, *redis.ClusterClient and redis.UniversalClient satisfy it.
type Client interface {
	StrLen(ctx context.Context, key string) *redis.IntCmd
	GetRange(ctx context.Context, key string, start, end int64) *redis.StringCmd
}

// Subscriber opens pub/sub subscriptions. *redis.Client satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Config holds configuration options for a Source.
type Config struct {
	// Redis serves bounded reads.
	Redis Client

	// Key is the string value to read.
	Key string

	// Channel is the pub/sub channel of the live stream. Empty disables it.
	Channel string

	// RedisTimeout bounds each command.
	RedisTimeout time.Duration

	// Feed configures the live message pump.
	Feed live.Config
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RedisTimeout: 5 * time.Second,
		Feed:         live.DefaultConfig(),
	}
}

// subscribeFunc returns a message channel and a function ending the
// subscription.
type subscribeFunc func(ctx context.Context, channel string) (<-chan *redis.Message, func() error, error)

// Source reads one Redis key.
type Source struct {
	config    Config
	subscribe subscribeFunc

	mu  sync.Mutex
	pos int64

	life   sync.Mutex // orders wg.Add against Close
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a source over config.Key. sub may be nil when config.Channel
// is empty.
func New(config Config, sub Subscriber) (*Source, error) {
	if config.Redis == nil {
		return nil, errors.New("redissource: nil redis client")
	}
	if config.Key == "" {
		return nil, errors.New("redissource: empty key")
	}
	if config.Channel != "" && sub == nil {
		return nil, errors.New("redissource: channel set without a subscriber")
	}
	d := DefaultConfig()
	if config.RedisTimeout <= 0 {
		config.RedisTimeout = d.RedisTimeout
	}
	if config.Feed.Name == "" {
		config.Feed.Name = config.Key
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{config: config, ctx: ctx, cancel: cancel}
	if sub != nil {
		s.subscribe = func(ctx context.Context, channel string) (<-chan *redis.Message, func() error, error) {
			ps := sub.Subscribe(ctx, channel)
			// Wait for the confirmation so subscription errors surface here.
			if _, err := ps.Receive(ctx); err != nil {
				ps.Close()
				return nil, nil, err
			}
			return ps.Channel(), ps.Close, nil
		}
	}
	return s, nil
}

// Factory returns a media.Factory creating sources through client.
// Location is the key; the "channel" param names the live channel and
// "timeout" overrides the command timeout.
func Factory(client Client, sub Subscriber) media.Factory {
	return func(cfg media.Config) (media.Impl, error) {
		config := DefaultConfig()
		config.Redis = client
		config.Key = cfg.Location
		config.Channel = cfg.Param("channel", "")
		if v := cfg.Param("timeout", ""); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("redissource: invalid timeout %q: %w", v, err)
			}
			config.RedisTimeout = d
		}
		config.Feed.Name = cfg.Location
		return New(config, sub)
	}
}

// Register makes the "redis" kind available. rdb serves both bounded reads
// and subscriptions.
func Register(rdb redis.UniversalClient) {
	media.Register(Kind, Factory(rdb, rdb))
}

// Size returns the current length of the value, or 0 if it cannot be read.
func (s *Source) Size() int64 {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.RedisTimeout)
	defer cancel()
	n, err := s.config.Redis.StrLen(ctx, s.config.Key).Result()
	if err != nil {
		return 0
	}
	return n
}

// Read fetches len(p) bytes from offset, or from where the previous read
// ended. A missing key reads as empty.
func (s *Source) Read(p []byte, offset int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset == sourcebuf.Continue {
		offset = s.pos
	}
	if len(p) == 0 {
		return 0, nil
	}
	if offset < 0 {
		return 0, fmt.Errorf("redissource: negative offset %d", offset)
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.config.RedisTimeout)
	defer cancel()

	val, err := s.config.Redis.GetRange(ctx, s.config.Key, offset, offset+int64(len(p))-1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("redissource: getrange %s: %w", s.config.Key, err)
	}
	n := copy(p, val)
	s.pos = offset + int64(n)
	return n, nil
}

// LiveStream subscribes to the configured channel and pumps message
// payloads into a new buffer.
func (s *Source) LiveStream() (stream.Buffer, error) {
	if s.config.Channel == "" {
		return nil, media.ErrNoLiveStream
	}
	if s.ctx.Err() != nil {
		return nil, errors.New("redissource: source closed")
	}

	msgs, unsubscribe, err := s.subscribe(s.ctx, s.config.Channel)
	if err != nil {
		return nil, fmt.Errorf("redissource: subscribe %s: %w", s.config.Channel, err)
	}

	s.life.Lock()
	if s.ctx.Err() != nil {
		s.life.Unlock()
		unsubscribe()
		return nil, errors.New("redissource: source closed")
	}
	s.wg.Add(2)
	s.life.Unlock()

	buf := pcbuf.New(pcbuf.DefaultBlockSize)
	payloads := make(chan []byte)
	ctx, cancel := context.WithCancel(s.ctx)

	go func() {
		defer s.wg.Done()
		defer close(payloads)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case payloads <- []byte(m.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	go func() {
		defer s.wg.Done()
		defer unsubscribe()
		defer cancel()
		live.PumpMessages(ctx, payloads, buf, s.config.Feed)
	}()
	return buf, nil
}

// Close ends live subscriptions. The client is owned by the caller.
func (s *Source) Close() error {
	s.life.Lock()
	s.cancel()
	s.life.Unlock()
	s.wg.Wait()
	return nil
}

package media

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/vnykmshr/mediaflow/pkg/async"
	mferrors "github.com/vnykmshr/mediaflow/pkg/common/errors"
	"github.com/vnykmshr/mediaflow/pkg/metrics"
	"github.com/vnykmshr/mediaflow/pkg/streaming/sourcebuf"
	"github.com/vnykmshr/mediaflow/pkg/streaming/stream"
)

// ErrNoLiveStream is returned by implementations without a live feed.
var ErrNoLiveStream = errors.New("media: source has no live stream")

// Impl is a concrete media source. Bounded access goes through Size and
// Read; LiveStream builds a fresh append-only feed.
type Impl interface {
	Size() int64
	Read(p []byte, offset int64) (int, error)
	Close() error
	LiveStream() (stream.Buffer, error)
}

// NoLive can be embedded by implementations that only support bounded reads.
type NoLive struct{}

// LiveStream returns ErrNoLiveStream.
func (NoLive) LiveStream() (stream.Buffer, error) { return nil, ErrNoLiveStream }

// NoBounded can be embedded by live-only implementations. It has size zero
// and reads nothing.
type NoBounded struct{}

func (NoBounded) Size() int64                              { return 0 }
func (NoBounded) Read(p []byte, offset int64) (int, error) { return 0, nil }
func (NoBounded) Close() error                             { return nil }

type options struct {
	windowSize int
	dispatcher async.Dispatcher
	metrics    *metrics.Registry
	logger     *slog.Logger
}

// Option configures a Source.
type Option func(*options)

// WithWindowSize sets the read-ahead window of bounded streams.
func WithWindowSize(n int) Option {
	return func(o *options) { o.windowSize = n }
}

// WithDispatcher sets the dispatcher bounded streams complete through.
func WithDispatcher(d async.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

// WithMetrics records stream and source metrics into reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Source is a handle over one Impl. It hands out a bounded stream and a
// live stream, each built on first use and reused while open.
type Source struct {
	id     uuid.UUID
	kind   string
	impl   Impl
	opts   options
	logger *slog.Logger

	mu      sync.Mutex
	bounded *stream.Reader
	live    *stream.Reader
	closed  bool
}

// New binds impl to a new handle of the given kind.
func New(kind string, impl Impl, opts ...Option) *Source {
	if impl == nil {
		panic("media: nil implementation")
	}
	o := options{windowSize: sourcebuf.DefaultWindowSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	s := &Source{
		id:   uuid.New(),
		kind: kind,
		impl: impl,
		opts: o,
	}
	s.logger = o.logger.With("kind", kind, "id", s.id.String())
	return s
}

// ID returns the handle's unique identifier.
func (s *Source) ID() uuid.UUID { return s.id }

// Kind returns the registered kind the handle was created as.
func (s *Source) Kind() string { return s.kind }

// Size returns the bounded length of the source.
func (s *Source) Size() int64 { return s.impl.Size() }

// Read reads from the bounded source at offset.
func (s *Source) Read(p []byte, offset int64) (int, error) {
	return s.impl.Read(p, offset)
}

// Stream returns the bounded stream, building it on first call. Every
// call returns the same reader until it is closed; the next call after
// that builds a new one starting at position zero. Closing the stream
// does not close the Impl; that happens on Source.Close.
func (s *Source) Stream() (*stream.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, mferrors.NewOperationError("media", "stream", mferrors.ErrClosed)
	}
	if s.bounded != nil && s.bounded.IsOpen() {
		return s.bounded, nil
	}

	buf, err := sourcebuf.NewWithConfig(&view{impl: s.impl}, sourcebuf.Config{
		WindowSize: s.opts.windowSize,
		Dispatcher: s.opts.dispatcher,
		Name:       s.kind,
		Metrics:    s.opts.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("media: build stream: %w", err)
	}
	s.bounded = stream.NewReader(buf)
	s.opened("bounded")
	return s.bounded, nil
}

// LiveStream returns the live stream, building it on first call. It is
// memoized independently of Stream.
func (s *Source) LiveStream() (*stream.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, mferrors.NewOperationError("media", "live_stream", mferrors.ErrClosed)
	}
	if s.live != nil && s.live.IsOpen() {
		return s.live, nil
	}

	buf, err := s.impl.LiveStream()
	if err != nil {
		return nil, err
	}
	s.live = stream.NewReader(buf)
	s.opened("live")
	return s.live, nil
}

// Close closes any open streams and the implementation.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, r := range []*stream.Reader{s.bounded, s.live} {
		if r != nil {
			errs = append(errs, r.Close())
		}
	}
	errs = append(errs, s.impl.Close())
	s.logger.Debug("source closed")
	return errors.Join(errs...)
}

func (s *Source) opened(flavor string) {
	if s.opts.metrics != nil {
		s.opts.metrics.StreamsOpened.WithLabelValues(s.kind, flavor).Inc()
	}
	s.logger.Debug("stream opened", "flavor", flavor)
}

// view is the bounded side of an Impl as seen by one stream. It resolves
// sourcebuf.Continue itself, since other readers may move the Impl's own
// cursor. Closing a stream ends that stream only; the Impl stays open
// until Source.Close.
type view struct {
	impl Impl
	next int64
}

func (v *view) Size() int64 { return v.impl.Size() }

func (v *view) Read(p []byte, offset int64) (int, error) {
	if offset == sourcebuf.Continue {
		offset = v.next
	}
	n, err := v.impl.Read(p, offset)
	v.next = offset + int64(max(n, 0))
	return n, err
}

func (v *view) Close() error { return nil }

// ImplOf returns the concrete implementation behind s.
func ImplOf[T any](s *Source) (T, bool) {
	t, ok := s.impl.(T)
	return t, ok
}

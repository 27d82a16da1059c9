package async

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/vnykmshr/mediaflow/pkg/metrics"
)

// SerialConfig configures a Serial dispatcher.
type SerialConfig struct {
	// Name labels metrics and log records.
	Name string

	// PanicHandler is called when an op panics. If nil, the panic is
	// recovered and logged.
	PanicHandler func(recovered interface{})

	// Metrics receives dispatcher counters. Nil disables collection.
	Metrics *metrics.Registry

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Serial runs connected ops one at a time on a dedicated goroutine, in the
// order they were connected. Its queue is unbounded so Connect never blocks,
// which keeps it safe to call from inside another op.
type Serial struct {
	config SerialConfig
	logger *slog.Logger

	mu         sync.Mutex
	queue      []*Op
	wake       chan struct{}
	isShutdown bool

	shutdownOnce sync.Once
	done         chan struct{}
}

// NewSerial starts a Serial dispatcher.
func NewSerial(config SerialConfig) *Serial {
	if config.Name == "" {
		config.Name = "serial"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Serial{
		config: config,
		logger: logger.With("dispatcher", config.Name),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Connect queues op. After Shutdown the op runs on the caller instead, so a
// completion is never dropped.
func (s *Serial) Connect(op *Op) {
	s.mu.Lock()
	if s.isShutdown {
		s.mu.Unlock()
		s.execute(op)
		return
	}
	s.queue = append(s.queue, op)
	depth := len(s.queue)
	s.mu.Unlock()

	s.setDepth(depth)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued ops.
func (s *Serial) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Shutdown stops accepting ops into the queue. Ops already queued still run.
// The returned channel closes once the executor goroutine has exited.
func (s *Serial) Shutdown() <-chan struct{} {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.isShutdown = true
		s.mu.Unlock()

		select {
		case s.wake <- struct{}{}:
		default:
		}
	})
	return s.done
}

func (s *Serial) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			if s.isShutdown {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			<-s.wake
			continue
		}
		op := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		depth := len(s.queue)
		s.mu.Unlock()

		s.setDepth(depth)
		s.execute(op)
	}
}

func (s *Serial) execute(op *Op) {
	defer func() {
		if r := recover(); r != nil {
			if s.config.Metrics != nil {
				s.config.Metrics.DispatcherPanics.WithLabelValues(s.config.Name).Inc()
			}
			if s.config.PanicHandler != nil {
				s.config.PanicHandler(r)
				return
			}
			s.logger.Error("op panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	if s.config.Metrics != nil {
		s.config.Metrics.DispatcherOps.WithLabelValues(s.config.Name).Inc()
	}
	op.Run()
}

func (s *Serial) setDepth(depth int) {
	if s.config.Metrics != nil {
		s.config.Metrics.DispatcherQueueDepth.WithLabelValues(s.config.Name).Set(float64(depth))
	}
}

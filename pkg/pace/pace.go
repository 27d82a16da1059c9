package pace

import (
	"context"
	"math"
	"sync"
	"time"

	mferrors "github.com/vnykmshr/mediaflow/pkg/common/errors"
)

// Limit is a byte rate in bytes per second. Use Inf for no pacing.
type Limit float64

// Inf disables pacing.
var Inf = Limit(math.Inf(1))

// Every converts the interval between single bytes to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// BitsPerSecond converts a bitrate, as media is usually described, to a Limit.
func BitsPerSecond(bps float64) Limit {
	return Limit(bps / 8)
}

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Config holds configuration options for creating a Limiter.
type Config struct {
	// Rate is the number of bytes released per second.
	Rate Limit

	// Burst is the largest number of bytes released at once.
	Burst int

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock

	// InitialTokens is the number of bytes available at start.
	// If negative, starts with a full burst.
	InitialTokens int
}

// Limiter paces a byte stream with a token bucket. Tokens are bytes.
type Limiter struct {
	mu         sync.Mutex
	limit      Limit
	burst      int
	tokens     float64
	lastUpdate time.Time
	clock      Clock
}

// Reservation is a claim on future tokens.
type Reservation struct {
	ok        bool
	timeToAct time.Time
	tokens    int
	lim       *Limiter
}

// OK reports whether the reservation can ever be honored.
func (r *Reservation) OK() bool {
	return r.ok
}

// DelayFrom returns how long after now the reserved bytes may be sent.
func (r *Reservation) DelayFrom(now time.Time) time.Duration {
	if !r.ok {
		return 0
	}
	if delay := r.timeToAct.Sub(now); delay > 0 {
		return delay
	}
	return 0
}

// Cancel returns the reserved tokens to the limiter.
func (r *Reservation) Cancel() {
	if !r.ok {
		return
	}
	r.lim.cancelReservation(r)
}

// New creates a limiter releasing rate bytes per second in bursts of up to
// burst bytes.
func New(rate Limit, burst int) (*Limiter, error) {
	return NewWithConfig(Config{
		Rate:          rate,
		Burst:         burst,
		InitialTokens: -1,
	})
}

// NewWithConfig creates a limiter with the specified configuration.
func NewWithConfig(config Config) (*Limiter, error) {
	if config.Rate < 0 {
		return nil, mferrors.NewValidationError("pace", "rate", config.Rate, "rate cannot be negative").
			WithHint("use Inf to disable pacing")
	}
	if config.Burst <= 0 {
		return nil, mferrors.NewValidationError("pace", "burst", config.Burst, "burst must be positive").
			WithHint("burst is the largest chunk released at once")
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}

	initialTokens := float64(config.InitialTokens)
	if config.InitialTokens < 0 {
		initialTokens = float64(config.Burst)
	}

	return &Limiter{
		limit:      config.Rate,
		burst:      config.Burst,
		tokens:     initialTokens,
		lastUpdate: config.Clock.Now(),
		clock:      config.Clock,
	}, nil
}

// AllowN reports whether n bytes may be sent now, consuming them if so.
func (l *Limiter) AllowN(n int) bool {
	return l.reserveN(l.clock.Now(), n, 0).ok
}

// ReserveN reserves n bytes, which must not exceed the burst.
func (l *Limiter) ReserveN(n int) *Reservation {
	return l.reserveN(l.clock.Now(), n, math.MaxInt64)
}

// WaitN blocks until n bytes may be sent. Requests larger than the burst
// are released in burst-sized pieces.
func (l *Limiter) WaitN(ctx context.Context, n int) error {
	burst := l.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := l.wait(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func (l *Limiter) wait(ctx context.Context, n int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	now := l.clock.Now()
	r := l.reserveN(now, n, math.MaxInt64)
	if !r.OK() {
		return context.DeadlineExceeded
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// SetLimit changes the rate.
func (l *Limiter) SetLimit(newLimit Limit) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.updateTokens(l.clock.Now())
	l.limit = newLimit
}

// Limit returns the current rate.
func (l *Limiter) Limit() Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Burst returns the burst size.
func (l *Limiter) Burst() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.burst
}

// Tokens returns the bytes currently available.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.updateTokens(l.clock.Now())
	return l.tokens
}

func (l *Limiter) reserveN(now time.Time, n int, maxWait time.Duration) *Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || l.limit == Inf {
		return &Reservation{ok: true, timeToAct: now, lim: l}
	}
	if n > l.burst {
		return &Reservation{ok: false, tokens: n, lim: l}
	}

	l.updateTokens(now)
	if l.tokens >= float64(n) {
		l.tokens -= float64(n)
		return &Reservation{ok: true, timeToAct: now, tokens: n, lim: l}
	}
	if l.limit == 0 {
		return &Reservation{ok: false, tokens: n, lim: l}
	}

	tokensNeeded := float64(n) - l.tokens
	waitTime := time.Duration(float64(time.Second) * tokensNeeded / float64(l.limit))
	if waitTime > maxWait {
		return &Reservation{ok: false, tokens: n, lim: l}
	}

	// Tokens may go negative; later callers queue behind this reservation.
	l.tokens -= float64(n)
	return &Reservation{ok: true, timeToAct: now.Add(waitTime), tokens: n, lim: l}
}

func (l *Limiter) updateTokens(now time.Time) {
	if l.limit == Inf {
		l.tokens = float64(l.burst)
		l.lastUpdate = now
		return
	}

	elapsed := now.Sub(l.lastUpdate)
	if elapsed <= 0 {
		return
	}
	l.tokens = math.Min(l.tokens+elapsed.Seconds()*float64(l.limit), float64(l.burst))
	l.lastUpdate = now
}

func (l *Limiter) cancelReservation(r *Reservation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.updateTokens(l.clock.Now())
	l.tokens = math.Min(l.tokens+float64(r.tokens), float64(l.burst))
}

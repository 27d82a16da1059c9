// Package wssource provides a live-only media source fed by a websocket.
//
// Each LiveStream dials the endpoint and delivers the payload of every
// binary message, and text messages unless disabled, in arrival order. The
// stream ends when the peer closes the connection.
package wssource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vnykmshr/mediaflow/pkg/media"
	"github.com/vnykmshr/mediaflow/pkg/media/live"
	"github.com/vnykmshr/mediaflow/pkg/streaming/pcbuf"
	"github.com/vnykmshr/mediaflow/pkg/streaming/stream"
)

// Kind is the registry name of this source.
const Kind = "ws"

func init() {
	media.Register(Kind, func(cfg media.Config) (media.Impl, error) {
		config := DefaultConfig()
		config.URL = cfg.Location
		config.Feed.Name = cfg.Location
		if v := cfg.Param("text", ""); v != "" {
			text, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("wssource: invalid text flag %q: %w", v, err)
			}
			config.AcceptText = text
		}
		return New(config)
	})
}

// Config holds configuration options for a Source.
type Config struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// Header is sent with the handshake.
	Header http.Header

	// HandshakeTimeout bounds dialing.
	HandshakeTimeout time.Duration

	// AcceptText delivers text messages as well as binary ones.
	AcceptText bool

	// Feed configures the message pump.
	Feed live.Config
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		AcceptText:       true,
		Feed:             live.DefaultConfig(),
	}
}

// Source dials a websocket per live stream.
type Source struct {
	media.NoBounded

	config Config
	dialer websocket.Dialer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New creates a source for config.URL. Nothing is dialed until LiveStream.
func New(config Config) (*Source, error) {
	if config.URL == "" {
		return nil, errors.New("wssource: empty url")
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultConfig().HandshakeTimeout
	}
	if config.Feed.Name == "" {
		config.Feed.Name = config.URL
	}
	if config.Feed.Logger == nil {
		config.Feed.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Source{
		config: config,
		dialer: websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*websocket.Conn]struct{}),
	}, nil
}

// LiveStream dials the endpoint and pumps its messages into a new buffer.
func (s *Source) LiveStream() (stream.Buffer, error) {
	if s.ctx.Err() != nil {
		return nil, errors.New("wssource: source closed")
	}
	conn, resp, err := s.dialer.DialContext(s.ctx, s.config.URL, s.config.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wssource: dial %s: status %d: %w", s.config.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("wssource: dial %s: %w", s.config.URL, err)
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		conn.Close()
		return nil, errors.New("wssource: source closed")
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(2)
	s.mu.Unlock()

	buf := pcbuf.New(pcbuf.DefaultBlockSize)
	msgs := make(chan []byte)
	ctx, cancel := context.WithCancel(s.ctx)

	go func() {
		defer s.wg.Done()
		defer close(msgs)
		s.readLoop(ctx, conn, msgs)
	}()
	go func() {
		defer s.wg.Done()
		defer s.untrack(conn)
		defer conn.Close()
		defer cancel()
		live.PumpMessages(ctx, msgs, buf, s.config.Feed)
	}()
	return buf, nil
}

func (s *Source) readLoop(ctx context.Context, conn *websocket.Conn, msgs chan<- []byte) {
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				s.config.Feed.Logger.Warn("websocket read failed", "source", s.config.Feed.Name, "error", err)
			}
			return
		}
		if typ == websocket.TextMessage && !s.config.AcceptText {
			continue
		}
		select {
		case msgs <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Source) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Close drops open connections and waits for their streams to end.
func (s *Source) Close() error {
	s.mu.Lock()
	s.cancel()
	for conn := range s.conns {
		// Unblocks readLoop.
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// Package file provides a media source over a local file.
//
// Bounded streams read the file with ReadAt. A live stream tails the file,
// delivering what it holds and then every append until the file is removed
// or the source is closed.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vnykmshr/mediaflow/pkg/media"
	"github.com/vnykmshr/mediaflow/pkg/media/live"
	"github.com/vnykmshr/mediaflow/pkg/streaming/pcbuf"
	"github.com/vnykmshr/mediaflow/pkg/streaming/sourcebuf"
	"github.com/vnykmshr/mediaflow/pkg/streaming/stream"
)

// Kind is the registry name of this source.
const Kind = "file"

func init() {
	media.Register(Kind, func(cfg media.Config) (media.Impl, error) {
		return Open(cfg.Location, live.Config{Name: cfg.Param("name", cfg.Location)})
	})
}

// Source reads a local file.
type Source struct {
	path string
	file *os.File
	feed live.Config

	mu  sync.Mutex
	pos int64

	life   sync.Mutex // orders wg.Add against Close
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open opens path for reading. feed configures live tails.
func Open(path string, feed live.Config) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("file: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("file: stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("file: %s is a directory", path)
	}
	if feed.Name == "" {
		feed.Name = path
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Source{path: path, file: f, feed: feed, ctx: ctx, cancel: cancel}, nil
}

// Path returns the path the source was opened with.
func (s *Source) Path() string { return s.path }

// Size returns the current file length, which grows as the file is
// appended to.
func (s *Source) Size() int64 {
	info, err := s.file.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// Read reads from offset, or from where the previous read ended.
func (s *Source) Read(p []byte, offset int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset == sourcebuf.Continue {
		offset = s.pos
	}
	n, err := s.file.ReadAt(p, offset)
	s.pos = offset + int64(n)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// LiveStream starts tailing the file into a new buffer.
func (s *Source) LiveStream() (stream.Buffer, error) {
	s.life.Lock()
	defer s.life.Unlock()

	if s.ctx.Err() != nil {
		return nil, fmt.Errorf("file: source closed")
	}
	buf := pcbuf.New(pcbuf.DefaultBlockSize)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		live.Tail(s.ctx, s.path, buf, s.feed)
	}()
	return buf, nil
}

// Close stops running tails and closes the file.
func (s *Source) Close() error {
	s.life.Lock()
	s.cancel()
	s.life.Unlock()
	s.wg.Wait()
	return s.file.Close()
}

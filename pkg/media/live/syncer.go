package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/vnykmshr/mediaflow/pkg/metrics"
)

// Syncable is a live buffer whose buffered bytes can be flushed to readers.
type Syncable interface {
	Sync()
	CanWrite() bool
}

// SyncerConfig holds configuration options for a Syncer.
type SyncerConfig struct {
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// Syncer calls Sync on live buffers on cron schedules, so readers waiting
// for a full request still see data from slow feeds. Buffers whose write
// side has closed are dropped automatically.
//
// Schedules accept a seconds field and descriptors, e.g. "*/2 * * * * *" or
// "@every 1s".
type Syncer struct {
	cron    *cron.Cron
	parser  cron.Parser
	metrics *metrics.Registry
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[cron.EntryID]*syncEntry
}

type syncEntry struct {
	id   cron.EntryID
	name string
	buf  Syncable
}

// NewSyncer creates a stopped Syncer.
func NewSyncer(config SyncerConfig) *Syncer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	clog := cronLogger{logger}
	return &Syncer{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		parser:  parser,
		metrics: config.Metrics,
		logger:  logger,
		entries: make(map[cron.EntryID]*syncEntry),
	}
}

// Add schedules buf to be synced on spec.
func (s *Syncer) Add(spec, name string, buf Syncable) (cron.EntryID, error) {
	if _, err := s.parser.Parse(spec); err != nil {
		return 0, fmt.Errorf("live: invalid sync schedule %q: %w", spec, err)
	}
	e := &syncEntry{name: name, buf: buf}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.run(e) })
	if err != nil {
		return 0, fmt.Errorf("live: schedule sync for %s: %w", name, err)
	}
	e.id = id
	s.entries[id] = e
	return id, nil
}

// Remove unschedules an entry.
func (s *Syncer) Remove(id cron.EntryID) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	s.cron.Remove(id)
}

// Len returns the number of scheduled buffers.
func (s *Syncer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// SyncAll syncs every scheduled buffer now and returns how many were synced.
func (s *Syncer) SyncAll() int {
	s.mu.Lock()
	entries := make([]*syncEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	synced := 0
	for _, e := range entries {
		if s.run(e) {
			synced++
		}
	}
	return synced
}

// Start runs the schedules in the background.
func (s *Syncer) Start() { s.cron.Start() }

// Stop halts the schedules. The returned context is done once running
// syncs have finished.
func (s *Syncer) Stop() context.Context { return s.cron.Stop() }

func (s *Syncer) run(e *syncEntry) bool {
	if !e.buf.CanWrite() {
		s.mu.Lock()
		id := e.id
		s.mu.Unlock()
		s.logger.Debug("sync target closed", "source", e.name)
		s.Remove(id)
		return false
	}
	e.buf.Sync()
	if s.metrics != nil {
		s.metrics.FeedSyncs.WithLabelValues(e.name).Inc()
	}
	return true
}

// cronLogger routes cron's logging into slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

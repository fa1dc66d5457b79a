package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

const (
	defaultSaveDebounce = 250 * time.Millisecond
	defaultSaveTimeout  = 30 * time.Second
)

// saver writes snapshots through to the gateway asynchronously. Rapid
// mutations are debounced: only the latest pending snapshot is written once
// the quiet period elapses. Save failures are logged and swallowed; the
// in-memory board stays authoritative either way.
type saver struct {
	gw       Gateway
	logger   *log.Logger
	debounce time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	pending *domain.Snapshot
	timer   *time.Timer
	closed  bool

	saveMu sync.Mutex
}

func newSaver(gw Gateway, logger *log.Logger) *saver {
	return &saver{
		gw:       gw,
		logger:   logger,
		debounce: defaultSaveDebounce,
		timeout:  defaultSaveTimeout,
	}
}

// Schedule records snap as the next snapshot to persist and arms the
// debounce timer if it is not already running.
func (s *saver) Schedule(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = &snap
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.flush)
	}
}

// flush writes the pending snapshot, if any. Saves are serialized so a slow
// gateway cannot reorder writes.
func (s *saver) flush() {
	s.mu.Lock()
	snap := s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()
	if snap == nil {
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.gw.Save(ctx, *snap); err != nil {
		s.logger.WithError(err).Warn("board save failed, next load will not reflect this change")
	}
}

// Close stops the timer and flushes any pending snapshot synchronously.
func (s *saver) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.flush()
}

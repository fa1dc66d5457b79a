package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

const (
	defaultFeedWorkers = 4
	defaultFeedBuffer  = 1024
	feedPublishTimeout = 30 * time.Second
	feedHandoffTimeout = 15 * time.Millisecond
)

// feed drains board change events to a Publisher on a pool of worker
// goroutines. Delivery is best-effort: when the buffer is saturated past the
// handoff timeout the event is dropped and logged, never blocking a
// mutation.
type feed struct {
	pub     Publisher
	logger  *log.Logger
	jobs    chan domain.Event
	wg      sync.WaitGroup
	closing sync.Once
}

func newFeed(pub Publisher, logger *log.Logger, workers, buffer int) *feed {
	if workers <= 0 {
		workers = defaultFeedWorkers
	}
	if buffer <= 0 {
		buffer = defaultFeedBuffer
	}
	f := &feed{
		pub:    pub,
		logger: logger,
		jobs:   make(chan domain.Event, buffer),
	}
	for i := 0; i < workers; i++ {
		f.wg.Add(1)
		go f.worker(i)
	}
	return f
}

func (f *feed) worker(id int) {
	defer f.wg.Done()
	for ev := range f.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), feedPublishTimeout)
		err := f.pub.Publish(ctx, ev)
		cancel()
		if err != nil {
			f.logger.WithFields(log.Fields{
				"event":  ev.Type,
				"entity": ev.EntityID,
				"worker": id,
			}).WithError(err).Error("event publish failed")
		}
	}
}

// Emit hands the event to a worker. It first tries a non-blocking send, then
// waits up to the handoff timeout before giving up.
func (f *feed) Emit(ev domain.Event) {
	if ok, closed := trySendNonBlocking(f.jobs, ev); ok || closed {
		return
	}

	timer := time.NewTimer(feedHandoffTimeout)
	defer timer.Stop()
	if ok, _ := sendWithTimer(f.jobs, ev, timer.C); !ok {
		f.logger.WithFields(log.Fields{
			"event":  ev.Type,
			"entity": ev.EntityID,
		}).Warn("event feed saturated, dropping event")
	}
}

// Close stops the workers after the buffered events drain.
func (f *feed) Close() {
	f.closing.Do(func() { close(f.jobs) })
	f.wg.Wait()
}

func trySendNonBlocking(ch chan domain.Event, ev domain.Event) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.Event, ev domain.Event, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	case <-timer:
		return false, false
	}
}

package board

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// Validation errors returned by the mutation surface. Referential problems
// (unknown ids) are never errors: those mutations are silent no-ops.
var (
	ErrEmptyContent    = errors.New("task content must not be empty")
	ErrMissingDueDate  = errors.New("task due date is required")
	ErrInvalidPriority = errors.New("unknown priority level")
	ErrEmptyStatusName = errors.New("status name must not be empty")
)

// Gateway persists board snapshots. Load reports ok=false when no prior
// snapshot exists.
type Gateway interface {
	Load(ctx context.Context) (domain.Snapshot, bool, error)
	Save(ctx context.Context, snap domain.Snapshot) error
}

// Publisher receives board change events.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Store owns the canonical task and status collections and exposes the only
// legal mutation surface. All mutations replace the affected values rather
// than editing them in place, so snapshots are cheap deep copies and no
// caller ever observes a half-applied transition.
type Store struct {
	mu       sync.RWMutex
	tasks    []domain.Task
	statuses []domain.Status

	newID  func() string
	logger *log.Logger
	saver  *saver
	feed   *feed

	subMu   sync.Mutex
	subs    map[uint64]chan domain.Snapshot
	nextSub uint64
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the identifier source, used in tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithLogger sets the logger used for persistence and feed failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithSaveDebounce sets how long the store waits after a mutation before
// writing the snapshot through to the gateway.
func WithSaveDebounce(d time.Duration) Option {
	return func(s *Store) {
		if s.saver != nil && d > 0 {
			s.saver.debounce = d
		}
	}
}

// WithPublisher attaches a change event feed draining to pub.
func WithPublisher(pub Publisher, workers, buffer int) Option {
	return func(s *Store) {
		if pub != nil {
			s.feed = newFeed(pub, s.logger, workers, buffer)
		}
	}
}

// New creates a Store backed by gw. The previous snapshot is loaded
// synchronously; when the gateway is nil, reports nothing stored, or fails,
// the board starts from the default bootstrap state. Gateway load errors are
// logged and swallowed: the in-memory board stays available regardless.
func New(ctx context.Context, gw Gateway, opts ...Option) *Store {
	s := &Store{
		newID:  uuid.NewString,
		logger: log.StandardLogger(),
		subs:   make(map[uint64]chan domain.Snapshot),
	}
	if gw != nil {
		s.saver = newSaver(gw, s.logger)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.saver != nil {
		s.saver.logger = s.logger
	}
	if s.feed != nil {
		s.feed.logger = s.logger
	}

	snap := domain.DefaultSnapshot()
	if gw != nil {
		loaded, ok, err := gw.Load(ctx)
		switch {
		case err != nil:
			s.logger.WithError(err).Warn("board load failed, starting from bootstrap state")
		case ok:
			snap = loaded.Clone()
			if len(snap.Statuses) == 0 {
				snap.Statuses = domain.DefaultStatuses()
			}
		}
	}
	s.tasks = snap.Tasks
	s.statuses = snap.Statuses
	if s.tasks == nil {
		s.tasks = []domain.Task{}
	}
	return s
}

// Close flushes any pending save and stops the event feed workers.
func (s *Store) Close() {
	if s.saver != nil {
		s.saver.Close()
	}
	if s.feed != nil {
		s.feed.Close()
	}
}

// Snapshot returns a deep copy of the full board state.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.Snapshot {
	return domain.Snapshot{Tasks: s.tasks, Statuses: s.statuses}.Clone()
}

// Subscribe registers a snapshot listener. Each mutation delivers the new
// snapshot; a slow listener only ever sees the latest state, intermediate
// snapshots are coalesced. The returned cancel func must be called when the
// listener goes away.
func (s *Store) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 1)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

// AddTask appends a new task built from the given fields. Content and due
// date are required; an unknown status id falls back to the default column
// so the task is never orphaned. Each subtask draft receives a fresh id with
// completed=false, and the task starts expanded.
func (s *Store) AddTask(content, description, statusID string, priority domain.Priority, dueDate string, drafts []domain.SubtaskDraft, assignee string, tags []string) (domain.Task, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Task{}, ErrEmptyContent
	}
	if strings.TrimSpace(dueDate) == "" {
		return domain.Task{}, ErrMissingDueDate
	}
	if !priority.Valid() {
		return domain.Task{}, ErrInvalidPriority
	}

	subtasks := make([]domain.Subtask, 0, len(drafts))
	for _, d := range drafts {
		subtasks = append(subtasks, domain.Subtask{
			ID:          s.newID(),
			Content:     d.Content,
			Description: d.Description,
		})
	}

	s.mu.Lock()
	if !s.hasStatusLocked(statusID) {
		statusID = s.fallbackStatusLocked()
	}
	task := domain.Task{
		ID:          s.newID(),
		Content:     content,
		Description: description,
		StatusID:    statusID,
		Priority:    priority,
		DueDate:     dueDate,
		Subtasks:    subtasks,
		Assignee:    assignee,
		Tags:        domain.DedupeTags(tags),
		Expanded:    true,
	}
	next := make([]domain.Task, len(s.tasks), len(s.tasks)+1)
	copy(next, s.tasks)
	s.tasks = append(next, task)
	s.afterMutation(s.snapshotLocked(), s.event(domain.EntityTask, task.ID, domain.EventTaskCreated, task))
	s.mu.Unlock()

	return task.Clone(), nil
}

// DeleteTask removes the task and, by ownership, all of its subtasks.
// Unknown ids are a no-op.
func (s *Store) DeleteTask(taskID string) {
	s.mu.Lock()
	idx := s.taskIndexLocked(taskID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	next := make([]domain.Task, 0, len(s.tasks)-1)
	next = append(next, s.tasks[:idx]...)
	next = append(next, s.tasks[idx+1:]...)
	s.tasks = next
	s.afterMutation(s.snapshotLocked(), s.event(domain.EntityTask, taskID, domain.EventTaskDeleted, nil))
	s.mu.Unlock()
}

// EditTask merges the non-nil patch fields into the task. The id never
// changes. Unknown ids are a no-op. A patched status id that no longer
// exists falls back to the default column.
func (s *Store) EditTask(taskID string, patch domain.TaskPatch) {
	s.mu.Lock()
	idx := s.taskIndexLocked(taskID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	task := s.tasks[idx].Clone()
	if patch.Content != nil {
		if c := strings.TrimSpace(*patch.Content); c != "" {
			task.Content = c
		}
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.StatusID != nil {
		task.StatusID = *patch.StatusID
		if !s.hasStatusLocked(task.StatusID) {
			task.StatusID = s.fallbackStatusLocked()
		}
	}
	if patch.Priority != nil && patch.Priority.Valid() {
		task.Priority = *patch.Priority
	}
	if patch.DueDate != nil {
		if d := strings.TrimSpace(*patch.DueDate); d != "" {
			task.DueDate = d
		}
	}
	if patch.Subtasks != nil {
		// Caller-supplied ids are only honored when this task already owns
		// them; anything else gets a fresh id so subtask ids stay unique
		// across the board and never collide within the patch.
		owned := make(map[string]struct{}, len(task.Subtasks))
		for _, st := range task.Subtasks {
			owned[st.ID] = struct{}{}
		}
		subtasks := make([]domain.Subtask, len(*patch.Subtasks))
		copy(subtasks, *patch.Subtasks)
		seen := make(map[string]struct{}, len(subtasks))
		for i := range subtasks {
			id := subtasks[i].ID
			if _, ok := owned[id]; id == "" || !ok {
				id = s.newID()
			} else if _, dup := seen[id]; dup {
				id = s.newID()
			}
			seen[id] = struct{}{}
			subtasks[i].ID = id
		}
		task.Subtasks = subtasks
	}
	if patch.Assignee != nil {
		task.Assignee = *patch.Assignee
	}
	if patch.Tags != nil {
		task.Tags = domain.DedupeTags(*patch.Tags)
	}
	if patch.Expanded != nil {
		task.Expanded = *patch.Expanded
	}
	s.replaceTaskLocked(idx, task)
	s.afterMutation(s.snapshotLocked(), s.event(domain.EntityTask, taskID, domain.EventTaskUpdated, task))
	s.mu.Unlock()
}

// ToggleSubtask flips the completed flag on one subtask. Unknown task or
// subtask ids are a no-op.
func (s *Store) ToggleSubtask(taskID, subtaskID string) {
	s.mu.Lock()
	idx := s.taskIndexLocked(taskID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	task := s.tasks[idx].Clone()
	found := false
	for i := range task.Subtasks {
		if task.Subtasks[i].ID == subtaskID {
			task.Subtasks[i].Completed = !task.Subtasks[i].Completed
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return
	}
	s.replaceTaskLocked(idx, task)
	s.afterMutation(s.snapshotLocked(), s.event(domain.EntityTask, taskID, domain.EventSubtaskToggled, map[string]string{"subtaskId": subtaskID}))
	s.mu.Unlock()
}

// ToggleTaskExpansion flips the expanded UI flag. Unknown ids are a no-op.
func (s *Store) ToggleTaskExpansion(taskID string) {
	s.mu.Lock()
	idx := s.taskIndexLocked(taskID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	task := s.tasks[idx].Clone()
	task.Expanded = !task.Expanded
	s.replaceTaskLocked(idx, task)
	s.afterMutation(s.snapshotLocked(), s.event(domain.EntityTask, taskID, domain.EventTaskUpdated, task))
	s.mu.Unlock()
}

// MoveTask reassigns the task to the given column. Unknown task ids are a
// no-op; a target column that vanished mid-gesture falls back to the default
// column rather than leaving a dangling reference.
func (s *Store) MoveTask(taskID, statusID string) {
	s.mu.Lock()
	idx := s.taskIndexLocked(taskID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	if !s.hasStatusLocked(statusID) {
		statusID = s.fallbackStatusLocked()
	}
	task := s.tasks[idx].Clone()
	task.StatusID = statusID
	s.replaceTaskLocked(idx, task)
	s.afterMutation(s.snapshotLocked(), s.event(domain.EntityTask, taskID, domain.EventTaskMoved, map[string]string{"statusId": statusID}))
	s.mu.Unlock()
}

// AddStatus appends a new column. The name is trimmed and must not be empty.
func (s *Store) AddStatus(name string) (domain.Status, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Status{}, ErrEmptyStatusName
	}

	s.mu.Lock()
	status := domain.Status{ID: s.newID(), Name: name}
	next := make([]domain.Status, len(s.statuses), len(s.statuses)+1)
	copy(next, s.statuses)
	s.statuses = append(next, status)
	s.afterMutation(s.snapshotLocked(), s.event(domain.EntityStatus, status.ID, domain.EventStatusCreated, status))
	s.mu.Unlock()

	return status, nil
}

// EditStatus renames a column. Unknown ids and blank names are a no-op.
func (s *Store) EditStatus(statusID, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	s.mu.Lock()
	idx := -1
	for i := range s.statuses {
		if s.statuses[i].ID == statusID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	next := make([]domain.Status, len(s.statuses))
	copy(next, s.statuses)
	next[idx].Name = name
	s.statuses = next
	s.afterMutation(s.snapshotLocked(), s.event(domain.EntityStatus, statusID, domain.EventStatusRenamed, next[idx]))
	s.mu.Unlock()
}

// DeleteStatus removes a column and reassigns every task pointing at it to
// the default column. Both changes land in the same critical section, so no
// snapshot ever shows a task referencing a deleted status. Deleting the last
// remaining column is a no-op: the board never runs out of columns.
func (s *Store) DeleteStatus(statusID string) {
	s.mu.Lock()
	idx := -1
	for i := range s.statuses {
		if s.statuses[i].ID == statusID {
			idx = i
			break
		}
	}
	if idx < 0 || len(s.statuses) == 1 {
		s.mu.Unlock()
		return
	}
	nextStatuses := make([]domain.Status, 0, len(s.statuses)-1)
	nextStatuses = append(nextStatuses, s.statuses[:idx]...)
	nextStatuses = append(nextStatuses, s.statuses[idx+1:]...)
	fallback := nextStatuses[0].ID

	nextTasks := make([]domain.Task, len(s.tasks))
	for i, t := range s.tasks {
		if t.StatusID == statusID {
			t = t.Clone()
			t.StatusID = fallback
		}
		nextTasks[i] = t
	}
	s.statuses = nextStatuses
	s.tasks = nextTasks
	s.afterMutation(s.snapshotLocked(), s.event(domain.EntityStatus, statusID, domain.EventStatusDeleted, map[string]string{"fallbackStatusId": fallback}))
	s.mu.Unlock()
}

func (s *Store) taskIndexLocked(taskID string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == taskID {
			return i
		}
	}
	return -1
}

func (s *Store) replaceTaskLocked(idx int, task domain.Task) {
	next := make([]domain.Task, len(s.tasks))
	copy(next, s.tasks)
	next[idx] = task
	s.tasks = next
}

func (s *Store) hasStatusLocked(statusID string) bool {
	for i := range s.statuses {
		if s.statuses[i].ID == statusID {
			return true
		}
	}
	return false
}

func (s *Store) fallbackStatusLocked() string {
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[0].ID
}

func (s *Store) event(entityType, entityID, eventType string, payload any) domain.Event {
	ev := domain.Event{
		ID:         s.newID(),
		EntityID:   entityID,
		EntityType: entityType,
		Type:       eventType,
		Time:       nextTimestamp(),
	}
	if payload != nil {
		if data, err := sonic.Marshal(payload); err == nil {
			ev.Data = data
		}
	}
	return ev
}

// afterMutation fans the new snapshot out to subscribers, hands the change
// event to the feed, and schedules the async write-through. It must be
// called with s.mu still held: the fan-out has to happen in mutation order,
// or a subscriber's coalesced snapshot and the saver's pending snapshot
// could regress to an older state. Every delivery below is non-blocking
// (the feed handoff is bounded), so holding the lock here cannot deadlock.
func (s *Store) afterMutation(snap domain.Snapshot, ev domain.Event) {
	s.subMu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot so the latest one fits.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	s.subMu.Unlock()

	if s.feed != nil {
		s.feed.Emit(ev)
	}
	if s.saver != nil {
		s.saver.Schedule(snap)
	}
}

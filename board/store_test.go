package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"kanban-api/domain"
)

type stubGateway struct {
	mu       sync.Mutex
	loadSnap domain.Snapshot
	loadOK   bool
	loadErr  error
	saveErr  error
	saves    []domain.Snapshot
}

func (g *stubGateway) Load(ctx context.Context) (domain.Snapshot, bool, error) {
	return g.loadSnap, g.loadOK, g.loadErr
}

func (g *stubGateway) Save(ctx context.Context, snap domain.Snapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.saveErr != nil {
		return g.saveErr
	}
	g.saves = append(g.saves, snap)
	return nil
}

func (g *stubGateway) Saves() []domain.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.Snapshot, len(g.saves))
	copy(out, g.saves)
	return out
}

func seqIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(context.Background(), nil)
	t.Cleanup(s.Close)
	return s
}

func mustAddTask(t *testing.T, s *Store, content, statusID string) domain.Task {
	t.Helper()
	task, err := s.AddTask(content, "", statusID, domain.PriorityMedium, "2024-12-31", nil, "", nil)
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	return task
}

func TestNewBootstrapsWithDefaultStatuses(t *testing.T) {
	s := newTestStore(t)
	snap := s.Snapshot()
	if len(snap.Tasks) != 0 {
		t.Fatalf("expected empty board, got %d tasks", len(snap.Tasks))
	}
	want := []string{domain.StatusTodo, domain.StatusInProgress, domain.StatusDone}
	if len(snap.Statuses) != len(want) {
		t.Fatalf("expected %d statuses, got %d", len(want), len(snap.Statuses))
	}
	for i, id := range want {
		if snap.Statuses[i].ID != id {
			t.Fatalf("status %d: expected %q, got %q", i, id, snap.Statuses[i].ID)
		}
	}
}

func TestNewLoadsSnapshotFromGateway(t *testing.T) {
	gw := &stubGateway{
		loadSnap: domain.Snapshot{
			Tasks:    []domain.Task{{ID: "t1", Content: "restore me", StatusID: "col", Priority: domain.PriorityLow, DueDate: "2025-01-01"}},
			Statuses: []domain.Status{{ID: "col", Name: "Only Column"}},
		},
		loadOK: true,
	}
	s := New(context.Background(), gw)
	defer s.Close()

	snap := s.Snapshot()
	if len(snap.Tasks) != 1 || snap.Tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks: %#v", snap.Tasks)
	}
	if len(snap.Statuses) != 1 || snap.Statuses[0].ID != "col" {
		t.Fatalf("unexpected statuses: %#v", snap.Statuses)
	}
}

func TestNewFallsBackToBootstrapOnLoadError(t *testing.T) {
	gw := &stubGateway{loadErr: errors.New("store unavailable")}
	s := New(context.Background(), gw)
	defer s.Close()

	snap := s.Snapshot()
	if len(snap.Statuses) != 3 || len(snap.Tasks) != 0 {
		t.Fatalf("expected bootstrap state, got %d statuses, %d tasks", len(snap.Statuses), len(snap.Tasks))
	}
}

func TestAddTaskAndAddStatusProduceDistinctIDs(t *testing.T) {
	s := newTestStore(t)
	seen := make(map[string]bool)
	record := func(id string) {
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
	for i := 0; i < 20; i++ {
		task, err := s.AddTask("task", "", domain.StatusTodo, domain.PriorityLow, "2024-12-31",
			[]domain.SubtaskDraft{{Content: "step"}}, "", nil)
		if err != nil {
			t.Fatalf("add task: %v", err)
		}
		record(task.ID)
		for _, st := range task.Subtasks {
			record(st.ID)
		}
		status, err := s.AddStatus(fmt.Sprintf("column %d", i))
		if err != nil {
			t.Fatalf("add status: %v", err)
		}
		record(status.ID)
	}
}

func TestAddTaskValidation(t *testing.T) {
	s := newTestStore(t)
	tests := []struct {
		name     string
		content  string
		dueDate  string
		priority domain.Priority
		want     error
	}{
		{name: "empty content", content: "", dueDate: "2024-12-31", priority: domain.PriorityLow, want: ErrEmptyContent},
		{name: "blank content", content: "   ", dueDate: "2024-12-31", priority: domain.PriorityLow, want: ErrEmptyContent},
		{name: "missing due date", content: "x", dueDate: "", priority: domain.PriorityLow, want: ErrMissingDueDate},
		{name: "bad priority", content: "x", dueDate: "2024-12-31", priority: "urgent", want: ErrInvalidPriority},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddTask(tt.content, "", domain.StatusTodo, tt.priority, tt.dueDate, nil, "", nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if n := len(s.Snapshot().Tasks); n != 0 {
		t.Fatalf("rejected submissions must not mutate the board, got %d tasks", n)
	}
}

func TestAddTaskUnknownStatusFallsBackToDefault(t *testing.T) {
	s := newTestStore(t)
	task := mustAddTask(t, s, "orphan", "no-such-column")
	if task.StatusID != domain.StatusTodo {
		t.Fatalf("expected fallback to %q, got %q", domain.StatusTodo, task.StatusID)
	}
}

func TestAddTaskDedupesTagsAndExpands(t *testing.T) {
	s := newTestStore(t)
	task, err := s.AddTask("tagged", "", domain.StatusTodo, domain.PriorityHigh, "2024-12-31", nil, "", []string{"infra", "go", "infra", ""})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if !task.Expanded {
		t.Fatal("new tasks must start expanded")
	}
	if len(task.Tags) != 2 || task.Tags[0] != "infra" || task.Tags[1] != "go" {
		t.Fatalf("unexpected tags: %#v", task.Tags)
	}
}

func TestDeleteTaskCascadesSubtasks(t *testing.T) {
	s := newTestStore(t)
	task, err := s.AddTask("parent", "", domain.StatusTodo, domain.PriorityLow, "2024-12-31",
		[]domain.SubtaskDraft{{Content: "a"}, {Content: "b"}}, "", nil)
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if len(task.Subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(task.Subtasks))
	}

	s.DeleteTask(task.ID)

	snap := s.Snapshot()
	if len(snap.Tasks) != 0 {
		t.Fatalf("expected empty board, got %d tasks", len(snap.Tasks))
	}
	// unknown id afterwards is a no-op, not an error
	s.DeleteTask(task.ID)
}

func TestEditTaskMergesOnlyProvidedFields(t *testing.T) {
	s := newTestStore(t)
	task, err := s.AddTask("original", "keep me", domain.StatusTodo, domain.PriorityLow, "2024-12-31", nil, "alice", []string{"one"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	content := "renamed"
	priority := domain.PriorityHigh
	s.EditTask(task.ID, domain.TaskPatch{Content: &content, Priority: &priority})

	got := s.Snapshot().Tasks[0]
	if got.ID != task.ID {
		t.Fatalf("id must never change, got %q", got.ID)
	}
	if got.Content != "renamed" || got.Priority != domain.PriorityHigh {
		t.Fatalf("patched fields not applied: %#v", got)
	}
	if got.Description != "keep me" || got.Assignee != "alice" || got.DueDate != "2024-12-31" {
		t.Fatalf("unpatched fields must stay untouched: %#v", got)
	}

	s.EditTask("missing", domain.TaskPatch{Content: &content})
	if n := len(s.Snapshot().Tasks); n != 1 {
		t.Fatalf("edit of unknown id must be a no-op, got %d tasks", n)
	}
}

func TestEditTaskUnknownStatusFallsBack(t *testing.T) {
	s := newTestStore(t)
	task := mustAddTask(t, s, "t", domain.StatusDone)
	unknown := "gone"
	s.EditTask(task.ID, domain.TaskPatch{StatusID: &unknown})
	if got := s.Snapshot().Tasks[0].StatusID; got != domain.StatusTodo {
		t.Fatalf("expected fallback status, got %q", got)
	}
}

func TestEditTaskSubtaskIDsStayOwnedAndUnique(t *testing.T) {
	s := newTestStore(t)
	task, err := s.AddTask("mine", "", domain.StatusTodo, domain.PriorityLow, "2024-12-31",
		[]domain.SubtaskDraft{{Content: "owned"}}, "", nil)
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	other, err := s.AddTask("theirs", "", domain.StatusTodo, domain.PriorityLow, "2024-12-31",
		[]domain.SubtaskDraft{{Content: "foreign"}}, "", nil)
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	ownedID := task.Subtasks[0].ID
	foreignID := other.Subtasks[0].ID

	subtasks := []domain.Subtask{
		{ID: ownedID, Content: "kept"},
		{ID: ownedID, Content: "duplicate"},
		{ID: foreignID, Content: "stolen"},
		{Content: "fresh"},
	}
	s.EditTask(task.ID, domain.TaskPatch{Subtasks: &subtasks})

	snap := s.Snapshot()
	var got []domain.Subtask
	for _, tk := range snap.Tasks {
		if tk.ID == task.ID {
			got = tk.Subtasks
		}
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 subtasks, got %d", len(got))
	}
	if got[0].ID != ownedID {
		t.Fatalf("an id the task already owns must survive the patch, got %q", got[0].ID)
	}
	if got[1].ID == ownedID {
		t.Fatal("a duplicated id must be regenerated")
	}
	if got[2].ID == foreignID {
		t.Fatal("an id owned by another task must be regenerated")
	}
	if got[3].ID == "" {
		t.Fatal("a blank id must be assigned")
	}
	ids := map[string]bool{foreignID: true}
	for _, st := range got {
		if ids[st.ID] {
			t.Fatalf("subtask id %q is not unique across the board", st.ID)
		}
		ids[st.ID] = true
	}
}

func TestToggleSubtaskIsAnInvolution(t *testing.T) {
	s := newTestStore(t)
	task, err := s.AddTask("t", "", domain.StatusTodo, domain.PriorityLow, "2024-12-31",
		[]domain.SubtaskDraft{{Content: "step"}}, "", nil)
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	subID := task.Subtasks[0].ID

	s.ToggleSubtask(task.ID, subID)
	if !s.Snapshot().Tasks[0].Subtasks[0].Completed {
		t.Fatal("first toggle must complete the subtask")
	}
	s.ToggleSubtask(task.ID, subID)
	if s.Snapshot().Tasks[0].Subtasks[0].Completed {
		t.Fatal("second toggle must restore the original value")
	}

	s.ToggleSubtask(task.ID, "missing")
	s.ToggleSubtask("missing", subID)
	if s.Snapshot().Tasks[0].Subtasks[0].Completed {
		t.Fatal("toggles with unknown ids must be no-ops")
	}
}

func TestToggleTaskExpansion(t *testing.T) {
	s := newTestStore(t)
	task := mustAddTask(t, s, "t", domain.StatusTodo)

	s.ToggleTaskExpansion(task.ID)
	if s.Snapshot().Tasks[0].Expanded {
		t.Fatal("expected collapsed after toggle")
	}
	s.ToggleTaskExpansion(task.ID)
	if !s.Snapshot().Tasks[0].Expanded {
		t.Fatal("expected expanded after second toggle")
	}
}

func TestMoveTaskIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	task := mustAddTask(t, s, "t", domain.StatusTodo)

	s.MoveTask(task.ID, domain.StatusDone)
	s.MoveTask(task.ID, domain.StatusDone)

	snap := s.Snapshot()
	if len(snap.Tasks) != 1 {
		t.Fatalf("move must not duplicate tasks, got %d", len(snap.Tasks))
	}
	if snap.Tasks[0].StatusID != domain.StatusDone {
		t.Fatalf("expected status %q, got %q", domain.StatusDone, snap.Tasks[0].StatusID)
	}
}

func TestMoveTaskUnknownTargetFallsBack(t *testing.T) {
	s := newTestStore(t)
	task := mustAddTask(t, s, "t", domain.StatusDone)
	s.MoveTask(task.ID, "vanished-column")
	if got := s.Snapshot().Tasks[0].StatusID; got != domain.StatusTodo {
		t.Fatalf("expected fallback status, got %q", got)
	}
}

func TestAddAndEditStatus(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddStatus("   "); !errors.Is(err, ErrEmptyStatusName) {
		t.Fatalf("expected ErrEmptyStatusName, got %v", err)
	}
	status, err := s.AddStatus("  Review  ")
	if err != nil {
		t.Fatalf("add status: %v", err)
	}
	if status.Name != "Review" {
		t.Fatalf("expected trimmed name, got %q", status.Name)
	}

	s.EditStatus(status.ID, "In Review")
	snap := s.Snapshot()
	if got := snap.Statuses[len(snap.Statuses)-1].Name; got != "In Review" {
		t.Fatalf("expected renamed column, got %q", got)
	}

	s.EditStatus("missing", "x")
	s.EditStatus(status.ID, "  ")
	snap = s.Snapshot()
	if got := snap.Statuses[len(snap.Statuses)-1].Name; got != "In Review" {
		t.Fatalf("no-op edits must not change the name, got %q", got)
	}
}

func TestDeleteStatusReassignsTasksAtomically(t *testing.T) {
	s := newTestStore(t)
	task := mustAddTask(t, s, "t", domain.StatusDone)

	updates, cancel := s.Subscribe()
	defer cancel()

	s.DeleteStatus(domain.StatusDone)

	// The subscriber must observe both facts in the same snapshot.
	select {
	case snap := <-updates:
		if snap.HasStatus(domain.StatusDone) {
			t.Fatal("deleted status still present in observed snapshot")
		}
		if got := snap.Tasks[0].StatusID; got != domain.StatusTodo {
			t.Fatalf("task not reassigned in same snapshot, statusId=%q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered after mutation")
	}

	snap := s.Snapshot()
	if len(snap.Statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(snap.Statuses))
	}
	if snap.Tasks[0].ID != task.ID || snap.Tasks[0].StatusID != domain.StatusTodo {
		t.Fatalf("unexpected task state: %#v", snap.Tasks[0])
	}
}

func TestDeleteStatusKeepsLastColumn(t *testing.T) {
	s := newTestStore(t)
	s.DeleteStatus(domain.StatusDone)
	s.DeleteStatus(domain.StatusInProgress)
	s.DeleteStatus(domain.StatusTodo)

	snap := s.Snapshot()
	if len(snap.Statuses) != 1 || snap.Statuses[0].ID != domain.StatusTodo {
		t.Fatalf("the last column must survive, got %#v", snap.Statuses)
	}
}

func TestDeleteFallbackStatusPromotesNextColumn(t *testing.T) {
	s := newTestStore(t)
	task := mustAddTask(t, s, "t", domain.StatusTodo)

	s.DeleteStatus(domain.StatusTodo)

	snap := s.Snapshot()
	if snap.FallbackStatusID() != domain.StatusInProgress {
		t.Fatalf("expected new fallback %q, got %q", domain.StatusInProgress, snap.FallbackStatusID())
	}
	if snap.Tasks[0].StatusID != domain.StatusInProgress {
		t.Fatalf("task %s not reassigned to promoted column: %q", task.ID, snap.Tasks[0].StatusID)
	}
}

func TestSnapshotDoesNotAliasStoreState(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddTask("t", "", domain.StatusTodo, domain.PriorityLow, "2024-12-31",
		[]domain.SubtaskDraft{{Content: "step"}}, "", []string{"tag"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	snap := s.Snapshot()
	snap.Tasks[0].Content = "mutated"
	snap.Tasks[0].Subtasks[0].Completed = true
	snap.Tasks[0].Tags[0] = "mutated"
	snap.Statuses[0].Name = "mutated"

	fresh := s.Snapshot()
	if fresh.Tasks[0].Content != "t" || fresh.Tasks[0].Subtasks[0].Completed || fresh.Tasks[0].Tags[0] != "tag" {
		t.Fatalf("snapshot mutation leaked into store: %#v", fresh.Tasks[0])
	}
	if fresh.Statuses[0].Name != "To Do" {
		t.Fatalf("status mutation leaked into store: %#v", fresh.Statuses[0])
	}
}

func TestSubscribeCoalescesToLatestSnapshot(t *testing.T) {
	s := newTestStore(t)
	updates, cancel := s.Subscribe()
	defer cancel()

	var last domain.Task
	for i := 0; i < 10; i++ {
		last = mustAddTask(t, s, fmt.Sprintf("task %d", i), domain.StatusTodo)
	}

	// The subscriber never kept up, so the buffered snapshot must be the
	// latest one.
	select {
	case snap := <-updates:
		if len(snap.Tasks) != 10 {
			t.Fatalf("expected latest snapshot with 10 tasks, got %d", len(snap.Tasks))
		}
		if snap.Tasks[9].ID != last.ID {
			t.Fatalf("expected last added task %q, got %q", last.ID, snap.Tasks[9].ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestConcurrentMutationsDeliverSnapshotsInOrder(t *testing.T) {
	const (
		writers        = 8
		tasksPerWriter = 200
	)
	s := newTestStore(t)
	updates, cancel := s.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < tasksPerWriter; i++ {
				_, _ = s.AddTask("t", "", domain.StatusTodo, domain.PriorityLow, "2024-12-31", nil, "", nil)
			}
		}()
	}
	go wg.Wait()

	// With latest-wins coalescing the observed task count must never go
	// backwards, and the final snapshot must eventually arrive.
	seen := 0
	deadline := time.After(10 * time.Second)
	for seen < writers*tasksPerWriter {
		select {
		case snap := <-updates:
			if len(snap.Tasks) < seen {
				t.Fatalf("saw %d tasks, then an older snapshot with %d tasks", seen, len(snap.Tasks))
			}
			seen = len(snap.Tasks)
		case <-deadline:
			t.Fatalf("timed out after observing %d of %d tasks", seen, writers*tasksPerWriter)
		}
	}
}

func TestCancelledSubscriberStopsReceiving(t *testing.T) {
	s := newTestStore(t)
	updates, cancel := s.Subscribe()
	cancel()
	cancel() // idempotent

	mustAddTask(t, s, "t", domain.StatusTodo)
	if _, open := <-updates; open {
		t.Fatal("expected closed channel after cancel")
	}
}

func TestMutationsWriteThroughToGateway(t *testing.T) {
	gw := &stubGateway{}
	s := New(context.Background(), gw, WithSaveDebounce(5*time.Millisecond), WithIDGenerator(seqIDs()))
	task := mustAddTask(t, s, "persist me", domain.StatusTodo)
	s.Close()

	saves := gw.Saves()
	if len(saves) == 0 {
		t.Fatal("expected at least one save")
	}
	last := saves[len(saves)-1]
	if len(last.Tasks) != 1 || last.Tasks[0].ID != task.ID {
		t.Fatalf("unexpected persisted snapshot: %#v", last)
	}
}

func TestRapidMutationsAreDebounced(t *testing.T) {
	gw := &stubGateway{}
	s := New(context.Background(), gw, WithSaveDebounce(50*time.Millisecond))
	for i := 0; i < 10; i++ {
		mustAddTask(t, s, fmt.Sprintf("task %d", i), domain.StatusTodo)
	}
	s.Close()

	saves := gw.Saves()
	if len(saves) == 0 {
		t.Fatal("expected a save")
	}
	if len(saves) >= 10 {
		t.Fatalf("expected writes to be coalesced, got %d saves", len(saves))
	}
	last := saves[len(saves)-1]
	if len(last.Tasks) != 10 {
		t.Fatalf("last save must hold the latest snapshot, got %d tasks", len(last.Tasks))
	}
}

func TestBoardLifecycleScenario(t *testing.T) {
	s := newTestStore(t)

	task, err := s.AddTask("Write spec", "", domain.StatusTodo, domain.PriorityHigh, "2024-12-31", nil, "", []string{"infra"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if task.ID == "" || task.StatusID != domain.StatusTodo || task.Priority != domain.PriorityHigh || !task.Expanded {
		t.Fatalf("unexpected new task: %#v", task)
	}
	if len(task.Tags) != 1 || task.Tags[0] != "infra" {
		t.Fatalf("unexpected tags: %#v", task.Tags)
	}

	s.MoveTask(task.ID, domain.StatusDone)
	snap := s.Snapshot()
	if len(snap.Tasks) != 1 || snap.Tasks[0].StatusID != domain.StatusDone {
		t.Fatalf("unexpected state after move: %#v", snap.Tasks)
	}

	s.DeleteStatus(domain.StatusDone)
	snap = s.Snapshot()
	if len(snap.Statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(snap.Statuses))
	}
	if snap.Tasks[0].StatusID != domain.StatusTodo {
		t.Fatalf("expected reassignment to %q, got %q", domain.StatusTodo, snap.Tasks[0].StatusID)
	}
}

func TestSaveFailuresAreSwallowed(t *testing.T) {
	gw := &stubGateway{saveErr: errors.New("quota exceeded")}
	s := New(context.Background(), gw, WithSaveDebounce(5*time.Millisecond))
	mustAddTask(t, s, "still works", domain.StatusTodo)
	s.Close()

	// The in-memory board stays correct even though persistence failed.
	if n := len(s.Snapshot().Tasks); n != 1 {
		t.Fatalf("expected 1 task in memory, got %d", n)
	}
}

package domain

import (
	"reflect"
	"testing"
)

func TestPriorityValid(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh} {
		if !p.Valid() {
			t.Fatalf("expected %q to be valid", p)
		}
	}
	for _, p := range []Priority{"", "urgent", "LOW"} {
		if p.Valid() {
			t.Fatalf("expected %q to be invalid", p)
		}
	}
}

func TestTaskCloneIsDeep(t *testing.T) {
	orig := Task{
		ID:       "t1",
		Content:  "ship it",
		Subtasks: []Subtask{{ID: "s1", Content: "review"}},
		Tags:     []string{"infra"},
	}

	clone := orig.Clone()
	clone.Subtasks[0].Completed = true
	clone.Tags[0] = "frontend"

	if orig.Subtasks[0].Completed {
		t.Fatal("clone shares subtask storage with the original")
	}
	if orig.Tags[0] != "infra" {
		t.Fatal("clone shares tag storage with the original")
	}
}

func TestTaskCloneKeepsNilSlices(t *testing.T) {
	clone := Task{ID: "t1"}.Clone()
	if clone.Subtasks != nil || clone.Tags != nil {
		t.Fatalf("expected nil slices to stay nil, got %#v", clone)
	}
}

func TestDedupeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "nil input", in: nil, want: []string{}},
		{name: "blanks dropped", in: []string{"", "a", ""}, want: []string{"a"}},
		{name: "duplicates collapse to first", in: []string{"a", "b", "a", "c", "b"}, want: []string{"a", "b", "c"}},
		{name: "already unique", in: []string{"x", "y"}, want: []string{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DedupeTags(tt.in)
			if got == nil {
				t.Fatal("result must never be nil")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("DedupeTags(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	snap := DefaultSnapshot()
	snap.Tasks = []Task{{ID: "t1", StatusID: StatusTodo, Tags: []string{"a"}}}

	clone := snap.Clone()
	clone.Tasks[0].Tags[0] = "b"
	clone.Statuses[0].Name = "Backlog"

	if snap.Tasks[0].Tags[0] != "a" {
		t.Fatal("clone shares task storage with the original")
	}
	if snap.Statuses[0].Name == "Backlog" {
		t.Fatal("clone shares status storage with the original")
	}
}

func TestFallbackStatusID(t *testing.T) {
	snap := DefaultSnapshot()
	if got := snap.FallbackStatusID(); got != StatusTodo {
		t.Fatalf("expected %q, got %q", StatusTodo, got)
	}
	snap.Statuses = []Status{{ID: "review", Name: "Review"}}
	if got := snap.FallbackStatusID(); got != "review" {
		t.Fatalf("expected first status, got %q", got)
	}
	if got := (Snapshot{}).FallbackStatusID(); got != "" {
		t.Fatalf("expected empty fallback for empty snapshot, got %q", got)
	}
}

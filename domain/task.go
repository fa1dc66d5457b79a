package domain

// Priority classifies how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Subtask is a checklist item owned by exactly one task.
type Subtask struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`
}

// Task represents a single board card.
type Task struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Description string    `json:"description,omitempty"`
	StatusID    string    `json:"statusId"`
	Priority    Priority  `json:"priority"`
	DueDate     string    `json:"dueDate"`
	Subtasks    []Subtask `json:"subtasks"`
	Assignee    string    `json:"assignee,omitempty"`
	Tags        []string  `json:"tags"`
	Expanded    bool      `json:"expanded"`
}

// Clone returns a deep copy so callers can never alias the task's slices.
func (t Task) Clone() Task {
	out := t
	if t.Subtasks != nil {
		out.Subtasks = make([]Subtask, len(t.Subtasks))
		copy(out.Subtasks, t.Subtasks)
	}
	if t.Tags != nil {
		out.Tags = make([]string, len(t.Tags))
		copy(out.Tags, t.Tags)
	}
	return out
}

// SubtaskDraft carries the user-entered fields of a subtask before an id is
// assigned.
type SubtaskDraft struct {
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
}

// TaskPatch is a partial task update. Nil fields are left untouched; the id
// is deliberately not patchable.
type TaskPatch struct {
	Content     *string    `json:"content,omitempty"`
	Description *string    `json:"description,omitempty"`
	StatusID    *string    `json:"statusId,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	DueDate     *string    `json:"dueDate,omitempty"`
	Subtasks    *[]Subtask `json:"subtasks,omitempty"`
	Assignee    *string    `json:"assignee,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
	Expanded    *bool      `json:"expanded,omitempty"`
}

// DedupeTags collapses duplicate labels while preserving first-seen order.
// Blank labels are dropped.
func DedupeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	if len(tags) == 0 {
		return out
	}
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

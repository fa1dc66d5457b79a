package domain

// Status is a named workflow column.
type Status struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Well-known ids of the bootstrap columns. New boards start with these three
// statuses; the first one doubles as the fallback target when a column is
// deleted.
const (
	StatusTodo       = "todo"
	StatusInProgress = "inProgress"
	StatusDone       = "done"
)

// DefaultStatuses returns the bootstrap column set for a fresh board.
func DefaultStatuses() []Status {
	return []Status{
		{ID: StatusTodo, Name: "To Do"},
		{ID: StatusInProgress, Name: "In Progress"},
		{ID: StatusDone, Name: "Done"},
	}
}

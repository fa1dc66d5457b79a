package api

import "kanban-api/domain"

const postBodyMaxSize = 64 * 1024 // 64 KiB

// POST /api/tasks request body.
type addTaskRequest struct {
	Content     string                `json:"content"`
	Description string                `json:"description"`
	StatusID    string                `json:"statusId"`
	Priority    domain.Priority       `json:"priority"`
	DueDate     string                `json:"dueDate"`
	Subtasks    []domain.SubtaskDraft `json:"subtasks"`
	Assignee    string                `json:"assignee"`
	Tags        []string              `json:"tags"`
}

// POST /api/tasks/:id/move request body.
type moveTaskRequest struct {
	StatusID string `json:"statusId"`
}

// POST /api/statuses and PATCH /api/statuses/:id request body.
type statusRequest struct {
	Name string `json:"name"`
}

// POST /api/gesture request body. Action is one of begin, enter, leave,
// drop, cancel.
type gestureRequest struct {
	Action   string `json:"action"`
	TaskID   string `json:"taskId,omitempty"`
	StatusID string `json:"statusId,omitempty"`
}

// POST /api/gesture response body.
type gestureResponse struct {
	Dragging bool   `json:"dragging"`
	Payload  string `json:"payload,omitempty"`
	Hovering string `json:"hovering,omitempty"`
	Moved    bool   `json:"moved"`
}

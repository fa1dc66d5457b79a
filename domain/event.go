package domain

import "github.com/bytedance/sonic"

// Event describes one board mutation for the change feed.
type Event struct {
	ID         string                 `json:"id"`
	EntityID   string                 `json:"entityId"`
	EntityType string                 `json:"entityType"`
	Type       string                 `json:"type"`
	Data       sonic.NoCopyRawMessage `json:"data,omitempty"`
	Time       int64                  `json:"time"`
}

// Event types emitted by the board store.
const (
	EventTaskCreated    = "task-created"
	EventTaskUpdated    = "task-updated"
	EventTaskDeleted    = "task-deleted"
	EventTaskMoved      = "task-moved"
	EventSubtaskToggled = "subtask-toggled"
	EventStatusCreated  = "status-created"
	EventStatusRenamed  = "status-renamed"
	EventStatusDeleted  = "status-deleted"
)

// Entity types used in events.
const (
	EntityTask   = "task"
	EntityStatus = "status"
)

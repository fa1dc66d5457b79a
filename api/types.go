package api

import "kanban-api/domain"

// Board is the mutation surface handlers dispatch into. Every route maps to
// exactly one of these operations; handlers never touch entities directly.
type Board interface {
	Snapshot() domain.Snapshot
	Subscribe() (<-chan domain.Snapshot, func())

	AddTask(content, description, statusID string, priority domain.Priority, dueDate string, drafts []domain.SubtaskDraft, assignee string, tags []string) (domain.Task, error)
	DeleteTask(taskID string)
	EditTask(taskID string, patch domain.TaskPatch)
	ToggleSubtask(taskID, subtaskID string)
	ToggleTaskExpansion(taskID string)
	MoveTask(taskID, statusID string)

	AddStatus(name string) (domain.Status, error)
	EditStatus(statusID, name string)
	DeleteStatus(statusID string)
}

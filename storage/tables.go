package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"kanban-api/domain"
)

// boardPartition keys every row: the board is single-user, one partition.
const boardPartition = "board"

// TableGateway stores board snapshots in Azure Table Storage, one row per
// task and per status.
type TableGateway struct {
	taskTable   *aztables.Client
	statusTable *aztables.Client
}

// NewTableGateway creates a gateway from the given connection string.
func NewTableGateway(connStr, tasksTable, statusesTable string) (*TableGateway, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableGateway{
		taskTable:   svc.NewClient(tasksTable),
		statusTable: svc.NewClient(statusesTable),
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Content     string `json:"Content"`
	Description string `json:"Description"`
	StatusID    string `json:"StatusID"`
	Priority    string `json:"Priority"`
	DueDate     string `json:"DueDate"`
	Subtasks    string `json:"Subtasks"`
	Assignee    string `json:"Assignee"`
	Tags        string `json:"Tags"`
	Expanded    bool   `json:"Expanded"`
	Position    int    `json:"Position"`
}

type statusEntity struct {
	aztables.Entity
	Name     string `json:"Name"`
	Position int    `json:"Position"`
}

// decodeTaskEntity converts a raw table row back into a task. Subtasks and
// tags travel as embedded JSON since table rows are flat.
func decodeTaskEntity(data []byte) (domain.Task, int, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, 0, err
	}
	task := domain.Task{
		ID:          ent.RowKey,
		Content:     ent.Content,
		Description: ent.Description,
		StatusID:    ent.StatusID,
		Priority:    domain.Priority(ent.Priority),
		DueDate:     ent.DueDate,
		Subtasks:    []domain.Subtask{},
		Assignee:    ent.Assignee,
		Tags:        []string{},
		Expanded:    ent.Expanded,
	}
	if ent.Subtasks != "" {
		if err := json.Unmarshal([]byte(ent.Subtasks), &task.Subtasks); err != nil {
			return domain.Task{}, 0, err
		}
	}
	if ent.Tags != "" {
		if err := json.Unmarshal([]byte(ent.Tags), &task.Tags); err != nil {
			return domain.Task{}, 0, err
		}
	}
	return task, ent.Position, nil
}

func decodeStatusEntity(data []byte) (domain.Status, int, error) {
	var ent statusEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Status{}, 0, err
	}
	return domain.Status{ID: ent.RowKey, Name: ent.Name}, ent.Position, nil
}

func encodeTaskEntity(task domain.Task, position int) ([]byte, error) {
	subtasks, err := json.Marshal(task.Subtasks)
	if err != nil {
		return nil, err
	}
	tags, err := json.Marshal(task.Tags)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taskEntity{
		Entity:      aztables.Entity{PartitionKey: boardPartition, RowKey: task.ID},
		Content:     task.Content,
		Description: task.Description,
		StatusID:    task.StatusID,
		Priority:    string(task.Priority),
		DueDate:     task.DueDate,
		Subtasks:    string(subtasks),
		Assignee:    task.Assignee,
		Tags:        string(tags),
		Expanded:    task.Expanded,
		Position:    position,
	})
}

func encodeStatusEntity(status domain.Status, position int) ([]byte, error) {
	return json.Marshal(statusEntity{
		Entity:   aztables.Entity{PartitionKey: boardPartition, RowKey: status.ID},
		Name:     status.Name,
		Position: position,
	})
}

// Load reads every task and status row and reassembles the snapshot in
// stored position order. It reports ok=false when both tables are empty.
func (g *TableGateway) Load(ctx context.Context) (domain.Snapshot, bool, error) {
	type posTask struct {
		value    domain.Task
		position int
	}
	type posStatus struct {
		value    domain.Status
		position int
	}

	filter := "PartitionKey eq '" + boardPartition + "'"

	var tasks []posTask
	pager := g.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return domain.Snapshot{}, false, fmt.Errorf("list tasks: %w", err)
		}
		for _, raw := range resp.Entities {
			task, pos, err := decodeTaskEntity(raw)
			if err != nil {
				return domain.Snapshot{}, false, fmt.Errorf("decode task row: %w", err)
			}
			tasks = append(tasks, posTask{task, pos})
		}
	}

	var statuses []posStatus
	pager = g.statusTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return domain.Snapshot{}, false, fmt.Errorf("list statuses: %w", err)
		}
		for _, raw := range resp.Entities {
			status, pos, err := decodeStatusEntity(raw)
			if err != nil {
				return domain.Snapshot{}, false, fmt.Errorf("decode status row: %w", err)
			}
			statuses = append(statuses, posStatus{status, pos})
		}
	}

	if len(tasks) == 0 && len(statuses) == 0 {
		return domain.Snapshot{}, false, nil
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].position < tasks[j].position })
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].position < statuses[j].position })

	snap := domain.Snapshot{Tasks: make([]domain.Task, len(tasks)), Statuses: make([]domain.Status, len(statuses))}
	for i, t := range tasks {
		snap.Tasks[i] = t.value
	}
	for i, st := range statuses {
		snap.Statuses[i] = st.value
	}
	if len(snap.Statuses) == 0 {
		snap.Statuses = domain.DefaultStatuses()
	}
	return snap, true, nil
}

// Save upserts every row of the snapshot and deletes rows for entities that
// no longer exist on the board.
func (g *TableGateway) Save(ctx context.Context, snap domain.Snapshot) error {
	keepTasks := make(map[string]struct{}, len(snap.Tasks))
	for i, task := range snap.Tasks {
		data, err := encodeTaskEntity(task, i)
		if err != nil {
			return fmt.Errorf("encode task %s: %w", task.ID, err)
		}
		if _, err := g.taskTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
			return fmt.Errorf("upsert task %s: %w", task.ID, err)
		}
		keepTasks[task.ID] = struct{}{}
	}

	keepStatuses := make(map[string]struct{}, len(snap.Statuses))
	for i, status := range snap.Statuses {
		data, err := encodeStatusEntity(status, i)
		if err != nil {
			return fmt.Errorf("encode status %s: %w", status.ID, err)
		}
		if _, err := g.statusTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
			return fmt.Errorf("upsert status %s: %w", status.ID, err)
		}
		keepStatuses[status.ID] = struct{}{}
	}

	if err := g.deleteStale(ctx, g.taskTable, keepTasks); err != nil {
		return fmt.Errorf("prune tasks: %w", err)
	}
	if err := g.deleteStale(ctx, g.statusTable, keepStatuses); err != nil {
		return fmt.Errorf("prune statuses: %w", err)
	}
	return nil
}

func (g *TableGateway) deleteStale(ctx context.Context, table *aztables.Client, keep map[string]struct{}) error {
	filter := "PartitionKey eq '" + boardPartition + "'"
	sel := "PartitionKey,RowKey"
	pager := table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Select: &sel})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range resp.Entities {
			var ent aztables.Entity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return err
			}
			if _, ok := keep[ent.RowKey]; ok {
				continue
			}
			if _, err := table.DeleteEntity(ctx, ent.PartitionKey, ent.RowKey, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

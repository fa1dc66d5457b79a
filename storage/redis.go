// Package storage provides the persistence gateways for board snapshots:
// Redis as the default key-value store, Azure Table Storage as an
// alternative backend, and an Azure queue sink for the change event feed.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"kanban-api/domain"
)

// Snapshot keys. Tasks and statuses are stored as two independently keyed
// JSON arrays, mirroring the two values a browser client would keep in local
// storage.
const (
	tasksKey    = "kanban:tasks"
	statusesKey = "kanban:statuses"
)

// RedisGateway stores board snapshots in Redis.
type RedisGateway struct {
	client *redis.Client
}

// NewRedisGateway creates a gateway over the given client.
func NewRedisGateway(client *redis.Client) *RedisGateway {
	return &RedisGateway{client: client}
}

// Load reads the last saved snapshot. It reports ok=false when neither key
// exists. A missing status collection falls back to the bootstrap columns so
// a partially written board still loads usable.
func (g *RedisGateway) Load(ctx context.Context) (domain.Snapshot, bool, error) {
	vals, err := g.client.MGet(ctx, tasksKey, statusesKey).Result()
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	rawTasks, okTasks := vals[0].(string)
	rawStatuses, okStatuses := vals[1].(string)
	if !okTasks && !okStatuses {
		return domain.Snapshot{}, false, nil
	}

	snap := domain.Snapshot{Tasks: []domain.Task{}}
	if okTasks {
		if err := json.Unmarshal([]byte(rawTasks), &snap.Tasks); err != nil {
			return domain.Snapshot{}, false, fmt.Errorf("decode tasks: %w", err)
		}
	}
	if okStatuses {
		if err := json.Unmarshal([]byte(rawStatuses), &snap.Statuses); err != nil {
			return domain.Snapshot{}, false, fmt.Errorf("decode statuses: %w", err)
		}
	}
	if len(snap.Statuses) == 0 {
		snap.Statuses = domain.DefaultStatuses()
	}
	return snap, true, nil
}

// Save writes both collections in a single pipeline so a load between the
// two writes cannot observe a torn snapshot.
func (g *RedisGateway) Save(ctx context.Context, snap domain.Snapshot) error {
	tasks, err := json.Marshal(snap.Tasks)
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	statuses, err := json.Marshal(snap.Statuses)
	if err != nil {
		return fmt.Errorf("encode statuses: %w", err)
	}
	_, err = g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tasksKey, tasks, 0)
		pipe.Set(ctx, statusesKey, statuses, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

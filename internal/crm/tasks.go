package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

// createTask validates and stores a task, then records it in the audit log.
func createTask(ctx context.Context, st Store, now time.Time, userID int64, t domain.TaskType, due time.Time, p domain.Payload) (*domain.Task, error) {
	task, err := domain.NewTask(userID, t, due, p)
	if err != nil {
		return nil, err
	}
	id, err := st.CreateTask(ctx, task, now)
	if err != nil {
		return nil, fmt.Errorf("create %s task: %w", t, err)
	}
	if err := st.LogEvent(ctx, &userID, domain.EventTaskCreated, map[string]any{
		"task_id": id,
		"type":    string(t),
	}, now); err != nil {
		return task, fmt.Errorf("log task %d: %w", id, err)
	}
	return task, nil
}

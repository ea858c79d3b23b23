package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRBACInvalidate repeats a permission cache invalidation after a delay.
	TaskRBACInvalidate = "rbac:invalidate"
)

// InvalidatePayload names the cache entries to drop: explicit users, every
// member of a role, or both.
type InvalidatePayload struct {
	UserIDs []int64 `json:"user_ids,omitempty"`
	RoleID  int64   `json:"role_id,omitempty"`
}

// NewInvalidateTask constructs an Asynq task.
func NewInvalidateTask(payload InvalidatePayload) (*asynq.Task, error) {
	if len(payload.UserIDs) == 0 && payload.RoleID == 0 {
		return nil, fmt.Errorf("jobs: invalidate task needs users or a role")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRBACInvalidate, data), nil
}

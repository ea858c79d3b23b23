package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-rbac/internal/jobs"
)

// Invalidator drops cached permission sets.
type Invalidator interface {
	InvalidateUsers(ctx context.Context, userIDs []int64) error
	InvalidateForRole(ctx context.Context, roleID int64) error
}

// InvalidateJob handles TaskRBACInvalidate.
type InvalidateJob struct {
	Invalidator Invalidator
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewInvalidateJob wires dependencies for the invalidation handler.
func NewInvalidateJob(invalidator Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvalidateJob {
	return &InvalidateJob{Invalidator: invalidator, Logger: logger, Metrics: metrics}
}

// Handle processes invalidation tasks. Failures are retried by asynq.
func (j *InvalidateJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Invalidator == nil {
		return errors.New("rbac invalidate: handler not configured")
	}
	var payload InvalidatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskRBACInvalidate)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("role_id", payload.RoleID), slog.Int("users", len(payload.UserIDs)))
	if len(payload.UserIDs) > 0 {
		if err := j.Invalidator.InvalidateUsers(ctx, payload.UserIDs); err != nil {
			logger.Warn("recheck invalidate users", slog.Any("error", err))
			return err
		}
		j.Metrics.AddInvalidatedUsers(len(payload.UserIDs))
	}
	if payload.RoleID > 0 {
		if err := j.Invalidator.InvalidateForRole(ctx, payload.RoleID); err != nil {
			logger.Warn("recheck invalidate role", slog.Any("error", err))
			return err
		}
	}
	logger.Debug("recheck invalidation done")
	return nil
}

func (j *InvalidateJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

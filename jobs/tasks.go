package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fleetflow/fleetflow/internal/audit"
	jobmetrics "github.com/fleetflow/fleetflow/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditPurge removes audit records older than the retention window.
	TaskAuditPurge = "audit:purge"
	// TaskSessionCleanup removes expired refresh-token sessions.
	TaskSessionCleanup = "sessions:cleanup"
)

// AuditPurgePayload carries the retention window for an audit purge run.
type AuditPurgePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditPurgeTask constructs an Asynq task.
func NewAuditPurgeTask(payload AuditPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPurge, data), nil
}

// NewSessionCleanupTask constructs an Asynq task with no payload.
func NewSessionCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskSessionCleanup, nil)
}

// NewAuditPurgeHandler builds the handler for TaskAuditPurge. A payload
// without a retention falls back to the configured default.
func NewAuditPurgeHandler(store audit.Store, defaultRetention time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditPurgePayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		retention := payload.Retention
		if retention <= 0 {
			retention = defaultRetention
		}

		tracker := metrics.Track("audit_purge")
		cutoff := time.Now().Add(-retention)
		removed, err := store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			if logger != nil {
				logger.Error("audit purge failed", slog.Any("error", err))
			}
			return tracker.End(err)
		}
		metrics.AddPurged("audit", removed)
		if logger != nil {
			logger.Info("audit purge complete",
				slog.Int64("removed", removed),
				slog.Time("cutoff", cutoff))
		}
		return tracker.End(nil)
	}
}

// SessionDeleter is the slice of the session store the cleanup job needs.
type SessionDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// NewSessionCleanupHandler builds the handler for TaskSessionCleanup.
func NewSessionCleanupHandler(sessions SessionDeleter, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("session_cleanup")
		removed, err := sessions.DeleteExpired(ctx, time.Now())
		if err != nil {
			if logger != nil {
				logger.Error("session cleanup failed", slog.Any("error", err))
			}
			return tracker.End(err)
		}
		metrics.AddPurged("session", removed)
		if logger != nil {
			logger.Info("session cleanup complete", slog.Int64("removed", removed))
		}
		return tracker.End(nil)
	}
}

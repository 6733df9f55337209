package license

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"licensing-controlplane/pkg/locker"
	"licensing-controlplane/pkg/rediskey"
	"licensing-controlplane/pkg/repository"
	"licensing-controlplane/services/policy"
)

// triggerLockTTL bounds how long a trigger handler may hold a license's
// exclusive lock.
const triggerLockTTL = 30 * time.Second

// Locker provides the exclusive per-license lock held across a trigger
// handler's check-then-set sequence.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

var TaskModule = fx.Module("task.license",
	fx.Provide(NewTask),
)

// Task consumes licensing domain events and drives the expiry state machine.
type Task struct {
	db       *gorm.DB
	locker   Locker
	policies *policy.Service
	repo     repository.Repository[License]
}

type TaskParams struct {
	fx.In

	DB       *gorm.DB
	Locker   *locker.Locker
	Policies *policy.Service
}

func NewTask(p TaskParams) *Task {
	return &Task{
		db:       p.DB,
		locker:   p.Locker,
		policies: p.Policies,
		repo:     repository.ProvideStore[License](p.DB),
	}
}

// HandleTriggerEvent maps the event to its expiry trigger and applies it
// under the license's exclusive lock. Two concurrent events for one license
// serialize here; the loser observes expiry already set and no-ops. A lock
// that cannot be obtained is returned as an error so the task is retried.
func (t *Task) HandleTriggerEvent(ctx context.Context, task *asynq.Task) error {
	kind, ok := triggerByTask[task.Type()]
	if !ok {
		zap.L().Warn("dropping unsubscribed event", zap.String("task_type", task.Type()))
		return nil
	}

	var payload EventPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", task.Type()),
		zap.String("account_id", payload.AccountID),
		zap.String("license_id", payload.LicenseID),
		zap.String("trigger", kind.String()),
	)

	key := rediskey.BuildLicenseLockKey(payload.LicenseID)
	return t.locker.WithLock(ctx, key, triggerLockTTL, func(ctx context.Context) error {
		lic, err := t.repo.FindOne(ctx, &License{ID: payload.LicenseID, AccountID: payload.AccountID})
		if err != nil {
			return err
		}
		if lic == nil {
			zapLog.Warn("license no longer exists, dropping event")
			return nil
		}
		if lic.Expiry != nil {
			zapLog.Debug("expiry already set, trigger is a no-op")
			return nil
		}

		pol, err := t.policies.GetPolicy(ctx, payload.AccountID, lic.PolicyID)
		if err != nil {
			zapLog.Warn("policy lookup failed, dropping event", zap.Error(err))
			return nil
		}

		now := time.Now()
		if !ApplyTrigger(lic, pol, kind, now) {
			return nil
		}

		zapLog.Info("expiry assigned", zap.Time("expiry", *lic.Expiry))
		return t.repo.Update(ctx, lic.ID, map[string]interface{}{
			"expiry":     lic.Expiry,
			"updated_at": now,
		})
	})
}

// RegisterHandlers subscribes the task to every event in the dispatch table.
func RegisterHandlers(mux *asynq.ServeMux, t *Task) {
	for taskType := range triggerByTask {
		mux.HandleFunc(taskType, t.HandleTriggerEvent)
	}
}

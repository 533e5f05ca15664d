package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	tasks "wellnest-affiliate/pkg/asynq"
	"wellnest-affiliate/pkg/config"
)

// Scheduler enqueues the daily ledger maintenance tasks. Actual execution
// happens in the asynq consumers; overlapping runs are harmless because every
// transition downstream is a guarded conditional update.
type Scheduler struct {
	cfg    *config.Config
	client *asynq.Client
}

func NewScheduler(cfg *config.Config, client *asynq.Client) *Scheduler {
	return &Scheduler{cfg: cfg, client: client}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.run(context.Background())
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started ledger maintenance scheduler")

	for {
		now := time.Now()
		next := nextRunTime(now, s.cfg.Affiliate.ScheduleHour, s.cfg.Affiliate.ScheduleMinute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	zap.L().Info("[Scheduler] enqueueing daily ledger maintenance")

	s.enqueue(ctx, tasks.AdvanceHoldsTask, tasks.AdvanceHoldsPayload{
		RequestedAt: start.Format(time.RFC3339),
	}, asynq.Queue("critical"))

	s.enqueue(ctx, tasks.ReconcileNetworkTask, tasks.ReconcileNetworkPayload{}, asynq.Queue("low"))

	zap.L().Info("[Scheduler] finished daily enqueue",
		zap.Duration("duration", time.Since(start)),
	)
}

func (s *Scheduler) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) {
	raw, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("[Scheduler] failed to marshal payload", zap.String("task_type", taskType), zap.Error(err))
		return
	}

	info, err := s.client.EnqueueContext(ctx, asynq.NewTask(taskType, raw), opts...)
	if err != nil {
		zap.L().Error("[Scheduler] failed to enqueue task", zap.String("task_type", taskType), zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] task enqueued",
		zap.String("task_type", taskType),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
}

// nextRunTime returns the next wall-clock occurrence of hour:minute.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

package commission

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	tasks "wellnest-affiliate/pkg/asynq"
)

func registerTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(tasks.AdvanceHoldsTask, svc.handleAdvanceHoldsTask)
}

func (s *Service) handleAdvanceHoldsTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.AdvanceHoldsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid advance-holds payload", zap.Error(err))
		return err
	}

	advanced, err := s.AdvanceHolds(ctx, time.Now())
	if err != nil {
		zap.L().Error("advance-holds task failed",
			zap.String("trace_id", payload.TraceID), zap.Error(err))
		return err
	}

	zap.L().Info("advance-holds task completed",
		zap.String("requested_at", payload.RequestedAt),
		zap.Int64("advanced", advanced),
	)

	return nil
}

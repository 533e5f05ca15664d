package creator

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	tasks "wellnest-affiliate/pkg/asynq"
)

func registerTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(tasks.ReconcileNetworkTask, svc.handleReconcileTask)
}

func (s *Service) handleReconcileTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.ReconcileNetworkPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid reconcile payload", zap.Error(err))
		return err
	}

	repaired, err := s.ReconcileRecruitCounts(ctx)
	if err != nil {
		zap.L().Error("network reconcile task failed",
			zap.String("trace_id", payload.TraceID), zap.Error(err))
		return err
	}

	zap.L().Info("network reconcile task completed", zap.Int("repaired", repaired))

	return nil
}

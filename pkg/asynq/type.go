package asynq

const (
	AdvanceHoldsTask     = "commission:advance_holds"
	ReconcileNetworkTask = "network:reconcile_counts"
)

type AdvanceHoldsPayload struct {
	RequestedAt string `json:"requested_at"`
	TraceID     string `json:"trace_id,omitempty"`
}

type ReconcileNetworkPayload struct {
	CreatorID string `json:"creator_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

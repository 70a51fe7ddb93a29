package job

// Task type names registered with the worker. The scheduler enqueues these on
// a fixed cadence.
const (
	TypeReconcileStalePayments = "payment:reconcile_stale"
	TypePruneCallbackLogs      = "payment:prune_callback_logs"
)

// PruneCallbackLogsPayload carries the retention window for a prune run.
type PruneCallbackLogsPayload struct {
	RetentionDays int `json:"retention_days"`
}

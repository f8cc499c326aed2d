package i18n

// Message key constants to avoid hardcoded strings in log lines.
// Use these constants with T() or TLang().

// Cron messages
const (
	MsgCronStarted        = "cron.started"
	MsgCronStopped        = "cron.stopped"
	MsgCronCycleSkipped   = "cron.cycle_skipped"
	MsgCronCycleStarted   = "cron.cycle_started"
	MsgCronCycleCompleted = "cron.cycle_completed"
	MsgCronDispatchFailed = "cron.dispatch_failed"
)

// Reconciler messages
const (
	MsgReconcileStarted   = "reconcile.started"
	MsgReconcileCompleted = "reconcile.completed"
	MsgReconcileWarning   = "reconcile.warning"
)

// Dispatcher messages
const (
	MsgRunStarted          = "dispatch.run_started"
	MsgRunCompleted        = "dispatch.run_completed"
	MsgRunFailed           = "dispatch.run_failed"
	MsgRuntimeTailAttached = "dispatch.runtime_tail_attached"
)

// AgentStore messages
const (
	MsgAgentCreated           = "agentstore.agent_created"
	MsgAgentDeleted           = "agentstore.agent_deleted"
	MsgAgentRuntimeSyncFailed = "agentstore.runtime_sync_failed"
)

// Language picker messages
const (
	MsgLangSelected     = "lang.selected"
	MsgLangAutoSelected = "lang.auto_selected"
)

// Validation messages
const (
	MsgFieldRequired = "validation.field_required"
	MsgFieldInvalid  = "validation.field_invalid"
)

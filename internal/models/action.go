package models

import "time"

// ActionType enumerates the remediations the agent may propose.
type ActionType string

const (
	ActionKillQuery        ActionType = "kill_query"
	ActionCreateIndex      ActionType = "create_index"
	ActionRebuildIndex     ActionType = "rebuild_index"
	ActionScaleConnections ActionType = "scale_connections"
	ActionClearLogs        ActionType = "clear_logs"
	ActionUpdateStatistics ActionType = "update_statistics"
	ActionAlertDBA         ActionType = "alert_dba"
)

// KnownActionType reports whether value is one of the enumerated
// remediation actions.
func KnownActionType(value string) bool {
	switch ActionType(value) {
	case ActionKillQuery, ActionCreateIndex, ActionRebuildIndex,
		ActionScaleConnections, ActionClearLogs, ActionUpdateStatistics,
		ActionAlertDBA:
		return true
	}
	return false
}

// ActionStatus enumerates the agent action audit states.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionExecuting  ActionStatus = "executing"
	ActionSuccess    ActionStatus = "success"
	ActionFailed     ActionStatus = "failed"
	ActionRolledBack ActionStatus = "rolled_back"
)

// AgentAction is the append-only audit record of one executed decision.
// Exactly one action is created per auto-executed decision.
type AgentAction struct {
	ID              string       `json:"id"`
	IncidentID      string       `json:"incidentId"`
	Timestamp       time.Time    `json:"timestamp"`
	ActionType      ActionType   `json:"actionType"`
	ActionDetails   string       `json:"actionDetails,omitempty"`
	ConfidenceScore float64      `json:"confidenceScore"`
	Status          ActionStatus `json:"status"`
	ExecutionTimeMs int64        `json:"executionTimeMs,omitempty"`
	ResultNotes     string       `json:"resultNotes,omitempty"`
	RollbackPlan    string       `json:"rollbackPlan,omitempty"`
}

// Executor identifies who performed an operational event.
type Executor string

const (
	ExecutedByAgent    Executor = "ai_agent"
	ExecutedByDBA      Executor = "dba"
	ExecutedBySchedule Executor = "scheduled_task"
)

// ActionHistoryEntry is a generic append-only operational audit record.
// RelatedEventID is a weak lookup reference to another history entry
// (e.g. a detection linked to the autonomous fix that followed); it is
// never an owning edge.
type ActionHistoryEntry struct {
	ID             string         `json:"id"`
	TargetID       string         `json:"targetId"`
	TargetName     string         `json:"targetName,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	ActionType     string         `json:"actionType"`
	Description    string         `json:"description"`
	ExecutedBy     Executor       `json:"executedBy"`
	Success        bool           `json:"success"`
	Details        map[string]any `json:"details,omitempty"`
	RelatedEventID string         `json:"relatedEventId,omitempty"`
}

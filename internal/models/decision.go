package models

// RiskLevel grades the blast radius of a proposed remediation.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Decision is the structured remediation proposal returned by the AI
// provider for an incident.
type Decision struct {
	Action               ActionType `json:"action"`
	Reasoning            string     `json:"reasoning"`
	RiskLevel            RiskLevel  `json:"risk_level"`
	Confidence           float64    `json:"confidence"`
	ShouldAutoExecute    bool       `json:"should_auto_execute"`
	ExpectedImprovement  string     `json:"expected_improvement"`
	RollbackPlan         string     `json:"rollback_plan"`
	EstimatedTimeSeconds int        `json:"estimated_time_seconds"`
}

// OperationalSummary aggregates trailing-24h activity counts derived from
// the action history. It is a read model, not core state.
type OperationalSummary struct {
	BackupsVerified int `json:"backupsVerified"`
	QueriesKilled   int `json:"queriesKilled"`
	IndexesRebuilt  int `json:"indexesRebuilt"`
	LogsCleared     int `json:"logsCleared"`
	Warnings        int `json:"warnings"`
}

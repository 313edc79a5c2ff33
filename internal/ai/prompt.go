package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
)

const systemPrompt = "You are an expert autonomous DBA agent. Your task is to analyze a database incident and respond with a JSON object detailing the single best action to take. Adhere strictly to the requested JSON format."

// buildPrompt renders the incident and its similar resolved cases into the
// analysis prompt shared by every backend.
func buildPrompt(incident models.Incident, similar []models.Incident) string {
	var b strings.Builder

	b.WriteString("You are an autonomous DBA agent, \"NightWatch\". Your task is to analyze a database incident and decide the best course of action.\n\n")

	b.WriteString("**Current Incident:**\n")
	fmt.Fprintf(&b, "- **Database:** %s\n", incident.TargetName)
	fmt.Fprintf(&b, "- **Issue Type:** %s\n", incident.IssueType)
	fmt.Fprintf(&b, "- **Severity:** %s\n", incident.Severity)
	fmt.Fprintf(&b, "- **Symptoms:** %s\n", incident.Symptoms)
	fmt.Fprintf(&b, "- **Timestamp:** %s\n\n", incident.Timestamp.Format(time.RFC3339))

	b.WriteString("**Similar Past Incidents (Successfully Resolved):**\n")
	b.WriteString(renderSimilar(similar))
	b.WriteString("\n\n**Your Task:**\nRespond with a JSON object detailing the single best action to take.\n\n")

	b.WriteString(`**Available Actions:**
- ` + "`kill_query`" + `: Terminate a long-running query.
- ` + "`create_index`" + `: Add a missing index to a table.
- ` + "`rebuild_index`" + `: Defragment a specified index.
- ` + "`scale_connections`" + `: Increase the max_connections limit.
- ` + "`clear_logs`" + `: Archive and purge old log files.
- ` + "`update_statistics`" + `: Run ANALYZE TABLE.
- ` + "`alert_dba`" + `: Escalate to a human DBA for manual review.

**Rules:**
1.  **Confidence is Key:** Only recommend auto-execution if your confidence is high (>80%) and the risk is low.
2.  **Safety First:** Prefer non-destructive actions. If unsure, alert_dba.
3.  **Provide Details:** Your reasoning and rollback plan are critical.

**RESPONSE FORMAT (JSON ONLY):**
{
  "action": "action_type",
  "reasoning": "A detailed explanation of why this action was chosen based on the current incident and historical data.",
  "risk_level": "low | medium | high",
  "confidence": <A number from 0 to 100>,
  "should_auto_execute": <true | false>,
  "expected_improvement": "Describe the anticipated positive outcome (e.g., 'CPU usage to drop by 50%').",
  "rollback_plan": "A clear, step-by-step plan to undo the action if it fails.",
  "estimated_time_seconds": <Number of seconds the action is expected to take>
}`)

	return b.String()
}

type similarCase struct {
	Database        string `json:"database,omitempty"`
	IssueType       string `json:"issueType"`
	Severity        string `json:"severity"`
	Symptoms        string `json:"symptoms"`
	FixApplied      string `json:"fixApplied,omitempty"`
	ResolutionNotes string `json:"resolutionNotes,omitempty"`
}

func renderSimilar(similar []models.Incident) string {
	if len(similar) == 0 {
		return "[]"
	}
	cases := make([]similarCase, 0, len(similar))
	for _, inc := range similar {
		cases = append(cases, similarCase{
			Database:        inc.TargetName,
			IssueType:       inc.IssueType,
			Severity:        string(inc.Severity),
			Symptoms:        inc.Symptoms,
			FixApplied:      inc.FixApplied,
			ResolutionNotes: inc.ResolutionNotes,
		})
	}
	data, err := json.MarshalIndent(cases, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

package ai

import (
	"errors"
	"testing"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
)

func TestParseDecisionPlain(t *testing.T) {
	raw := `{"action":"kill_query","reasoning":"long-running query","risk_level":"low","confidence":90,"should_auto_execute":true,"rollback_plan":"none needed","estimated_time_seconds":5}`
	decision, err := parseDecision(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decision.Action != models.ActionKillQuery {
		t.Fatalf("expected kill_query, got %s", decision.Action)
	}
	if decision.Confidence != 90 || !decision.ShouldAutoExecute {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestParseDecisionFenced(t *testing.T) {
	raw := "Here is my analysis.\n```json\n{\"action\":\"rebuild_index\",\"confidence\":75,\"risk_level\":\"medium\",\"should_auto_execute\":false}\n```\nLet me know if you need more."
	decision, err := parseDecision(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decision.Action != models.ActionRebuildIndex {
		t.Fatalf("expected rebuild_index, got %s", decision.Action)
	}
}

func TestParseDecisionNestedBraces(t *testing.T) {
	raw := `prefix {"action":"alert_dba","reasoning":"value with {braces} inside","confidence":120} suffix`
	decision, err := parseDecision(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decision.Confidence != 100 {
		t.Fatalf("expected confidence clamped to 100, got %f", decision.Confidence)
	}
}

func TestParseDecisionNoJSON(t *testing.T) {
	_, err := parseDecision("I am sorry, I cannot help with that.")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParseDecisionUnknownAction(t *testing.T) {
	_, err := parseDecision(`{"action":"drop_database","confidence":99}`)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError for unknown action, got %v", err)
	}
}

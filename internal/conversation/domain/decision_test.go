package domain

import "testing"

func TestEscalationReasonAlwaysWins(t *testing.T) {
	outcome := TurnOutcome{
		Intent:           IntentScheduleAppointment,
		Confidence:       0.99,
		Sentiment:        0.9,
		EscalationReason: "pricing dispute",
	}

	// Even on the final turn, where the budget would complete, an explicit
	// escalation reason escalates.
	if got := DecideNextAction(5, 5, true, outcome); got != ActionEscalate {
		t.Fatalf("expected escalate, got %s", got)
	}
	if got := DecideNextAction(1, 5, false, outcome); got != ActionEscalate {
		t.Fatalf("expected escalate outside adaptive mode, got %s", got)
	}
}

func TestTurnBudgetBeatsAdaptiveRules(t *testing.T) {
	// Sentiment low enough that adaptive rules would escalate, but the
	// budget is reached.
	outcome := TurnOutcome{Intent: IntentGeneralResponse, Sentiment: 0.1}

	if got := DecideNextAction(4, 4, true, outcome); got != ActionComplete {
		t.Fatalf("expected complete at turn budget, got %s", got)
	}
}

func TestAdaptiveEarlyCompletion(t *testing.T) {
	outcome := TurnOutcome{Intent: IntentScheduleAppointment, Confidence: 0.95, Sentiment: 0.8}

	if got := DecideNextAction(2, 10, true, outcome); got != ActionComplete {
		t.Fatalf("expected early completion on confident appointment, got %s", got)
	}

	// Not confident enough.
	outcome.Confidence = 0.9
	if got := DecideNextAction(2, 10, true, outcome); got != ActionContinue {
		t.Fatalf("expected continue at confidence 0.9, got %s", got)
	}

	// Same signals outside adaptive mode continue.
	outcome.Confidence = 0.95
	if got := DecideNextAction(1, 2, false, outcome); got != ActionContinue {
		t.Fatalf("expected continue outside adaptive mode, got %s", got)
	}
}

func TestAdaptiveLowSentimentEscalation(t *testing.T) {
	outcome := TurnOutcome{Intent: IntentGeneralResponse, Sentiment: 0.2}

	if got := DecideNextAction(3, 10, true, outcome); got != ActionEscalate {
		t.Fatalf("expected escalate on sustained low sentiment, got %s", got)
	}
	// Too early in the dialogue.
	if got := DecideNextAction(2, 10, true, outcome); got != ActionContinue {
		t.Fatalf("expected continue before turn 3, got %s", got)
	}
}

func TestAdaptiveHumanRequestEscalates(t *testing.T) {
	outcome := TurnOutcome{Intent: IntentHumanRequest, Sentiment: 0.8}

	if got := DecideNextAction(1, 10, true, outcome); got != ActionEscalate {
		t.Fatalf("expected escalate on human request, got %s", got)
	}
}

func TestDefaultContinue(t *testing.T) {
	outcome := TurnOutcome{Intent: IntentGeneralResponse, Confidence: 0.5, Sentiment: 0.6}

	if got := DecideNextAction(1, 4, true, outcome); got != ActionContinue {
		t.Fatalf("expected continue, got %s", got)
	}
}

func TestNextStateMapping(t *testing.T) {
	if ActionComplete.NextState() != StateCompleted {
		t.Fatalf("complete should map to completed")
	}
	if ActionEscalate.NextState() != StateEscalated {
		t.Fatalf("escalate should map to escalated")
	}
	if ActionContinue.NextState() != StateActive {
		t.Fatalf("continue should map to active")
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{StateCompleted, StateEscalated, StateFailed} {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []State{StateActive, StatePaused} {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

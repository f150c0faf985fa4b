package domain

// NextAction is the turn processor's decision after persisting a response.
type NextAction string

const (
	ActionContinue NextAction = "continue"
	ActionComplete NextAction = "complete"
	ActionEscalate NextAction = "escalate"
)

// Recognized intents.
const (
	IntentScheduleAppointment = "schedule_appointment"
	IntentPurchase            = "purchase_intent"
	IntentHumanRequest        = "human_request"
	IntentGeneralResponse     = "general_response"
)

// LowEngagementSentiment is the threshold under which a thread is considered
// disengaged.
const LowEngagementSentiment = 0.3

// TurnOutcome is the normalized signal set extracted from one AI response.
type TurnOutcome struct {
	Intent           string
	Confidence       float64
	Sentiment        float64
	EscalationReason string
}

// NextState maps an action to the conversation state it produces.
func (a NextAction) NextState() State {
	switch a {
	case ActionComplete:
		return StateCompleted
	case ActionEscalate:
		return StateEscalated
	default:
		return StateActive
	}
}

// DecideNextAction applies the termination rules in strict priority order:
//
//  1. An explicit escalation reason always escalates, regardless of turn
//     number or mode.
//  2. Reaching the turn budget always completes, even when adaptive rules
//     would otherwise continue.
//  3. Adaptive mode only: a confident appointment intent completes early,
//     sustained low sentiment past turn 3 escalates, and an explicit human
//     request escalates.
//  4. Otherwise the conversation continues.
func DecideNextAction(turn, maxTurns int, adaptive bool, outcome TurnOutcome) NextAction {
	if outcome.EscalationReason != "" {
		return ActionEscalate
	}

	if turn >= maxTurns {
		return ActionComplete
	}

	if adaptive {
		if outcome.Intent == IntentScheduleAppointment && outcome.Confidence > 0.9 {
			return ActionComplete
		}
		if outcome.Sentiment < LowEngagementSentiment && turn >= 3 {
			return ActionEscalate
		}
		if outcome.Intent == IntentHumanRequest {
			return ActionEscalate
		}
	}

	return ActionContinue
}

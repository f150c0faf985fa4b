package scheduler

import (
	"testing"

	"github.com/hibiken/asynq"
)

func TestQueueForPriority(t *testing.T) {
	cases := []struct {
		priority int
		queue    string
	}{
		{0, QueueLow},
		{4, QueueLow},
		{5, QueueDefault},
		{9, QueueDefault},
		{10, QueueCritical},
		{23, QueueCritical},
	}
	for _, tc := range cases {
		if got := QueueForPriority(tc.priority); got != tc.queue {
			t.Fatalf("priority %d: expected %s, got %s", tc.priority, tc.queue, got)
		}
	}
}

func TestConversationTurnTaskRoundTrip(t *testing.T) {
	task, err := NewConversationTurnTask(ConversationTurnPayload{
		ConversationID: "b6f2d9a0-0000-0000-0000-000000000001",
		Turn:           3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Type() != TaskConversationTurn {
		t.Fatalf("unexpected task type: %s", task.Type())
	}

	payload, err := ParseConversationTurnPayload(task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.ConversationID != "b6f2d9a0-0000-0000-0000-000000000001" || payload.Turn != 3 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	task := asynq.NewTask(TaskConversationTurn, []byte("{broken"))
	if _, err := ParseConversationTurnPayload(task); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestTurnTaskID(t *testing.T) {
	if got := TurnTaskID("abc", 2); got != "turn:abc:2" {
		t.Fatalf("unexpected task id: %s", got)
	}
}

package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TaskConversationTurn = "conversations.turn"

// Queue names in descending priority. Weights give critical leads most of
// the worker capacity without starving the rest.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// QueueWeights is the asynq queue configuration shared by worker and
// inspector.
var QueueWeights = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

type ConversationTurnPayload struct {
	ConversationID string `json:"conversationId"`
	Turn           int    `json:"turn"`
}

func NewConversationTurnTask(payload ConversationTurnPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConversationTurn, data), nil
}

func ParseConversationTurnPayload(task *asynq.Task) (ConversationTurnPayload, error) {
	var payload ConversationTurnPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ConversationTurnPayload{}, err
	}
	return payload, nil
}

// TurnTaskID builds the dedupe key for a turn job. Enqueueing the same
// conversation turn twice while the first job is still pending is a no-op.
func TurnTaskID(conversationID string, turn int) string {
	return fmt.Sprintf("turn:%s:%d", conversationID, turn)
}

// QueueForPriority maps a conversation's priority score to a queue.
func QueueForPriority(priority int) string {
	switch {
	case priority >= 10:
		return QueueCritical
	case priority >= 5:
		return QueueDefault
	default:
		return QueueLow
	}
}

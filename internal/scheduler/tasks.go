// Package scheduler provides asynq-based background maintenance for the
// communication event store.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskEventsPrune = "comm.events.prune"

type EventsPrunePayload struct {
	RetentionDays int `json:"retentionDays"`
}

func NewEventsPruneTask(payload EventsPrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEventsPrune, data), nil
}

func ParseEventsPrunePayload(task *asynq.Task) (EventsPrunePayload, error) {
	var payload EventsPrunePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EventsPrunePayload{}, err
	}
	return payload, nil
}

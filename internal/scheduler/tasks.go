// Package scheduler owns the asynq task queue: enqueueing webhook events
// for background processing, the worker that consumes them, and the
// periodic jobs (rotting sweep, weekly digest).
package scheduler

import (
	"encoding/json"

	"sales_enforcer_backend/internal/crm"

	"github.com/hibiken/asynq"
)

const TaskDealEvent = "deal.event"

const TaskRottingSweep = "deals.rotting_sweep"

const TaskWeeklyDigest = "reports.weekly_digest"

// DealEventPayload carries one CRM webhook delivery into the queue.
// DeliveryID ties worker logs back to the HTTP request that accepted the
// event.
type DealEventPayload struct {
	DeliveryID string       `json:"deliveryId"`
	Event      string       `json:"event"`
	Previous   crm.Snapshot `json:"previous"`
	Current    crm.Snapshot `json:"current"`
}

func NewDealEventTask(payload DealEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDealEvent, data), nil
}

func ParseDealEventPayload(task *asynq.Task) (DealEventPayload, error) {
	var payload DealEventPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DealEventPayload{}, err
	}
	return payload, nil
}

// The periodic tasks carry no payload; the sweep and the digest derive
// everything from current CRM and ledger state.

func NewRottingSweepTask() *asynq.Task {
	return asynq.NewTask(TaskRottingSweep, nil)
}

func NewWeeklyDigestTask() *asynq.Task {
	return asynq.NewTask(TaskWeeklyDigest, nil)
}

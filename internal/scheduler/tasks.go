package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// TaskEmailDeliveryBatch asks a worker to drain one batch of the email outbox.
const TaskEmailDeliveryBatch = "notification.email.delivery_batch"

type EmailDeliveryBatchPayload struct {
	RequestedAt time.Time `json:"requestedAt"`
}

func NewEmailDeliveryBatchTask(payload EmailDeliveryBatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEmailDeliveryBatch, data), nil
}

func ParseEmailDeliveryBatchPayload(task *asynq.Task) (EmailDeliveryBatchPayload, error) {
	var payload EmailDeliveryBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EmailDeliveryBatchPayload{}, err
	}
	return payload, nil
}

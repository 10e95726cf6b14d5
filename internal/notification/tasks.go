package notification

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskLeadCreated = "leads.notify.created"

type LeadCreatedPayload struct {
	LeadID            string `json:"leadId"`
	OwnerID           string `json:"ownerId"`
	ChannelInstanceID string `json:"channelInstanceId"`
	ContactPhone      string `json:"contactPhone"`
	Name              string `json:"name"`
	Score             int    `json:"score"`
	Priority          string `json:"priority"`
	Origin            string `json:"origin"`
}

func NewLeadCreatedTask(payload LeadCreatedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadCreated, data), nil
}

func ParseLeadCreatedPayload(task *asynq.Task) (LeadCreatedPayload, error) {
	var payload LeadCreatedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadCreatedPayload{}, err
	}
	return payload, nil
}

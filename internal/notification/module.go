package notification

import (
	"context"
	"fmt"

	"leadflow_backend/internal/events"
	"leadflow_backend/platform/logger"
)

// Module subscribes the notification queue to lead events.
type Module struct {
	client *Client
	log    *logger.Logger
}

// NewModule wires event subscriptions. A nil client means notifications are
// disabled; no subscription is registered and lead creation is unaffected.
func NewModule(bus events.Bus, client *Client, log *logger.Logger) *Module {
	m := &Module{
		client: client,
		log:    log,
	}

	if client != nil {
		bus.Subscribe(events.LeadCreated{}.EventName(), events.HandlerFunc(m.onLeadCreated))
	} else {
		log.Info("notifications disabled, no redis configured")
	}

	return m
}

func (m *Module) onLeadCreated(ctx context.Context, event events.Event) error {
	created, ok := event.(events.LeadCreated)
	if !ok {
		return fmt.Errorf("unexpected event type for %s", event.EventName())
	}

	err := m.client.EnqueueLeadCreated(ctx, LeadCreatedPayload{
		LeadID:            created.LeadID.String(),
		OwnerID:           created.OwnerID.String(),
		ChannelInstanceID: created.ChannelInstanceID,
		ContactPhone:      created.ContactPhone,
		Name:              created.Name,
		Score:             created.Score,
		Priority:          created.Priority,
		Origin:            created.Origin,
	})
	if err != nil {
		m.log.Error("enqueue lead notification failed", "lead_id", created.LeadID, "error", err)
		return err
	}

	m.log.Debug("lead notification enqueued", "lead_id", created.LeadID)
	return nil
}

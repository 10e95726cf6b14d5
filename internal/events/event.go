// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published when the upsert gateway creates a new lead.
type LeadCreated struct {
	BaseEvent
	LeadID            uuid.UUID `json:"leadId"`
	OwnerID           uuid.UUID `json:"ownerId"`
	ChannelInstanceID string    `json:"channelInstanceId"`
	ContactPhone      string    `json:"contactPhone"`
	Name              string    `json:"name"`
	Score             int       `json:"score"`
	Priority          string    `json:"priority"`
	Origin            string    `json:"origin"`
}

func (e LeadCreated) EventName() string { return "leads.created" }

// LeadDuplicateObserved is published when a qualifying message arrives for a
// contact that already has a lead. No write happens; this exists for
// observability only.
type LeadDuplicateObserved struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	ContactPhone string    `json:"contactPhone"`
	Origin       string    `json:"origin"`
}

func (e LeadDuplicateObserved) EventName() string { return "leads.duplicate_observed" }

// =============================================================================
// Channel Domain Events
// =============================================================================

// ChannelConnectionLost is published when the push adapter exhausts its
// reconnect attempts for a channel instance and falls back to poll-only
// coverage.
type ChannelConnectionLost struct {
	BaseEvent
	ChannelInstanceID string `json:"channelInstanceId"`
	Attempts          int    `json:"attempts"`
}

func (e ChannelConnectionLost) EventName() string { return "channels.connection_lost" }

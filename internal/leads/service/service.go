// Package service implements the lead upsert gateway: at most one lead per
// contact phone, no matter how many qualifying messages arrive or through
// which adapter.
package service

import (
	"context"
	"errors"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/qualify"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"

	"github.com/google/uuid"
)

// LeadStore is the persistence surface the gateway needs.
// Satisfied by *repository.Repository.
type LeadStore interface {
	FindByPhone(ctx context.Context, ownerID uuid.UUID, contactPhone string) (repository.Lead, error)
	Create(ctx context.Context, params repository.CreateLeadParams) (repository.Lead, bool, error)
}

// ChannelContext identifies where a qualified message came from.
type ChannelContext struct {
	ChannelInstanceID string
	OwnerID           uuid.UUID
	Origin            string // "poll" or "push", for observability
}

// UpsertResult reports what the gateway did.
type UpsertResult struct {
	Created bool
	LeadID  uuid.UUID
}

type Service struct {
	repo LeadStore
	bus  events.Bus
	log  *logger.Logger
}

func New(repo LeadStore, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		bus:  bus,
		log:  log,
	}
}

// Upsert creates a lead for the contact if none exists yet. The phone-keyed
// lookup is the storage-level idempotency guard, independent of the dedup
// tracker: it covers the case where the same contact re-messages after a
// watermark or process restart gap.
func (s *Service) Upsert(ctx context.Context, contactPhone string, analysis qualify.Analysis, channel ChannelContext) (UpsertResult, error) {
	normalized := phone.Canonical(contactPhone)
	if normalized == "" {
		return UpsertResult{}, apperr.Validation("contact phone is empty").WithOp("leads.upsert")
	}

	existing, err := s.repo.FindByPhone(ctx, channel.OwnerID, normalized)
	if err == nil {
		s.observeDuplicate(ctx, existing.ID, normalized, channel.Origin)
		return UpsertResult{Created: false, LeadID: existing.ID}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.log.DatabaseError("leads.find_by_phone", err)
		return UpsertResult{}, apperr.Wrap(apperr.KindUnavailable, "lead lookup failed", err).WithOp("leads.upsert")
	}

	name := analysis.Name
	if name == "" {
		name = normalized
	}

	lead, created, err := s.repo.Create(ctx, repository.CreateLeadParams{
		OwnerID:           channel.OwnerID,
		ChannelInstanceID: channel.ChannelInstanceID,
		ContactPhone:      normalized,
		Name:              name,
		Origin:            channel.Origin,
		Score:             analysis.Score,
		Priority:          string(analysis.Priority),
		Urgency:           string(analysis.Urgency),
		PropertyType:      analysis.PropertyType,
		Location:          analysis.Location,
		Bedrooms:          analysis.Bedrooms,
		Budget:            analysis.Budget,
		Summary:           analysis.Summary,
	})
	if err != nil {
		s.log.DatabaseError("leads.create", err)
		return UpsertResult{}, apperr.Wrap(apperr.KindInternal, "lead insert failed", err).WithOp("leads.upsert")
	}

	if !created {
		// Lost a check-then-insert race; the unique index held the line.
		s.observeDuplicate(ctx, lead.ID, normalized, channel.Origin)
		return UpsertResult{Created: false, LeadID: lead.ID}, nil
	}

	s.log.Info("lead created",
		"lead_id", lead.ID,
		"channel_id", channel.ChannelInstanceID,
		"origin", channel.Origin,
		"score", lead.Score,
		"priority", lead.Priority,
	)

	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent:         events.NewBaseEvent(),
		LeadID:            lead.ID,
		OwnerID:           lead.OwnerID,
		ChannelInstanceID: channel.ChannelInstanceID,
		ContactPhone:      normalized,
		Name:              lead.Name,
		Score:             lead.Score,
		Priority:          lead.Priority,
		Origin:            channel.Origin,
	})

	return UpsertResult{Created: true, LeadID: lead.ID}, nil
}

func (s *Service) observeDuplicate(ctx context.Context, leadID uuid.UUID, contactPhone, origin string) {
	s.bus.Publish(ctx, events.LeadDuplicateObserved{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       leadID,
		ContactPhone: contactPhone,
		Origin:       origin,
	})
}

// Package repository provides Postgres persistence for lead records.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Lead struct {
	ID                uuid.UUID
	OwnerID           uuid.UUID
	ChannelInstanceID string
	ContactPhone      string
	Name              string
	Status            string
	Origin            string
	Score             int
	Priority          string
	Urgency           string
	PropertyType      string
	Location          string
	Bedrooms          int
	Budget            int64
	Summary           string
	CreatedAt         time.Time
}

type CreateLeadParams struct {
	OwnerID           uuid.UUID
	ChannelInstanceID string
	ContactPhone      string
	Name              string
	Origin            string
	Score             int
	Priority          string
	Urgency           string
	PropertyType      string
	Location          string
	Bedrooms          int
	Budget            int64
	Summary           string
}

// FindByPhone looks up a lead by its dedup key.
func (r *Repository) FindByPhone(ctx context.Context, ownerID uuid.UUID, contactPhone string) (Lead, error) {
	var lead Lead
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, channel_instance_id, contact_phone, name, status, origin,
			score, priority, urgency, property_type, location, bedrooms, budget, summary, created_at
		FROM leads
		WHERE owner_id = $1 AND contact_phone = $2
	`, ownerID, contactPhone).Scan(
		&lead.ID, &lead.OwnerID, &lead.ChannelInstanceID, &lead.ContactPhone, &lead.Name,
		&lead.Status, &lead.Origin, &lead.Score, &lead.Priority, &lead.Urgency,
		&lead.PropertyType, &lead.Location, &lead.Bedrooms, &lead.Budget, &lead.Summary, &lead.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}

// Create inserts a new lead. The table carries a unique index on
// (owner_id, contact_phone) and the insert uses ON CONFLICT DO NOTHING, so
// a concurrent duplicate degrades to created=false with the existing row
// returned instead of a second lead.
func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (Lead, bool, error) {
	var lead Lead
	err := r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			owner_id, channel_instance_id, contact_phone, name, origin,
			score, priority, urgency, property_type, location, bedrooms, budget, summary
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (owner_id, contact_phone) DO NOTHING
		RETURNING id, owner_id, channel_instance_id, contact_phone, name, status, origin,
			score, priority, urgency, property_type, location, bedrooms, budget, summary, created_at
	`,
		params.OwnerID, params.ChannelInstanceID, params.ContactPhone, params.Name, params.Origin,
		params.Score, params.Priority, params.Urgency, params.PropertyType, params.Location,
		params.Bedrooms, params.Budget, params.Summary,
	).Scan(
		&lead.ID, &lead.OwnerID, &lead.ChannelInstanceID, &lead.ContactPhone, &lead.Name,
		&lead.Status, &lead.Origin, &lead.Score, &lead.Priority, &lead.Urgency,
		&lead.PropertyType, &lead.Location, &lead.Bedrooms, &lead.Budget, &lead.Summary, &lead.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, findErr := r.FindByPhone(ctx, params.OwnerID, params.ContactPhone)
		if findErr != nil {
			return Lead{}, false, findErr
		}
		return existing, false, nil
	}
	if err != nil {
		return Lead{}, false, err
	}
	return lead, true, nil
}

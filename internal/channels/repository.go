// Package channels provides read access to the configured messaging channel
// instances. Instances are created and destroyed by configuration outside
// this service; the pipeline only ever reads them.
package channels

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("channel instance not found")

// Instance is one configured connection to the messaging gateway,
// e.g. one business phone number.
type Instance struct {
	ID             string
	OwnerID        uuid.UUID
	CredentialsRef string
	Active         bool
	CreatedAt      time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActive returns the channel instances the adapters should serve.
func (r *Repository) ListActive(ctx context.Context) ([]Instance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, credentials_ref, is_active, created_at
		FROM channel_instances
		WHERE is_active = true
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Instance, 0)
	for rows.Next() {
		var item Instance
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.CredentialsRef, &item.Active, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return items, nil
}

// Get returns a single channel instance by ID, active or not.
func (r *Repository) Get(ctx context.Context, id string) (Instance, error) {
	var item Instance
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, credentials_ref, is_active, created_at
		FROM channel_instances
		WHERE id = $1
	`, id).Scan(&item.ID, &item.OwnerID, &item.CredentialsRef, &item.Active, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Instance{}, ErrNotFound
	}
	if err != nil {
		return Instance{}, err
	}
	return item, nil
}

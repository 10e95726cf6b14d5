package watermark

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Watermark is the processing boundary for one channel instance: the epoch
// below which traffic is assumed handled, plus a bounded set of recently
// committed message IDs to disambiguate within one timestamp granule.
type Watermark struct {
	ChannelInstanceID string
	LastProcessed     int64
	RecentMessageIDs  []string
}

// Repository persists watermarks so a process restart does not replay the
// upstream history window.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Load reads the persisted watermark for a channel instance. An absent row
// yields a zero watermark (process-all mode for the first run).
func (r *Repository) Load(ctx context.Context, channelInstanceID string) (Watermark, error) {
	wm := Watermark{ChannelInstanceID: channelInstanceID}

	var rawIDs []byte
	err := r.pool.QueryRow(ctx, `
		SELECT last_processed_at, recent_message_ids
		FROM processing_watermarks
		WHERE channel_instance_id = $1
	`, channelInstanceID).Scan(&wm.LastProcessed, &rawIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return wm, nil
	}
	if err != nil {
		return Watermark{}, err
	}

	if len(rawIDs) > 0 {
		if err := json.Unmarshal(rawIDs, &wm.RecentMessageIDs); err != nil {
			return Watermark{}, err
		}
	}
	return wm, nil
}

// Save upserts the watermark row for its channel instance.
func (r *Repository) Save(ctx context.Context, wm Watermark) error {
	rawIDs, err := json.Marshal(wm.RecentMessageIDs)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO processing_watermarks (channel_instance_id, last_processed_at, recent_message_ids, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (channel_instance_id) DO UPDATE
		SET last_processed_at = EXCLUDED.last_processed_at,
		    recent_message_ids = EXCLUDED.recent_message_ids,
		    updated_at = now()
	`, wm.ChannelInstanceID, wm.LastProcessed, rawIDs)
	return err
}

// Package watermark filters already-seen gateway traffic. It is the first of
// two independent idempotency layers; the second is the upsert gateway's
// phone-keyed lookup in internal/leads.
package watermark

import (
	"context"
	"sync"

	"leadflow_backend/platform/logger"
)

// DefaultRecentIDCapacity bounds the per-channel recent-message-id set.
const DefaultRecentIDCapacity = 512

// Store persists watermarks. Satisfied by *Repository.
type Store interface {
	Load(ctx context.Context, channelInstanceID string) (Watermark, error)
	Save(ctx context.Context, wm Watermark) error
}

// Tracker owns the watermarks. Both source adapters call it, possibly
// concurrently, so the critical section is serialized internally; callers
// never read-modify-write watermark state themselves.
type Tracker struct {
	mu       sync.Mutex
	store    Store
	cache    map[string]*Watermark
	capacity int
	log      *logger.Logger
}

func NewTracker(store Store, capacity int, log *logger.Logger) *Tracker {
	if capacity <= 0 {
		capacity = DefaultRecentIDCapacity
	}
	return &Tracker{
		store:    store,
		cache:    make(map[string]*Watermark),
		capacity: capacity,
		log:      log,
	}
}

// ShouldProcess reports whether a message is new for its channel instance.
// A message is stale when its timestamp is at or below the watermark epoch,
// or when its ID is already in the recent set. The epoch check alone is not
// enough: the gateway timestamps at second granularity, so several messages
// can share one epoch and only the ID set tells them apart.
func (t *Tracker) ShouldProcess(ctx context.Context, channelInstanceID, messageID string, sentAt int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wm, err := t.watermarkLocked(ctx, channelInstanceID)
	if err != nil {
		return false, err
	}

	if sentAt <= wm.LastProcessed {
		return false, nil
	}
	for _, id := range wm.RecentMessageIDs {
		if id == messageID {
			return false, nil
		}
	}
	return true, nil
}

// Commit records a handled message: the ID joins the bounded recent set
// (oldest evicted first) and the epoch rises to max(current, sentAt), never
// down. Commit persists before returning so a crash cannot roll the
// watermark back past handled traffic.
func (t *Tracker) Commit(ctx context.Context, channelInstanceID, messageID string, sentAt int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	wm, err := t.watermarkLocked(ctx, channelInstanceID)
	if err != nil {
		return err
	}

	wm.RecentMessageIDs = append(wm.RecentMessageIDs, messageID)
	if overflow := len(wm.RecentMessageIDs) - t.capacity; overflow > 0 {
		wm.RecentMessageIDs = wm.RecentMessageIDs[overflow:]
	}
	if sentAt > wm.LastProcessed {
		wm.LastProcessed = sentAt
	}

	return t.store.Save(ctx, *wm)
}

// LoadWatermark returns a copy of the current watermark for a channel
// instance, loading it from the store on first use.
func (t *Tracker) LoadWatermark(ctx context.Context, channelInstanceID string) (Watermark, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wm, err := t.watermarkLocked(ctx, channelInstanceID)
	if err != nil {
		return Watermark{}, err
	}

	out := *wm
	out.RecentMessageIDs = append([]string(nil), wm.RecentMessageIDs...)
	return out, nil
}

func (t *Tracker) watermarkLocked(ctx context.Context, channelInstanceID string) (*Watermark, error) {
	if wm, ok := t.cache[channelInstanceID]; ok {
		return wm, nil
	}

	loaded, err := t.store.Load(ctx, channelInstanceID)
	if err != nil {
		return nil, err
	}

	wm := loaded
	wm.ChannelInstanceID = channelInstanceID
	t.cache[channelInstanceID] = &wm
	return &wm, nil
}

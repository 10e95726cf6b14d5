package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"leadflow_backend/internal/channels"
	"leadflow_backend/internal/gateway"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

// CycleState is the poll scheduler's coarse state, exposed for diagnostics.
type CycleState int32

const (
	StateIdle CycleState = iota
	StateRunning
)

func (s CycleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// ChannelLister enumerates the channel instances a cycle should cover.
// Satisfied by *channels.Repository.
type ChannelLister interface {
	ListActive(ctx context.Context) ([]channels.Instance, error)
}

// MessageFetcher pulls recent messages for one channel instance.
// Satisfied by *gateway.Client.
type MessageFetcher interface {
	RecentMessages(ctx context.Context, channelInstanceID string, limit int) ([]gateway.Message, error)
}

// Poller drives the interval-based source adapter. Cycles never overlap: a
// tick that fires while the previous cycle is still draining is dropped, so
// a slow gateway stretches the effective interval instead of stacking work.
type Poller struct {
	registry    ChannelLister
	gw          MessageFetcher
	pipe        *Pipeline
	interval    time.Duration
	fetchLimit  int
	concurrency int
	state       atomic.Int32
	log         *logger.Logger
}

func NewPoller(registry ChannelLister, gw MessageFetcher, pipe *Pipeline, cfg config.PollConfig, log *logger.Logger) *Poller {
	concurrency := cfg.GetPollConcurrency()
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Poller{
		registry:    registry,
		gw:          gw,
		pipe:        pipe,
		interval:    cfg.GetPollInterval(),
		fetchLimit:  cfg.GetPollFetchLimit(),
		concurrency: concurrency,
		log:         log,
	}
}

// State reports whether a cycle is currently draining.
func (p *Poller) State() CycleState {
	return CycleState(p.state.Load())
}

// Run executes cycles on the configured interval until ctx is cancelled.
// The first cycle starts immediately rather than one interval in.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("poll scheduler started",
		"interval", p.interval.String(),
		"fetch_limit", p.fetchLimit,
		"concurrency", p.concurrency,
	)

	if err := p.RunCycle(ctx); err != nil {
		p.log.Warn("poll cycle failed", "error", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poll scheduler stopped")
			return
		case <-ticker.C:
			if err := p.RunCycle(ctx); err != nil {
				p.log.Warn("poll cycle failed", "error", err)
			}
		}
	}
}

// RunCycle fetches and processes recent messages for every active channel
// instance, fanning out across instances with bounded concurrency. Returns
// immediately without doing anything when a cycle is already in flight.
func (p *Poller) RunCycle(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		p.log.Debug("poll tick skipped, previous cycle still running")
		return nil
	}
	defer p.state.Store(int32(StateIdle))

	instances, err := p.registry.ListActive(ctx)
	if err != nil {
		p.log.DatabaseError("channels.list_active", err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, inst := range instances {
		inst := inst
		g.Go(func() error {
			p.pollInstance(gctx, inst)
			return nil
		})
	}

	return g.Wait()
}

// pollInstance covers one channel instance for one cycle. A gateway failure
// skips the instance; the next tick is the retry, and the watermark keeps
// the overlap between fetches from double-processing anything.
func (p *Poller) pollInstance(ctx context.Context, inst channels.Instance) {
	messages, err := p.gw.RecentMessages(ctx, inst.ID, p.fetchLimit)
	if err != nil {
		p.log.GatewayError("recent_messages", inst.ID, err)
		return
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		if err := p.pipe.Handle(ctx, inst, msg, OriginPoll); err != nil {
			p.log.Warn("message processing failed",
				"channel_id", inst.ID,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}
}

// Package ingest contains the message source adapters and the shared
// processing pipeline they feed. The poll scheduler and the push listener
// differ only in how messages arrive; from dedup onward every message takes
// the same path.
package ingest

import (
	"context"

	"leadflow_backend/internal/channels"
	"leadflow_backend/internal/gateway"
	"leadflow_backend/internal/leads/service"
	"leadflow_backend/internal/qualify"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

// Origin labels for lead records and logs.
const (
	OriginPoll = "poll"
	OriginPush = "push"
)

// Deduper is the watermark tracker surface the pipeline needs.
// Satisfied by *watermark.Tracker.
type Deduper interface {
	ShouldProcess(ctx context.Context, channelInstanceID, messageID string, sentAt int64) (bool, error)
	Commit(ctx context.Context, channelInstanceID, messageID string, sentAt int64) error
}

// Qualifier scores a message. Satisfied by *qualify.Engine.
type Qualifier interface {
	Analyze(ctx context.Context, text, senderName string) qualify.Analysis
}

// Upserter hands a qualified contact to the lead gateway.
// Satisfied by *service.Service.
type Upserter interface {
	Upsert(ctx context.Context, contactPhone string, analysis qualify.Analysis, channel service.ChannelContext) (service.UpsertResult, error)
}

// Pipeline is the per-message processing path shared by both adapters:
// shape check, outbound filter, dedup check, qualification, lead upsert,
// watermark commit.
type Pipeline struct {
	tracker Deduper
	engine  Qualifier
	leads   Upserter
	val     *validator.Validator
	log     *logger.Logger
}

func NewPipeline(tracker Deduper, engine Qualifier, leads Upserter, val *validator.Validator, log *logger.Logger) *Pipeline {
	return &Pipeline{
		tracker: tracker,
		engine:  engine,
		leads:   leads,
		val:     val,
		log:     log,
	}
}

// Handle runs one message through the pipeline. A lead upsert failure does
// not fail the message: the watermark still advances, because retrying the
// same message next cycle would retry the same failing write against the
// same duplicate-safe gateway and produce only noise. The phone-keyed
// idempotency in the lead store covers the contact when they message again.
func (p *Pipeline) Handle(ctx context.Context, inst channels.Instance, msg gateway.Message, origin string) error {
	if err := p.val.Struct(msg); err != nil {
		// Malformed traffic is dropped without a commit; it carries nothing
		// the watermark could anchor on.
		p.log.Warn("malformed message dropped",
			"channel_id", msg.ChannelInstanceID,
			"origin", origin,
			"error", err,
		)
		return nil
	}
	if msg.FromMe {
		return nil
	}

	ok, err := p.tracker.ShouldProcess(ctx, msg.ChannelInstanceID, msg.ID, msg.Timestamp)
	if err != nil {
		p.log.DatabaseError("watermark.should_process", err)
		return err
	}
	if !ok {
		p.log.PipelineEvent("skipped_stale", msg.ChannelInstanceID, msg.ID)
		return nil
	}

	analysis := p.engine.Analyze(ctx, msg.Text, msg.SenderName)
	p.log.PipelineEvent("qualified", msg.ChannelInstanceID, msg.ID)

	_, err = p.leads.Upsert(ctx, msg.SenderPhone, analysis, service.ChannelContext{
		ChannelInstanceID: msg.ChannelInstanceID,
		OwnerID:           inst.OwnerID,
		Origin:            origin,
	})
	if err != nil {
		p.log.Warn("lead upsert failed, message not retried",
			"channel_id", msg.ChannelInstanceID,
			"message_id", msg.ID,
			"origin", origin,
			"error", err,
		)
	}

	return p.tracker.Commit(ctx, msg.ChannelInstanceID, msg.ID, msg.Timestamp)
}

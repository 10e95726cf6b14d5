package ingest

import (
	"context"
	"errors"
	"testing"

	"leadflow_backend/internal/channels"
	"leadflow_backend/internal/gateway"
	"leadflow_backend/internal/leads/service"
	"leadflow_backend/internal/qualify"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/google/uuid"
)

// fakeTracker reimplements the watermark contract in memory, without the
// persistence layer.
type fakeTracker struct {
	lastProcessed map[string]int64
	committed     map[string]bool
	commits       []string
	checkErr      error
	commitErr     error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		lastProcessed: make(map[string]int64),
		committed:     make(map[string]bool),
	}
}

func (f *fakeTracker) ShouldProcess(_ context.Context, channelID, messageID string, sentAt int64) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	if sentAt <= f.lastProcessed[channelID] {
		return false, nil
	}
	return !f.committed[channelID+"/"+messageID], nil
}

func (f *fakeTracker) Commit(_ context.Context, channelID, messageID string, sentAt int64) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed[channelID+"/"+messageID] = true
	if sentAt > f.lastProcessed[channelID] {
		f.lastProcessed[channelID] = sentAt
	}
	f.commits = append(f.commits, messageID)
	return nil
}

type fakeEngine struct {
	calls int
}

func (f *fakeEngine) Analyze(context.Context, string, string) qualify.Analysis {
	f.calls++
	return qualify.Analysis{Score: 50, Priority: qualify.LevelMedium, Urgency: qualify.LevelMedium}
}

type fakeUpserter struct {
	phones []string
	err    error
}

func (f *fakeUpserter) Upsert(_ context.Context, contactPhone string, _ qualify.Analysis, _ service.ChannelContext) (service.UpsertResult, error) {
	if f.err != nil {
		return service.UpsertResult{}, f.err
	}
	f.phones = append(f.phones, contactPhone)
	return service.UpsertResult{Created: true, LeadID: uuid.New()}, nil
}

func testInstance() channels.Instance {
	return channels.Instance{ID: "ch-1", OwnerID: uuid.New(), Active: true}
}

func testMessage(id string, sentAt int64) gateway.Message {
	return gateway.Message{
		ChannelInstanceID: "ch-1",
		ID:                id,
		SenderPhone:       "5511988887777",
		SenderName:        "Ana",
		Text:              "Quero um apartamento",
		Timestamp:         sentAt,
	}
}

func newTestPipeline(tracker *fakeTracker, engine *fakeEngine, upserter *fakeUpserter) *Pipeline {
	return NewPipeline(tracker, engine, upserter, validator.New(), logger.New("development"))
}

func TestPipelineProcessesFreshMessage(t *testing.T) {
	tracker := newFakeTracker()
	engine := &fakeEngine{}
	upserter := &fakeUpserter{}
	pipe := newTestPipeline(tracker, engine, upserter)

	if err := pipe.Handle(context.Background(), testInstance(), testMessage("m1", 100), OriginPoll); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if engine.calls != 1 {
		t.Fatalf("engine calls: got %d, want 1", engine.calls)
	}
	if len(upserter.phones) != 1 || upserter.phones[0] != "5511988887777" {
		t.Fatalf("upserts: got %v", upserter.phones)
	}
	if len(tracker.commits) != 1 {
		t.Fatalf("commits: got %v", tracker.commits)
	}
}

func TestPipelineDropsMalformedMessages(t *testing.T) {
	tracker := newFakeTracker()
	engine := &fakeEngine{}
	upserter := &fakeUpserter{}
	pipe := newTestPipeline(tracker, engine, upserter)

	malformed := []gateway.Message{
		{ChannelInstanceID: "ch-1", SenderPhone: "5511988887777", Timestamp: 100},  // no id
		{ChannelInstanceID: "ch-1", ID: "m1", Timestamp: 100},                      // no sender
		{ChannelInstanceID: "ch-1", ID: "m1", SenderPhone: "5511988887777"},        // no timestamp
	}

	for _, msg := range malformed {
		if err := pipe.Handle(context.Background(), testInstance(), msg, OriginPush); err != nil {
			t.Fatalf("Handle(%+v): %v", msg, err)
		}
	}
	if engine.calls != 0 || len(tracker.commits) != 0 {
		t.Fatalf("malformed messages must not advance the pipeline")
	}
}

func TestPipelineSkipsOutboundMessages(t *testing.T) {
	tracker := newFakeTracker()
	engine := &fakeEngine{}
	upserter := &fakeUpserter{}
	pipe := newTestPipeline(tracker, engine, upserter)

	msg := testMessage("m1", 100)
	msg.FromMe = true

	if err := pipe.Handle(context.Background(), testInstance(), msg, OriginPoll); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if engine.calls != 0 || len(tracker.commits) != 0 {
		t.Fatalf("outbound message must be ignored entirely")
	}
}

func TestPipelineSkipsStaleMessagesWithoutSideEffects(t *testing.T) {
	tracker := newFakeTracker()
	tracker.lastProcessed["ch-1"] = 100
	engine := &fakeEngine{}
	upserter := &fakeUpserter{}
	pipe := newTestPipeline(tracker, engine, upserter)

	if err := pipe.Handle(context.Background(), testInstance(), testMessage("m1", 90), OriginPoll); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if engine.calls != 0 || len(upserter.phones) != 0 || len(tracker.commits) != 0 {
		t.Fatalf("stale message must not reach any later stage")
	}
}

func TestPipelineCommitsDespiteUpsertFailure(t *testing.T) {
	tracker := newFakeTracker()
	engine := &fakeEngine{}
	upserter := &fakeUpserter{err: errors.New("insert failed")}
	pipe := newTestPipeline(tracker, engine, upserter)

	if err := pipe.Handle(context.Background(), testInstance(), testMessage("m1", 100), OriginPoll); err != nil {
		t.Fatalf("Handle must not fail on an upsert error: %v", err)
	}
	if len(tracker.commits) != 1 {
		t.Fatalf("watermark must advance even when the upsert fails")
	}
}

func TestPipelineStopsOnTrackerFailure(t *testing.T) {
	tracker := newFakeTracker()
	tracker.checkErr = errors.New("store unavailable")
	engine := &fakeEngine{}
	upserter := &fakeUpserter{}
	pipe := newTestPipeline(tracker, engine, upserter)

	if err := pipe.Handle(context.Background(), testInstance(), testMessage("m1", 100), OriginPoll); err == nil {
		t.Fatalf("expected tracker failure to surface")
	}
	if engine.calls != 0 {
		t.Fatalf("no qualification may run when the dedup check fails")
	}
}

func TestPipelineSameMessageTwiceUpsertsOnce(t *testing.T) {
	tracker := newFakeTracker()
	engine := &fakeEngine{}
	upserter := &fakeUpserter{}
	pipe := newTestPipeline(tracker, engine, upserter)
	ctx := context.Background()
	inst := testInstance()

	// Same message delivered through both adapters.
	if err := pipe.Handle(ctx, inst, testMessage("m1", 100), OriginPush); err != nil {
		t.Fatalf("push Handle: %v", err)
	}
	if err := pipe.Handle(ctx, inst, testMessage("m1", 100), OriginPoll); err != nil {
		t.Fatalf("poll Handle: %v", err)
	}

	if len(upserter.phones) != 1 {
		t.Fatalf("upserts: got %d, want 1", len(upserter.phones))
	}
}

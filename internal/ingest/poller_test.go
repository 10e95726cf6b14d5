package ingest

import (
	"context"
	"errors"
	"testing"

	"leadflow_backend/internal/channels"
	"leadflow_backend/internal/gateway"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRegistry struct {
	instances []channels.Instance
	err       error
	calls     int
}

func (f *fakeRegistry) ListActive(context.Context) ([]channels.Instance, error) {
	f.calls++
	return f.instances, f.err
}

type fakeFetcher struct {
	messages map[string][]gateway.Message
	errs     map[string]error
}

func (f *fakeFetcher) RecentMessages(_ context.Context, channelInstanceID string, _ int) ([]gateway.Message, error) {
	if err := f.errs[channelInstanceID]; err != nil {
		return nil, err
	}
	return f.messages[channelInstanceID], nil
}

func newTestPoller(registry *fakeRegistry, fetcher *fakeFetcher, pipe *Pipeline) *Poller {
	return &Poller{
		registry:    registry,
		gw:          fetcher,
		pipe:        pipe,
		fetchLimit:  50,
		concurrency: 4,
		log:         logger.New("development"),
	}
}

func channelMessage(channelID, id string, sentAt int64, phone string) gateway.Message {
	return gateway.Message{
		ChannelInstanceID: channelID,
		ID:                id,
		SenderPhone:       phone,
		Text:              "Procuro casa na zona sul",
		Timestamp:         sentAt,
	}
}

func TestRunCycleProcessesOnlyAboveWatermark(t *testing.T) {
	tracker := newFakeTracker()
	tracker.lastProcessed["ch-1"] = 100

	registry := &fakeRegistry{instances: []channels.Instance{{ID: "ch-1", OwnerID: uuid.New()}}}
	fetcher := &fakeFetcher{messages: map[string][]gateway.Message{
		"ch-1": {
			channelMessage("ch-1", "m1", 90, "5511900000001"),
			channelMessage("ch-1", "m2", 100, "5511900000002"),
			channelMessage("ch-1", "m3", 101, "5511900000003"),
			channelMessage("ch-1", "m4", 102, "5511900000004"),
			channelMessage("ch-1", "m5", 103, "5511900000005"),
		},
	}}

	upserter := &fakeUpserter{}
	poller := newTestPoller(registry, fetcher, newTestPipeline(tracker, &fakeEngine{}, upserter))

	if err := poller.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(upserter.phones) != 3 {
		t.Fatalf("forwarded messages: got %d, want 3", len(upserter.phones))
	}
	if len(tracker.commits) != 3 {
		t.Fatalf("commits: got %d, want 3", len(tracker.commits))
	}
	if tracker.lastProcessed["ch-1"] != 103 {
		t.Fatalf("watermark: got %d, want 103", tracker.lastProcessed["ch-1"])
	}
}

func TestRunCycleSkipsWhenAlreadyRunning(t *testing.T) {
	registry := &fakeRegistry{}
	poller := newTestPoller(registry, &fakeFetcher{}, newTestPipeline(newFakeTracker(), &fakeEngine{}, &fakeUpserter{}))

	poller.state.Store(int32(StateRunning))

	if err := poller.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if registry.calls != 0 {
		t.Fatalf("overlapping cycle must not touch the registry")
	}
	if poller.State() != StateRunning {
		t.Fatalf("skipped tick must not reset the running cycle's state")
	}
}

func TestRunCycleReturnsToIdle(t *testing.T) {
	poller := newTestPoller(&fakeRegistry{}, &fakeFetcher{}, newTestPipeline(newFakeTracker(), &fakeEngine{}, &fakeUpserter{}))

	if err := poller.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if poller.State() != StateIdle {
		t.Fatalf("state after cycle: got %v, want idle", poller.State())
	}
}

func TestRunCycleIsolatesGatewayFailures(t *testing.T) {
	registry := &fakeRegistry{instances: []channels.Instance{
		{ID: "ch-broken", OwnerID: uuid.New()},
		{ID: "ch-ok", OwnerID: uuid.New()},
	}}
	fetcher := &fakeFetcher{
		messages: map[string][]gateway.Message{
			"ch-ok": {channelMessage("ch-ok", "m1", 10, "5511900000001")},
		},
		errs: map[string]error{"ch-broken": errors.New("gateway 502")},
	}

	upserter := &fakeUpserter{}
	poller := newTestPoller(registry, fetcher, newTestPipeline(newFakeTracker(), &fakeEngine{}, upserter))

	if err := poller.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(upserter.phones) != 1 {
		t.Fatalf("healthy channel must still be served, got %d upserts", len(upserter.phones))
	}
}

func TestRunCycleSurfacesRegistryFailure(t *testing.T) {
	registry := &fakeRegistry{err: errors.New("db down")}
	poller := newTestPoller(registry, &fakeFetcher{}, newTestPipeline(newFakeTracker(), &fakeEngine{}, &fakeUpserter{}))

	if err := poller.RunCycle(context.Background()); err == nil {
		t.Fatalf("expected registry failure to surface")
	}
	if poller.State() != StateIdle {
		t.Fatalf("failed cycle must still return to idle")
	}
}

func TestCycleStateString(t *testing.T) {
	if StateIdle.String() != "idle" || StateRunning.String() != "running" {
		t.Fatalf("unexpected state names: %q, %q", StateIdle, StateRunning)
	}
}

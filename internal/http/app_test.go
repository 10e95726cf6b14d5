package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadflow_backend/internal/channels"
	"leadflow_backend/internal/gateway"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeDirectory struct {
	instances []channels.Instance
	listErr   error
}

func (f *fakeDirectory) ListActive(context.Context) ([]channels.Instance, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.instances, nil
}

func (f *fakeDirectory) Get(_ context.Context, id string) (channels.Instance, error) {
	for _, inst := range f.instances {
		if inst.ID == id {
			return inst, nil
		}
	}
	return channels.Instance{}, channels.ErrNotFound
}

type fakeProber struct {
	status string
	err    error
}

func (f *fakeProber) ConnectionState(_ context.Context, channelInstanceID string) (gateway.ConnectionState, error) {
	if f.err != nil {
		return gateway.ConnectionState{}, f.err
	}
	return gateway.ConnectionState{ChannelInstanceID: channelInstanceID, Status: f.status}, nil
}

func newTestApp(dir *fakeDirectory, probe ConnectionProber) *App {
	cfg := &config.Config{
		Env:         "development",
		CORSOrigins: []string{"http://localhost:4200"},
	}
	return NewApp(cfg, nil, dir, probe, nil, logger.New("development"))
}

func testInstances() []channels.Instance {
	return []channels.Instance{
		{ID: "ch-1", OwnerID: uuid.New(), Active: true, CreatedAt: time.Now()},
		{ID: "ch-2", OwnerID: uuid.New(), Active: true, CreatedAt: time.Now()},
	}
}

func serve(app *App, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	app.router.ServeHTTP(rec, req)
	return rec
}

func TestListChannelsReportsGatewayStatus(t *testing.T) {
	app := newTestApp(&fakeDirectory{instances: testInstances()}, &fakeProber{status: "connected"})

	rec := serve(app, http.MethodGet, "/api/v1/channels")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Results []channelView `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results: got %d, want 2", len(resp.Results))
	}
	if resp.Results[0].GatewayStatus != "connected" {
		t.Fatalf("gateway status: got %q", resp.Results[0].GatewayStatus)
	}
}

func TestListChannelsDegradesOnProbeFailure(t *testing.T) {
	app := newTestApp(&fakeDirectory{instances: testInstances()}, &fakeProber{err: errors.New("gateway down")})

	rec := serve(app, http.MethodGet, "/api/v1/channels")
	if rec.Code != http.StatusOK {
		t.Fatalf("probe failure must not fail the listing: got %d", rec.Code)
	}

	var resp struct {
		Results []channelView `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, view := range resp.Results {
		if view.GatewayStatus != "unknown" {
			t.Fatalf("gateway status on probe failure: got %q", view.GatewayStatus)
		}
	}
}

func TestGetChannelReturnsSingleInstance(t *testing.T) {
	app := newTestApp(&fakeDirectory{instances: testInstances()}, &fakeProber{status: "connected"})

	rec := serve(app, http.MethodGet, "/api/v1/channels/ch-2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}

	var view channelView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.ID != "ch-2" || view.GatewayStatus != "connected" {
		t.Fatalf("view: got %+v", view)
	}
}

func TestGetChannelUnknownIDIs404(t *testing.T) {
	app := newTestApp(&fakeDirectory{instances: testInstances()}, &fakeProber{status: "connected"})

	rec := serve(app, http.MethodGet, "/api/v1/channels/ch-missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
}

func TestListChannelsSurfacesStoreFailure(t *testing.T) {
	app := newTestApp(&fakeDirectory{listErr: errors.New("db down")}, &fakeProber{status: "connected"})

	rec := serve(app, http.MethodGet, "/api/v1/channels")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rec.Code)
	}
}

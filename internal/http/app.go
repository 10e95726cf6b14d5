// Package http serves the read-only diagnostics surface. The ingestor is a
// background process; these endpoints exist so operators can check liveness
// and per-channel health without shelling into the database.
package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"leadflow_backend/internal/channels"
	"leadflow_backend/internal/gateway"
	"leadflow_backend/internal/ingest"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"
)

// ConnectionProber reports gateway-side channel health.
// Satisfied by *gateway.Client.
type ConnectionProber interface {
	ConnectionState(ctx context.Context, channelInstanceID string) (gateway.ConnectionState, error)
}

// ChannelDirectory is the channel registry surface the diagnostics endpoints
// read from. Satisfied by *channels.Repository.
type ChannelDirectory interface {
	ListActive(ctx context.Context) ([]channels.Instance, error)
	Get(ctx context.Context, id string) (channels.Instance, error)
}

type App struct {
	router *gin.Engine
	pool   *pgxpool.Pool
	reg    ChannelDirectory
	probe  ConnectionProber
	poller *ingest.Poller
	log    *logger.Logger
}

func NewApp(cfg *config.Config, pool *pgxpool.Pool, reg ChannelDirectory, probe ConnectionProber, poller *ingest.Poller, log *logger.Logger) *App {
	if !strings.EqualFold(cfg.Env, "development") {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpkit.RequestLogger(log))
	router.Use(httpkit.SecurityHeaders())
	router.Use(httpkit.RateLimit(rate.Limit(10), 20, log))

	corsConfig := cors.DefaultConfig()
	if cfg.GetCORSAllowAll() {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.GetCORSOrigins()
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	app := &App{
		router: router,
		pool:   pool,
		reg:    reg,
		probe:  probe,
		poller: poller,
		log:    log,
	}

	router.GET("/healthz", app.health)

	v1 := router.Group("/api/v1")
	v1.GET("/channels", app.listChannels)
	v1.GET("/channels/:id", app.getChannel)

	return app
}

// Serve blocks until ctx is cancelled, then drains in-flight requests.
func (a *App) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	PollState string `json:"pollState"`
}

func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok"}
	if a.poller != nil {
		resp.PollState = a.poller.State().String()
	}

	if err := a.pool.Ping(ctx); err != nil {
		a.log.DatabaseError("health.ping", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	httpkit.OK(c, resp)
}

type channelView struct {
	ID            string    `json:"id"`
	Active        bool      `json:"active"`
	GatewayStatus string    `json:"gatewayStatus"`
	CreatedAt     time.Time `json:"createdAt"`
}

// listChannels returns the active channel instances with their gateway-side
// connection status. A probe failure degrades to status "unknown" rather
// than failing the listing.
func (a *App) listChannels(c *gin.Context) {
	instances, err := a.reg.ListActive(c.Request.Context())
	if err != nil {
		a.log.DatabaseError("channels.list_active", err)
		httpkit.Error(c, http.StatusServiceUnavailable, "channel listing unavailable")
		return
	}

	views := make([]channelView, 0, len(instances))
	for _, inst := range instances {
		views = append(views, a.channelStatus(c.Request.Context(), inst))
	}

	httpkit.OK(c, gin.H{"results": views})
}

// getChannel returns one channel instance by ID, active or not, so an
// operator can inspect a channel that dropped out of the active listing.
func (a *App) getChannel(c *gin.Context) {
	id := c.Param("id")

	inst, err := a.reg.Get(c.Request.Context(), id)
	if errors.Is(err, channels.ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "channel instance not found")
		return
	}
	if err != nil {
		a.log.DatabaseError("channels.get", err)
		httpkit.Error(c, http.StatusServiceUnavailable, "channel lookup unavailable")
		return
	}

	httpkit.OK(c, a.channelStatus(c.Request.Context(), inst))
}

func (a *App) channelStatus(ctx context.Context, inst channels.Instance) channelView {
	view := channelView{
		ID:            inst.ID,
		Active:        inst.Active,
		GatewayStatus: "unknown",
		CreatedAt:     inst.CreatedAt,
	}
	if a.probe != nil {
		if state, err := a.probe.ConnectionState(ctx, inst.ID); err == nil {
			view.GatewayStatus = state.Status
		} else {
			a.log.GatewayError("connection_state", inst.ID, err)
		}
	}
	return view
}

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/channels"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/gateway"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/gorilla/websocket"
)

// ConnState is the push connection lifecycle for one channel instance.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
	ConnReconnecting
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

const (
	defaultMaxReconnects = 5
	reconnectBaseDelay   = 1 * time.Second
	reconnectMaxDelay    = 30 * time.Second
	authAckTimeout       = 5 * time.Second
)

// SocketSource resolves the push endpoint and credential for a channel
// instance. Satisfied by *gateway.Client.
type SocketSource interface {
	SocketURL(channelInstanceID string) string
	APIKey() string
}

// pushFrame is the envelope every socket event arrives in.
type pushFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// messageEvents are the envelope names that carry a new inbound chat
// message. Everything else on the socket (presence, receipts, sync chatter)
// is ignored.
var messageEvents = map[string]bool{
	"message":          true,
	"message.received": true,
	"messages.upsert":  true,
}

// PushListener maintains one websocket connection per channel instance and
// feeds received messages into the shared pipeline. Connection loss triggers
// reconnects with capped exponential backoff; once the attempt budget is
// spent the listener gives up and publishes ChannelConnectionLost, leaving
// the poll scheduler as the channel's only coverage.
type PushListener struct {
	sockets     SocketSource
	pipe        *Pipeline
	bus         events.Bus
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	dialer      *websocket.Dialer
	log         *logger.Logger
}

func NewPushListener(sockets SocketSource, pipe *Pipeline, bus events.Bus, cfg config.PushConfig, log *logger.Logger) *PushListener {
	maxAttempts := cfg.GetPushMaxReconnects()
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxReconnects
	}

	return &PushListener{
		sockets:     sockets,
		pipe:        pipe,
		bus:         bus,
		maxAttempts: maxAttempts,
		baseDelay:   reconnectBaseDelay,
		maxDelay:    reconnectMaxDelay,
		dialer:      websocket.DefaultDialer,
		log:         log,
	}
}

// Run serves one channel instance until ctx is cancelled or the reconnect
// budget is exhausted. Intended to be launched in its own goroutine per
// instance.
func (l *PushListener) Run(ctx context.Context, inst channels.Instance) {
	url := l.sockets.SocketURL(inst.ID)
	if url == "" {
		l.log.Info("push feed not configured, channel is poll-only", "channel_id", inst.ID)
		return
	}

	log := l.log.WithChannelID(inst.ID)
	attempts := 0

	for {
		if ctx.Err() != nil {
			return
		}

		log.Debug("push state", "state", ConnConnecting.String())
		conn, err := l.connect(ctx, url)
		if err == nil {
			log.Info("push feed connected", "state", ConnConnected.String())
			delivered := l.readLoop(ctx, conn, inst, log)
			_ = conn.Close()

			if ctx.Err() != nil {
				return
			}
			if delivered {
				attempts = 0
				log.Warn("push feed closed", "state", ConnReconnecting.String())
				continue
			}
			// A session the server drops before its first frame spends a
			// reconnect attempt exactly like a failed dial; redialing a
			// flapping upstream without backoff would hammer its rate limit.
			err = errSessionDropped
		}

		attempts++
		if attempts >= l.maxAttempts {
			log.Error("push reconnect budget exhausted, channel is poll-only",
				"attempts", attempts,
				"error", err,
			)
			l.bus.Publish(ctx, events.ChannelConnectionLost{
				BaseEvent:         events.NewBaseEvent(),
				ChannelInstanceID: inst.ID,
				Attempts:          attempts,
			})
			return
		}

		delay := backoffDelay(attempts, l.baseDelay, l.maxDelay)
		log.Warn("push connect failed, backing off",
			"state", ConnReconnecting.String(),
			"attempt", attempts,
			"delay", delay.String(),
			"error", err,
		)
		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

// errSessionDropped marks a connection that authenticated but closed before
// delivering a single frame.
var errSessionDropped = errors.New("push session closed before first frame")

// connect dials the socket and performs the auth handshake. An unanswered or
// rejected handshake is a connection failure like any other.
func (l *PushListener) connect(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, resp, err := l.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial push feed: %w", err)
	}

	auth := struct {
		Event string `json:"event"`
		Token string `json:"token"`
	}{Event: "auth", Token: l.sockets.APIKey()}

	if err := conn.WriteJSON(auth); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send auth handshake: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(authAckTimeout))
	var ack pushFrame
	if err := conn.ReadJSON(&ack); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read auth ack: %w", err)
	}
	if ack.Event != "auth.ok" {
		_ = conn.Close()
		return nil, fmt.Errorf("auth rejected: %q", ack.Event)
	}
	_ = conn.SetReadDeadline(time.Time{})

	return conn, nil
}

// readLoop drains frames until the connection drops or ctx is cancelled,
// reporting whether the session delivered at least one frame. The caller
// uses that to tell a working connection from one the server dropped right
// after the handshake. The cancellation watcher ends with the session, not
// with the process.
func (l *PushListener) readLoop(ctx context.Context, conn *websocket.Conn, inst channels.Instance, log *logger.Logger) bool {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	delivered := false
	for {
		var frame pushFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() == nil {
				log.Warn("push read failed", "error", err)
			}
			return delivered
		}
		delivered = true

		if !messageEvents[frame.Event] {
			log.Debug("push event ignored", "event", frame.Event)
			continue
		}

		msg, err := gateway.ParseMessagePayload(inst.ID, frame.Payload)
		if err != nil {
			log.Warn("push payload malformed", "event", frame.Event, "error", err)
			continue
		}

		if err := l.pipe.Handle(ctx, inst, msg, OriginPush); err != nil {
			log.Warn("message processing failed", "message_id", msg.ID, "error", err)
		}
	}
}

// backoffDelay returns the exponential delay for the Nth failed attempt,
// capped at max. Attempt 1 waits base, attempt 2 waits 2*base, and so on.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// sleepCtx waits for the delay, returning false if ctx is cancelled first.
func sleepCtx(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package notification

import (
	"context"
	"fmt"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// AlertSender delivers the sales inbox email. Satisfied by *SMTPSender.
type AlertSender interface {
	SendLeadAlert(ctx context.Context, data LeadAlertData) error
}

// MessageSender sends the chat acknowledgement back through the channel the
// lead arrived on. Satisfied by *gateway.Client.
type MessageSender interface {
	SendMessage(ctx context.Context, channelInstanceID, phoneNumber, text string) error
}

const leadAckText = "Obrigado pelo contato! Recebemos sua mensagem e um corretor " +
	"da nossa equipe vai falar com você em breve."

// Worker consumes notification tasks. Alert email and chat acknowledgement
// are delivered from here, off the ingestion path; a failure retries through
// asynq without touching the lead row.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	emails AlertSender
	chat   MessageSender
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, emails AlertSender, chat MessageSender, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 5
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		emails: emails,
		chat:   chat,
		log:    log,
	}

	mux.HandleFunc(TaskLeadCreated, w.handleLeadCreated)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("notification worker stopped", "error", err)
	}
}

// handleLeadCreated delivers both notifications for one new lead. The email
// failing fails the task so asynq retries it; the chat ack is best effort
// because a retried ack would message the contact twice.
func (w *Worker) handleLeadCreated(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadCreatedPayload(task)
	if err != nil {
		return err
	}

	if w.chat != nil {
		if err := w.chat.SendMessage(ctx, payload.ChannelInstanceID, payload.ContactPhone, leadAckText); err != nil {
			w.log.GatewayError("send_lead_ack", payload.ChannelInstanceID, err)
		}
	}

	if w.emails != nil {
		err := w.emails.SendLeadAlert(ctx, LeadAlertData{
			Name:         payload.Name,
			ContactPhone: payload.ContactPhone,
			Score:        payload.Score,
			Priority:     payload.Priority,
			Origin:       payload.Origin,
		})
		if err != nil {
			w.log.Error("lead alert email failed", "lead_id", payload.LeadID, "error", err)
			return err
		}
	}

	w.log.Info("lead notifications delivered", "lead_id", payload.LeadID, "priority", payload.Priority)
	return nil
}

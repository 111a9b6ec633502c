package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/config"
	"github.com/spec-kit/handover-bot/internal/events"
)

// Outbox accepts events for asynchronous webhook delivery.
type Outbox interface {
	Enqueue(event events.Event) bool
}

// NotificationService logs handover events and forwards them to a webhook.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	outbox     Outbox
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger.Named("notifications"),
		cfg:        cfg,
	}
}

// SetOutbox routes webhook deliveries through a background worker. Without
// one, deliveries happen inline.
func (n *NotificationService) SetOutbox(outbox Outbox) {
	n.outbox = outbox
}

// WebhookEnabled reports whether a webhook URL is configured.
func (n *NotificationService) WebhookEnabled() bool {
	return strings.TrimSpace(n.cfg.WebhookURL) != ""
}

// RegisterHandlers subscribes to every event.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.SubscribeAll(n.handle)
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	level := zap.InfoLevel
	if event.Type == events.EventMessageRelayed {
		level = zap.DebugLevel
	}
	if ce := n.logger.Check(level, string(event.Type)); ce != nil {
		ce.Write(
			zap.String("event_id", event.ID),
			zap.Int64("actor_id", event.ActorID),
			zap.Any("payload", event.Payload),
		)
	}

	if !n.WebhookEnabled() {
		return nil
	}
	if n.outbox != nil {
		if !n.outbox.Enqueue(event) {
			n.logger.Warn("webhook outbox full; event dropped", zap.String("event_id", event.ID))
		}
		return nil
	}
	return n.Deliver(ctx, event)
}

// Deliver POSTs the event as JSON to the configured webhook.
func (n *NotificationService) Deliver(_ context.Context, event events.Event) error {
	timeout := time.Duration(n.cfg.WebhookTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	req := fiber.Post(n.cfg.WebhookURL).Timeout(timeout).JSON(event)
	if err := req.Parse(); err != nil {
		fiber.ReleaseAgent(req)
		return fmt.Errorf("webhook url: %w", err)
	}
	code, _, errs := req.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook delivery: %w", errs[0])
	}
	if code >= 300 {
		return fmt.Errorf("webhook delivery: status %d", code)
	}
	n.logger.Debug("webhook delivered", zap.String("event_id", event.ID), zap.Int("status", code))
	return nil
}

package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/events"
	"github.com/spec-kit/handover-bot/internal/service"
)

// Deliverer sends one event to its destination.
type Deliverer interface {
	Deliver(ctx context.Context, event events.Event) error
}

// WebhookWorker delivers events off the bot's hot path.
type WebhookWorker struct {
	deliverer Deliverer
	queue     chan events.Event
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewWebhookWorker buffers up to size events.
func NewWebhookWorker(deliverer Deliverer, size int, logger *zap.Logger) *WebhookWorker {
	if size <= 0 {
		size = 64
	}
	return &WebhookWorker{
		deliverer: deliverer,
		queue:     make(chan events.Event, size),
		logger:    logger.Named("webhook_worker"),
	}
}

// Enqueue schedules an event without blocking. It returns false when the buffer is full.
func (w *WebhookWorker) Enqueue(event events.Event) bool {
	select {
	case w.queue <- event:
		return true
	default:
		return false
	}
}

// Start runs the delivery loop until ctx is done, then drains what is buffered.
func (w *WebhookWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case event := <-w.queue:
				w.deliver(ctx, event)
			case <-ctx.Done():
				w.drain()
				return
			}
		}
	}()
}

func (w *WebhookWorker) drain() {
	for {
		select {
		case event := <-w.queue:
			w.deliver(context.Background(), event)
		default:
			return
		}
	}
}

func (w *WebhookWorker) deliver(ctx context.Context, event events.Event) {
	if err := w.deliverer.Deliver(ctx, event); err != nil {
		w.logger.Warn("webhook delivery failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

// Wait blocks until the loop started by Start has exited.
func (w *WebhookWorker) Wait() {
	w.wg.Wait()
}

// StartNotificationWorker registers notification handlers and, when a webhook
// is configured, starts the delivery worker behind them.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, logger *zap.Logger) *WebhookWorker {
	if notificationService == nil {
		return nil
	}
	var w *WebhookWorker
	if notificationService.WebhookEnabled() {
		w = NewWebhookWorker(notificationService, 256, logger)
		notificationService.SetOutbox(w)
		w.Start(ctx)
	}
	notificationService.RegisterHandlers()
	return w
}

package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/config"
	"github.com/spec-kit/handover-bot/internal/events"
	"github.com/spec-kit/handover-bot/internal/service"
)

type recordingDeliverer struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingDeliverer) Deliver(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingDeliverer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestWebhookWorker_DrainsOnShutdown(t *testing.T) {
	d := &recordingDeliverer{}
	w := NewWebhookWorker(d, 8, zap.NewNop())
	for i := 0; i < 5; i++ {
		if !w.Enqueue(events.New(events.EventDialogEnded, int64(i), nil)) {
			t.Fatal("enqueue should succeed")
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()
	w.Wait()
	if d.count() != 5 {
		t.Errorf("expected 5 deliveries, got %d", d.count())
	}
}

func TestWebhookWorker_FullBufferRejects(t *testing.T) {
	w := NewWebhookWorker(&recordingDeliverer{}, 1, zap.NewNop())
	if !w.Enqueue(events.Event{}) {
		t.Fatal("first enqueue should fit")
	}
	if w.Enqueue(events.Event{}) {
		t.Error("second enqueue should be rejected")
	}
}

func TestStartNotificationWorker_PostsToWebhook(t *testing.T) {
	received := make(chan events.Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e events.Event
		_ = json.NewDecoder(r.Body).Decode(&e)
		received <- e
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	dispatcher := events.NewInMemoryDispatcher()
	svc := service.NewNotificationService(dispatcher, zap.NewNop(), config.NotificationConfig{
		WebhookURL:            srv.URL,
		WebhookTimeoutSeconds: 2,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := StartNotificationWorker(ctx, svc, zap.NewNop())
	if w == nil {
		t.Fatal("expected a worker when a webhook is configured")
	}

	event := events.New(events.EventAdminRegistered, 7, events.AdminRegisteredPayload{UserID: 7})
	if err := dispatcher.Publish(ctx, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != event.ID || got.Type != events.EventAdminRegistered {
			t.Errorf("unexpected delivery %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("webhook not called")
	}
}

func TestStartNotificationWorker_NoWebhook(t *testing.T) {
	svc := service.NewNotificationService(events.NewInMemoryDispatcher(), zap.NewNop(), config.NotificationConfig{})
	if w := StartNotificationWorker(context.Background(), svc, zap.NewNop()); w != nil {
		t.Error("no worker expected without a webhook")
	}
}

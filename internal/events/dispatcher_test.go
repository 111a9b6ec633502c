package events

import (
	"context"
	"errors"
	"testing"
)

func TestDispatcher_PublishRunsAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	boom := errors.New("boom")

	d.Subscribe(EventDialogStarted, func(context.Context, Event) error {
		calls = append(calls, "first")
		return boom
	})
	d.Subscribe(EventDialogStarted, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventDialogEnded, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), New(EventDialogStarted, 100, DialogStartedPayload{UserID: 1, AdminID: 100}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined handler error, got %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("unexpected calls %v", calls)
	}
}

func TestNew_StampsEvent(t *testing.T) {
	e := New(EventAdminRegistered, 5, AdminRegisteredPayload{UserID: 5})
	if e.ID == "" || e.Timestamp.IsZero() || e.ActorID != 5 {
		t.Errorf("unexpected event %+v", e)
	}
}

func TestDispatcher_CatchAllRunsAfterTyped(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string

	d.SubscribeAll(func(_ context.Context, e Event) error {
		calls = append(calls, "all:"+string(e.Type))
		return nil
	})
	d.Subscribe(EventClaimRejected, func(context.Context, Event) error {
		calls = append(calls, "typed")
		return nil
	})

	if err := d.Publish(context.Background(), New(EventClaimRejected, 1, ClaimRejectedPayload{AdminID: 1, Reason: "queue_empty"})); err != nil {
		t.Fatal(err)
	}
	if err := d.Publish(context.Background(), New(EventMessageRelayed, 1, MessageRelayedPayload{From: 1, To: 2})); err != nil {
		t.Fatal(err)
	}
	want := []string{"typed", "all:claim_rejected", "all:message_relayed"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, calls)
		}
	}
}

func TestDispatcher_PanickingHandlerIsContained(t *testing.T) {
	d := NewInMemoryDispatcher()
	reached := false
	d.Subscribe(EventDialogEnded, func(context.Context, Event) error {
		panic("boom")
	})
	d.SubscribeAll(func(context.Context, Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), New(EventDialogEnded, 1, DialogEndedPayload{EndedBy: 1, PartnerID: 2}))
	if err == nil {
		t.Fatal("expected the panic to surface as an error")
	}
	if !reached {
		t.Error("later handlers should still run")
	}
}

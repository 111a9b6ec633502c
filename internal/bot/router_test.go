package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/agent"
	"github.com/spec-kit/handover-bot/internal/auth"
	"github.com/spec-kit/handover-bot/internal/docstore"
	"github.com/spec-kit/handover-bot/internal/domain"
	"github.com/spec-kit/handover-bot/internal/events"
	"github.com/spec-kit/handover-bot/internal/repository"
	"github.com/spec-kit/handover-bot/internal/service"
	"github.com/spec-kit/handover-bot/internal/session"
)

const endSignal = "End conversation"

type outbox struct {
	mu      sync.Mutex
	nextID  int
	sent    map[int64][]domain.OutgoingMessage
	edits   []domain.OutgoingMessage
	deleted int
}

func (o *outbox) Send(_ context.Context, to int64, msg domain.OutgoingMessage) (domain.MessageRef, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	o.sent[to] = append(o.sent[to], msg)
	return domain.MessageRef{ChatID: to, MessageID: o.nextID}, nil
}

func (o *outbox) Edit(_ context.Context, _ domain.MessageRef, msg domain.OutgoingMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.edits = append(o.edits, msg)
	return nil
}

func (o *outbox) Delete(context.Context, domain.MessageRef) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deleted++
	return nil
}

func (o *outbox) last(id int64) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := o.sent[id]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

type scriptedAgent struct {
	handover map[string]bool
	calls    int
}

func (a *scriptedAgent) Handle(_ context.Context, _ int64, _ []domain.Turn, message string) (agent.Reply, error) {
	a.calls++
	return agent.Reply{Text: "answer to " + message, HandoverRequested: a.handover[message]}, nil
}

type harness struct {
	router *Router
	out    *outbox
	agent  *scriptedAgent
	queue  repository.QueueStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	backend := docstore.NewMemory()
	queue := repository.NewQueueStore(backend, "callstack", logger, nil)
	dir := repository.NewDirectory(backend, "users", logger, nil)
	sessions := session.NewMemoryStore(time.Hour)
	out := &outbox{sent: map[int64][]domain.OutgoingMessage{}}
	dispatcher := events.NewInMemoryDispatcher()
	ag := &scriptedAgent{handover: map[string]bool{"I need a human": true}}

	escalation := service.NewEscalationService(service.EscalationDependencies{
		Queue: queue, Directory: dir, Sessions: sessions, Notifier: out,
		Dispatcher: dispatcher, Logger: logger, EndDialogSignal: endSignal,
	})
	relay := service.NewRelayService(service.RelayDependencies{
		Queue: queue, Notifier: out, Ender: escalation,
		Dispatcher: dispatcher, Logger: logger, EndDialogSignal: endSignal,
	})
	assistant := service.NewAssistantService(service.AssistantDependencies{
		Agent: ag, Sessions: sessions, Escalator: escalation, Notifier: out,
		Logger: logger, MaxHistory: 20,
	})
	directory := service.NewDirectoryService(service.DirectoryDependencies{
		Directory: dir,
		Verifier:  auth.NewSecretVerifier("s3cret", ""),
		Tokens:    auth.NewTokenManager("jwt", 5),
		Logger:    logger,
	})

	return &harness{
		router: NewRouter(Dependencies{
			Directory: directory, Escalation: escalation, Relay: relay,
			Assistant: assistant, Notifier: out, Logger: logger,
		}),
		out:   out,
		agent: ag,
		queue: queue,
	}
}

func TestRouter_Start(t *testing.T) {
	h := newHarness(t)
	if err := h.router.HandleCommand(context.Background(), Sender{ID: 1, Name: "alice"}, "start", ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if got := h.out.last(1); got != service.TextWelcome {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestRouter_AdminRegistration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	op := Sender{ID: 100, Name: "op"}

	tests := []struct {
		args string
		want string
	}{
		{args: "", want: service.TextAdminUsage},
		{args: "a b", want: service.TextAdminUsage},
		{args: "wrong", want: service.TextRegistrationFailed},
		{args: "s3cret", want: service.TextAdminGranted},
	}
	for _, tt := range tests {
		if err := h.router.HandleCommand(ctx, op, "admin", tt.args); err != nil {
			t.Fatalf("admin %q failed: %v", tt.args, err)
		}
		if got := h.out.last(100); got != tt.want {
			t.Errorf("admin %q: expected %q, got %q", tt.args, tt.want, got)
		}
	}

	if err := h.router.HandleText(ctx, op, "hello"); err != nil {
		t.Fatal(err)
	}
	if got := h.out.last(100); got != service.TextNotInDialog {
		t.Errorf("admin outside a dialog should be told, got %q", got)
	}
	if h.agent.calls != 0 {
		t.Error("admin text must never reach the agent")
	}
}

func TestRouter_FullHandover(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	user := Sender{ID: 42, Name: "alice"}
	op := Sender{ID: 100, Name: "op"}

	if err := h.router.HandleCommand(ctx, op, "admin", "s3cret"); err != nil {
		t.Fatal(err)
	}
	if err := h.router.HandleText(ctx, user, "what are the deadlines?"); err != nil {
		t.Fatal(err)
	}
	if got := h.out.last(42); got != "answer to what are the deadlines?" {
		t.Fatalf("unexpected agent answer %q", got)
	}

	if err := h.router.HandleText(ctx, user, "I need a human"); err != nil {
		t.Fatal(err)
	}
	if got := h.out.last(42); got != service.TextQueueHead {
		t.Fatalf("expected queue status, got %q", got)
	}

	notice, err := h.router.HandleCallback(ctx, user, service.CallbackQueuePosition, domain.MessageRef{ChatID: 42, MessageID: 9})
	if err != nil || notice != "" {
		t.Fatalf("position callback failed: %q %v", notice, err)
	}
	if len(h.out.edits) != 1 || h.out.edits[0].Text != service.TextQueueHead {
		t.Fatalf("position message not edited: %+v", h.out.edits)
	}

	if _, err := h.router.HandleCallback(ctx, op, service.ClaimCallbackData(42), domain.MessageRef{}); err != nil {
		t.Fatal(err)
	}
	if got := h.out.last(42); got != service.TextUserConnected {
		t.Fatalf("user not connected, got %q", got)
	}
	if h.out.deleted != 1 {
		t.Errorf("claim prompt should be deleted, got %d", h.out.deleted)
	}

	if err := h.router.HandleText(ctx, user, "hi there"); err != nil {
		t.Fatal(err)
	}
	if got := h.out.last(100); got != "hi there" {
		t.Errorf("user text not relayed, got %q", got)
	}
	if err := h.router.HandleText(ctx, op, "hello alice"); err != nil {
		t.Fatal(err)
	}
	if got := h.out.last(42); got != "hello alice" {
		t.Errorf("admin text not relayed, got %q", got)
	}

	if err := h.router.HandleText(ctx, user, endSignal); err != nil {
		t.Fatal(err)
	}
	if h.out.last(42) != service.TextDialogEnded || h.out.last(100) != service.TextDialogEnded {
		t.Error("both sides should be told the dialog ended")
	}

	callsBefore := h.agent.calls
	if err := h.router.HandleText(ctx, user, "one more question"); err != nil {
		t.Fatal(err)
	}
	if h.agent.calls != callsBefore+1 {
		t.Error("after the dialog the agent should answer again")
	}
}

func TestRouter_ClaimByNonAdmin(t *testing.T) {
	h := newHarness(t)
	notice, err := h.router.HandleCallback(context.Background(), Sender{ID: 5}, service.ClaimCallbackData(42), domain.MessageRef{})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if notice == "" {
		t.Error("non-admin should get a notice")
	}
	if state, _ := h.queue.Snapshot(context.Background()); len(state.Dialogs) != 0 {
		t.Error("no dialog should be formed")
	}
}

func TestRouter_UnknownCommandGoesToAgent(t *testing.T) {
	h := newHarness(t)
	if err := h.router.HandleCommand(context.Background(), Sender{ID: 1}, "help", ""); err != nil {
		t.Fatal(err)
	}
	if got := h.out.last(1); got != "answer to /help" {
		t.Errorf("unexpected reply %q", got)
	}
}

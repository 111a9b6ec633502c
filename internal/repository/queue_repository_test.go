package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/docstore"
	"github.com/spec-kit/handover-bot/internal/domain"
	apperrors "github.com/spec-kit/handover-bot/pkg/util/errorutil"
)

const handoverDoc = "callstack"

type backendCase struct {
	name string
	open func(t *testing.T) docstore.Backend
}

func backends() []backendCase {
	return []backendCase{
		{name: "memory", open: func(t *testing.T) docstore.Backend { return docstore.NewMemory() }},
		{name: "file", open: func(t *testing.T) docstore.Backend { return docstore.NewFile(t.TempDir()) }},
		{name: "redis", open: func(t *testing.T) docstore.Backend {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return docstore.NewRedis(client, "test:", 500)
		}},
	}
}

func newQueue(t *testing.T, backend docstore.Backend) QueueStore {
	t.Helper()
	return NewQueueStore(backend, handoverDoc, zap.NewNop(), nil)
}

func seed(t *testing.T, backend docstore.Backend, doc string) {
	t.Helper()
	err := backend.Update(context.Background(), handoverDoc, func([]byte) ([]byte, bool, error) {
		return []byte(doc), true, nil
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestQueueStore_EnqueueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, docstore.NewMemory())

	first, err := q.Enqueue(ctx, 42)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if first.Status != domain.EnqueueAdded || first.Position != 1 || !first.IsHead() {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := q.Enqueue(ctx, 42)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if second.Status != domain.EnqueueAlreadyQueued || second.Position != 1 {
		t.Fatalf("unexpected second result %+v", second)
	}

	third, err := q.Enqueue(ctx, 7)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if third.Position != 2 || third.IsHead() {
		t.Fatalf("expected position 2, got %+v", third)
	}

	state, err := q.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(state.Queue) != 2 || state.Queue[0] != 42 || state.Queue[1] != 7 {
		t.Errorf("unexpected queue %v", state.Queue)
	}
	if pos, _ := q.Position(ctx, 7); pos != 2 {
		t.Errorf("expected 7 at position 2, got %d", pos)
	}
}

func TestQueueStore_EnqueueWhileInDialog(t *testing.T) {
	ctx := context.Background()
	backend := docstore.NewMemory()
	seed(t, backend, `{"queue":[],"dialogs":[[42,100]]}`)
	q := newQueue(t, backend)

	res, err := q.Enqueue(ctx, 42)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if res.Status != domain.EnqueueAlreadyInDialog || res.IsHead() {
		t.Errorf("unexpected result %+v", res)
	}
	if pos, _ := q.Position(ctx, 42); pos != 0 {
		t.Errorf("paired user must not be queued, got position %d", pos)
	}
}

func TestQueueStore_FormDialog(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		admin      int64
		want       domain.ClaimResult
		wantQueue  []int64
		wantDialog bool
	}{
		{
			name:      "empty queue",
			doc:       `{"queue":[],"dialogs":[]}`,
			admin:     100,
			want:      domain.NoWaitingUsers(domain.ClaimQueueEmpty),
			wantQueue: []int64{},
		},
		{
			name:       "pops head",
			doc:        `{"queue":[1,2],"dialogs":[]}`,
			admin:      100,
			want:       domain.Formed(1),
			wantQueue:  []int64{2},
			wantDialog: true,
		},
		{
			name:       "admin already paired",
			doc:        `{"queue":[2],"dialogs":[[1,100]]}`,
			admin:      100,
			want:       domain.NoWaitingUsers(domain.ClaimAdminBusy),
			wantQueue:  []int64{2},
			wantDialog: true,
		},
		{
			name:      "admin at head",
			doc:       `{"queue":[100,2],"dialogs":[]}`,
			admin:     100,
			want:      domain.NoWaitingUsers(domain.ClaimSelf),
			wantQueue: []int64{100, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			backend := docstore.NewMemory()
			seed(t, backend, tt.doc)
			q := newQueue(t, backend)

			got, err := q.FormDialog(ctx, tt.admin)
			if err != nil {
				t.Fatalf("FormDialog failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
			state, err := q.Snapshot(ctx)
			if err != nil {
				t.Fatalf("Snapshot failed: %v", err)
			}
			if len(state.Queue) != len(tt.wantQueue) {
				t.Fatalf("expected queue %v, got %v", tt.wantQueue, state.Queue)
			}
			for i := range tt.wantQueue {
				if state.Queue[i] != tt.wantQueue[i] {
					t.Errorf("expected queue %v, got %v", tt.wantQueue, state.Queue)
				}
			}
			_, paired := state.PartnerOf(tt.admin)
			if paired != tt.wantDialog {
				t.Errorf("expected admin paired=%v, got %v", tt.wantDialog, paired)
			}
		})
	}
}

func TestQueueStore_FormDialogCreatesPair(t *testing.T) {
	ctx := context.Background()
	backend := docstore.NewMemory()
	seed(t, backend, `{"queue":[1,2],"dialogs":[]}`)
	q := newQueue(t, backend)

	if _, err := q.FormDialog(ctx, 100); err != nil {
		t.Fatalf("FormDialog failed: %v", err)
	}
	partner, ok, err := q.LookupPartner(ctx, 100)
	if err != nil || !ok || partner != 1 {
		t.Fatalf("expected admin paired with 1, got %d %v %v", partner, ok, err)
	}
	partner, ok, err = q.LookupPartner(ctx, 1)
	if err != nil || !ok || partner != 100 {
		t.Fatalf("expected user paired with 100, got %d %v %v", partner, ok, err)
	}
	if _, ok, _ := q.LookupPartner(ctx, 2); ok {
		t.Error("queued user should have no partner")
	}
}

func TestQueueStore_EndDialog(t *testing.T) {
	ctx := context.Background()
	backend := docstore.NewMemory()
	seed(t, backend, `{"queue":[5],"dialogs":[[1,100],[2,200]]}`)
	q := newQueue(t, backend)

	ended, err := q.EndDialog(ctx, 1)
	if err != nil || !ended {
		t.Fatalf("expected dialog ended, got %v %v", ended, err)
	}
	ended, err = q.EndDialog(ctx, 1)
	if err != nil || ended {
		t.Fatalf("second end should report false, got %v %v", ended, err)
	}
	if _, ok, _ := q.LookupPartner(ctx, 100); ok {
		t.Error("admin should be free after end")
	}
	if p, ok, _ := q.LookupPartner(ctx, 200); !ok || p != 2 {
		t.Error("unrelated dialog must survive")
	}
	if pos, _ := q.Position(ctx, 5); pos != 1 {
		t.Error("queue must be untouched by EndDialog")
	}
}

func TestQueueStore_MalformedDocumentIsEmpty(t *testing.T) {
	ctx := context.Background()
	backend := docstore.NewMemory()
	seed(t, backend, `{"queue": "oops"`)
	q := newQueue(t, backend)

	state, err := q.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(state.Queue) != 0 || len(state.Dialogs) != 0 {
		t.Fatalf("expected empty state, got %+v", state)
	}

	res, err := q.Enqueue(ctx, 42)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if res.Position != 1 {
		t.Errorf("expected fresh queue, got %+v", res)
	}
	data, _ := backend.Load(ctx, handoverDoc)
	if string(data) != `{"queue":[42],"dialogs":[]}` {
		t.Errorf("corrupt document should be replaced, got %s", data)
	}
}

type failingBackend struct{ docstore.Backend }

func (failingBackend) Update(context.Context, string, docstore.Mutator) error {
	return context.DeadlineExceeded
}

func TestQueueStore_StoreFailureIsRetryable(t *testing.T) {
	q := newQueue(t, failingBackend{docstore.NewMemory()})
	_, err := q.Enqueue(context.Background(), 1)
	if !apperrors.HasCode(err, apperrors.CodeStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if !apperrors.IsRetryable(err) {
		t.Error("store failures should be retryable")
	}
}

func TestQueueStore_ConcurrentClaims(t *testing.T) {
	const admins = 12
	const waiting = 5

	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			q := newQueue(t, bc.open(t))
			for i := int64(1); i <= waiting; i++ {
				if _, err := q.Enqueue(ctx, i); err != nil {
					t.Fatalf("Enqueue failed: %v", err)
				}
			}

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				matched = map[int64]int64{}
				failed  int
			)
			for a := int64(0); a < admins; a++ {
				wg.Add(1)
				go func(adminID int64) {
					defer wg.Done()
					res, err := q.FormDialog(ctx, adminID)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						t.Errorf("FormDialog failed: %v", err)
						return
					}
					if !res.Formed {
						failed++
						return
					}
					if other, dup := matched[res.UserID]; dup {
						t.Errorf("user %d matched to both %d and %d", res.UserID, other, adminID)
					}
					matched[res.UserID] = adminID
				}(1000 + a)
			}
			wg.Wait()

			if len(matched) != waiting {
				t.Errorf("expected %d matches, got %d", waiting, len(matched))
			}
			if failed != admins-waiting {
				t.Errorf("expected %d rejections, got %d", admins-waiting, failed)
			}
			state, err := q.Snapshot(ctx)
			if err != nil {
				t.Fatalf("Snapshot failed: %v", err)
			}
			if len(state.Queue) != 0 || len(state.Dialogs) != waiting {
				t.Errorf("unexpected final state %+v", state)
			}
		})
	}
}

func TestQueueStore_ConcurrentEnqueue(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			ctx := context.Background()
			q := newQueue(t, bc.open(t))
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(id int64) {
					defer wg.Done()
					if _, err := q.Enqueue(ctx, id%10); err != nil {
						t.Errorf("Enqueue failed: %v", err)
					}
				}(int64(i))
			}
			wg.Wait()
			state, err := q.Snapshot(ctx)
			if err != nil {
				t.Fatalf("Snapshot failed: %v", err)
			}
			if len(state.Queue) != 10 {
				t.Errorf("expected 10 distinct users, got %v", state.Queue)
			}
		})
	}
}

func TestQueueStore_ReleaseReturnsPair(t *testing.T) {
	ctx := context.Background()
	backend := docstore.NewMemory()
	seed(t, backend, `{"queue":[],"dialogs":[[1,100]]}`)
	q := newQueue(t, backend)

	d, ok, err := q.Release(ctx, 100)
	if err != nil || !ok {
		t.Fatalf("expected release, got %v %v", ok, err)
	}
	if d.UserID != 1 || d.AdminID != 100 {
		t.Errorf("unexpected dialog %+v", d)
	}
	if _, ok, _ := q.Release(ctx, 1); ok {
		t.Error("dialog already released")
	}
}

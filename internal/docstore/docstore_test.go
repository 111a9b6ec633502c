package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/persistence"
)

type counterDoc struct {
	N int `json:"n"`
}

func increment(current []byte) ([]byte, bool, error) {
	var doc counterDoc
	if current != nil {
		if err := json.Unmarshal(current, &doc); err != nil {
			return nil, false, err
		}
	}
	doc.N++
	next, err := json.Marshal(doc)
	return next, true, err
}

func loadCounter(t *testing.T, b Backend, name string) int {
	t.Helper()
	data, err := b.Load(context.Background(), name)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if data == nil {
		return 0
	}
	var doc counterDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return doc.N
}

// runBackendSuite checks the contract every backend must honour.
func runBackendSuite(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("missing document loads as nil", func(t *testing.T) {
		b := newBackend(t)
		data, err := b.Load(context.Background(), "absent")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if data != nil {
			t.Errorf("expected nil, got %q", data)
		}
	})

	t.Run("update then load", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		if err := b.Update(ctx, "doc", increment); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if err := b.Update(ctx, "doc", increment); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if got := loadCounter(t, b, "doc"); got != 2 {
			t.Errorf("expected 2, got %d", got)
		}
	})

	t.Run("no write leaves document untouched", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		if err := b.Update(ctx, "doc", increment); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		err := b.Update(ctx, "doc", func(current []byte) ([]byte, bool, error) {
			return []byte(`{"n":99}`), false, nil
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if got := loadCounter(t, b, "doc"); got != 1 {
			t.Errorf("expected 1, got %d", got)
		}
	})

	t.Run("mutator error aborts without writing", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		if err := b.Update(ctx, "doc", increment); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		boom := errors.New("boom")
		err := b.Update(ctx, "doc", func(current []byte) ([]byte, bool, error) {
			return []byte(`{"n":42}`), true, boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if got := loadCounter(t, b, "doc"); got != 1 {
			t.Errorf("expected 1 after failed update, got %d", got)
		}
	})

	t.Run("documents are independent", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		if err := b.Update(ctx, "a", increment); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if got := loadCounter(t, b, "b"); got != 0 {
			t.Errorf("expected b untouched, got %d", got)
		}
	})

	t.Run("concurrent updates are not lost", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		const writers = 20
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := b.Update(ctx, "counter", increment); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent Update failed: %v", err)
		}
		if got := loadCounter(t, b, "counter"); got != writers {
			t.Errorf("expected %d, got %d", writers, got)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := newBackend(t).Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestMemoryBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend { return NewMemory() })
}

func TestFileBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend { return NewFile(t.TempDir()) })
}

func TestFileBackend_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	b := NewFile(dir)
	for i := 0; i < 3; i++ {
		if err := b.Update(context.Background(), "callstack", increment); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "callstack.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only callstack.json, got %v", names)
	}
}

func TestFileBackend_BlankFileIsAbsent(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "users.json"), []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	data, err := NewFile(dir).Load(context.Background(), "users")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil for blank file, got %q", data)
	}
}

func TestSQLiteBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend {
		ctx := context.Background()
		db, err := persistence.OpenSQLite(ctx, filepath.Join(t.TempDir(), "docs.db"))
		if err != nil {
			t.Fatalf("OpenSQLite failed: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		if err := persistence.RunSQLiteMigrations(ctx, db, zap.NewNop()); err != nil {
			t.Fatalf("migrations failed: %v", err)
		}
		return NewSQLite(db)
	})
}

func TestRedisBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return NewRedis(client, "test:", 200)
	})
}

func TestRedisBackend_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b := NewRedis(client, "handover:doc:", 0)
	if err := b.Update(context.Background(), "callstack", increment); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err := mr.Get("handover:doc:callstack")
	if err != nil {
		t.Fatalf("expected prefixed key: %v", err)
	}
	if got != `{"n":1}` {
		t.Errorf("unexpected stored value %q", got)
	}
}

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	runBackendSuite(t, func(t *testing.T) Backend {
		ctx := context.Background()
		pg, err := persistence.NewPostgres(ctx, configForDSN(dsn), zap.NewNop())
		if err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		t.Cleanup(pg.Close)
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), zap.NewNop()); err != nil {
			t.Fatalf("migrations failed: %v", err)
		}
		if _, err := pg.PoolHandle().Exec(ctx, `TRUNCATE documents`); err != nil {
			t.Fatalf("truncate failed: %v", err)
		}
		return NewPostgres(pg.PoolHandle())
	})
}

package docstore

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/config"
	"github.com/spec-kit/handover-bot/internal/persistence"
)

func configForDSN(dsn string) config.PostgresConfig {
	return config.PostgresConfig{DSN: dsn, MaxConns: 4}
}

func TestOpen(t *testing.T) {
	deps := Dependencies{
		Postgres: &persistence.Postgres{},
		Redis:    &persistence.Redis{},
		Logger:   zap.NewNop(),
	}
	tests := []struct {
		backend  string
		wantKind string
		wantErr  bool
	}{
		{backend: config.BackendFile, wantKind: "file"},
		{backend: "", wantKind: "file"},
		{backend: config.BackendMemory, wantKind: "memory"},
		{backend: config.BackendSQLite, wantKind: "sqlite"},
		{backend: config.BackendPostgres, wantErr: true},
		{backend: config.BackendRedis, wantErr: true},
		{backend: "etcd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			dir := t.TempDir()
			cfg := config.StoreConfig{
				Backend:    tt.backend,
				DataDir:    dir,
				SQLitePath: filepath.Join(dir, "handover.db"),
			}
			b, closeFn, err := Open(context.Background(), cfg, deps)
			defer closeFn()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if b.Kind() != tt.wantKind {
				t.Errorf("expected %s, got %s", tt.wantKind, b.Kind())
			}
		})
	}
}

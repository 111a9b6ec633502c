package repository

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/docstore"
	"github.com/spec-kit/handover-bot/internal/domain"
)

func TestInteractionLog_AppendCapsEntries(t *testing.T) {
	ctx := context.Background()
	log := NewInteractionLog(docstore.NewMemory(), "interaction_logs", 3, zap.NewNop(), nil)

	for i, q := range []string{"a", "b", "c", "d", "e"} {
		entry, err := log.Append(ctx, domain.Interaction{UserID: int64(i), Question: q, Answer: "ok"})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if entry.ID == "" || entry.At.IsZero() {
			t.Fatalf("expected id and timestamp, got %+v", entry)
		}
	}

	entries, err := log.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Question != "c" || entries[2].Question != "e" {
		t.Errorf("expected oldest entries dropped, got %q..%q", entries[0].Question, entries[2].Question)
	}

	last, err := log.Recent(ctx, 1)
	if err != nil || len(last) != 1 || last[0].Question != "e" {
		t.Errorf("expected newest entry, got %+v %v", last, err)
	}
}

func TestInteractionLog_EmptyRecent(t *testing.T) {
	log := NewInteractionLog(docstore.NewMemory(), "interaction_logs", 0, zap.NewNop(), nil)
	entries, err := log.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", entries)
	}
}

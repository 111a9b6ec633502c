package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/docstore"
	"github.com/spec-kit/handover-bot/internal/domain"
	"github.com/spec-kit/handover-bot/internal/observability"
)

// InteractionLog keeps the most recent agent answers for review.
type InteractionLog interface {
	Append(ctx context.Context, entry domain.Interaction) (domain.Interaction, error)
	Recent(ctx context.Context, limit int) ([]domain.Interaction, error)
}

type interactionLog struct {
	doc        document
	maxEntries int
	now        func() time.Time
}

// NewInteractionLog returns a log capped at maxEntries (unbounded when <= 0).
func NewInteractionLog(store docstore.Backend, name string, maxEntries int, logger *zap.Logger, metrics *observability.Metrics) InteractionLog {
	return &interactionLog{
		doc:        document{store: store, name: name, logger: logger, metrics: metrics},
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (r *interactionLog) decode(data []byte) []domain.Interaction {
	var entries []domain.Interaction
	if data == nil {
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		r.doc.malformed(err)
		return nil
	}
	return entries
}

func (r *interactionLog) Append(ctx context.Context, entry domain.Interaction) (domain.Interaction, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = r.now().UTC()
	}
	if entry.Context == nil {
		entry.Context = []string{}
	}
	err := r.doc.update(ctx, func(current []byte) ([]byte, bool, error) {
		entries := append(r.decode(current), entry)
		if r.maxEntries > 0 && len(entries) > r.maxEntries {
			entries = entries[len(entries)-r.maxEntries:]
		}
		next, err := json.Marshal(entries)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
	if err != nil {
		return domain.Interaction{}, err
	}
	return entry, nil
}

// Recent returns up to limit entries, newest last.
func (r *interactionLog) Recent(ctx context.Context, limit int) ([]domain.Interaction, error) {
	data, err := r.doc.load(ctx)
	if err != nil {
		return nil, err
	}
	entries := r.decode(data)
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if entries == nil {
		entries = []domain.Interaction{}
	}
	return entries, nil
}

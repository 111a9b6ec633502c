package repository

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/docstore"
	"github.com/spec-kit/handover-bot/internal/domain"
	"github.com/spec-kit/handover-bot/internal/observability"
)

// QueueStore owns the waiting queue and the active dialogs as one document.
// Mutations are linearizable; reads return the last committed state.
type QueueStore interface {
	Enqueue(ctx context.Context, userID int64) (domain.EnqueueResult, error)
	FormDialog(ctx context.Context, adminID int64) (domain.ClaimResult, error)
	LookupPartner(ctx context.Context, participantID int64) (int64, bool, error)
	EndDialog(ctx context.Context, participantID int64) (bool, error)
	Release(ctx context.Context, participantID int64) (domain.Dialog, bool, error)
	Position(ctx context.Context, userID int64) (int, error)
	Snapshot(ctx context.Context) (domain.HandoverState, error)
}

type queueStore struct {
	doc document
}

// NewQueueStore returns a QueueStore persisted in the named document.
func NewQueueStore(store docstore.Backend, name string, logger *zap.Logger, metrics *observability.Metrics) QueueStore {
	return &queueStore{doc: document{store: store, name: name, logger: logger, metrics: metrics}}
}

func (r *queueStore) decode(data []byte) domain.HandoverState {
	state, err := domain.DecodeHandoverState(data)
	if err != nil {
		r.doc.malformed(err)
		return domain.HandoverState{}
	}
	return state
}

// mutate runs fn against the current state and persists it when fn reports a change.
// fn may be invoked more than once, so it must reset anything it captures.
func (r *queueStore) mutate(ctx context.Context, fn func(state *domain.HandoverState) bool) error {
	return r.doc.update(ctx, func(current []byte) ([]byte, bool, error) {
		state := r.decode(current)
		if !fn(&state) {
			return nil, false, nil
		}
		next, err := json.Marshal(state)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
}

func (r *queueStore) Enqueue(ctx context.Context, userID int64) (domain.EnqueueResult, error) {
	var result domain.EnqueueResult
	err := r.mutate(ctx, func(state *domain.HandoverState) bool {
		if _, paired := state.PartnerOf(userID); paired {
			result = domain.EnqueueResult{Status: domain.EnqueueAlreadyInDialog}
			return false
		}
		if pos := state.Position(userID); pos > 0 {
			result = domain.EnqueueResult{Status: domain.EnqueueAlreadyQueued, Position: pos}
			return false
		}
		state.Queue = append(state.Queue, userID)
		result = domain.EnqueueResult{Status: domain.EnqueueAdded, Position: len(state.Queue)}
		return true
	})
	if err != nil {
		return domain.EnqueueResult{}, err
	}
	return result, nil
}

func (r *queueStore) FormDialog(ctx context.Context, adminID int64) (domain.ClaimResult, error) {
	var result domain.ClaimResult
	err := r.mutate(ctx, func(state *domain.HandoverState) bool {
		if _, busy := state.PartnerOf(adminID); busy {
			result = domain.NoWaitingUsers(domain.ClaimAdminBusy)
			return false
		}
		if len(state.Queue) == 0 {
			result = domain.NoWaitingUsers(domain.ClaimQueueEmpty)
			return false
		}
		head := state.Queue[0]
		if head == adminID {
			result = domain.NoWaitingUsers(domain.ClaimSelf)
			return false
		}
		state.Queue = state.Queue[1:]
		state.Dialogs = append(state.Dialogs, domain.Dialog{UserID: head, AdminID: adminID})
		result = domain.Formed(head)
		return true
	})
	if err != nil {
		return domain.ClaimResult{}, err
	}
	return result, nil
}

func (r *queueStore) LookupPartner(ctx context.Context, participantID int64) (int64, bool, error) {
	state, err := r.Snapshot(ctx)
	if err != nil {
		return 0, false, err
	}
	partner, ok := state.PartnerOf(participantID)
	return partner, ok, nil
}

func (r *queueStore) EndDialog(ctx context.Context, participantID int64) (bool, error) {
	_, ended, err := r.Release(ctx, participantID)
	return ended, err
}

// Release removes the dialog containing participantID and returns it.
func (r *queueStore) Release(ctx context.Context, participantID int64) (domain.Dialog, bool, error) {
	var (
		released domain.Dialog
		ended    bool
	)
	err := r.mutate(ctx, func(state *domain.HandoverState) bool {
		ended = false
		kept := make([]domain.Dialog, 0, len(state.Dialogs))
		for _, d := range state.Dialogs {
			if _, ok := d.Partner(participantID); ok {
				released, ended = d, true
				continue
			}
			kept = append(kept, d)
		}
		state.Dialogs = kept
		return ended
	})
	if err != nil {
		return domain.Dialog{}, false, err
	}
	return released, ended, nil
}

func (r *queueStore) Position(ctx context.Context, userID int64) (int, error) {
	state, err := r.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return state.Position(userID), nil
}

func (r *queueStore) Snapshot(ctx context.Context) (domain.HandoverState, error) {
	data, err := r.doc.load(ctx)
	if err != nil {
		return domain.HandoverState{}, err
	}
	return r.decode(data), nil
}

package service

import (
	"sync"

	"github.com/spec-kit/handover-bot/internal/domain"
)

// ClaimPrompts remembers which claim prompt each admin received for each
// waiting user, so stale prompts can be deleted once someone claims.
// It lives only in memory; a restart forgets outstanding prompts.
type ClaimPrompts struct {
	mu      sync.Mutex
	byAdmin map[int64]map[int64]domain.MessageRef
}

func NewClaimPrompts() *ClaimPrompts {
	return &ClaimPrompts{byAdmin: make(map[int64]map[int64]domain.MessageRef)}
}

// Record stores the prompt shown to adminID about userID, replacing an older one.
func (p *ClaimPrompts) Record(adminID, userID int64, ref domain.MessageRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prompts, ok := p.byAdmin[adminID]
	if !ok {
		prompts = make(map[int64]domain.MessageRef)
		p.byAdmin[adminID] = prompts
	}
	prompts[userID] = ref
}

// TakeForUser removes and returns every admin's prompt about userID.
func (p *ClaimPrompts) TakeForUser(userID int64) []domain.MessageRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	var refs []domain.MessageRef
	for adminID, prompts := range p.byAdmin {
		if ref, ok := prompts[userID]; ok {
			refs = append(refs, ref)
			delete(prompts, userID)
		}
		if len(prompts) == 0 {
			delete(p.byAdmin, adminID)
		}
	}
	return refs
}

// Pending counts prompts held for adminID.
func (p *ClaimPrompts) Pending(adminID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byAdmin[adminID])
}

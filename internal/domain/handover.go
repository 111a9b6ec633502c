package domain

import (
	"encoding/json"
	"fmt"
)

// Dialog pairs a user with the admin relaying for them.
type Dialog struct {
	UserID  int64
	AdminID int64
}

// Partner returns the other participant when id is part of the dialog.
func (d Dialog) Partner(id int64) (int64, bool) {
	switch id {
	case d.UserID:
		return d.AdminID, true
	case d.AdminID:
		return d.UserID, true
	default:
		return 0, false
	}
}

// MarshalJSON stores a dialog as a two element array.
func (d Dialog) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{d.UserID, d.AdminID})
}

// UnmarshalJSON accepts exactly two participant IDs.
func (d *Dialog) UnmarshalJSON(data []byte) error {
	var pair []int64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("dialog must have 2 participants, got %d", len(pair))
	}
	d.UserID, d.AdminID = pair[0], pair[1]
	return nil
}

// HandoverState is the queue of waiting users together with every active dialog.
// Both live in one document so popping the queue and forming a dialog commit together.
type HandoverState struct {
	Queue   []int64  `json:"queue"`
	Dialogs []Dialog `json:"dialogs"`
}

// MarshalJSON writes empty lists rather than null.
func (s HandoverState) MarshalJSON() ([]byte, error) {
	type wire HandoverState
	w := wire(s)
	if w.Queue == nil {
		w.Queue = []int64{}
	}
	if w.Dialogs == nil {
		w.Dialogs = []Dialog{}
	}
	return json.Marshal(w)
}

// DecodeHandoverState parses and validates a stored document. nil data is the empty state.
func DecodeHandoverState(data []byte) (HandoverState, error) {
	var state HandoverState
	if data == nil {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return HandoverState{}, err
	}
	if err := state.Validate(); err != nil {
		return HandoverState{}, err
	}
	return state, nil
}

// Validate checks the queue and dialog invariants.
func (s HandoverState) Validate() error {
	queued := make(map[int64]struct{}, len(s.Queue))
	for _, id := range s.Queue {
		if _, dup := queued[id]; dup {
			return fmt.Errorf("user %d queued twice", id)
		}
		queued[id] = struct{}{}
	}
	paired := make(map[int64]struct{}, len(s.Dialogs)*2)
	for _, d := range s.Dialogs {
		if d.UserID == d.AdminID {
			return fmt.Errorf("participant %d paired with itself", d.UserID)
		}
		for _, id := range []int64{d.UserID, d.AdminID} {
			if _, dup := paired[id]; dup {
				return fmt.Errorf("participant %d in more than one dialog", id)
			}
			paired[id] = struct{}{}
		}
		if _, waiting := queued[d.UserID]; waiting {
			return fmt.Errorf("user %d both queued and in a dialog", d.UserID)
		}
	}
	return nil
}

// Position returns the 1-based queue position of id, or 0 when not queued.
func (s HandoverState) Position(id int64) int {
	for i, queued := range s.Queue {
		if queued == id {
			return i + 1
		}
	}
	return 0
}

// PartnerOf returns the other half of the dialog containing id.
func (s HandoverState) PartnerOf(id int64) (int64, bool) {
	for _, d := range s.Dialogs {
		if partner, ok := d.Partner(id); ok {
			return partner, true
		}
	}
	return 0, false
}

// EnqueueStatus describes what Enqueue did.
type EnqueueStatus string

const (
	EnqueueAdded           EnqueueStatus = "enqueued"
	EnqueueAlreadyQueued   EnqueueStatus = "already_queued"
	EnqueueAlreadyInDialog EnqueueStatus = "already_in_dialog"
)

// EnqueueResult carries the outcome and the resulting 1-based position.
type EnqueueResult struct {
	Status   EnqueueStatus
	Position int
}

// IsHead reports whether the user is next in line.
func (r EnqueueResult) IsHead() bool {
	return r.Status != EnqueueAlreadyInDialog && r.Position == 1
}

// ClaimRejection explains why no dialog was formed.
type ClaimRejection string

const (
	ClaimQueueEmpty ClaimRejection = "queue_empty"
	ClaimAdminBusy  ClaimRejection = "admin_busy"
	ClaimSelf       ClaimRejection = "self_claim"
)

// ClaimResult is either Formed with the matched user or NoWaitingUsers with a reason.
type ClaimResult struct {
	Formed bool
	UserID int64
	Reason ClaimRejection
}

// Formed builds a successful claim result.
func Formed(userID int64) ClaimResult {
	return ClaimResult{Formed: true, UserID: userID}
}

// NoWaitingUsers builds a rejected claim result.
func NoWaitingUsers(reason ClaimRejection) ClaimResult {
	return ClaimResult{Reason: reason}
}

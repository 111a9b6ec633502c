package dto

import "github.com/spec-kit/handover-bot/internal/domain"

// DialogResponse is one active user/admin pairing.
type DialogResponse struct {
	UserID  int64 `json:"user_id"`
	AdminID int64 `json:"admin_id"`
}

// QueueResponse is the handover state as seen by operators.
type QueueResponse struct {
	Queue   []int64          `json:"queue"`
	Dialogs []DialogResponse `json:"dialogs"`
}

// NewQueueResponse maps the handover state, always emitting lists.
func NewQueueResponse(state domain.HandoverState) QueueResponse {
	resp := QueueResponse{
		Queue:   append([]int64{}, state.Queue...),
		Dialogs: make([]DialogResponse, 0, len(state.Dialogs)),
	}
	for _, d := range state.Dialogs {
		resp.Dialogs = append(resp.Dialogs, DialogResponse{UserID: d.UserID, AdminID: d.AdminID})
	}
	return resp
}

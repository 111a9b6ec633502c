package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/domain"
	"github.com/spec-kit/handover-bot/internal/events"
	"github.com/spec-kit/handover-bot/internal/observability"
	"github.com/spec-kit/handover-bot/internal/repository"
	"github.com/spec-kit/handover-bot/internal/session"
	apperrors "github.com/spec-kit/handover-bot/pkg/util/errorutil"
)

// EscalationRequest describes a user the agent wants to hand to a human.
type EscalationRequest struct {
	UserID      int64
	DisplayName string
	History     []domain.Turn
}

// EscalationService moves users between the agent, the waiting queue and
// operator dialogs.
type EscalationService struct {
	queue      repository.QueueStore
	directory  repository.Directory
	sessions   session.Store
	notifier   Notifier
	prompts    *ClaimPrompts
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	endSignal  string
}

// EscalationDependencies bundles collaborators.
type EscalationDependencies struct {
	Queue           repository.QueueStore
	Directory       repository.Directory
	Sessions        session.Store
	Notifier        Notifier
	Prompts         *ClaimPrompts
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	Metrics         *observability.Metrics
	EndDialogSignal string
}

// NewEscalationService creates the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	prompts := deps.Prompts
	if prompts == nil {
		prompts = NewClaimPrompts()
	}
	return &EscalationService{
		queue:      deps.Queue,
		directory:  deps.Directory,
		sessions:   deps.Sessions,
		notifier:   deps.Notifier,
		prompts:    prompts,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger.Named("escalation"),
		metrics:    deps.Metrics,
		endSignal:  deps.EndDialogSignal,
	}
}

// Escalate queues the user and, on first entry, asks every admin to claim.
// A user who already has a partner is left alone.
func (s *EscalationService) Escalate(ctx context.Context, req EscalationRequest) (domain.EnqueueResult, error) {
	res, err := s.queue.Enqueue(ctx, req.UserID)
	if err != nil {
		return res, err
	}
	s.metrics.RecordEscalation(string(res.Status))

	switch res.Status {
	case domain.EnqueueAlreadyInDialog:
		s.logger.Debug("escalation ignored; user already in dialog", zap.Int64("user_id", req.UserID))
		return res, nil
	case domain.EnqueueAlreadyQueued:
		s.send(ctx, req.UserID, domain.OutgoingMessage{
			Text:     fmt.Sprintf(TextAlreadyQueued, res.Position),
			Keyboard: positionKeyboard(),
		})
		return res, nil
	}

	admins, err := s.directory.ListAdmins(ctx)
	if err != nil {
		return res, err
	}
	notified, claimed := s.broadcast(ctx, req, admins)
	switch {
	case claimed:
		// the user has already been told an operator accepted
	case notified == 0:
		s.logger.Warn("no admin could be notified", zap.Int64("user_id", req.UserID))
		s.send(ctx, req.UserID, domain.OutgoingMessage{Text: TextNoAdmins, Keyboard: domain.RemoveKeyboard()})
	default:
		s.send(ctx, req.UserID, domain.OutgoingMessage{
			Text:     QueueStatusText(res.Position),
			Keyboard: positionKeyboard(),
		})
	}

	s.logger.Info("user escalated",
		zap.Int64("user_id", req.UserID),
		zap.Int("position", res.Position),
		zap.Int("admins_notified", notified))
	s.publish(ctx, events.New(events.EventEscalationRequested, req.UserID, events.EscalationRequestedPayload{
		UserID:         req.UserID,
		Outcome:        string(res.Status),
		Position:       res.Position,
		AdminsNotified: notified,
	}))
	return res, nil
}

// broadcast sends the claim prompt to every admin. claimed reports that an
// admin already took the user while prompts were going out.
func (s *EscalationService) broadcast(ctx context.Context, req EscalationRequest, admins []domain.User) (notified int, claimed bool) {
	name := displayName(domain.User{ID: req.UserID, DisplayName: req.DisplayName})
	msg := domain.OutgoingMessage{
		Text:     fmt.Sprintf(TextAdminPrompt, name, renderHistory(req.History)),
		Keyboard: domain.InlineKeyboard(domain.Button{Text: ButtonAccept, Data: ClaimCallbackData(req.UserID)}),
	}
	for _, admin := range admins {
		if admin.ID == req.UserID {
			continue
		}
		ref, err := s.notifier.Send(ctx, admin.ID, msg)
		if err != nil {
			s.logger.Warn("claim prompt not delivered", zap.Int64("admin_id", admin.ID), zap.Error(err))
			continue
		}
		s.prompts.Record(admin.ID, req.UserID, ref)
		notified++
	}

	// A claim that landed mid-broadcast only cleaned up the prompts recorded
	// before it; drop the rest once the user has left the queue.
	if notified > 0 {
		pos, err := s.queue.Position(ctx, req.UserID)
		if err != nil {
			s.logger.Warn("queue position check after broadcast failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		} else if pos == 0 {
			s.invalidatePrompts(ctx, req.UserID)
			claimed = true
		}
	}
	return notified, claimed
}

// Claim pairs adminID with the head of the queue. promptedUserID is the user
// named on the pressed button and is only used to clean up stale prompts.
// A rejected claim is reported to the admin and returned as InvalidClaim.
func (s *EscalationService) Claim(ctx context.Context, adminID, promptedUserID int64) (domain.ClaimResult, error) {
	role, err := s.directory.GetRole(ctx, adminID)
	if err != nil {
		return domain.ClaimResult{}, err
	}
	if role != domain.RoleAdmin {
		return domain.ClaimResult{}, apperrors.NewForbidden("admin role required")
	}

	res, err := s.queue.FormDialog(ctx, adminID)
	if err != nil {
		return res, err
	}

	if !res.Formed {
		s.metrics.RecordClaim(string(res.Reason))
		if res.Reason == domain.ClaimQueueEmpty && promptedUserID != 0 {
			s.invalidatePrompts(ctx, promptedUserID)
		}
		s.send(ctx, adminID, domain.OutgoingMessage{Text: rejectionText(res.Reason)})
		s.logger.Info("claim rejected", zap.Int64("admin_id", adminID), zap.String("reason", string(res.Reason)))
		s.publish(ctx, events.New(events.EventClaimRejected, adminID, events.ClaimRejectedPayload{
			AdminID: adminID,
			Reason:  string(res.Reason),
		}))
		return res, apperrors.NewInvalidClaim(string(res.Reason))
	}

	s.metrics.RecordClaim("formed")
	s.invalidatePrompts(ctx, res.UserID)

	user, known, err := s.directory.Get(ctx, res.UserID)
	if err != nil || !known {
		user = domain.User{ID: res.UserID}
	}
	end := domain.ReplyKeyboard(s.endSignal)
	s.send(ctx, adminID, domain.OutgoingMessage{Text: fmt.Sprintf(TextClaimAccepted, displayName(user)), Keyboard: end})
	s.send(ctx, res.UserID, domain.OutgoingMessage{Text: TextUserConnected, Keyboard: end})

	s.logger.Info("dialog started", zap.Int64("admin_id", adminID), zap.Int64("user_id", res.UserID))
	s.publish(ctx, events.New(events.EventDialogStarted, adminID, events.DialogStartedPayload{
		UserID:  res.UserID,
		AdminID: adminID,
	}))
	return res, nil
}

func rejectionText(reason domain.ClaimRejection) string {
	switch reason {
	case domain.ClaimAdminBusy:
		return TextAdminBusy
	case domain.ClaimSelf:
		return TextSelfClaim
	default:
		return TextNothingPending
	}
}

func (s *EscalationService) invalidatePrompts(ctx context.Context, userID int64) {
	for _, ref := range s.prompts.TakeForUser(userID) {
		if err := s.notifier.Delete(ctx, ref); err != nil {
			s.logger.Debug("stale claim prompt not deleted", zap.Int64("admin_id", ref.ChatID), zap.Error(err))
		}
	}
}

// EndDialog tears down the dialog containing participantID, resets both
// agent sessions and tells both sides. It reports whether a dialog existed.
func (s *EscalationService) EndDialog(ctx context.Context, participantID int64) (bool, error) {
	dialog, ended, err := s.queue.Release(ctx, participantID)
	if err != nil || !ended {
		return ended, err
	}

	for _, id := range []int64{dialog.UserID, dialog.AdminID} {
		if err := s.sessions.Reset(ctx, id); err != nil {
			s.logger.Warn("session reset failed", zap.Int64("user_id", id), zap.Error(err))
		}
		s.send(ctx, id, domain.OutgoingMessage{Text: TextDialogEnded, Keyboard: domain.RemoveKeyboard()})
	}

	partner, _ := dialog.Partner(participantID)
	s.metrics.RecordDialogEnded()
	s.logger.Info("dialog ended", zap.Int64("ended_by", participantID), zap.Int64("partner_id", partner))
	s.publish(ctx, events.New(events.EventDialogEnded, participantID, events.DialogEndedPayload{
		EndedBy:   participantID,
		PartnerID: partner,
	}))
	return true, nil
}

// QueueStatus renders the user's current place in the queue.
func (s *EscalationService) QueueStatus(ctx context.Context, userID int64) (string, error) {
	pos, err := s.queue.Position(ctx, userID)
	if err != nil {
		return "", err
	}
	return QueueStatusText(pos), nil
}

// WaitingReply builds the answer for a handed-over user who writes while
// still waiting. waiting is false when the user is no longer queued.
func (s *EscalationService) WaitingReply(ctx context.Context, userID int64) (domain.OutgoingMessage, bool, error) {
	pos, err := s.queue.Position(ctx, userID)
	if err != nil {
		return domain.OutgoingMessage{}, false, err
	}
	if pos == 0 {
		return domain.OutgoingMessage{}, false, nil
	}
	admins, err := s.directory.ListAdmins(ctx)
	if err != nil {
		return domain.OutgoingMessage{}, true, err
	}
	if len(admins) == 0 {
		return domain.OutgoingMessage{Text: TextNoAdmins, Keyboard: domain.RemoveKeyboard()}, true, nil
	}
	return domain.OutgoingMessage{Text: QueueStatusText(pos), Keyboard: positionKeyboard()}, true, nil
}

// Snapshot returns the current queue and dialogs.
func (s *EscalationService) Snapshot(ctx context.Context) (domain.HandoverState, error) {
	return s.queue.Snapshot(ctx)
}

// PositionMessage is the content of the queue position button after a refresh.
func (s *EscalationService) PositionMessage(ctx context.Context, userID int64) (domain.OutgoingMessage, error) {
	text, err := s.QueueStatus(ctx, userID)
	if err != nil {
		return domain.OutgoingMessage{}, err
	}
	return domain.OutgoingMessage{Text: text, Keyboard: positionKeyboard()}, nil
}

func (s *EscalationService) send(ctx context.Context, recipientID int64, msg domain.OutgoingMessage) {
	if _, err := s.notifier.Send(ctx, recipientID, msg); err != nil {
		s.logger.Warn("message not delivered", zap.Int64("recipient_id", recipientID), zap.Error(err))
	}
}

func (s *EscalationService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/agent"
	"github.com/spec-kit/handover-bot/internal/domain"
	"github.com/spec-kit/handover-bot/internal/repository"
	"github.com/spec-kit/handover-bot/internal/session"
)

// Escalator is the part of EscalationService the assistant needs.
type Escalator interface {
	Escalate(ctx context.Context, req EscalationRequest) (domain.EnqueueResult, error)
	WaitingReply(ctx context.Context, userID int64) (domain.OutgoingMessage, bool, error)
}

// AssistantService answers ordinary users through the upstream agent and
// escalates when the agent asks for a human.
type AssistantService struct {
	agent        agent.Agent
	sessions     session.Store
	interactions repository.InteractionLog
	escalator    Escalator
	notifier     Notifier
	logger       *zap.Logger
	maxHistory   int
	now          func() time.Time
}

// AssistantDependencies bundles collaborators.
type AssistantDependencies struct {
	Agent        agent.Agent
	Sessions     session.Store
	Interactions repository.InteractionLog
	Escalator    Escalator
	Notifier     Notifier
	Logger       *zap.Logger
	MaxHistory   int
}

// NewAssistantService creates the service.
func NewAssistantService(deps AssistantDependencies) *AssistantService {
	return &AssistantService{
		agent:        deps.Agent,
		sessions:     deps.Sessions,
		interactions: deps.Interactions,
		escalator:    deps.Escalator,
		notifier:     deps.Notifier,
		logger:       deps.Logger.Named("assistant"),
		maxHistory:   deps.MaxHistory,
		now:          time.Now,
	}
}

// Start resets the agent session for a fresh conversation.
func (s *AssistantService) Start(ctx context.Context, userID int64) error {
	return s.sessions.Reset(ctx, userID)
}

// HandleText answers a user who is not in a dialog. Users already handed
// over get their queue status instead of another agent answer.
func (s *AssistantService) HandleText(ctx context.Context, userID int64, name, text string) error {
	sess, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return err
	}

	if sess.Handover {
		msg, waiting, err := s.escalator.WaitingReply(ctx, userID)
		if err != nil {
			return err
		}
		if waiting {
			_, err := s.notifier.Send(ctx, userID, msg)
			return err
		}
		// no longer queued, so the agent takes the conversation back
		sess.Handover = false
	}

	reply, err := s.agent.Handle(ctx, userID, sess.History, text)
	if err != nil {
		s.logger.Warn("agent call failed", zap.Int64("user_id", userID), zap.Error(err))
		if _, sendErr := s.notifier.Send(ctx, userID, domain.OutgoingMessage{Text: TextAgentUnavailable}); sendErr != nil {
			s.logger.Warn("message not delivered", zap.Int64("recipient_id", userID), zap.Error(sendErr))
		}
		return err
	}

	now := s.now().UTC()
	sess.Append(domain.Turn{Speaker: domain.SpeakerUser, Text: text, At: now}, s.maxHistory)
	sess.Append(domain.Turn{Speaker: domain.SpeakerAssistant, Text: reply.Text, At: now}, s.maxHistory)
	if reply.HandoverRequested {
		sess.Handover = true
	}

	if s.interactions != nil {
		if _, err := s.interactions.Append(ctx, domain.Interaction{
			UserID:   userID,
			Question: text,
			Context:  reply.Context,
			Answer:   reply.Text,
			At:       now,
		}); err != nil {
			s.logger.Warn("interaction not logged", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	if reply.Text != "" {
		if _, err := s.notifier.Send(ctx, userID, domain.OutgoingMessage{Text: reply.Text}); err != nil {
			s.logger.Warn("message not delivered", zap.Int64("recipient_id", userID), zap.Error(err))
		}
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return err
	}

	if reply.HandoverRequested {
		_, err := s.escalator.Escalate(ctx, EscalationRequest{
			UserID:      userID,
			DisplayName: name,
			History:     sess.History,
		})
		return err
	}
	return nil
}

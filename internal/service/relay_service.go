package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/domain"
	"github.com/spec-kit/handover-bot/internal/events"
	"github.com/spec-kit/handover-bot/internal/observability"
	"github.com/spec-kit/handover-bot/internal/repository"
	apperrors "github.com/spec-kit/handover-bot/pkg/util/errorutil"
)

// DialogEnder tears down the dialog of a participant.
type DialogEnder interface {
	EndDialog(ctx context.Context, participantID int64) (bool, error)
}

// RelayService forwards messages between the two sides of a dialog.
type RelayService struct {
	queue      repository.QueueStore
	notifier   Notifier
	ender      DialogEnder
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	endSignal  string
}

// RelayDependencies bundles collaborators.
type RelayDependencies struct {
	Queue           repository.QueueStore
	Notifier        Notifier
	Ender           DialogEnder
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	Metrics         *observability.Metrics
	EndDialogSignal string
}

// NewRelayService creates the service.
func NewRelayService(deps RelayDependencies) *RelayService {
	return &RelayService{
		queue:      deps.Queue,
		notifier:   deps.Notifier,
		ender:      deps.Ender,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger.Named("relay"),
		metrics:    deps.Metrics,
		endSignal:  deps.EndDialogSignal,
	}
}

// Route forwards text to the sender's partner, or ends the dialog when text is
// the end signal. It returns false when the sender is in no dialog.
func (s *RelayService) Route(ctx context.Context, senderID int64, text string) (bool, error) {
	partner, ok, err := s.queue.LookupPartner(ctx, senderID)
	if err != nil || !ok {
		return false, err
	}

	if strings.TrimSpace(text) == s.endSignal {
		_, err := s.ender.EndDialog(ctx, senderID)
		return true, err
	}

	msg := domain.OutgoingMessage{Text: text, Keyboard: domain.ReplyKeyboard(s.endSignal)}
	if _, err := s.notifier.Send(ctx, partner, msg); err != nil {
		return true, apperrors.NewUpstreamUnavailable("messaging", err)
	}

	s.metrics.RecordRelay()
	s.logger.Debug("message relayed",
		zap.Int64("from", senderID),
		zap.Int64("to", partner),
		zap.Int("length", len(text)))
	if s.dispatcher != nil {
		event := events.New(events.EventMessageRelayed, senderID, events.MessageRelayedPayload{
			From:   senderID,
			To:     partner,
			Length: len(text),
		})
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
	return true, nil
}

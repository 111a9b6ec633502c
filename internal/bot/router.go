// Package bot turns inbound chat updates into service calls.
package bot

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/domain"
	"github.com/spec-kit/handover-bot/internal/service"
	apperrors "github.com/spec-kit/handover-bot/pkg/util/errorutil"
)

// Sender identifies who wrote an inbound update.
type Sender struct {
	ID   int64
	Name string
}

// Router dispatches commands, text and button presses.
type Router struct {
	directory  *service.DirectoryService
	escalation *service.EscalationService
	relay      *service.RelayService
	assistant  *service.AssistantService
	notifier   service.Notifier
	logger     *zap.Logger
}

// Dependencies bundles the services a Router drives.
type Dependencies struct {
	Directory  *service.DirectoryService
	Escalation *service.EscalationService
	Relay      *service.RelayService
	Assistant  *service.AssistantService
	Notifier   service.Notifier
	Logger     *zap.Logger
}

// NewRouter creates a router.
func NewRouter(deps Dependencies) *Router {
	return &Router{
		directory:  deps.Directory,
		escalation: deps.Escalation,
		relay:      deps.Relay,
		assistant:  deps.Assistant,
		notifier:   deps.Notifier,
		logger:     deps.Logger.Named("router"),
	}
}

// HandleCommand processes /start and /admin. Other commands are treated as text.
func (r *Router) HandleCommand(ctx context.Context, from Sender, command, args string) error {
	switch command {
	case "start":
		return r.start(ctx, from)
	case "admin":
		return r.registerAdmin(ctx, from, args)
	default:
		text := "/" + command
		if args != "" {
			text += " " + args
		}
		return r.HandleText(ctx, from, text)
	}
}

func (r *Router) start(ctx context.Context, from Sender) error {
	if _, err := r.directory.Register(ctx, from.ID, from.Name); err != nil {
		return r.fail(ctx, from.ID, err)
	}
	if err := r.assistant.Start(ctx, from.ID); err != nil {
		r.logger.Warn("session reset failed", zap.Int64("user_id", from.ID), zap.Error(err))
	}
	return r.reply(ctx, from.ID, domain.OutgoingMessage{Text: service.TextWelcome, Keyboard: domain.RemoveKeyboard()})
}

func (r *Router) registerAdmin(ctx context.Context, from Sender, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return r.reply(ctx, from.ID, domain.OutgoingMessage{Text: service.TextAdminUsage, Keyboard: domain.RemoveKeyboard()})
	}
	if _, err := r.directory.Register(ctx, from.ID, from.Name); err != nil {
		return r.fail(ctx, from.ID, err)
	}

	err := r.directory.RegisterAdmin(ctx, from.ID, fields[0])
	switch {
	case err == nil:
		return r.reply(ctx, from.ID, domain.OutgoingMessage{Text: service.TextAdminGranted, Keyboard: domain.RemoveKeyboard()})
	case apperrors.HasCode(err, apperrors.CodeRateLimited):
		return r.reply(ctx, from.ID, domain.OutgoingMessage{Text: service.TextTooManyAttempts})
	case apperrors.HasCode(err, apperrors.CodeUnauthorizedRoleChange):
		return r.reply(ctx, from.ID, domain.OutgoingMessage{Text: service.TextRegistrationFailed})
	default:
		return r.fail(ctx, from.ID, err)
	}
}

// HandleText relays inside a dialog, otherwise answers through the assistant.
func (r *Router) HandleText(ctx context.Context, from Sender, text string) error {
	user, err := r.directory.Register(ctx, from.ID, from.Name)
	if err != nil {
		return r.fail(ctx, from.ID, err)
	}

	routed, err := r.relay.Route(ctx, from.ID, text)
	if err != nil {
		return r.fail(ctx, from.ID, err)
	}
	if routed {
		return nil
	}

	if user.IsAdmin() {
		return r.reply(ctx, from.ID, domain.OutgoingMessage{Text: service.TextNotInDialog})
	}
	if err := r.assistant.HandleText(ctx, from.ID, from.Name, text); err != nil {
		if apperrors.HasCode(err, apperrors.CodeUpstreamUnavailable) {
			// the user has already been told
			return nil
		}
		return r.fail(ctx, from.ID, err)
	}
	return nil
}

// HandleCallback processes an inline button press on origin and returns the
// short notice to show the presser, if any.
func (r *Router) HandleCallback(ctx context.Context, from Sender, data string, origin domain.MessageRef) (string, error) {
	if data == service.CallbackQueuePosition {
		msg, err := r.escalation.PositionMessage(ctx, from.ID)
		if err != nil {
			return service.TextSomethingWrong, err
		}
		if err := r.notifier.Edit(ctx, origin, msg); err != nil {
			// editing to identical content is refused by the transport
			r.logger.Debug("position message not edited", zap.Int64("user_id", from.ID), zap.Error(err))
		}
		return "", nil
	}

	if promptedUserID, ok := service.ParseClaimCallback(data); ok {
		_, err := r.escalation.Claim(ctx, from.ID, promptedUserID)
		switch {
		case err == nil, apperrors.HasCode(err, apperrors.CodeInvalidClaim):
			return "", nil
		case apperrors.HasCode(err, apperrors.CodeForbidden):
			return "Only admins can accept requests.", nil
		default:
			return service.TextSomethingWrong, err
		}
	}

	r.logger.Debug("unknown callback", zap.String("data", data))
	return "", nil
}

func (r *Router) reply(ctx context.Context, to int64, msg domain.OutgoingMessage) error {
	_, err := r.notifier.Send(ctx, to, msg)
	return err
}

// fail tells the user something went wrong and passes err up for logging.
func (r *Router) fail(ctx context.Context, to int64, err error) error {
	if sendErr := r.reply(ctx, to, domain.OutgoingMessage{Text: service.TextSomethingWrong}); sendErr != nil {
		r.logger.Warn("error notice not delivered", zap.Int64("user_id", to), zap.Error(sendErr))
	}
	return err
}

package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spec-kit/handover-bot/internal/domain"
)

// Notifier delivers messages to chat participants.
type Notifier interface {
	Send(ctx context.Context, recipientID int64, msg domain.OutgoingMessage) (domain.MessageRef, error)
	Edit(ctx context.Context, ref domain.MessageRef, msg domain.OutgoingMessage) error
	Delete(ctx context.Context, ref domain.MessageRef) error
}

// Callback payloads carried by inline buttons.
const (
	CallbackQueuePosition = "queue_position"
	claimCallbackPrefix   = "claim:"
)

// ClaimCallbackData encodes the claim button payload for userID.
func ClaimCallbackData(userID int64) string {
	return claimCallbackPrefix + strconv.FormatInt(userID, 10)
}

// ParseClaimCallback extracts the user ID from a claim button payload.
func ParseClaimCallback(data string) (int64, bool) {
	raw, ok := strings.CutPrefix(data, claimCallbackPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// User-facing texts.
const (
	TextWelcome            = "Hi! I am the admissions office assistant. Ask your questions and I will gladly answer them."
	TextAdminUsage         = "Wrong usage, send the command again as /admin <password>."
	TextAdminGranted       = "You are now registered as an admin."
	TextRegistrationFailed = "Registration failed."
	TextTooManyAttempts    = "Too many attempts, try again later."
	TextNotInDialog        = "You are not in a dialog with a user."
	TextNoAdmins           = "Technical difficulties, please try again later."
	TextAgentUnavailable   = "The assistant is unavailable right now, please try again shortly."
	TextSomethingWrong     = "Something went wrong on our side, please try again."
	TextQueueHead          = "You are next in the queue!"
	TextQueuePosition      = "You are waiting in the queue at position %d."
	TextNotWaiting         = "You are not in the queue."
	TextAlreadyQueued      = "You are already in the queue at position %d."
	TextAdminPrompt        = "A user wants to talk to an operator.\nUser: %s\nConversation with the assistant:\n%s"
	TextClaimAccepted      = "Thank you for stepping in. You are now connected with %s."
	TextUserConnected      = "An operator accepted your request. You can talk now."
	TextAdminBusy          = "You are already in a dialog with another user. End it before starting a new one."
	TextNothingPending     = "Nobody is waiting for an operator right now."
	TextSelfClaim          = "You cannot accept your own request."
	TextDialogEnded        = "Thank you for the conversation, the contact is closed."

	ButtonAccept        = "✅ Accept"
	ButtonQueuePosition = "Check my place in the queue"
)

// maxPromptHistory keeps admin prompts under the transport message limit,
// which is counted in characters.
const maxPromptHistory = 3500

// QueueStatusText renders a 1-based queue position (0 = not queued).
func QueueStatusText(position int) string {
	switch {
	case position == 1:
		return TextQueueHead
	case position > 1:
		return fmt.Sprintf(TextQueuePosition, position)
	default:
		return TextNotWaiting
	}
}

func positionKeyboard() *domain.Keyboard {
	return domain.InlineKeyboard(domain.Button{Text: ButtonQueuePosition, Data: CallbackQueuePosition})
}

// renderHistory keeps the most recent maxPromptHistory characters of the
// conversation, cut on a rune boundary.
func renderHistory(turns []domain.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Speaker)
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	out := b.String()
	if utf8.RuneCountInString(out) <= maxPromptHistory {
		return out
	}
	runes := []rune(out)
	return "…" + string(runes[len(runes)-maxPromptHistory:])
}

// displayName shows the name the transport recorded, or the numeric ID.
func displayName(u domain.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return strconv.FormatInt(u.ID, 10)
}

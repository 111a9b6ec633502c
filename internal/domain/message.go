package domain

import "time"

// KeyboardKind selects how buttons are attached to an outgoing message.
type KeyboardKind int

const (
	// KeyboardInline attaches callback buttons under the message.
	KeyboardInline KeyboardKind = iota + 1
	// KeyboardReply replaces the recipient's keyboard with text buttons.
	KeyboardReply
	// KeyboardRemove hides a previously sent reply keyboard.
	KeyboardRemove
)

// Button is a single affordance. Data is the callback payload for inline buttons.
type Button struct {
	Text string
	Data string
}

// Keyboard groups buttons into rows.
type Keyboard struct {
	Kind KeyboardKind
	Rows [][]Button
}

// InlineKeyboard builds a keyboard with one callback button per row.
func InlineKeyboard(buttons ...Button) *Keyboard {
	kb := &Keyboard{Kind: KeyboardInline}
	for _, b := range buttons {
		kb.Rows = append(kb.Rows, []Button{b})
	}
	return kb
}

// ReplyKeyboard builds a one-row reply keyboard from button labels.
func ReplyKeyboard(labels ...string) *Keyboard {
	row := make([]Button, 0, len(labels))
	for _, l := range labels {
		row = append(row, Button{Text: l})
	}
	return &Keyboard{Kind: KeyboardReply, Rows: [][]Button{row}}
}

// RemoveKeyboard hides the reply keyboard.
func RemoveKeyboard() *Keyboard {
	return &Keyboard{Kind: KeyboardRemove}
}

// OutgoingMessage is transport-neutral message content.
type OutgoingMessage struct {
	Text     string
	Keyboard *Keyboard
}

// MessageRef identifies a message already delivered to a chat.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Speaker roles recorded in conversation history.
const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

// Turn is one exchange line between a user and the upstream agent.
type Turn struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Interaction records one agent answer for later review.
type Interaction struct {
	ID       string    `json:"id"`
	UserID   int64     `json:"user_id"`
	Question string    `json:"question"`
	Context  []string  `json:"context"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

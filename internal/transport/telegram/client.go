// Package telegram connects the bot to the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/domain"
	apperrors "github.com/spec-kit/handover-bot/pkg/util/errorutil"
)

const service = "telegram"

// Client sends, edits and deletes chat messages. It implements service.Notifier.
type Client struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

// New connects to the public Bot API and verifies the token.
func New(token string, debug bool, logger *zap.Logger) (*Client, error) {
	return NewWithEndpoint(token, tgbotapi.APIEndpoint, debug, logger)
}

// NewWithEndpoint connects to a Bot API compatible server. endpoint is a
// format string taking the token and the method name.
func NewWithEndpoint(token, endpoint string, debug bool, logger *zap.Logger) (*Client, error) {
	logger = logger.Named("telegram")
	_ = tgbotapi.SetLogger(botLogger{logger.Sugar()})

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable(service, err)
	}
	api.Debug = debug
	logger.Info("bot authorized", zap.String("username", api.Self.UserName))
	return &Client{api: api, logger: logger}, nil
}

// Username is the bot's own handle.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

func (c *Client) Send(_ context.Context, recipientID int64, msg domain.OutgoingMessage) (domain.MessageRef, error) {
	out := tgbotapi.NewMessage(recipientID, msg.Text)
	if markup := replyMarkup(msg.Keyboard); markup != nil {
		out.ReplyMarkup = markup
	}
	sent, err := c.api.Send(out)
	if err != nil {
		return domain.MessageRef{}, apperrors.NewUpstreamUnavailable(service, err)
	}
	return domain.MessageRef{ChatID: recipientID, MessageID: sent.MessageID}, nil
}

// Edit replaces the text of ref. Only inline keyboards survive an edit.
func (c *Client) Edit(_ context.Context, ref domain.MessageRef, msg domain.OutgoingMessage) error {
	var edit tgbotapi.EditMessageTextConfig
	if msg.Keyboard != nil && msg.Keyboard.Kind == domain.KeyboardInline {
		edit = tgbotapi.NewEditMessageTextAndMarkup(ref.ChatID, ref.MessageID, msg.Text, inlineMarkup(msg.Keyboard))
	} else {
		edit = tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, msg.Text)
	}
	if _, err := c.api.Request(edit); err != nil {
		return apperrors.NewUpstreamUnavailable(service, err)
	}
	return nil
}

func (c *Client) Delete(_ context.Context, ref domain.MessageRef) error {
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID)); err != nil {
		return apperrors.NewUpstreamUnavailable(service, err)
	}
	return nil
}

// AnswerCallback acknowledges a button press, optionally with a short notice.
func (c *Client) AnswerCallback(callbackID, text string) error {
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return apperrors.NewUpstreamUnavailable(service, err)
	}
	return nil
}

func replyMarkup(kb *domain.Keyboard) interface{} {
	if kb == nil {
		return nil
	}
	switch kb.Kind {
	case domain.KeyboardInline:
		return inlineMarkup(kb)
	case domain.KeyboardReply:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
		for _, row := range kb.Rows {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(b.Text))
			}
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
		}
		markup := tgbotapi.NewReplyKeyboard(rows...)
		markup.ResizeKeyboard = true
		markup.OneTimeKeyboard = true
		return markup
	case domain.KeyboardRemove:
		return tgbotapi.NewRemoveKeyboard(true)
	default:
		return nil
	}
}

func inlineMarkup(kb *domain.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// botLogger routes the library's own log lines into zap.
type botLogger struct {
	logger *zap.SugaredLogger
}

func (l botLogger) Println(v ...interface{}) {
	l.logger.Debug(fmt.Sprint(v...))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.logger.Debugf(format, v...)
}

package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/bot"
	"github.com/spec-kit/handover-bot/internal/domain"
)

// Handler reacts to inbound updates. *bot.Router satisfies it.
type Handler interface {
	HandleCommand(ctx context.Context, from bot.Sender, command, args string) error
	HandleText(ctx context.Context, from bot.Sender, text string) error
	HandleCallback(ctx context.Context, from bot.Sender, data string, origin domain.MessageRef) (string, error)
}

// Poller long-polls for updates and feeds them to a Handler. Updates from
// the same sender are handled in arrival order; different senders run in
// parallel across a fixed set of workers.
type Poller struct {
	client        *Client
	handler       Handler
	logger        *zap.Logger
	pollTimeout   int
	workers       int
	updateTimeout time.Duration
}

// PollerConfig tunes the update loop.
type PollerConfig struct {
	PollTimeoutSeconds int
	Workers            int
	UpdateTimeout      time.Duration
}

// NewPoller creates a poller bound to client.
func NewPoller(client *Client, handler Handler, cfg PollerConfig, logger *zap.Logger) *Poller {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Poller{
		client:        client,
		handler:       handler,
		logger:        logger.Named("poller"),
		pollTimeout:   cfg.PollTimeoutSeconds,
		workers:       workers,
		updateTimeout: cfg.UpdateTimeout,
	}
}

// Run polls until ctx is cancelled, then waits for in-flight updates.
func (p *Poller) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.pollTimeout
	updates := p.client.api.GetUpdatesChan(cfg)

	go func() {
		<-ctx.Done()
		p.client.api.StopReceivingUpdates()
	}()

	p.logger.Info("polling for updates", zap.Int("workers", p.workers))
	p.Consume(ctx, updates)
	p.logger.Info("update polling stopped")
}

// Consume dispatches updates until the channel closes or ctx is done.
func (p *Poller) Consume(ctx context.Context, updates <-chan tgbotapi.Update) {
	var wg sync.WaitGroup
	shards := make([]chan tgbotapi.Update, p.workers)
	for i := range shards {
		shards[i] = make(chan tgbotapi.Update, 16)
		wg.Add(1)
		go func(ch <-chan tgbotapi.Update) {
			defer wg.Done()
			for update := range ch {
				p.dispatch(ctx, update)
			}
		}(shards[i])
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case update, ok := <-updates:
			if !ok {
				break loop
			}
			shards[uint64(senderID(update))%uint64(p.workers)] <- update
		}
	}

	for _, ch := range shards {
		close(ch)
	}
	wg.Wait()
}

// dispatch handles one update. Accepted updates run to completion even
// during shutdown because Telegram will not deliver them again.
func (p *Poller) dispatch(parent context.Context, update tgbotapi.Update) {
	ctx := context.WithoutCancel(parent)
	if p.updateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.updateTimeout)
		defer cancel()
	}

	switch {
	case update.CallbackQuery != nil:
		p.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		p.handleMessage(ctx, update.Message)
	default:
		p.logger.Debug("update ignored", zap.Int("update_id", update.UpdateID))
	}
}

func (p *Poller) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	from := sender(msg.From)
	var err error
	switch {
	case msg.IsCommand():
		err = p.handler.HandleCommand(ctx, from, msg.Command(), strings.TrimSpace(msg.CommandArguments()))
	case msg.Text != "":
		err = p.handler.HandleText(ctx, from, msg.Text)
	default:
		p.logger.Debug("non-text message ignored", zap.Int64("user_id", from.ID))
		return
	}
	if err != nil {
		p.logger.Error("message handling failed", zap.Int64("user_id", from.ID), zap.Error(err))
	}
}

func (p *Poller) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	from := sender(query.From)
	var origin domain.MessageRef
	if query.Message != nil {
		origin.MessageID = query.Message.MessageID
		if query.Message.Chat != nil {
			origin.ChatID = query.Message.Chat.ID
		}
	}

	notice, err := p.handler.HandleCallback(ctx, from, query.Data, origin)
	if err != nil {
		p.logger.Error("callback handling failed", zap.Int64("user_id", from.ID), zap.String("data", query.Data), zap.Error(err))
	}
	if err := p.client.AnswerCallback(query.ID, notice); err != nil {
		p.logger.Debug("callback not answered", zap.String("callback_id", query.ID), zap.Error(err))
	}
}

// sender prefers the @handle and falls back to the plain full name.
func sender(u *tgbotapi.User) bot.Sender {
	if u == nil {
		return bot.Sender{}
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if u.UserName != "" {
		name = "@" + u.UserName
	}
	return bot.Sender{ID: u.ID, Name: name}
}

func senderID(update tgbotapi.Update) int64 {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	default:
		return 0
	}
}

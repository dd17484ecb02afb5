// Package telegram is the bot-API Transport: numeric jids (Telegram chat
// ids) route here.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mooassistant/moo/internal/transport"
)

// Transport is a Telegram bot-API Sender and Receiver.
type Transport struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
	cancel context.CancelFunc
}

// New connects to the Telegram Bot API using botToken.
func New(log *slog.Logger, botToken string) (*Transport, error) {
	if log == nil {
		log = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return &Transport{
		bot:    bot,
		logger: log.With(slog.String("component", "transport_telegram")),
	}, nil
}

// Kind implements transport.Sender.
func (t *Transport) Kind() transport.Kind { return transport.KindBotAPI }

// Send satisfies cron.Sender/tide.Sender's plain text-only contract.
func (t *Transport) Send(ctx context.Context, jid, text string) error {
	return t.SendText(ctx, jid, text)
}

// SendText implements transport.Sender.
func (t *Transport) SendText(ctx context.Context, jid, text string) error {
	chatID, err := parseChatID(jid)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	_, err = t.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("telegram: send text: %w", err)
	}
	return nil
}

// SendImage implements transport.Sender.
func (t *Transport) SendImage(ctx context.Context, jid, path, caption string) error {
	chatID, err := parseChatID(jid)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	photo.Caption = caption
	if _, err := t.bot.Send(photo); err != nil {
		return fmt.Errorf("telegram: send image: %w", err)
	}
	return nil
}

// SendVoice implements transport.Sender.
func (t *Transport) SendVoice(ctx context.Context, jid, audioPath string) error {
	chatID, err := parseChatID(jid)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	voice := tgbotapi.NewVoice(chatID, tgbotapi.FilePath(audioPath))
	if _, err := t.bot.Send(voice); err != nil {
		return fmt.Errorf("telegram: send voice: %w", err)
	}
	return nil
}

// Start implements transport.Receiver: it long-polls getUpdates and
// invokes handler for every inbound text/caption message.
func (t *Transport) Start(ctx context.Context, handler transport.Handler) error {
	connCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := t.bot.GetUpdatesChan(updateConfig)

	go func() {
		for {
			select {
			case <-connCtx.Done():
				t.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(connCtx, update, handler)
			}
		}
	}()
	return nil
}

// Stop implements transport.Receiver.
func (t *Transport) Stop(ctx context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

func (t *Transport) handleUpdate(ctx context.Context, update tgbotapi.Update, handler transport.Handler) {
	if update.Message == nil {
		return
	}
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		text = strings.TrimSpace(update.Message.Caption)
	}
	if text == "" {
		return
	}
	isGroup := update.Message.Chat != nil && update.Message.Chat.Type != "private"
	msg := transport.InboundMessage{
		JID:        strconv.FormatInt(update.Message.Chat.ID, 10),
		IsGroup:    isGroup,
		Text:       text,
		ReceivedAt: update.Message.Time(),
	}
	t.logger.Info("inbound message", slog.String("jid", msg.JID), slog.Bool("group", isGroup))
	handler(ctx, msg)
}

func parseChatID(jid string) (int64, error) {
	chatID, err := strconv.ParseInt(jid, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("jid %q is not a telegram chat id", jid)
	}
	return chatID, nil
}

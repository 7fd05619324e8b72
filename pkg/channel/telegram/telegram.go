package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"riddlebot/pkg/bus"
	"riddlebot/pkg/channel"
	"riddlebot/pkg/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const (
	channelName           = "telegram"
	messagePreviewLimit   = 240
	typingRefreshInterval = 4 * time.Second
)

// Adapter bridges Telegram updates into dispatch cycles. Each message is
// handled on its own goroutine and replies go back to the originating chat.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in bus metadata and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and forwards messages through the shared channel handler.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			inbound, chatID, ok := a.inboundFromUpdate(update)
			if !ok {
				continue
			}
			a.log.Info("Received message", "chat_id", inbound.ChatID, "sender_id", inbound.SenderID, "session_key", inbound.SessionKey, "content", previewText(inbound.Content))

			wg.Add(1)
			go func() {
				defer wg.Done()

				stopTyping := a.startTypingIndicator(ctx, bot, chatID)
				defer stopTyping()

				sender := &chatSender{api: bot, chatID: chatID, log: a.log, onSend: stopTyping}
				if err := handler(ctx, inbound, sender); err != nil {
					a.log.Error("Failed to process inbound message", "chat_id", inbound.ChatID, "error", err)
				}
			}()
		}
	}
}

// inboundFromUpdate converts a text message update into an inbound message.
// Non-text updates, anonymous senders and senders outside allow_from are
// skipped.
func (a *Adapter) inboundFromUpdate(update telego.Update) (bus.InboundMessage, int64, bool) {
	message := update.Message
	if message == nil {
		return bus.InboundMessage{}, 0, false
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		return bus.InboundMessage{}, 0, false
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return bus.InboundMessage{}, 0, false
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return bus.InboundMessage{}, 0, false
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	return bus.InboundMessage{
		Channel:    channelName,
		SenderID:   senderID,
		SenderName: senderName(message.From),
		ChatID:     chatID,
		SessionKey: sessionKey(chatID),
		Content:    content,
		Params:     channel.ParseParams(content),
		Metadata: map[string]string{
			"update_id":  strconv.Itoa(update.UpdateID),
			"message_id": strconv.Itoa(message.MessageID),
		},
	}, message.Chat.ID, true
}

// messageAPI is the subset of *telego.Bot used to reply.
type messageAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// chatActionAPI is the subset of *telego.Bot used for the typing indicator.
type chatActionAPI interface {
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
}

// chatSender replies into one Telegram chat.
type chatSender struct {
	api    messageAPI
	chatID int64
	log    *slog.Logger
	onSend func()
}

func (s *chatSender) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if s.onSend != nil {
		s.onSend()
	}

	s.log.Info("Sending message", "chat_id", s.chatID, "content", previewText(content))
	if _, err := s.api.SendMessage(ctx, tu.Message(tu.ID(s.chatID), content)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	return nil
}

func senderName(user *telego.User) string {
	if user == nil {
		return ""
	}
	if username := strings.TrimSpace(user.Username); username != "" {
		return username
	}

	return strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// sessionKey maps one Telegram chat to one runtime session namespace.
func sessionKey(chatID string) string {
	return "telegram:" + strings.TrimSpace(chatID)
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText bounds message text for logs without splitting a rune.
func previewText(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= messagePreviewLimit {
		return string(runes)
	}

	return string(runes[:messagePreviewLimit]) + "..."
}

// startTypingIndicator shows "typing..." in the chat until the returned func
// is called or the first reply is sent.
func (a *Adapter) startTypingIndicator(ctx context.Context, bot chatActionAPI, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}

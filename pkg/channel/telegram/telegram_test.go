package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mymmrac/telego"
)

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("allowFromSet len = %d, want 2", len(allowed))
	}
	if _, ok := allowed["123"]; !ok {
		t.Fatal("allowFromSet missing 123")
	}
	if _, ok := allowed["456"]; !ok {
		t.Fatal("allowFromSet missing 456")
	}
}

func TestSenderAllowed(t *testing.T) {
	adapter := &Adapter{allowFrom: map[string]struct{}{"1": {}}}
	if !adapter.senderAllowed("1") {
		t.Fatal("expected sender 1 to be allowed")
	}
	if adapter.senderAllowed("2") {
		t.Fatal("expected sender 2 to be denied")
	}

	adapter.allowFrom = nil
	if !adapter.senderAllowed("any") {
		t.Fatal("expected sender to be allowed when allowlist empty")
	}
}

func TestSessionKey(t *testing.T) {
	if got := sessionKey(" 42 "); got != "telegram:42" {
		t.Fatalf("sessionKey = %q, want %q", got, "telegram:42")
	}
}

func TestPreviewText(t *testing.T) {
	short := " hello "
	if got := previewText(short); got != "hello" {
		t.Fatalf("previewText short = %q, want %q", got, "hello")
	}

	long := strings.Repeat("a", messagePreviewLimit+20)
	got := previewText(long)
	if len(got) != messagePreviewLimit+3 {
		t.Fatalf("previewText long len = %d, want %d", len(got), messagePreviewLimit+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText long = %q, want ellipsis suffix", got)
	}

	multibyte := previewText(strings.Repeat("é", messagePreviewLimit+1))
	if !utf8.ValidString(multibyte) {
		t.Fatalf("previewText split a rune: %q", multibyte)
	}
	if n := utf8.RuneCountInString(multibyte); n != messagePreviewLimit+3 {
		t.Fatalf("previewText multibyte runes = %d, want %d", n, messagePreviewLimit+3)
	}
}

type fakeChatActions struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeChatActions) SendChatAction(context.Context, *telego.SendChatActionParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeChatActions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestTypingIndicatorSendsImmediatelyAndStops(t *testing.T) {
	adapter := &Adapter{log: slog.Default()}
	api := &fakeChatActions{}

	stop := adapter.startTypingIndicator(context.Background(), api, 42)
	if got := api.count(); got != 1 {
		t.Fatalf("chat actions = %d, want 1 immediately", got)
	}
	stop()
	stop()

	time.Sleep(20 * time.Millisecond)
	if got := api.count(); got != 1 {
		t.Fatalf("chat actions after stop = %d, want 1", got)
	}
}

func TestInboundFromUpdate(t *testing.T) {
	adapter := &Adapter{log: slog.Default()}

	inbound, chatID, ok := adapter.inboundFromUpdate(telego.Update{
		UpdateID: 7,
		Message: &telego.Message{
			MessageID: 3,
			Text:      " /prompt@riddlebot quiz me ",
			From:      &telego.User{ID: 42, FirstName: "Ada", LastName: "Lovelace"},
			Chat:      telego.Chat{ID: -100},
		},
	})
	if !ok {
		t.Fatal("expected message to be accepted")
	}
	if chatID != -100 {
		t.Fatalf("chatID = %d, want -100", chatID)
	}
	if inbound.SenderID != "42" || inbound.SenderName != "Ada Lovelace" {
		t.Fatalf("sender = %q/%q", inbound.SenderID, inbound.SenderName)
	}
	if inbound.SessionKey != "telegram:-100" {
		t.Fatalf("session key = %q", inbound.SessionKey)
	}
	if got, _ := inbound.Param("prompt"); got != "quiz me" {
		t.Fatalf("prompt param = %q, want %q", got, "quiz me")
	}
	if inbound.Metadata["update_id"] != "7" || inbound.Metadata["message_id"] != "3" {
		t.Fatalf("metadata = %#v", inbound.Metadata)
	}
}

func TestInboundFromUpdateSkipsUnusableUpdates(t *testing.T) {
	adapter := &Adapter{log: slog.Default(), allowFrom: map[string]struct{}{"1": {}}}

	updates := map[string]telego.Update{
		"no message":  {},
		"blank text":  {Message: &telego.Message{Text: "  ", From: &telego.User{ID: 1}}},
		"no sender":   {Message: &telego.Message{Text: "hi"}},
		"not allowed": {Message: &telego.Message{Text: "hi", From: &telego.User{ID: 2}}},
	}

	for name, update := range updates {
		if _, _, ok := adapter.inboundFromUpdate(update); ok {
			t.Fatalf("%s: expected update to be skipped", name)
		}
	}
}

type fakeMessageAPI struct {
	params []*telego.SendMessageParams
	err    error
}

func (f *fakeMessageAPI) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return &telego.Message{}, nil
}

func TestChatSenderSend(t *testing.T) {
	api := &fakeMessageAPI{}
	typingStopped := 0
	sender := &chatSender{api: api, chatID: 99, log: slog.Default(), onSend: func() { typingStopped++ }}

	if err := sender.Send(context.Background(), "  "); err != nil {
		t.Fatalf("Send blank error: %v", err)
	}
	if err := sender.Send(context.Background(), " hello "); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if len(api.params) != 1 {
		t.Fatalf("sent %d messages, want 1", len(api.params))
	}
	if api.params[0].Text != "hello" || api.params[0].ChatID.ID != 99 {
		t.Fatalf("params = %+v", api.params[0])
	}
	if typingStopped != 1 {
		t.Fatalf("typing stopped %d times, want 1", typingStopped)
	}

	api.err = errors.New("forbidden")
	if err := sender.Send(context.Background(), "again"); err == nil {
		t.Fatal("expected send error")
	}
}

func TestSenderName(t *testing.T) {
	if got := senderName(&telego.User{Username: "ada", FirstName: "Ada"}); got != "ada" {
		t.Fatalf("senderName = %q, want ada", got)
	}
	if got := senderName(&telego.User{FirstName: "Ada"}); got != "Ada" {
		t.Fatalf("senderName = %q, want Ada", got)
	}
	if got := senderName(nil); got != "" {
		t.Fatalf("senderName(nil) = %q, want empty", got)
	}
}

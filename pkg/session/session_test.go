package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riddlebot/pkg/bus"
	"riddlebot/pkg/channel"
	"riddlebot/pkg/config"
	"riddlebot/pkg/dispatch"
	"riddlebot/pkg/skill"
	"riddlebot/pkg/users"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	inbounds []bus.InboundMessage
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, msg bus.InboundMessage, sender channel.Sender) dispatch.Outcome {
	f.mu.Lock()
	f.inbounds = append(f.inbounds, msg)
	f.mu.Unlock()

	_ = sender.Send(ctx, "first: "+msg.Content)
	_ = sender.Send(ctx, "second")
	return dispatch.Outcome{RequestID: "req-1", Branch: dispatch.BranchFallback}
}

type staticGenerator struct {
	err error
}

func (g staticGenerator) Generate(context.Context, users.Info, string) ([]string, error) {
	if g.err != nil {
		return nil, g.err
	}
	return []string{"generated"}, nil
}

type staticDirectory struct{}

func (staticDirectory) Lookup(_ context.Context, address string) (users.Info, bool, error) {
	return users.Info{Address: address}, true, nil
}

func TestPromptRoundTripThroughBus(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	local, err := Start(context.Background(), dispatcher, bus.NewMessageBus(), "local-user", nil)
	require.NoError(t, err)
	defer local.Close()

	reply, err := local.Prompt(context.Background(), "/prompt tell me more")
	require.NoError(t, err)
	require.Equal(t, []string{"first: /prompt tell me more", "second"}, reply.Segments)
	require.Equal(t, "first: /prompt tell me more\nsecond", reply.Text())
	require.Equal(t, dispatch.BranchFallback, reply.Branch)
	require.Equal(t, "req-1", reply.RequestID)
	require.False(t, reply.Failed)

	require.Len(t, dispatcher.inbounds, 1)
	inbound := dispatcher.inbounds[0]
	require.Equal(t, "local-user", inbound.SenderID)
	require.Equal(t, "cli", inbound.Channel)
	prompt, ok := inbound.Param(channel.ParamPrompt)
	require.True(t, ok)
	require.Equal(t, "tell me more", prompt)
}

func TestPromptWithRealDispatcher(t *testing.T) {
	registry, err := skill.NewRegistry(skill.Group{Name: "tools", Skills: []skill.Skill{{
		Name:     "ping",
		Triggers: []string{"ping"},
		Handler: func(context.Context, *skill.Context) (skill.Result, error) {
			return skill.Handled("pong"), nil
		},
	}}})
	require.NoError(t, err)

	tests := []struct {
		name      string
		generator staticGenerator
		prompt    string
		want      []string
		branch    dispatch.Branch
		failed    bool
	}{
		{name: "skill", prompt: "ping", want: []string{"pong"}, branch: dispatch.BranchSkill},
		{name: "fallback", prompt: "hello", want: []string{"generated"}, branch: dispatch.BranchFallback},
		{name: "apology", generator: staticGenerator{err: errors.New("down")}, prompt: "hello",
			want: []string{config.DefaultApologyMessage}, branch: dispatch.BranchFallback, failed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher, err := dispatch.New(dispatch.Options{
				Registry:  registry,
				Users:     staticDirectory{},
				Generator: tt.generator,
			})
			require.NoError(t, err)

			local, err := Start(context.Background(), dispatcher, bus.NewMessageBus(), "local-user", nil)
			require.NoError(t, err)
			defer local.Close()

			reply, err := local.Prompt(context.Background(), tt.prompt)
			require.NoError(t, err)
			require.Equal(t, tt.want, reply.Segments)
			require.Equal(t, tt.branch, reply.Branch)
			require.Equal(t, tt.failed, reply.Failed)
		})
	}
}

type gatedDispatcher struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedDispatcher) Dispatch(ctx context.Context, msg bus.InboundMessage, sender channel.Sender) dispatch.Outcome {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}

	_ = sender.Send(ctx, "reply to "+msg.Content)
	return dispatch.Outcome{Branch: dispatch.BranchSkill}
}

func TestPromptSkipsReplyOfAbandonedPrompt(t *testing.T) {
	gate := &gatedDispatcher{entered: make(chan struct{}), release: make(chan struct{})}
	local, err := Start(context.Background(), gate, bus.NewMessageBus(), "local-user", nil)
	require.NoError(t, err)
	defer local.Close()

	abandoned, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := local.Prompt(abandoned, "first")
		firstErr <- err
	}()

	<-gate.entered
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(gate.release)

	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()

	reply, err := local.Prompt(ctx, "second")
	require.NoError(t, err)
	require.Equal(t, []string{"reply to second"}, reply.Segments)
}

func TestPromptAfterCloseFails(t *testing.T) {
	local, err := Start(context.Background(), &fakeDispatcher{}, bus.NewMessageBus(), "local-user", nil)
	require.NoError(t, err)
	local.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = local.Prompt(ctx, "hello")
	require.Error(t, err)
}

func TestStartValidatesArguments(t *testing.T) {
	if _, err := Start(context.Background(), nil, bus.NewMessageBus(), "a", nil); err == nil {
		t.Fatal("expected error without dispatcher")
	}
	if _, err := Start(context.Background(), &fakeDispatcher{}, nil, "a", nil); err == nil {
		t.Fatal("expected error without bus")
	}
	if _, err := Start(context.Background(), &fakeDispatcher{}, bus.NewMessageBus(), " ", nil); err == nil {
		t.Fatal("expected error without address")
	}
}

// Package fallback produces a generated reply when no skill claims a message.
package fallback

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"riddlebot/pkg/channel"
	providertypes "riddlebot/pkg/provider/types"
	"riddlebot/pkg/users"
)

const (
	DefaultPersona          = "Riddler"
	DefaultMaxSegmentLength = 4000
	defaultMaxAttempts      = 3
	defaultMaxHints         = 3

	personaTemplate = "game.md"
)

//go:embed templates/*.md
var templatesFS embed.FS

// ErrEmptyReply is returned when the backend answers without any text.
var ErrEmptyReply = errors.New("generation returned an empty reply")

// Backend is the generation collaborator. provider.Client satisfies it.
type Backend interface {
	Generate(ctx context.Context, address string, prompt string, systemPrompt string) (providertypes.PromptResult, error)
}

// StateFunc describes the current game state of a sender for the persona.
// An empty string means there is nothing to report.
type StateFunc func(address string) string

// Options tunes a Generator. Zero values fall back to defaults.
type Options struct {
	Persona          string
	MaxSegmentLength int
	MaxAttempts      int
	MaxHints         int
	State            StateFunc
}

// Generator composes the persona prompt and asks the backend for a reply.
type Generator struct {
	backend  Backend
	template *template.Template
	opts     Options
}

type promptData struct {
	Persona     string
	User        users.Info
	State       string
	MaxAttempts int
	MaxHints    int
}

func New(backend Backend, opts Options) (*Generator, error) {
	if backend == nil {
		return nil, errors.New("fallback backend is required")
	}

	tmpl, err := template.New(personaTemplate).ParseFS(templatesFS, "templates/"+personaTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse persona template: %w", err)
	}

	if strings.TrimSpace(opts.Persona) == "" {
		opts.Persona = DefaultPersona
	}
	if opts.MaxSegmentLength <= 0 {
		opts.MaxSegmentLength = DefaultMaxSegmentLength
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.MaxHints <= 0 {
		opts.MaxHints = defaultMaxHints
	}

	return &Generator{backend: backend, template: tmpl, opts: opts}, nil
}

// Compose renders the persona system prompt for one user.
func (g *Generator) Compose(info users.Info) (string, error) {
	data := promptData{
		Persona:     strings.TrimSpace(g.opts.Persona),
		User:        info,
		MaxAttempts: g.opts.MaxAttempts,
		MaxHints:    g.opts.MaxHints,
	}
	if g.opts.State != nil {
		data.State = strings.TrimSpace(g.opts.State(info.Address))
	}

	var buf bytes.Buffer
	if err := g.template.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render persona template: %w", err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// Generate asks the backend once and returns the reply split into
// transport-sized segments. Every failure is a *GenerationError.
func (g *Generator) Generate(ctx context.Context, info users.Info, prompt string) ([]string, error) {
	log := slog.Default().With("component", "fallback.generator", "sender", info.Address)

	systemPrompt, err := g.Compose(info)
	if err != nil {
		return nil, &GenerationError{Address: info.Address, Err: err}
	}

	startedAt := time.Now()
	result, err := g.backend.Generate(ctx, info.Address, prompt, systemPrompt)
	if err != nil {
		return nil, &GenerationError{Address: info.Address, Err: err}
	}

	segments := SplitReply(result.Text, g.opts.MaxSegmentLength)
	if len(segments) == 0 {
		return nil, &GenerationError{Address: info.Address, Err: ErrEmptyReply}
	}

	attrs := []any{
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"provider", result.Metadata.Provider,
		"model", result.Metadata.Model,
		"segments", len(segments),
	}
	if usage := result.Metadata.Usage; usage != nil {
		attrs = append(attrs, "input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	}
	log.Debug("Fallback reply generated", attrs...)

	return segments, nil
}

// SplitReply breaks reply into one segment per non-blank line. Lines longer
// than limit runes are cut into consecutive chunks; limit <= 0 disables
// chunking.
func SplitReply(reply string, limit int) []string {
	lines := strings.Split(strings.ReplaceAll(reply, "\r\n", "\n"), "\n")
	segments := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		segments = append(segments, chunkRunes(line, limit)...)
	}

	return segments
}

func chunkRunes(line string, limit int) []string {
	runes := []rune(line)
	if limit <= 0 || len(runes) <= limit {
		return []string{line}
	}

	chunks := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}

// Deliver sends segments in order and stops at the first failure.
func Deliver(ctx context.Context, segments []string, sender channel.Sender) error {
	for i, segment := range segments {
		if err := ctx.Err(); err != nil {
			return &DeliveryError{Index: i, Total: len(segments), Err: err}
		}
		if err := sender.Send(ctx, segment); err != nil {
			return &DeliveryError{Index: i, Total: len(segments), Err: err}
		}
	}

	return nil
}

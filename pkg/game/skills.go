package game

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"riddlebot/pkg/skill"
	"riddlebot/pkg/users"
)

var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// WalletSaver persists a winner's wallet address. users.Store satisfies it.
type WalletSaver interface {
	Save(ctx context.Context, info users.Info) error
}

// Group returns the game skills. wallets may be nil, in which case wallet
// addresses are acknowledged but not stored.
func Group(m *Manager, wallets WalletSaver) skill.Group {
	return skill.Group{
		Name: "game",
		Skills: []skill.Skill{
			{
				Name:        "start",
				Description: "Start a new riddle game.",
				Triggers:    []string{"/start", "new game"},
				Handler:     m.handleStart,
			},
			{
				Name:        "hint",
				Description: "Get the next hint for the current riddle.",
				Triggers:    []string{"/hint"},
				Handler:     m.handleHint,
			},
			{
				Name:        "guess",
				Description: "Guess the hidden coin, for example /guess bitcoin.",
				Triggers:    []string{"/guess"},
				Handler:     m.handleGuess,
			},
			{
				Name:        "status",
				Description: "Show your attempts, hints and cooldown.",
				Triggers:    []string{"/status"},
				Handler:     m.handleStatus,
			},
			{
				Name:        "wallet",
				Description: "Send the wallet address that receives your prize.",
				Triggers:    []string{"/wallet"},
				Handler:     walletHandler(m, wallets),
			},
		},
	}
}

// HelpGroup returns a help skill that lists whatever describe renders.
func HelpGroup(describe func() string) skill.Group {
	return skill.Group{
		Name: "help",
		Skills: []skill.Skill{{
			Name:        "help",
			Description: "List the available commands.",
			Triggers:    []string{"/help"},
			Handler: func(context.Context, *skill.Context) (skill.Result, error) {
				return skill.Handled("Available commands:\n" + describe()), nil
			},
		}},
	}
}

func (m *Manager) handleStart(_ context.Context, c *skill.Context) (skill.Result, error) {
	_, err := m.Start(c.User.Address)
	var cooldown *CooldownError
	if errors.As(err, &cooldown) {
		return skill.Handled(fmt.Sprintf("You can play again in %s.", formatDuration(cooldown.Remaining))), nil
	}
	if err != nil {
		return skill.Result{}, err
	}

	return skill.Handled(fmt.Sprintf(
		"A new riddle is ready, %s. You have %d attempts and %d hints. Send /hint for your first clue.",
		c.User.DisplayName(), m.settings.MaxAttempts, m.settings.MaxHints,
	)), nil
}

func (m *Manager) handleHint(_ context.Context, c *skill.Context) (skill.Result, error) {
	s, err := m.Hint(c.User.Address)
	switch {
	case errors.Is(err, ErrNoGame):
		return skill.Handled("You have no game running. Send /start to begin."), nil
	case errors.Is(err, ErrNoHintsLeft):
		return skill.Handled("No hints left. Last hint: " + s.LastHint), nil
	case err != nil:
		return skill.Result{}, err
	}

	return skill.Handled(fmt.Sprintf("Hint %d: %s", s.HintCount, s.LastHint)), nil
}

func (m *Manager) handleGuess(_ context.Context, c *skill.Context) (skill.Result, error) {
	guess := argument(c.Prompt, "/guess")
	if guess == "" {
		return skill.Handled("Tell me your guess, for example /guess bitcoin."), nil
	}

	result, err := m.Guess(c.User.Address, guess)
	if errors.Is(err, ErrNoGame) {
		return skill.Handled("You have no game running. Send /start to begin."), nil
	}
	if err != nil {
		return skill.Result{}, err
	}

	switch {
	case result.Correct:
		return skill.Handled(fmt.Sprintf("Correct, it was %s! Send /wallet <address> to claim your prize.", result.Coin)), nil
	case result.AttemptsLeft > 0:
		return skill.Handled(fmt.Sprintf("Not quite. %d attempts left.", result.AttemptsLeft)), nil
	default:
		return skill.Handled(fmt.Sprintf("Out of attempts. The coin was %s. Try again in %s.",
			result.Coin, formatDuration(result.Cooldown))), nil
	}
}

func (m *Manager) handleStatus(_ context.Context, c *skill.Context) (skill.Result, error) {
	s := m.Snapshot(c.User.Address)

	switch s.State {
	case StateInProgress:
		return skill.Handled(fmt.Sprintf("Game in progress: %d attempts left, %d of %d hints used.",
			s.AttemptsLeft, s.HintCount, m.settings.MaxHints)), nil
	case StateCooldown:
		return skill.Handled(fmt.Sprintf("Cooling down. You can play again in %s.",
			formatDuration(s.CooldownUntil.Sub(m.now())))), nil
	case StateWaitingForWallet:
		return skill.Handled("You won! Send /wallet <address> to claim your prize."), nil
	default:
		return skill.Handled("No game running. Send /start to begin."), nil
	}
}

func walletHandler(m *Manager, wallets WalletSaver) skill.HandlerFunc {
	return func(ctx context.Context, c *skill.Context) (skill.Result, error) {
		if s := m.Snapshot(c.User.Address); s.State != StateWaitingForWallet {
			return skill.Handled("Wallet addresses are collected after you win a game."), nil
		}

		wallet := argument(c.Prompt, "/wallet")
		if !walletPattern.MatchString(wallet) {
			return skill.Handled("That does not look like a wallet address. Send /wallet 0x followed by 40 hex characters."), nil
		}

		if wallets != nil {
			info := c.User
			info.Wallet = wallet
			if err := wallets.Save(ctx, info); err != nil {
				return skill.Result{}, fmt.Errorf("save wallet: %w", err)
			}
		}

		if _, err := m.ClaimPrize(c.User.Address); err != nil {
			return skill.Result{}, err
		}

		return skill.Handled("Wallet saved. Your prize is on its way!"), nil
	}
}

// argument returns the text following command in prompt, or "".
func argument(prompt string, command string) string {
	fields := strings.Fields(prompt)
	for i, field := range fields {
		if strings.HasPrefix(strings.ToLower(field), command) {
			return strings.Join(fields[i+1:], " ")
		}
	}

	return ""
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}

	return d.Round(time.Second).String()
}

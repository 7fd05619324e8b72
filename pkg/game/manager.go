// Package game runs the coin riddle game: one session per sender address and
// the skills that drive it.
package game

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// State is the phase of one player's game.
type State string

const (
	StateNotStarted       State = "not_started"
	StateInProgress       State = "in_progress"
	StateCooldown         State = "cooldown"
	StateWaitingForWallet State = "waiting_for_wallet"
)

const (
	DefaultMaxAttempts = 3
	DefaultMaxHints    = 3
	DefaultCooldown    = 10 * time.Minute
	DefaultMaxSessions = 10000
)

var (
	ErrNoGame             = errors.New("no game in progress")
	ErrNoHintsLeft        = errors.New("no hints left")
	ErrNotWaitingOnWallet = errors.New("not waiting for a wallet address")
)

// CooldownError is returned by Start while a lost game is cooling down.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooling down for %s", e.Remaining.Round(time.Second))
}

// Session is a snapshot of one player's game.
type Session struct {
	Address       string
	State         State
	CooldownUntil time.Time
	HintCount     int
	AttemptsLeft  int
	Coin          string
	LastHint      string
}

// GuessResult is the outcome of one guess.
type GuessResult struct {
	Correct      bool
	AttemptsLeft int
	// Coin is revealed once the game is over.
	Coin     string
	Cooldown time.Duration
}

// Settings tunes game rules. Zero values fall back to defaults.
type Settings struct {
	MaxAttempts int
	MaxHints    int
	Cooldown    time.Duration
	MaxSessions int
}

func (s Settings) withDefaults() Settings {
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = DefaultMaxAttempts
	}
	if s.MaxHints <= 0 {
		s.MaxHints = DefaultMaxHints
	}
	if s.Cooldown <= 0 {
		s.Cooldown = DefaultCooldown
	}
	if s.MaxSessions <= 0 {
		s.MaxSessions = DefaultMaxSessions
	}
	return s
}

type session struct {
	Session
	riddle Riddle
}

// Manager owns every player's session. Sessions live in a bounded LRU; a
// forgotten player simply starts over.
type Manager struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, *session]
	catalog  *Catalog
	settings Settings
	log      *slog.Logger

	now  func() time.Time
	pick func(n int) int
}

func NewManager(catalog *Catalog, settings Settings) (*Manager, error) {
	if catalog == nil || len(catalog.Riddles) == 0 {
		return nil, errors.New("riddle catalog is required")
	}

	settings = settings.withDefaults()
	sessions, err := lru.New[string, *session](settings.MaxSessions)
	if err != nil {
		return nil, fmt.Errorf("create game session store: %w", err)
	}

	return &Manager{
		sessions: sessions,
		catalog:  catalog,
		settings: settings,
		log:      slog.Default().With("component", "game.manager"),
		now:      time.Now,
		pick:     rand.IntN,
	}, nil
}

// Settings returns the effective rules.
func (m *Manager) Settings() Settings {
	return m.settings
}

// getLocked returns the player's session, creating a fresh one when missing.
// An elapsed cooldown resets the session to not_started.
func (m *Manager) getLocked(address string) *session {
	address = strings.TrimSpace(address)
	s, ok := m.sessions.Get(address)
	if !ok {
		s = &session{Session: Session{
			Address:      address,
			State:        StateNotStarted,
			AttemptsLeft: m.settings.MaxAttempts,
		}}
		m.sessions.Add(address, s)
	}

	if s.State == StateCooldown && !m.now().Before(s.CooldownUntil) {
		s.State = StateNotStarted
		s.CooldownUntil = time.Time{}
	}

	return s
}

// Snapshot returns the player's current session.
func (m *Manager) Snapshot(address string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.getLocked(address).Session
}

// Start begins a new game with a freshly drawn riddle. It fails with a
// *CooldownError while the previous game is cooling down.
func (m *Manager) Start(address string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getLocked(address)
	if s.State == StateCooldown {
		return s.Session, &CooldownError{Remaining: s.CooldownUntil.Sub(m.now())}
	}

	s.riddle = m.catalog.Riddles[m.pick(len(m.catalog.Riddles))]
	s.State = StateInProgress
	s.HintCount = 0
	s.AttemptsLeft = m.settings.MaxAttempts
	s.CooldownUntil = time.Time{}
	s.Coin = s.riddle.Coin
	s.LastHint = ""
	m.log.Debug("Game started", "sender", s.Address)

	return s.Session, nil
}

// Hint reveals the next hint of the current riddle.
func (m *Manager) Hint(address string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getLocked(address)
	if s.State != StateInProgress {
		return s.Session, ErrNoGame
	}

	limit := min(m.settings.MaxHints, len(s.riddle.Hints))
	if s.HintCount >= limit {
		return s.Session, ErrNoHintsLeft
	}

	s.LastHint = s.riddle.Hints[s.HintCount]
	s.HintCount++

	return s.Session, nil
}

// Guess spends one attempt. A correct guess moves the player to
// waiting_for_wallet; running out of attempts starts the cooldown.
func (m *Manager) Guess(address string, guess string) (GuessResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getLocked(address)
	if s.State != StateInProgress {
		return GuessResult{}, ErrNoGame
	}

	if s.riddle.Matches(guess) {
		s.State = StateWaitingForWallet
		m.log.Info("Game won", "sender", s.Address, "coin", s.Coin)
		return GuessResult{Correct: true, AttemptsLeft: s.AttemptsLeft, Coin: s.Coin}, nil
	}

	s.AttemptsLeft--
	if s.AttemptsLeft > 0 {
		return GuessResult{AttemptsLeft: s.AttemptsLeft}, nil
	}

	s.State = StateCooldown
	s.CooldownUntil = m.now().Add(m.settings.Cooldown)
	m.log.Debug("Game lost", "sender", s.Address, "cooldown", m.settings.Cooldown)

	return GuessResult{Coin: s.Coin, Cooldown: m.settings.Cooldown}, nil
}

// ClaimPrize finishes a won game once the winner has sent a wallet address.
func (m *Manager) ClaimPrize(address string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getLocked(address)
	if s.State != StateWaitingForWallet {
		return s.Session, ErrNotWaitingOnWallet
	}

	s.State = StateNotStarted
	return s.Session, nil
}

// Describe summarises the player's game for the persona prompt. The hidden
// coin is never included.
func (m *Manager) Describe(address string) string {
	s := m.Snapshot(address)

	switch s.State {
	case StateInProgress:
		line := fmt.Sprintf("A game is in progress. Attempts left: %d. Hints used: %d of %d.",
			s.AttemptsLeft, s.HintCount, m.settings.MaxHints)
		if s.LastHint != "" {
			line += " Last hint: " + s.LastHint
		}
		return line
	case StateCooldown:
		remaining := s.CooldownUntil.Sub(m.now()).Round(time.Second)
		return fmt.Sprintf("The player lost the last game and can start again in %s.", remaining)
	case StateWaitingForWallet:
		return "The player won and has not sent a wallet address yet."
	default:
		return ""
	}
}

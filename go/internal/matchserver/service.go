package matchserver

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// Notifier delivers a player's personalized event. Implementations must not block.
type Notifier interface {
	Notify(sessionID, playerID string, event *wire.Event)
}

// Service applies the rules to stored matches and fans every change out to the
// notifiers, one personalized document per participant.
type Service struct {
	store *Store
	words WordSource
	rules Rules
	clock clockwork.Clock

	rngMu sync.Mutex
	rng   *rand.Rand

	notifiersMu sync.RWMutex
	notifiers   []Notifier
}

func NewService(store *Store, words WordSource, rules Rules, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store: store,
		words: words,
		rules: rules,
		clock: clock,
		rng:   rand.New(rand.NewSource(clock.Now().UnixNano())),
	}
}

// AddNotifier registers a push fan-out target
func (s *Service) AddNotifier(n Notifier) {
	s.notifiersMu.Lock()
	defer s.notifiersMu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

func (s *Service) matchRNG() *rand.Rand {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return rand.New(rand.NewSource(s.rng.Int63()))
}

// NewSession creates a Waiting session owned by player
func (s *Service) NewSession(player, difficulty string) (*wire.SessionSummary, error) {
	d, err := ParseDifficulty(difficulty)
	if err != nil {
		return nil, err
	}
	w, err := s.words.Pick(d)
	if err != nil {
		return nil, fmt.Errorf("pick word: %w", err)
	}

	m := newMatch(uuid.NewString(), d, w, player, s.rules, s.clock.Now(), s.matchRNG())
	s.store.Put(m)

	log.Info().
		Str("session_id", m.ID).
		Str("player_id", player).
		Str("difficulty", string(d)).
		Msg("session created")

	m.mu.Lock()
	defer m.mu.Unlock()
	sum := m.Summary()
	return &sum, nil
}

// Join makes player the second participant and starts the game
func (s *Service) Join(player, sessionID string) (*wire.SessionSummary, error) {
	m, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := s.clock.Now()
	if err := m.Join(player, now); err != nil {
		return nil, err
	}
	s.publish(m, wire.EventTypePlayerJoined, now)

	log.Info().
		Str("session_id", m.ID).
		Str("player_id", player).
		Msg("player joined session")
	sum := m.Summary()
	return &sum, nil
}

// Pending lists Waiting sessions player could join
func (s *Service) Pending(player string) []wire.SessionSummary {
	return s.store.List(func(m *Match) bool {
		return m.Status == wire.StatusWaiting && !m.isParticipant(player)
	})
}

// Paused lists player's paused sessions
func (s *Service) Paused(player string) []wire.SessionSummary {
	return s.store.List(func(m *Match) bool {
		return m.Status == wire.StatusPaused && m.isParticipant(player)
	})
}

// State returns the player's view of a session
func (s *Service) State(player, sessionID string) (*wire.StateDoc, error) {
	m, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireParticipant(player); err != nil {
		return nil, err
	}
	doc := m.DocFor(player, s.clock.Now())
	return &doc, nil
}

// SyncEvent wraps the player's current view as a stateSync event
func (s *Service) SyncEvent(player, sessionID string) (*wire.Event, error) {
	m, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireParticipant(player); err != nil {
		return nil, err
	}
	return eventFor(m, player, wire.EventTypeStateSync, s.clock.Now())
}

func (s *Service) GuessLetter(player, sessionID, letter string, position int) (*wire.ActionResponse, error) {
	return s.act(player, sessionID, wire.EventTypeLetterGuessed, func(m *Match, now time.Time, resp *wire.ActionResponse) error {
		correct, err := m.GuessLetter(player, letter, position, now)
		if err != nil {
			return err
		}
		resp.Correct = &correct
		return nil
	})
}

func (s *Service) GuessWord(player, sessionID, word string) (*wire.ActionResponse, error) {
	return s.act(player, sessionID, wire.EventTypeFinished, func(m *Match, now time.Time, resp *wire.ActionResponse) error {
		correct, err := m.GuessWord(player, word, now)
		if err != nil {
			return err
		}
		resp.Correct = &correct
		resp.Detail = "the word was " + m.word
		return nil
	})
}

func (s *Service) Hint(player, sessionID string) (*wire.ActionResponse, error) {
	return s.act(player, sessionID, wire.EventTypeHintTaken, func(m *Match, now time.Time, resp *wire.ActionResponse) error {
		h, err := m.Hint(player)
		if err != nil {
			return err
		}
		resp.Hint = h
		return nil
	})
}

func (s *Service) RevealLetter(player, sessionID string) (*wire.ActionResponse, error) {
	return s.act(player, sessionID, wire.EventTypeLetterRevealed, func(m *Match, now time.Time, resp *wire.ActionResponse) error {
		letter, pos, err := m.RevealLetter(player)
		if err != nil {
			return err
		}
		resp.Letter = letter
		resp.Position = &pos
		return nil
	})
}

func (s *Service) Pause(player, sessionID string) (*wire.ActionResponse, error) {
	return s.act(player, sessionID, wire.EventTypePaused, func(m *Match, now time.Time, _ *wire.ActionResponse) error {
		return m.Pause(player, now)
	})
}

func (s *Service) Resume(player, sessionID string) (*wire.ActionResponse, error) {
	return s.act(player, sessionID, wire.EventTypeResumed, func(m *Match, now time.Time, _ *wire.ActionResponse) error {
		return m.Resume(player, now)
	})
}

func (s *Service) TimeoutCheck(player, sessionID string) (*wire.ActionResponse, error) {
	return s.act(player, sessionID, wire.EventTypeStateSync, func(m *Match, now time.Time, resp *wire.ActionResponse) error {
		timedOut, err := m.TimeoutCheck(player, now)
		if err != nil {
			return err
		}
		resp.TimedOut = &timedOut
		return nil
	})
}

// act runs one rule under the match lock, publishes the result and returns the
// caller's view. A session that ends is always announced as finished.
func (s *Service) act(
	player, sessionID string,
	eventType wire.EventType,
	apply func(m *Match, now time.Time, resp *wire.ActionResponse) error,
) (*wire.ActionResponse, error) {
	m, err := s.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := s.clock.Now()
	before := m.Seq
	resp := &wire.ActionResponse{}
	if err := apply(m, now, resp); err != nil {
		log.Debug().
			Err(err).
			Str("session_id", sessionID).
			Str("player_id", player).
			Str("event_type", string(eventType)).
			Msg("action refused")
		// a refusal can still end the game on time
		if m.Seq != before {
			s.announce(m, eventType, now)
		}
		return nil, err
	}

	s.announce(m, eventType, now)
	resp.State = m.DocFor(player, now)
	return resp, nil
}

// announce publishes the match's latest change. Must be called with m.mu held.
func (s *Service) announce(m *Match, eventType wire.EventType, now time.Time) {
	if m.Status == wire.StatusFinished {
		eventType = wire.EventTypeFinished
		log.Info().
			Str("session_id", m.ID).
			Str("winner", m.Winner).
			Interface("scores", m.scores).
			Msg("session finished")
	}
	s.publish(m, eventType, now)
}

// publish sends each participant their own view. Must be called with m.mu held
// so events leave in sequence order.
func (s *Service) publish(m *Match, eventType wire.EventType, now time.Time) {
	s.notifiersMu.RLock()
	notifiers := s.notifiers
	s.notifiersMu.RUnlock()
	if len(notifiers) == 0 {
		return
	}

	for _, p := range m.Players {
		ev, err := eventFor(m, p, eventType, now)
		if err != nil {
			log.Error().Err(err).Str("session_id", m.ID).Msg("failed to build event")
			continue
		}
		for _, n := range notifiers {
			n.Notify(m.ID, p, ev)
		}
	}
}

func eventFor(m *Match, player string, eventType wire.EventType, now time.Time) (*wire.Event, error) {
	data, err := json.Marshal(m.DocFor(player, now))
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return &wire.Event{
		ID:        uuid.NewString(),
		SessionID: m.ID,
		Type:      eventType,
		Seq:       m.Seq,
		Timestamp: now,
		Data:      data,
	}, nil
}

package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordduel/go/internal/session"
	"github.com/mcdev12/wordduel/go/internal/wire"
)

var (
	ErrIllegalMove       = errors.New("illegal move")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientCoins = errors.New("insufficient coins")
)

// Actions is the subset of the match server API the protocol drives
type Actions interface {
	GuessLetter(ctx context.Context, sessionID, letter string, position int) (*wire.ActionResponse, error)
	GuessWord(ctx context.Context, sessionID, word string) (*wire.ActionResponse, error)
	Hint(ctx context.Context, sessionID string) (*wire.ActionResponse, error)
	RevealLetter(ctx context.Context, sessionID string) (*wire.ActionResponse, error)
	Pause(ctx context.Context, sessionID string) (*wire.ActionResponse, error)
	Resume(ctx context.Context, sessionID string) (*wire.ActionResponse, error)
	TimeoutCheck(ctx context.Context, sessionID string) (*wire.ActionResponse, error)
}

// Result is the action-specific part of a confirmed response
type Result struct {
	Correct  *bool
	Hint     string
	Letter   string
	Position *int
	TimedOut *bool
	Detail   string
}

// Protocol validates player intents against the current state, sends them to
// the authority one at a time and folds every response back through the engine.
type Protocol struct {
	engine *session.Engine
	api    Actions

	// inflight holds a token while a request is outstanding
	inflight chan struct{}
}

func New(engine *session.Engine, api Actions) *Protocol {
	return &Protocol{
		engine:   engine,
		api:      api,
		inflight: make(chan struct{}, 1),
	}
}

func (p *Protocol) RequestGuessLetter(ctx context.Context, letter string, position int) (*Result, error) {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	return p.do(ctx, "guess_letter",
		func(s session.State) error {
			if err := requireTurn(s); err != nil {
				return err
			}
			if !isLetter(letter) {
				return fmt.Errorf("%w: %q is not a single letter", ErrInvalidInput, letter)
			}
			if position < 0 || position >= s.WordLength {
				return fmt.Errorf("%w: position %d outside word of length %d", ErrInvalidInput, position, s.WordLength)
			}
			if s.IsRevealed(position) {
				return fmt.Errorf("%w: position %d already revealed", ErrInvalidInput, position)
			}
			return nil
		},
		func(ctx context.Context, id string) (*wire.ActionResponse, error) {
			return p.api.GuessLetter(ctx, id, letter, position)
		})
}

// RequestGuessWord submits a whole-word guess. A wrong word is not treated as the
// end of the game locally; the authority's response decides.
func (p *Protocol) RequestGuessWord(ctx context.Context, word string) (*Result, error) {
	word = strings.ToUpper(strings.TrimSpace(word))
	return p.do(ctx, "guess_word",
		func(s session.State) error {
			if err := requireTurn(s); err != nil {
				return err
			}
			if n := len([]rune(word)); n != s.WordLength {
				return fmt.Errorf("%w: word has %d letters, expected %d", ErrInvalidInput, n, s.WordLength)
			}
			for _, r := range word {
				if !unicode.IsLetter(r) {
					return fmt.Errorf("%w: %q contains a non-letter", ErrInvalidInput, word)
				}
			}
			return nil
		},
		func(ctx context.Context, id string) (*wire.ActionResponse, error) {
			return p.api.GuessWord(ctx, id, word)
		})
}

func (p *Protocol) RequestHint(ctx context.Context) (*Result, error) {
	return p.do(ctx, "hint", requireSpend, p.api.Hint)
}

func (p *Protocol) RequestRevealLetter(ctx context.Context) (*Result, error) {
	return p.do(ctx, "reveal_letter",
		func(s session.State) error {
			if err := requireSpend(s); err != nil {
				return err
			}
			if s.WordLength > 0 && len(s.Revealed) >= s.WordLength {
				return fmt.Errorf("%w: every position is already revealed", ErrIllegalMove)
			}
			return nil
		},
		p.api.RevealLetter)
}

func (p *Protocol) RequestPause(ctx context.Context) (*Result, error) {
	return p.do(ctx, "pause",
		func(s session.State) error {
			if s.Phase != session.PhaseActive {
				return fmt.Errorf("%w: cannot pause a %s session", ErrIllegalMove, s.Phase)
			}
			if !s.IsParticipant(s.Self) {
				return fmt.Errorf("%w: not a participant", ErrIllegalMove)
			}
			return nil
		},
		p.api.Pause)
}

func (p *Protocol) RequestResume(ctx context.Context) (*Result, error) {
	return p.do(ctx, "resume",
		func(s session.State) error {
			if s.Phase != session.PhasePaused {
				return fmt.Errorf("%w: cannot resume a %s session", ErrIllegalMove, s.Phase)
			}
			if !s.IsParticipant(s.Self) {
				return fmt.Errorf("%w: not a participant", ErrIllegalMove)
			}
			return nil
		},
		p.api.Resume)
}

// OnSuspectedTimeout asks the authority whether the running player is out of
// time. A confirmed timeout arrives as a finished state; a false positive
// arrives as fresh clocks.
func (p *Protocol) OnSuspectedTimeout(ctx context.Context) (*Result, error) {
	return p.do(ctx, "timeout_check",
		func(s session.State) error {
			if s.Phase != session.PhaseActive {
				return fmt.Errorf("%w: no running clock in a %s session", ErrIllegalMove, s.Phase)
			}
			return nil
		},
		p.api.TimeoutCheck)
}

// do serializes one request. Validation runs against the snapshot taken once the
// request holds the in-flight slot, so it always sees the previous response.
func (p *Protocol) do(
	ctx context.Context,
	action string,
	validate func(session.State) error,
	call func(ctx context.Context, sessionID string) (*wire.ActionResponse, error),
) (*Result, error) {
	select {
	case p.inflight <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.inflight }()

	s := p.engine.Snapshot()
	if err := validate(s); err != nil {
		log.Debug().
			Err(err).
			Str("session_id", s.SessionID).
			Str("action", action).
			Msg("action refused locally")
		return nil, err
	}

	resp, err := call(ctx, s.SessionID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", s.SessionID).
			Str("action", action).
			Msg("action request failed")
		return nil, fmt.Errorf("%s: %w", action, err)
	}

	merged := p.engine.Merge(session.UpdateFromDoc(&resp.State), session.SourcePull)
	log.Debug().
		Str("session_id", s.SessionID).
		Str("action", action).
		Uint64("seq", resp.State.Seq).
		Bool("merged", merged).
		Msg("action confirmed")

	return &Result{
		Correct:  resp.Correct,
		Hint:     resp.Hint,
		Letter:   resp.Letter,
		Position: resp.Position,
		TimedOut: resp.TimedOut,
		Detail:   resp.Detail,
	}, nil
}

func requireTurn(s session.State) error {
	if s.Phase != session.PhaseActive {
		return fmt.Errorf("%w: session is %s", ErrIllegalMove, s.Phase)
	}
	if !s.IsMyTurn() {
		return fmt.Errorf("%w: it is %s's turn", ErrIllegalMove, s.Turn)
	}
	return nil
}

// requireSpend guards coin spending actions, which are allowed on either turn
func requireSpend(s session.State) error {
	if s.Phase != session.PhaseActive {
		return fmt.Errorf("%w: session is %s", ErrIllegalMove, s.Phase)
	}
	if !s.IsParticipant(s.Self) {
		return fmt.Errorf("%w: not a participant", ErrIllegalMove)
	}
	if s.Coins <= 0 {
		return fmt.Errorf("%w: balance is %d", ErrInsufficientCoins, s.Coins)
	}
	return nil
}

func isLetter(s string) bool {
	r := []rune(s)
	return len(r) == 1 && unicode.IsLetter(r[0])
}

package session

import (
	"sort"
	"strings"
	"time"
)

// Phase is the lifecycle phase of a session
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseActive   Phase = "active"
	PhasePaused   Phase = "paused"
	PhaseFinished Phase = "finished"
)

// canTransition reports whether a session may move from one phase to another.
// Phases only move forward, except Active and Paused which alternate.
func canTransition(from, to Phase) bool {
	if from == to {
		return true
	}
	switch from {
	case PhaseWaiting:
		return to == PhaseActive || to == PhasePaused || to == PhaseFinished
	case PhaseActive:
		return to == PhasePaused || to == PhaseFinished
	case PhasePaused:
		return to == PhaseActive || to == PhaseFinished
	}
	return false
}

// PlayerID identifies a participant
type PlayerID string

// Source identifies which channel delivered an update
type Source int

const (
	SourcePull Source = iota
	SourcePush
)

func (s Source) String() string {
	if s == SourcePush {
		return "push"
	}
	return "pull"
}

// GuessedLetter is the outcome of a letter guess
type GuessedLetter struct {
	Letter   string
	Correct  bool
	Position *int
}

// State is an immutable snapshot of a session as seen by one player.
// Snapshots handed out by the Engine are deep copies; mutate freely.
type State struct {
	SessionID   string
	Self        PlayerID
	Phase       Phase
	Turn        PlayerID
	WordLength  int
	Players     []PlayerID
	Revealed    map[int]string // position -> letter ("" when only the position is known)
	Guesses     []GuessedLetter
	Hints       []string
	Scores      map[PlayerID]int
	Clocks      map[PlayerID]int // remaining seconds, as last received
	ClockSyncAt time.Time        // local time the clock values were merged
	Coins       int
	Winner      PlayerID
	Draw        bool
	LastSyncSeq uint64
}

// Clone returns a deep copy of the state
func (s State) Clone() State {
	c := s
	c.Players = append([]PlayerID(nil), s.Players...)
	c.Hints = append([]string(nil), s.Hints...)
	c.Guesses = make([]GuessedLetter, len(s.Guesses))
	for i, g := range s.Guesses {
		c.Guesses[i] = g
		if g.Position != nil {
			p := *g.Position
			c.Guesses[i].Position = &p
		}
	}
	c.Revealed = make(map[int]string, len(s.Revealed))
	for k, v := range s.Revealed {
		c.Revealed[k] = v
	}
	c.Scores = make(map[PlayerID]int, len(s.Scores))
	for k, v := range s.Scores {
		c.Scores[k] = v
	}
	c.Clocks = make(map[PlayerID]int, len(s.Clocks))
	for k, v := range s.Clocks {
		c.Clocks[k] = v
	}
	return c
}

// IsMyTurn reports whether the local player may submit a guess
func (s State) IsMyTurn() bool {
	return s.Phase == PhaseActive && s.Turn != "" && s.Turn == s.Self
}

// IsParticipant reports whether p plays in this session
func (s State) IsParticipant(p PlayerID) bool {
	for _, x := range s.Players {
		if x == p {
			return true
		}
	}
	return false
}

// Opponent returns the other participant of p, if known
func (s State) Opponent(p PlayerID) PlayerID {
	for _, x := range s.Players {
		if x != p {
			return x
		}
	}
	return ""
}

// HasOutcome reports whether a winner or a draw has been recorded
func (s State) HasOutcome() bool {
	return s.Winner != "" || s.Draw
}

// RevealedPositions returns the revealed positions in ascending order
func (s State) RevealedPositions() []int {
	out := make([]int, 0, len(s.Revealed))
	for p := range s.Revealed {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// IsRevealed reports whether a position is already resolved
func (s State) IsRevealed(pos int) bool {
	_, ok := s.Revealed[pos]
	return ok
}

// Guess looks up a guessed letter
func (s State) Guess(letter string) (GuessedLetter, bool) {
	for _, g := range s.Guesses {
		if g.Letter == letter {
			return g, true
		}
	}
	return GuessedLetter{}, false
}

// Masked renders the word with unrevealed positions as underscores
func (s State) Masked() string {
	cells := make([]string, s.WordLength)
	for i := range cells {
		cells[i] = "_"
		if l, ok := s.Revealed[i]; ok && l != "" {
			cells[i] = l
		} else if ok {
			cells[i] = "?"
		}
	}
	return strings.Join(cells, " ")
}

// Update is a partial state delivered by the push or pull channel.
// Nil / empty fields carry no information and leave the state untouched.
type Update struct {
	Seq        uint64
	Phase      *Phase
	Turn       *PlayerID
	WordLength *int
	Players    []PlayerID
	Revealed   map[int]string
	Guesses    []GuessedLetter
	Hints      []string // the full log, from the first hint
	Scores     map[PlayerID]int
	Clocks     map[PlayerID]int
	Coins      *int
	Winner     *PlayerID
	Draw       *bool
}

// empty reports whether the update carries no fields at all
func (u Update) empty() bool {
	return u.Phase == nil && u.Turn == nil && u.WordLength == nil && len(u.Players) == 0 &&
		len(u.Revealed) == 0 && len(u.Guesses) == 0 && len(u.Hints) == 0 &&
		len(u.Scores) == 0 && len(u.Clocks) == 0 && u.Coins == nil && u.Winner == nil && u.Draw == nil
}

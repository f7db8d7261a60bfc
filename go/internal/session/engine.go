package session

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Engine is the only writer of a session's State. Push events, pull snapshots and
// action responses all enter through Merge, which is serialized by the engine's lock.
type Engine struct {
	mu    sync.RWMutex
	clock clockwork.Clock
	state State

	// lastSource is the source of the last accepted update, used to break sequence ties
	lastSource Source
	// finishedBy is the source that delivered the Finished phase
	finishedBy Source
	// corrected is set once the single post-finish correction has been applied
	corrected bool

	subscribers map[int]chan State
	nextSubID   int
}

// NewEngine creates an engine holding an empty Waiting state
func NewEngine(sessionID string, self PlayerID, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		clock: clock,
		state: State{
			SessionID: sessionID,
			Self:      self,
			Phase:     PhaseWaiting,
			Revealed:  make(map[int]string),
			Scores:    make(map[PlayerID]int),
			Clocks:    make(map[PlayerID]int),
		},
		subscribers: make(map[int]chan State),
	}
}

// Snapshot returns a deep copy of the current state
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Subscribe returns a channel that receives a fresh snapshot after every successful
// merge, starting with the current state. Slow consumers only ever see the latest
// snapshot. The returned func unsubscribes and closes the channel.
func (e *Engine) Subscribe() (<-chan State, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSubID
	e.nextSubID++
	ch := make(chan State, 1)
	ch <- e.state.Clone()
	e.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if c, ok := e.subscribers[id]; ok {
				delete(e.subscribers, id)
				close(c)
			}
		})
	}
}

// Merge folds an update into the state. It returns false when the update was
// discarded (stale, duplicate, or arriving after the session finished).
func (e *Engine) Merge(u Update, src Source) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.accepts(u.Seq, src) {
		log.Debug().
			Str("session_id", e.state.SessionID).
			Str("source", src.String()).
			Uint64("seq", u.Seq).
			Uint64("last_sync_seq", e.state.LastSyncSeq).
			Msg("discarding stale update")
		return false
	}
	if u.empty() {
		return false
	}

	if e.state.Phase == PhaseFinished {
		return e.applyCorrection(u, src)
	}

	prevPhase := e.state.Phase
	next := e.state.Clone()
	e.apply(&next, u)
	if u.Seq > next.LastSyncSeq {
		next.LastSyncSeq = u.Seq
	}

	e.state = next
	e.lastSource = src
	if prevPhase != PhaseFinished && next.Phase == PhaseFinished {
		e.finishedBy = src
		log.Info().
			Str("session_id", next.SessionID).
			Str("winner", string(next.Winner)).
			Bool("draw", next.Draw).
			Str("source", src.String()).
			Msg("session finished")
	}
	e.notify()
	return true
}

// accepts implements the ordering rule. Sequenced updates must be strictly newer
// than the last merged one, except that push wins a tie against pull.
// Unsequenced updates are taken in arrival order.
func (e *Engine) accepts(seq uint64, src Source) bool {
	if seq == 0 {
		return true
	}
	if seq > e.state.LastSyncSeq {
		return true
	}
	return seq == e.state.LastSyncSeq && src == SourcePush && e.lastSource == SourcePull
}

// apply performs the structural overwrite of u onto s
func (e *Engine) apply(s *State, u Update) {
	if u.WordLength != nil {
		switch {
		case s.WordLength == 0 && *u.WordLength > 0:
			s.WordLength = *u.WordLength
		case *u.WordLength != s.WordLength:
			log.Warn().
				Str("session_id", s.SessionID).
				Int("word_length", s.WordLength).
				Int("update_word_length", *u.WordLength).
				Msg("ignoring word length change")
		}
	}

	for _, p := range u.Players {
		if p != "" && !s.IsParticipant(p) && len(s.Players) < 2 {
			s.Players = append(s.Players, p)
		}
	}

	if u.Phase != nil {
		if canTransition(s.Phase, *u.Phase) {
			s.Phase = *u.Phase
		} else {
			log.Warn().
				Str("session_id", s.SessionID).
				Str("from", string(s.Phase)).
				Str("to", string(*u.Phase)).
				Msg("ignoring illegal phase transition")
		}
	}

	if u.Turn != nil {
		if *u.Turn == "" || len(s.Players) == 0 || s.IsParticipant(*u.Turn) {
			s.Turn = *u.Turn
		} else {
			log.Warn().
				Str("session_id", s.SessionID).
				Str("turn", string(*u.Turn)).
				Msg("ignoring turn for unknown player")
		}
	}

	for pos, letter := range u.Revealed {
		e.reveal(s, pos, letter)
	}

	for _, g := range u.Guesses {
		e.addGuess(s, g)
	}

	e.addHints(s, u.Hints)

	for p, v := range u.Scores {
		s.Scores[p] = v
	}

	if len(u.Clocks) > 0 {
		for p, v := range u.Clocks {
			if v < 0 {
				v = 0
			}
			s.Clocks[p] = v
		}
		s.ClockSyncAt = e.clock.Now()
	}

	if u.Coins != nil {
		coins := *u.Coins
		if coins < 0 {
			log.Warn().Str("session_id", s.SessionID).Int("coins", coins).Msg("clamping negative coin balance")
			coins = 0
		}
		s.Coins = coins
	}

	// The outcome is only recorded together with the transition to Finished
	if s.Phase == PhaseFinished {
		if u.Winner != nil && s.Winner == "" {
			s.Winner = *u.Winner
		}
		if u.Draw != nil && !s.HasOutcome() {
			s.Draw = *u.Draw
		}
		s.Turn = ""
		if !s.HasOutcome() {
			log.Warn().Str("session_id", s.SessionID).Msg("finished without winner or draw")
		}
	}
}

// applyCorrection accepts a single late winner/score correction after the session
// finished, and only from the push channel when the finish itself did not come from
// push (or came without an outcome). Everything else is ignored.
func (e *Engine) applyCorrection(u Update, src Source) bool {
	if e.corrected || src != SourcePush {
		return false
	}
	if e.finishedBy == SourcePush && e.state.HasOutcome() {
		return false
	}
	if u.Winner == nil && u.Draw == nil && len(u.Scores) == 0 {
		return false
	}

	next := e.state.Clone()
	if u.Winner != nil {
		next.Winner = *u.Winner
		next.Draw = false
	}
	if u.Draw != nil && *u.Draw {
		next.Winner = ""
		next.Draw = true
	}
	for p, v := range u.Scores {
		next.Scores[p] = v
	}
	if u.Seq > next.LastSyncSeq {
		next.LastSyncSeq = u.Seq
	}

	e.state = next
	e.lastSource = src
	e.corrected = true
	log.Info().
		Str("session_id", next.SessionID).
		Str("winner", string(next.Winner)).
		Bool("draw", next.Draw).
		Msg("applied final outcome correction")
	e.notify()
	return true
}

// reveal records a known-correct position, dropping anything out of range
func (e *Engine) reveal(s *State, pos int, letter string) {
	if pos < 0 || pos >= s.WordLength {
		log.Warn().
			Str("session_id", s.SessionID).
			Int("position", pos).
			Int("word_length", s.WordLength).
			Msg("dropping out of range revealed position")
		return
	}
	if cur, ok := s.Revealed[pos]; !ok || (cur == "" && letter != "") {
		s.Revealed[pos] = letter
	}
}

// addGuess inserts a guessed letter. An existing entry is never removed; the only
// change allowed is upgrading an incorrect entry once the letter is confirmed correct.
func (e *Engine) addGuess(s *State, g GuessedLetter) {
	if g.Letter == "" {
		return
	}
	if g.Correct && g.Position != nil {
		if *g.Position < 0 || *g.Position >= s.WordLength {
			log.Warn().
				Str("session_id", s.SessionID).
				Str("letter", g.Letter).
				Int("position", *g.Position).
				Msg("dropping guess with out of range position")
			return
		}
		e.reveal(s, *g.Position, g.Letter)
	}

	for i, cur := range s.Guesses {
		if cur.Letter != g.Letter {
			continue
		}
		if !cur.Correct && g.Correct {
			s.Guesses[i] = g
		}
		return
	}
	s.Guesses = append(s.Guesses, g)
}

// notify hands every subscriber the latest snapshot, replacing an unread one.
// Must be called with e.mu held.
func (e *Engine) notify() {
	for _, ch := range e.subscribers {
		snap := e.state.Clone()
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// addHints unions by index: hints is the log from its first entry, so only
// entries past the known length are new. Known entries are never rewritten.
func (e *Engine) addHints(s *State, hints []string) {
	for i, h := range hints {
		if i < len(s.Hints) {
			if s.Hints[i] != h {
				log.Warn().
					Str("session_id", s.SessionID).
					Int("index", i).
					Str("known", s.Hints[i]).
					Str("got", h).
					Msg("ignoring conflicting hint")
			}
			continue
		}
		s.Hints = append(s.Hints, h)
	}
}

package matchserver

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// Scoring and economy
const (
	pointsCorrectLetter = 20
	pointsCorrectWord   = 100
	pointsWrongWordWin  = 50
	coinsCorrectLetter  = 1
	costHint            = 1
	costReveal          = 1
)

// Budget is the per-player time allowance for a difficulty
func Budget(d Difficulty) time.Duration {
	switch d {
	case DifficultyEasy:
		return 600 * time.Second
	case DifficultyHard:
		return 300 * time.Second
	default:
		return 420 * time.Second
	}
}

// Rules are the tunable parts of a match
type Rules struct {
	StartingCoins int
	MaxHints      int
}

// DefaultRules returns three starting coins and three hints per player
func DefaultRules() Rules {
	return Rules{StartingCoins: 3, MaxHints: 3}
}

// Match is the authoritative state of one session. Callers hold mu for every
// method call.
type Match struct {
	mu sync.Mutex

	ID         string
	Difficulty Difficulty
	CreatedAt  time.Time

	word  string
	hints []string
	rules Rules
	rng   *rand.Rand

	Status  string
	Players []string
	Turn    string
	Winner  string
	Draw    bool
	Seq     uint64

	// revealed holds positions opened by correct guesses and is visible to everyone;
	// private holds the positions each player opened with reveal-letter
	revealed map[int]string
	private  map[string]map[int]string
	guesses  []wire.GuessDoc
	taken    map[string][]string
	scores   map[string]int
	coins    map[string]int

	remaining map[string]time.Duration
	// runningSince is when the turn holder's clock last started
	runningSince time.Time
}

func newMatch(id string, d Difficulty, w Word, creator string, rules Rules, now time.Time, rng *rand.Rand) *Match {
	m := &Match{
		ID:         id,
		Difficulty: d,
		CreatedAt:  now,
		word:       strings.ToUpper(w.Text),
		hints:      w.Hints,
		rules:      rules,
		rng:        rng,
		Status:     wire.StatusWaiting,
		revealed:   make(map[int]string),
		private:    make(map[string]map[int]string),
		taken:      make(map[string][]string),
		scores:     make(map[string]int),
		coins:      make(map[string]int),
		remaining:  make(map[string]time.Duration),
	}
	m.addPlayer(creator)
	m.Seq = 1
	return m
}

func (m *Match) addPlayer(p string) {
	m.Players = append(m.Players, p)
	m.scores[p] = 0
	m.coins[p] = m.rules.StartingCoins
	m.remaining[p] = Budget(m.Difficulty)
	m.private[p] = make(map[int]string)
}

// WordLength is the number of letters in the secret word
func (m *Match) WordLength() int {
	return utf8.RuneCountInString(m.word)
}

func (m *Match) isParticipant(p string) bool {
	for _, x := range m.Players {
		if x == p {
			return true
		}
	}
	return false
}

func (m *Match) opponent(p string) string {
	for _, x := range m.Players {
		if x != p {
			return x
		}
	}
	return ""
}

// charge bills the turn holder for time spent since runningSince
func (m *Match) charge(now time.Time) {
	if m.Status != wire.StatusActive || m.Turn == "" {
		return
	}
	if elapsed := now.Sub(m.runningSince); elapsed > 0 {
		left := m.remaining[m.Turn] - elapsed
		if left < 0 {
			left = 0
		}
		m.remaining[m.Turn] = left
	}
	m.runningSince = now
}

func (m *Match) passTurn(now time.Time) {
	m.charge(now)
	m.Turn = m.opponent(m.Turn)
	m.runningSince = now
}

func (m *Match) finish(now time.Time, winner string) {
	m.charge(now)
	m.Status = wire.StatusFinished
	m.Winner = winner
	m.Turn = ""
}

func (m *Match) bump() { m.Seq++ }

func (m *Match) requireParticipant(p string) error {
	if !m.isParticipant(p) {
		return ruleErr(wire.ReasonNotParticipant, "%s does not play in session %s", p, m.ID)
	}
	return nil
}

func (m *Match) requireActive() error {
	if m.Status != wire.StatusActive {
		return ruleErr(wire.ReasonNotActive, "session is %s", m.Status)
	}
	return nil
}

// settleClock bills the turn holder and, when their budget is gone, finishes the
// game for the opponent. It reports whether the game ended.
func (m *Match) settleClock(now time.Time) bool {
	m.charge(now)
	if m.Status != wire.StatusActive || m.Turn == "" || m.remaining[m.Turn] > 0 {
		return false
	}
	m.finish(now, m.opponent(m.Turn))
	m.bump()
	return true
}

func (m *Match) requireTurn(p string) error {
	if err := m.requireParticipant(p); err != nil {
		return err
	}
	if err := m.requireActive(); err != nil {
		return err
	}
	if m.Turn != p {
		return ruleErr(wire.ReasonNotYourTurn, "it is %s's turn", m.Turn)
	}
	return nil
}

// Join adds the second player and starts the game with the creator to move
func (m *Match) Join(p string, now time.Time) error {
	if m.isParticipant(p) {
		return ruleErr(wire.ReasonNotJoinable, "already in session %s", m.ID)
	}
	if m.Status != wire.StatusWaiting || len(m.Players) >= 2 {
		return ruleErr(wire.ReasonNotJoinable, "session %s is %s", m.ID, m.Status)
	}
	m.addPlayer(p)
	m.Status = wire.StatusActive
	m.Turn = m.Players[0]
	m.runningSince = now
	m.bump()
	return nil
}

// GuessLetter checks one letter at one position. Positions the player revealed
// privately count as resolved for them. The turn passes either way;
// opening the last position wins the game for the guesser.
func (m *Match) GuessLetter(p, letter string, pos int, now time.Time) (bool, error) {
	if err := m.requireTurn(p); err != nil {
		return false, err
	}
	if m.settleClock(now) {
		return false, ruleErr(wire.ReasonTimedOut, "%s ran out of time", p)
	}
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if utf8.RuneCountInString(letter) != 1 {
		return false, ruleErr(wire.ReasonInvalidInput, "%q is not a single letter", letter)
	}
	if pos < 0 || pos >= m.WordLength() {
		return false, ruleErr(wire.ReasonInvalidInput, "position %d outside word of length %d", pos, m.WordLength())
	}
	if _, ok := m.revealed[pos]; ok {
		return false, ruleErr(wire.ReasonPositionResolved, "position %d already revealed", pos)
	}
	if _, ok := m.private[p][pos]; ok {
		return false, ruleErr(wire.ReasonPositionResolved, "position %d already revealed to you", pos)
	}

	correct := string([]rune(m.word)[pos]) == letter
	g := wire.GuessDoc{Letter: letter, Correct: correct, Player: p}
	if correct {
		at := pos
		g.Position = &at
		m.revealed[pos] = letter
		m.scores[p] += pointsCorrectLetter
		m.coins[p] += coinsCorrectLetter
	}
	m.guesses = append(m.guesses, g)

	if len(m.revealed) == m.WordLength() {
		m.finish(now, p)
	} else {
		m.passTurn(now)
	}
	m.bump()
	return correct, nil
}

// GuessWord ends the game: the guesser wins a correct word, the opponent wins a wrong one
func (m *Match) GuessWord(p, word string, now time.Time) (bool, error) {
	if err := m.requireTurn(p); err != nil {
		return false, err
	}
	if m.settleClock(now) {
		return false, ruleErr(wire.ReasonTimedOut, "%s ran out of time", p)
	}
	word = strings.ToUpper(strings.TrimSpace(word))
	if utf8.RuneCountInString(word) != m.WordLength() {
		return false, ruleErr(wire.ReasonInvalidInput, "word has %d letters, expected %d", utf8.RuneCountInString(word), m.WordLength())
	}

	correct := word == m.word
	if correct {
		m.scores[p] += pointsCorrectWord
		m.finish(now, p)
	} else {
		opp := m.opponent(p)
		m.scores[opp] += pointsWrongWordWin
		m.finish(now, opp)
	}
	m.bump()
	return correct, nil
}

// Hint spends a coin for the player's next hint. Allowed on either turn.
func (m *Match) Hint(p string) (string, error) {
	if err := m.requireParticipant(p); err != nil {
		return "", err
	}
	if err := m.requireActive(); err != nil {
		return "", err
	}
	taken := m.taken[p]
	if len(taken) >= m.rules.MaxHints || len(taken) >= len(m.hints) {
		return "", ruleErr(wire.ReasonNoHintsLeft, "all %d hints used", len(taken))
	}
	if m.coins[p] < costHint {
		return "", ruleErr(wire.ReasonInsufficientCoins, "balance is %d", m.coins[p])
	}

	h := m.hints[len(taken)]
	m.taken[p] = append(taken, h)
	m.coins[p] -= costHint
	m.bump()
	return h, nil
}

// RevealLetter spends a coin to privately open a random unresolved position
func (m *Match) RevealLetter(p string) (string, int, error) {
	if err := m.requireParticipant(p); err != nil {
		return "", 0, err
	}
	if err := m.requireActive(); err != nil {
		return "", 0, err
	}

	var candidates []int
	for i := 0; i < m.WordLength(); i++ {
		if _, ok := m.revealed[i]; ok {
			continue
		}
		if _, ok := m.private[p][i]; ok {
			continue
		}
		candidates = append(candidates, i)
	}
	if len(candidates) == 0 {
		return "", 0, ruleErr(wire.ReasonNothingToReveal, "every position is already known")
	}
	if m.coins[p] < costReveal {
		return "", 0, ruleErr(wire.ReasonInsufficientCoins, "balance is %d", m.coins[p])
	}

	pos := candidates[m.rng.Intn(len(candidates))]
	letter := string([]rune(m.word)[pos])
	m.private[p][pos] = letter
	m.coins[p] -= costReveal
	m.bump()
	return letter, pos, nil
}

// Pause freezes both clocks. Either participant may pause.
func (m *Match) Pause(p string, now time.Time) error {
	if err := m.requireParticipant(p); err != nil {
		return err
	}
	if err := m.requireActive(); err != nil {
		return err
	}
	if loser := m.Turn; m.settleClock(now) {
		return ruleErr(wire.ReasonTimedOut, "%s ran out of time", loser)
	}
	m.Status = wire.StatusPaused
	m.bump()
	return nil
}

func (m *Match) Resume(p string, now time.Time) error {
	if err := m.requireParticipant(p); err != nil {
		return err
	}
	if m.Status != wire.StatusPaused {
		return ruleErr(wire.ReasonNotPaused, "session is %s", m.Status)
	}
	m.Status = wire.StatusActive
	m.runningSince = now
	m.bump()
	return nil
}

// TimeoutCheck settles a suspected timeout of the turn holder. A confirmed timeout
// finishes the game for the opponent; otherwise the clocks are re-published.
// Either way the sequence moves so the caller's clock is re-seeded.
func (m *Match) TimeoutCheck(p string, now time.Time) (bool, error) {
	if err := m.requireParticipant(p); err != nil {
		return false, err
	}
	if err := m.requireActive(); err != nil {
		return false, err
	}
	timedOut := m.settleClock(now)
	if !timedOut {
		m.bump()
	}
	return timedOut, nil
}

// remainingAt is the live remaining time of p, without billing it
func (m *Match) remainingAt(p string, now time.Time) time.Duration {
	left := m.remaining[p]
	if m.Status == wire.StatusActive && m.Turn == p {
		if elapsed := now.Sub(m.runningSince); elapsed > 0 {
			left -= elapsed
		}
	}
	if left < 0 {
		return 0
	}
	return left
}

// DocFor renders the full session as seen by player p
func (m *Match) DocFor(p string, now time.Time) wire.StateDoc {
	status := m.Status
	length := m.WordLength()
	doc := wire.StateDoc{
		SessionID:  m.ID,
		Seq:        m.Seq,
		Status:     &status,
		WordLength: &length,
		Players:    append([]string(nil), m.Players...),
		Scores:     make(map[string]int, len(m.scores)),
		Clocks:     make(map[string]int, len(m.remaining)),
	}
	if m.Turn != "" {
		turn := m.Turn
		doc.Turn = &turn
	}
	for k, v := range m.scores {
		doc.Scores[k] = v
	}
	for k := range m.remaining {
		doc.Clocks[k] = int(math.Ceil(m.remainingAt(k, now).Seconds()))
	}
	asOf := now
	doc.ClockAsOf = &asOf

	known := make(map[int]string, len(m.revealed)+len(m.private[p]))
	for pos, l := range m.revealed {
		known[pos] = l
	}
	for pos, l := range m.private[p] {
		known[pos] = l
	}
	positions := make([]int, 0, len(known))
	for pos := range known {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	for _, pos := range positions {
		doc.Revealed = append(doc.Revealed, wire.RevealedDoc{Position: pos, Letter: known[pos]})
	}

	for _, g := range m.guesses {
		c := g
		if g.Position != nil {
			at := *g.Position
			c.Position = &at
		}
		doc.Guesses = append(doc.Guesses, c)
	}
	doc.Hints = append([]string(nil), m.taken[p]...)

	if m.isParticipant(p) {
		coins := m.coins[p]
		doc.Coins = &coins
	}
	if m.Status == wire.StatusFinished {
		if m.Winner != "" {
			w := m.Winner
			doc.Winner = &w
		} else {
			d := true
			doc.Draw = &d
		}
	}
	return doc
}

// Summary is the lobby view of the match
func (m *Match) Summary() wire.SessionSummary {
	return wire.SessionSummary{
		SessionID:  m.ID,
		Players:    append([]string(nil), m.Players...),
		Difficulty: string(m.Difficulty),
		Status:     m.Status,
		WordLength: m.WordLength(),
		CreatedAt:  m.CreatedAt,
	}
}

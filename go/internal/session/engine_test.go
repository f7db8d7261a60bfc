package session

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
)

const (
	p1 PlayerID = "alice"
	p2 PlayerID = "bob"
)

func ptr[T any](v T) *T { return &v }

func newTestEngine(self PlayerID) (*Engine, *clockwork.FakeClock) {
	fc := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewEngine("session-1", self, fc), fc
}

// activeSnapshot is the snapshot used throughout: P1 to move on a five letter word
func activeSnapshot(seq uint64) Update {
	return Update{
		Seq:        seq,
		Phase:      ptr(PhaseActive),
		Turn:       ptr(p1),
		WordLength: ptr(5),
		Players:    []PlayerID{p1, p2},
		Scores:     map[PlayerID]int{p1: 0, p2: 0},
		Clocks:     map[PlayerID]int{p1: 300, p2: 300},
		Coins:      ptr(3),
	}
}

func TestMergeInitialSnapshot(t *testing.T) {
	e, fc := newTestEngine(p1)

	if !e.Merge(activeSnapshot(1), SourcePull) {
		t.Fatal("expected first snapshot to be merged")
	}

	s := e.Snapshot()
	if s.Phase != PhaseActive || s.Turn != p1 || s.WordLength != 5 || s.Coins != 3 {
		t.Fatalf("unexpected state after snapshot: %+v", s)
	}
	if s.LastSyncSeq != 1 {
		t.Fatalf("expected last sync seq 1, got %d", s.LastSyncSeq)
	}
	if !s.ClockSyncAt.Equal(fc.Now()) {
		t.Fatalf("expected clock sync time %v, got %v", fc.Now(), s.ClockSyncAt)
	}
	if !s.IsMyTurn() {
		t.Fatal("expected it to be alice's turn")
	}
}

func TestMergeDiscardsStaleAndDuplicateUpdates(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(3), SourcePull)
	before := e.Snapshot()

	stale := []struct {
		name string
		u    Update
		src  Source
	}{
		{"duplicate pull", Update{Seq: 3, Turn: ptr(p2)}, SourcePull},
		{"older pull", Update{Seq: 2, Turn: ptr(p2), Hints: []string{"old"}}, SourcePull},
		{"older push", Update{Seq: 1, Phase: ptr(PhasePaused)}, SourcePush},
	}
	for _, tc := range stale {
		if e.Merge(tc.u, tc.src) {
			t.Fatalf("%s: expected update to be discarded", tc.name)
		}
	}

	if diff := cmp.Diff(before, e.Snapshot()); diff != "" {
		t.Fatalf("stale merges changed state (-want +got):\n%s", diff)
	}
}

func TestPushWinsSequenceTieAgainstPull(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(4), SourcePull)

	if !e.Merge(Update{Seq: 4, Turn: ptr(p2)}, SourcePush) {
		t.Fatal("expected push to win a tie against pull")
	}
	if e.Merge(Update{Seq: 4, Turn: ptr(p1)}, SourcePush) {
		t.Fatal("expected second push at the same seq to be discarded")
	}
	if e.Merge(Update{Seq: 4, Turn: ptr(p1)}, SourcePull) {
		t.Fatal("expected pull at the same seq to be discarded")
	}
	if got := e.Snapshot().Turn; got != p2 {
		t.Fatalf("expected turn %s, got %s", p2, got)
	}
}

func TestSlowPullDoesNotClobberNewerPush(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)

	if !e.Merge(Update{Seq: 5, Turn: ptr(p2)}, SourcePush) {
		t.Fatal("expected turnChanged push to merge")
	}
	slow := activeSnapshot(4)
	if e.Merge(slow, SourcePull) {
		t.Fatal("expected slow pull response to be discarded")
	}

	s := e.Snapshot()
	if s.Turn != p2 {
		t.Fatalf("expected turn to remain %s, got %s", p2, s.Turn)
	}
	if s.LastSyncSeq != 5 {
		t.Fatalf("expected last sync seq 5, got %d", s.LastSyncSeq)
	}
}

func TestUnsequencedUpdatesApplyInArrivalOrder(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(2), SourcePull)

	e.Merge(Update{Turn: ptr(p2)}, SourcePull)
	e.Merge(Update{Turn: ptr(p1)}, SourcePull)

	s := e.Snapshot()
	if s.Turn != p1 {
		t.Fatalf("expected last arrival to win, got %s", s.Turn)
	}
	if s.LastSyncSeq != 2 {
		t.Fatalf("unsequenced updates must not move last sync seq, got %d", s.LastSyncSeq)
	}
}

func TestFinishedIsTerminal(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)
	e.Merge(Update{
		Seq:    2,
		Phase:  ptr(PhaseFinished),
		Winner: ptr(p1),
		Scores: map[PlayerID]int{p1: 100, p2: 20},
	}, SourcePush)
	before := e.Snapshot()

	if before.Turn != "" {
		t.Fatalf("expected turn cleared on finish, got %s", before.Turn)
	}

	later := []struct {
		u   Update
		src Source
	}{
		{Update{Seq: 3, Winner: ptr(p2), Scores: map[PlayerID]int{p2: 500}}, SourcePull},
		{Update{Seq: 4, Winner: ptr(p2), Draw: ptr(true)}, SourcePush},
		{Update{Seq: 5, Guesses: []GuessedLetter{{Letter: "Z"}}, Revealed: map[int]string{0: "T"}}, SourcePush},
		{Update{Seq: 6, Phase: ptr(PhaseActive), Turn: ptr(p2)}, SourcePull},
	}
	for i, l := range later {
		if e.Merge(l.u, l.src) {
			t.Fatalf("update %d: expected no merge after finish", i)
		}
	}

	if diff := cmp.Diff(before, e.Snapshot()); diff != "" {
		t.Fatalf("finished state changed (-want +got):\n%s", diff)
	}
}

func TestLateOutcomeCorrectionFromPushAppliedOnce(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)
	e.Merge(Update{Seq: 2, Phase: ptr(PhaseFinished), Winner: ptr(p1)}, SourcePull)

	if e.Merge(Update{Seq: 3, Winner: ptr(p2)}, SourcePull) {
		t.Fatal("pull must not correct a finished session")
	}
	if !e.Merge(Update{Seq: 3, Winner: ptr(p2), Scores: map[PlayerID]int{p2: 150}}, SourcePush) {
		t.Fatal("expected push correction to apply")
	}
	if e.Merge(Update{Seq: 4, Winner: ptr(p1)}, SourcePush) {
		t.Fatal("expected only a single correction")
	}

	s := e.Snapshot()
	if s.Winner != p2 || s.Scores[p2] != 150 {
		t.Fatalf("unexpected corrected outcome: winner=%s scores=%v", s.Winner, s.Scores)
	}
}

func TestWinnerOnlyRecordedWithFinish(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)
	e.Merge(Update{Seq: 2, Winner: ptr(p2)}, SourcePush)

	if s := e.Snapshot(); s.Winner != "" {
		t.Fatalf("winner must not be set while active, got %s", s.Winner)
	}
}

func TestHintsUnionByIndex(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)

	e.Merge(Update{Seq: 2, Hints: []string{"pet"}}, SourcePull)
	e.Merge(Update{Seq: 3, Hints: []string{"pet", "pet"}}, SourcePush)
	e.Merge(Update{Seq: 4, Hints: []string{"dog", "pet", "small"}}, SourcePull)

	if diff := cmp.Diff([]string{"pet", "pet", "small"}, e.Snapshot().Hints); diff != "" {
		t.Fatalf("hints mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendOnlyFieldsOnlyGrow(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)

	updates := []Update{
		{Seq: 2, Hints: []string{"sweet", "party"}, Guesses: []GuessedLetter{{Letter: "A", Correct: true, Position: ptr(1)}}},
		{Seq: 3, Hints: []string{"sweet"}, Guesses: []GuessedLetter{{Letter: "Q"}}},
		{Seq: 4, Revealed: map[int]string{3: "E"}},
		{Seq: 5, Hints: []string{"sweet", "party", "cream"}},
		{Seq: 6, Guesses: []GuessedLetter{{Letter: "A", Correct: false}}},
	}

	prevHints, prevGuesses, prevRevealed := 0, 0, 0
	for _, u := range updates {
		e.Merge(u, SourcePush)
		s := e.Snapshot()
		if len(s.Hints) < prevHints || len(s.Guesses) < prevGuesses || len(s.Revealed) < prevRevealed {
			t.Fatalf("append-only field shrank after seq %d: %+v", u.Seq, s)
		}
		prevHints, prevGuesses, prevRevealed = len(s.Hints), len(s.Guesses), len(s.Revealed)
	}

	s := e.Snapshot()
	if diff := cmp.Diff([]string{"sweet", "party", "cream"}, s.Hints); diff != "" {
		t.Fatalf("hints mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 3}, s.RevealedPositions()); diff != "" {
		t.Fatalf("revealed positions mismatch (-want +got):\n%s", diff)
	}
	a, ok := s.Guess("A")
	if !ok || !a.Correct {
		t.Fatalf("expected A to stay correct, got %+v", a)
	}
}

func TestIncorrectGuessUpgradedWhenConfirmed(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)
	e.Merge(Update{Seq: 2, Guesses: []GuessedLetter{{Letter: "E", Correct: false, Position: ptr(0)}}}, SourcePull)
	e.Merge(Update{Seq: 3, Guesses: []GuessedLetter{{Letter: "E", Correct: true, Position: ptr(4)}}}, SourcePull)

	s := e.Snapshot()
	if len(s.Guesses) != 1 {
		t.Fatalf("expected a single entry for E, got %d", len(s.Guesses))
	}
	if g := s.Guesses[0]; !g.Correct || *g.Position != 4 {
		t.Fatalf("expected E upgraded to correct at 4, got %+v", g)
	}
	if !s.IsRevealed(4) {
		t.Fatal("expected position 4 revealed")
	}
}

func TestOutOfRangePositionsAreDropped(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)
	e.Merge(Update{
		Seq:      2,
		Revealed: map[int]string{-1: "X", 5: "Y", 2: "S"},
		Guesses:  []GuessedLetter{{Letter: "K", Correct: true, Position: ptr(9)}},
	}, SourcePull)

	s := e.Snapshot()
	if diff := cmp.Diff([]int{2}, s.RevealedPositions()); diff != "" {
		t.Fatalf("revealed positions mismatch (-want +got):\n%s", diff)
	}
	if _, ok := s.Guess("K"); ok {
		t.Fatal("expected out of range guess to be dropped")
	}
}

func TestIllegalPhaseTransitionIgnored(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)
	e.Merge(Update{Seq: 2, Phase: ptr(PhaseWaiting)}, SourcePush)

	if got := e.Snapshot().Phase; got != PhaseActive {
		t.Fatalf("expected phase to stay active, got %s", got)
	}

	e.Merge(Update{Seq: 3, Phase: ptr(PhasePaused)}, SourcePush)
	e.Merge(Update{Seq: 4, Phase: ptr(PhaseActive)}, SourcePush)
	if got := e.Snapshot().Phase; got != PhaseActive {
		t.Fatalf("expected active after resume, got %s", got)
	}
}

func TestWordLengthIsImmutable(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)
	e.Merge(Update{Seq: 2, WordLength: ptr(7)}, SourcePull)

	if got := e.Snapshot().WordLength; got != 5 {
		t.Fatalf("expected word length 5, got %d", got)
	}
}

func TestTurnForUnknownPlayerIgnored(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)
	e.Merge(Update{Seq: 2, Turn: ptr(PlayerID("mallory"))}, SourcePush)

	if got := e.Snapshot().Turn; got != p1 {
		t.Fatalf("expected turn to stay %s, got %s", p1, got)
	}
}

func TestCoinsNeverNegative(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)
	e.Merge(Update{Seq: 2, Coins: ptr(-2)}, SourcePull)

	if got := e.Snapshot().Coins; got != 0 {
		t.Fatalf("expected coins clamped to 0, got %d", got)
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)

	s := e.Snapshot()
	s.Scores[p1] = 999
	s.Hints = append(s.Hints, "leak")
	s.Revealed[0] = "X"

	fresh := e.Snapshot()
	if fresh.Scores[p1] != 0 || len(fresh.Hints) != 0 || len(fresh.Revealed) != 0 {
		t.Fatalf("snapshot mutation leaked into engine: %+v", fresh)
	}
}

func TestSubscribeReceivesLatestSnapshot(t *testing.T) {
	e, _ := newTestEngine(p1)
	ch, unsubscribe := e.Subscribe()

	initial := <-ch
	if initial.Phase != PhaseWaiting {
		t.Fatalf("expected initial waiting snapshot, got %s", initial.Phase)
	}

	e.Merge(activeSnapshot(1), SourcePull)
	e.Merge(Update{Seq: 2, Turn: ptr(p2)}, SourcePush)

	select {
	case s := <-ch:
		if s.Turn != p2 || s.LastSyncSeq != 2 {
			t.Fatalf("expected latest snapshot, got turn=%s seq=%d", s.Turn, s.LastSyncSeq)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no snapshot delivered")
	}

	// discarded merges do not notify
	e.Merge(Update{Seq: 1, Turn: ptr(p1)}, SourcePull)
	select {
	case s := <-ch:
		t.Fatalf("unexpected notification for discarded merge: %+v", s)
	default:
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
}

func TestConcurrentMergesAreLinearizable(t *testing.T) {
	e, _ := newTestEngine(p1)
	e.Merge(activeSnapshot(1), SourcePull)

	seqs := rand.Perm(200)
	var wg sync.WaitGroup
	for _, n := range seqs {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			src := SourcePull
			if seq%2 == 0 {
				src = SourcePush
			}
			turn := p1
			if seq%3 == 0 {
				turn = p2
			}
			e.Merge(Update{Seq: seq, Turn: &turn, Hints: []string{"h"}}, src)
		}(uint64(n + 2))
	}

	var observed []uint64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			observed = append(observed, e.Snapshot().LastSyncSeq)
		}
	}()

	wg.Wait()
	<-done

	for i := 1; i < len(observed); i++ {
		if observed[i] < observed[i-1] {
			t.Fatalf("last sync seq went backwards: %d -> %d", observed[i-1], observed[i])
		}
	}
	if got := e.Snapshot().LastSyncSeq; got != 201 {
		t.Fatalf("expected final seq 201, got %d", got)
	}
}

package matchserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/wordduel/go/internal/transport"
	"github.com/mcdev12/wordduel/go/internal/wire"
)

type testServer struct {
	*httptest.Server
	clock *clockwork.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	words := NewFixedWords(Word{Text: "cat", Hints: []string{"pet", "meows", "whiskers"}})
	svc := NewService(NewStore(), words, DefaultRules(), clock)

	hub := NewHub(DefaultHubConfig(), svc.SyncEvent)
	svc.AddNotifier(hub)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Start(ctx)

	auth := NewAuthenticator("test-secret", time.Hour, clock)
	srv := NewServer(svc, hub, auth, Options{DevLogin: true})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return &testServer{Server: ts, clock: clock}
}

// login returns an API client authenticated as player
func (ts *testServer) login(t *testing.T, player string) (*transport.API, string) {
	t.Helper()
	api := transport.NewAPI(transport.NewPullClient(ts.URL, 2*time.Second))
	tok, err := api.Token(context.Background(), player)
	if err != nil {
		t.Fatalf("token for %s: %v", player, err)
	}
	api.SetToken(tok.Token)
	return api, tok.Token
}

// startGame has alice create a session and bob join it
func (ts *testServer) startGame(t *testing.T) (alice, bob *transport.API, sessionID string) {
	t.Helper()
	ctx := context.Background()
	alice, _ = ts.login(t, "alice")
	bob, _ = ts.login(t, "bob")

	sum, err := alice.NewSession(ctx, "easy")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := bob.JoinSession(ctx, sum.SessionID); err != nil {
		t.Fatalf("join: %v", err)
	}
	return alice, bob, sum.SessionID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRequiresBearerToken(t *testing.T) {
	ts := newTestServer(t)

	anon := transport.NewAPI(transport.NewPullClient(ts.URL, 2*time.Second))
	_, err := anon.PendingSessions(context.Background())
	if !errors.Is(err, transport.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized without token, got %v", err)
	}

	anon.SetToken("not-a-jwt")
	_, err = anon.PendingSessions(context.Background())
	if !errors.Is(err, transport.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized with a bad token, got %v", err)
	}
}

func TestTokenRequiresPlayerName(t *testing.T) {
	ts := newTestServer(t)
	api := transport.NewAPI(transport.NewPullClient(ts.URL, 2*time.Second))

	_, err := api.Token(context.Background(), "a.b")
	if !transport.IsRejected(err, wire.ReasonInvalidInput) {
		t.Errorf("expected invalid_input, got %v", err)
	}
}

func TestLobby(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	alice, _ := ts.login(t, "alice")
	bob, _ := ts.login(t, "bob")

	sum, err := alice.NewSession(ctx, "hard")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if sum.Status != wire.StatusWaiting || sum.WordLength != 3 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	if _, err := alice.NewSession(ctx, "impossible"); !transport.IsRejected(err, wire.ReasonInvalidInput) {
		t.Errorf("expected invalid_input for unknown difficulty, got %v", err)
	}

	own, err := alice.PendingSessions(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(own) != 0 {
		t.Errorf("creator should not see own session as joinable, got %d", len(own))
	}

	pending, err := bob.PendingSessions(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].SessionID != sum.SessionID {
		t.Fatalf("expected bob to see %s, got %+v", sum.SessionID, pending)
	}

	joined, err := bob.JoinSession(ctx, sum.SessionID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Status != wire.StatusActive {
		t.Errorf("expected active after join, got %s", joined.Status)
	}

	carol, _ := ts.login(t, "carol")
	if _, err := carol.JoinSession(ctx, sum.SessionID); !transport.IsRejected(err, wire.ReasonNotJoinable) {
		t.Errorf("expected not_joinable for a full session, got %v", err)
	}
	if _, err := carol.State(ctx, sum.SessionID); !transport.IsRejected(err, wire.ReasonNotParticipant) {
		t.Errorf("expected not_participant for an outsider, got %v", err)
	}
	if _, err := carol.State(ctx, "missing"); !transport.IsRejected(err, wire.ReasonNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}

	if _, err := bob.Pause(ctx, sum.SessionID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	paused, err := alice.PausedSessions(ctx)
	if err != nil {
		t.Fatalf("paused: %v", err)
	}
	if len(paused) != 1 {
		t.Errorf("expected alice to see one paused session, got %d", len(paused))
	}
}

func TestFullGame(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	alice, bob, sid := ts.startGame(t)

	_, err := bob.GuessLetter(ctx, sid, "c", 0)
	var rej *transport.RejectedError
	if !errors.As(err, &rej) || rej.Reason != wire.ReasonNotYourTurn || rej.Status != http.StatusConflict {
		t.Fatalf("expected 409 not_your_turn, got %v", err)
	}

	ts.clock.Advance(3 * time.Second)
	resp, err := alice.GuessLetter(ctx, sid, "c", 0)
	if err != nil {
		t.Fatalf("guess letter: %v", err)
	}
	if resp.Correct == nil || !*resp.Correct {
		t.Fatalf("expected correct guess, got %+v", resp)
	}
	if *resp.State.Turn != "bob" || resp.State.Scores["alice"] != pointsCorrectLetter || *resp.State.Coins != 4 {
		t.Errorf("unexpected state after guess: %+v", resp.State)
	}
	if got := resp.State.Clocks["alice"]; got != int(Budget(DifficultyEasy).Seconds())-3 {
		t.Errorf("expected alice charged 3s, got %d", got)
	}

	hint, err := alice.Hint(ctx, sid)
	if err != nil {
		t.Fatalf("hint: %v", err)
	}
	if hint.Hint != "pet" || *hint.State.Coins != 3 {
		t.Errorf("unexpected hint response: %+v", hint)
	}

	resp, err = bob.GuessWord(ctx, sid, "cot")
	if err != nil {
		t.Fatalf("guess word: %v", err)
	}
	if resp.Correct == nil || *resp.Correct {
		t.Fatalf("expected wrong word, got %+v", resp)
	}
	if *resp.State.Status != wire.StatusFinished || resp.State.Winner == nil || *resp.State.Winner != "alice" {
		t.Errorf("expected alice to win, got %+v", resp.State)
	}
	if resp.Detail != "the word was CAT" {
		t.Errorf("unexpected detail %q", resp.Detail)
	}

	if _, err := alice.Hint(ctx, sid); !transport.IsRejected(err, wire.ReasonNotActive) {
		t.Errorf("expected not_active after finish, got %v", err)
	}
}

func TestActionBodyValidation(t *testing.T) {
	ts := newTestServer(t)
	_, _, sid := ts.startGame(t)
	_, tok := ts.login(t, "alice")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/session/"+sid+"/guess-letter", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	var body wire.ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != wire.ReasonInvalidInput {
		t.Errorf("expected invalid_input, got %q", body.Error)
	}
}

func TestTimeoutCheckOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	_, bob, sid := ts.startGame(t)

	before, err := bob.State(ctx, sid)
	if err != nil {
		t.Fatalf("state: %v", err)
	}

	resp, err := bob.TimeoutCheck(ctx, sid)
	if err != nil {
		t.Fatalf("timeout check: %v", err)
	}
	if resp.TimedOut == nil || *resp.TimedOut {
		t.Fatalf("expected no timeout yet, got %+v", resp)
	}
	if resp.State.Seq <= before.Seq {
		t.Errorf("expected seq to move past %d, got %d", before.Seq, resp.State.Seq)
	}

	ts.clock.Advance(Budget(DifficultyEasy) + time.Second)
	resp, err = bob.TimeoutCheck(ctx, sid)
	if err != nil {
		t.Fatalf("timeout check: %v", err)
	}
	if resp.TimedOut == nil || !*resp.TimedOut {
		t.Fatalf("expected confirmed timeout, got %+v", resp)
	}
	if *resp.State.Status != wire.StatusFinished || *resp.State.Winner != "bob" {
		t.Errorf("expected bob to win on time, got %+v", resp.State)
	}
}

func TestLateMoveLosesOnTime(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	alice, bob, sid := ts.startGame(t)

	ts.clock.Advance(Budget(DifficultyEasy) + time.Minute)
	_, err := alice.GuessWord(ctx, sid, "cat")
	if !transport.IsRejected(err, wire.ReasonTimedOut) {
		t.Fatalf("expected timed_out, got %v", err)
	}

	doc, err := bob.State(ctx, sid)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if *doc.Status != wire.StatusFinished || doc.Winner == nil || *doc.Winner != "bob" {
		t.Errorf("expected bob to win on time, got %+v", doc)
	}
	if doc.Scores["alice"] != 0 {
		t.Errorf("a late word must not score, got %d", doc.Scores["alice"])
	}
}

func TestPushDeliversPersonalizedEvents(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	alice, _, sid := ts.startGame(t)
	_, bobToken := ts.login(t, "bob")

	dialer := transport.NewWSDialer(ts.URL, 2*time.Second)
	push, err := dialer.OpenPush(ctx, sid, transport.Identity{PlayerID: "bob", Token: bobToken})
	if err != nil {
		t.Fatalf("open push: %v", err)
	}
	defer push.Close()

	next := func() wire.Event {
		t.Helper()
		select {
		case ev, ok := <-push.Events():
			if !ok {
				t.Fatal("push closed early")
			}
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for push event")
		}
		return wire.Event{}
	}

	first := next()
	if first.Type != wire.EventTypeStateSync {
		t.Fatalf("expected stateSync on connect, got %s", first.Type)
	}

	if _, err := alice.RevealLetter(ctx, sid); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	ev := next()
	if ev.Type != wire.EventTypeLetterRevealed || ev.Seq <= first.Seq {
		t.Fatalf("expected letterRevealed after seq %d, got %s at %d", first.Seq, ev.Type, ev.Seq)
	}
	doc, err := wire.ParseEventState(&ev)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if len(doc.Revealed) != 0 {
		t.Errorf("bob must not see alice's private reveal, got %v", doc.Revealed)
	}
	if doc.Coins == nil || *doc.Coins != DefaultRules().StartingCoins {
		t.Errorf("expected bob's own balance in his event, got %v", doc.Coins)
	}

	if err := push.Send(ctx, wire.ClientMessage{Action: "sync"}); err != nil {
		t.Fatalf("send sync: %v", err)
	}
	if ev := next(); ev.Type != wire.EventTypeStateSync {
		t.Errorf("expected stateSync in answer to sync, got %s", ev.Type)
	}
}

func TestPushRejectsOutsiders(t *testing.T) {
	ts := newTestServer(t)
	_, _, sid := ts.startGame(t)
	_, carolToken := ts.login(t, "carol")

	dialer := transport.NewWSDialer(ts.URL, 2*time.Second)
	_, err := dialer.OpenPush(context.Background(), sid, transport.Identity{PlayerID: "carol", Token: carolToken})
	var connErr *transport.ConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("expected ConnectionError for an outsider, got %v", err)
	}

	_, err = dialer.OpenPush(context.Background(), sid, transport.Identity{PlayerID: "carol", Token: "bad"})
	if !errors.Is(err, transport.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for a bad token, got %v", err)
	}
}

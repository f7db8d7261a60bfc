package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// pushServer upgrades /ws/session/{id} and hands the connection to serve
func pushServer(t *testing.T, serve func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serve(conn)
	}))
}

func event(t *testing.T, typ wire.EventType, seq uint64, doc wire.StateDoc) []byte {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal doc: %v", err)
	}
	msg, err := json.Marshal(wire.Event{ID: "e", SessionID: "s-1", Type: typ, Seq: seq, Data: data})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return msg
}

func nextEvent(t *testing.T, p Push) (wire.Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-p.Events():
		return ev, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push event")
		return wire.Event{}, false
	}
}

func TestWSPushDeliversKnownEventsInOrder(t *testing.T) {
	turn := "bob"
	srv := pushServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, event(t, wire.EventTypeTurnChanged, 5, wire.StateDoc{Turn: &turn}))
		_ = conn.WriteMessage(websocket.TextMessage, event(t, "somethingNew", 6, wire.StateDoc{}))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage, event(t, wire.EventTypeHintTaken, 7, wire.StateDoc{Hints: []string{"sweet"}}))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
		_ = conn.Close()
	})
	defer srv.Close()

	p, err := NewWSDialer(srv.URL, time.Second).OpenPush(context.Background(), "s-1", Identity{PlayerID: "alice", Token: "good"})
	if err != nil {
		t.Fatalf("OpenPush: %v", err)
	}
	defer p.Close()

	ev, _ := nextEvent(t, p)
	if ev.Type != wire.EventTypeTurnChanged || ev.Seq != 5 {
		t.Fatalf("expected turnChanged seq 5, got %s seq %d", ev.Type, ev.Seq)
	}
	doc, err := wire.ParseEventState(&ev)
	if err != nil || doc == nil || *doc.Turn != "bob" || doc.Seq != 5 {
		t.Fatalf("unexpected payload %+v err=%v", doc, err)
	}

	ev, _ = nextEvent(t, p)
	if ev.Type != wire.EventTypeHintTaken || ev.Seq != 7 {
		t.Fatalf("expected hintTaken seq 7, got %s seq %d", ev.Type, ev.Seq)
	}

	ev, ok := nextEvent(t, p)
	if !ok || ev.Type != wire.EventTypeDisconnected || ev.Err == nil {
		t.Fatalf("expected disconnected event, got %+v ok=%v", ev, ok)
	}
	if _, ok := nextEvent(t, p); ok {
		t.Fatal("expected events channel closed after disconnect")
	}

	if err := p.Send(context.Background(), wire.ClientMessage{Action: "ping"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after remote close, got %v", err)
	}
}

func TestWSPushSendAndClose(t *testing.T) {
	received := make(chan wire.ClientMessage, 1)
	srv := pushServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			var msg wire.ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
	})
	defer srv.Close()

	p, err := NewWSDialer(srv.URL, time.Second).OpenPush(context.Background(), "s-1", Identity{PlayerID: "alice", Token: "good"})
	if err != nil {
		t.Fatalf("OpenPush: %v", err)
	}

	if err := p.Send(context.Background(), wire.ClientMessage{Action: "ping"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case msg := <-received:
		if msg.Action != "ping" {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received message")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// a local close ends the stream without a disconnected event
	for ev := range p.Events() {
		if ev.Type == wire.EventTypeDisconnected {
			t.Fatal("local close must not report a disconnect")
		}
	}
	if err := p.Send(context.Background(), wire.ClientMessage{Action: "ping"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestWSPushHandshakeRejected(t *testing.T) {
	srv := pushServer(t, func(conn *websocket.Conn) { conn.Close() })
	defer srv.Close()

	_, err := NewWSDialer(srv.URL, time.Second).OpenPush(context.Background(), "s-1", Identity{PlayerID: "alice", Token: "bad"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestWSPushHandshakeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewWSDialer(srv.URL, 50*time.Millisecond).OpenPush(context.Background(), "s-1", Identity{PlayerID: "alice", Token: "good"})
	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConnectionError, got %T: %v", err, err)
	}
}

func TestParseClientSubject(t *testing.T) {
	sid, pid, ok := ParseClientSubject("wordduel", ClientSubject("wordduel", "s-1", "alice"))
	if !ok || sid != "s-1" || pid != "alice" {
		t.Errorf("got session=%q player=%q ok=%v", sid, pid, ok)
	}
	for _, subject := range []string{
		EventSubject("wordduel", "s-1", "alice"),
		"other.sessions.s-1.players.alice.client",
		"wordduel.sessions..players.alice.client",
		"wordduel.sessions.s-1.players.alice.client.extra",
	} {
		if _, _, ok := ParseClientSubject("wordduel", subject); ok {
			t.Errorf("expected %q to be rejected", subject)
		}
	}
}

func TestNATSSubjects(t *testing.T) {
	if got := EventSubject("wordduel", "s-1", "alice"); got != "wordduel.sessions.s-1.players.alice.events" {
		t.Fatalf("unexpected event subject %s", got)
	}
	if got := ClientSubject("wordduel", "s-1", "alice"); got != "wordduel.sessions.s-1.players.alice.client" {
		t.Fatalf("unexpected client subject %s", got)
	}
}

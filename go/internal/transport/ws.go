package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

const wsWriteTimeout = 10 * time.Second

// WSDialer opens push channels over WebSocket at <base>/ws/session/{id}
type WSDialer struct {
	baseURL          string
	handshakeTimeout time.Duration
}

// NewWSDialer accepts an http(s) or ws(s) base URL
func NewWSDialer(baseURL string, handshakeTimeout time.Duration) *WSDialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return &WSDialer{baseURL: base, handshakeTimeout: handshakeTimeout}
}

func (d *WSDialer) OpenPush(ctx context.Context, sessionID string, id Identity) (Push, error) {
	addr := d.baseURL + "/ws/session/" + url.PathEscape(sessionID)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.handshakeTimeout,
	}
	header := http.Header{}
	if id.Token != "" {
		header.Set("Authorization", "Bearer "+id.Token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.handshakeTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, addr, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("push handshake: %w", ErrUnauthorized)
		}
		return nil, &ConnectionError{Addr: addr, Err: err}
	}

	p := &wsPush{stream: newStream(sessionID), conn: conn}
	go p.readLoop()

	log.Info().
		Str("session_id", sessionID).
		Str("player_id", id.PlayerID).
		Str("addr", addr).
		Msg("push channel opened")
	return p, nil
}

type wsPush struct {
	*stream
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (p *wsPush) readLoop() {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.disconnected(err)
			return
		}

		var ev wire.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn().Err(err).Str("session_id", p.sessionID).Msg("dropping malformed push message")
			continue
		}
		if !ev.Type.Known() {
			log.Debug().Str("session_id", p.sessionID).Str("type", string(ev.Type)).Msg("ignoring unknown event type")
			continue
		}
		p.emit(ev)
	}
}

// Send writes one message. It is best effort and never retries.
func (p *wsPush) Send(ctx context.Context, msg wire.ClientMessage) error {
	if !p.open() {
		return ErrNotConnected
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.conn.SetWriteDeadline(deadline); err != nil {
		return &NetworkError{Op: "push send", Err: err}
	}
	if err := p.conn.WriteJSON(msg); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrNotConnected
		}
		return &NetworkError{Op: "push send", Err: err}
	}
	return nil
}

// Close is idempotent. Events still in flight are dropped.
func (p *wsPush) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)

		p.writeMu.Lock()
		_ = p.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		p.writeMu.Unlock()

		err = p.conn.Close()
		p.end()
		log.Debug().Str("session_id", p.sessionID).Msg("push channel closed")
	})
	return err
}

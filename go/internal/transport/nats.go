package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// NATSConfig holds configuration for the NATS push channel
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Timeout       time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS push configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "wordduel",
		Timeout:       DefaultHandshakeTimeout,
		MaxReconnects: 5,
		ReconnectWait: 2 * time.Second,
	}
}

// EventSubject is where the server publishes a player's personalized events
func EventSubject(prefix, sessionID, playerID string) string {
	return fmt.Sprintf("%s.sessions.%s.players.%s.events", prefix, sessionID, playerID)
}

// ClientSubject is where a player's client messages are published
func ClientSubject(prefix, sessionID, playerID string) string {
	return fmt.Sprintf("%s.sessions.%s.players.%s.client", prefix, sessionID, playerID)
}

// ParseClientSubject recovers the session and player from a ClientSubject
func ParseClientSubject(prefix, subject string) (sessionID, playerID string, ok bool) {
	rest, found := strings.CutPrefix(subject, prefix+".sessions.")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, ".")
	if len(parts) != 4 || parts[1] != "players" || parts[3] != "client" || parts[0] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[2], true
}

// NATSDialer opens push channels as NATS subscriptions
type NATSDialer struct {
	config NATSConfig
}

func NewNATSDialer(config NATSConfig) *NATSDialer {
	if config.Timeout <= 0 {
		config.Timeout = DefaultHandshakeTimeout
	}
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = "wordduel"
	}
	return &NATSDialer{config: config}
}

func (d *NATSDialer) OpenPush(ctx context.Context, sessionID string, id Identity) (Push, error) {
	p := &natsPush{
		stream:  newStream(sessionID),
		subject: ClientSubject(d.config.SubjectPrefix, sessionID, id.PlayerID),
	}

	timeout := d.config.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}

	opts := []nats.Option{
		nats.Name("wordduel-" + id.PlayerID),
		nats.Timeout(timeout),
		nats.MaxReconnects(d.config.MaxReconnects),
		nats.ReconnectWait(d.config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Str("session_id", sessionID).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Str("session_id", sessionID).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Str("session_id", sessionID).Msg("NATS error")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			err := nc.LastError()
			if err == nil {
				err = errors.New("nats connection closed")
			}
			p.disconnected(err)
		}),
	}

	nc, err := nats.Connect(d.config.URL, opts...)
	if err != nil {
		if errors.Is(err, nats.ErrAuthorization) {
			return nil, fmt.Errorf("push handshake: %w", ErrUnauthorized)
		}
		return nil, &ConnectionError{Addr: d.config.URL, Err: err}
	}
	p.nc = nc

	subject := EventSubject(d.config.SubjectPrefix, sessionID, id.PlayerID)
	sub, err := nc.Subscribe(subject, p.handle)
	if err != nil {
		p.Close()
		return nil, &ConnectionError{Addr: d.config.URL, Err: fmt.Errorf("subscribe %s: %w", subject, err)}
	}
	if err := nc.FlushTimeout(timeout); err != nil {
		p.Close()
		return nil, &ConnectionError{Addr: d.config.URL, Err: fmt.Errorf("flush subscription: %w", err)}
	}
	p.sub = sub

	log.Info().
		Str("session_id", sessionID).
		Str("player_id", id.PlayerID).
		Str("subject", subject).
		Msg("push channel subscribed")
	return p, nil
}

type natsPush struct {
	*stream
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string

	closeOnce sync.Once
}

// handle runs on the subscription's goroutine, which preserves publish order
func (p *natsPush) handle(msg *nats.Msg) {
	var ev wire.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed push message")
		return
	}
	if !ev.Type.Known() {
		log.Debug().Str("subject", msg.Subject).Str("type", string(ev.Type)).Msg("ignoring unknown event type")
		return
	}
	p.emit(ev)
}

func (p *natsPush) Send(ctx context.Context, msg wire.ClientMessage) error {
	if !p.open() || p.nc == nil || !p.nc.IsConnected() {
		return ErrNotConnected
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return &NetworkError{Op: "push send", Err: err}
	}
	return nil
}

func (p *natsPush) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		if p.sub != nil {
			if err := p.sub.Unsubscribe(); err != nil {
				log.Debug().Err(err).Str("session_id", p.sessionID).Msg("unsubscribe failed")
			}
		}
		if p.nc != nil {
			p.nc.Close()
		}
		p.end()
		log.Debug().Str("session_id", p.sessionID).Msg("push channel closed")
	})
	return nil
}

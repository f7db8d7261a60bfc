package matchserver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordduel/go/internal/transport"
	"github.com/mcdev12/wordduel/go/internal/wire"
)

// NATSPublisher publishes each player's events to their own NATS subject
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	sub    *nats.Subscription
	syncFn SyncFunc
}

// NewNATSPublisher connects to url and listens for client messages under prefix.
// A sync request is answered with syncFn's event on the sender's subject.
func NewNATSPublisher(url, prefix string, syncFn SyncFunc) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("wordduel-matchserver"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	p := &NATSPublisher{nc: nc, prefix: prefix, syncFn: syncFn}

	clientSubjects := transport.ClientSubject(prefix, "*", "*")
	sub, err := nc.Subscribe(clientSubjects, p.handleClientMessage)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", clientSubjects, err)
	}
	p.sub = sub

	log.Info().Str("url", url).Str("prefix", prefix).Msg("NATS publisher connected")
	return p, nil
}

// Notify publishes without waiting; NATS buffers while reconnecting
func (p *NATSPublisher) Notify(sessionID, playerID string, event *wire.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}
	subject := transport.EventSubject(p.prefix, sessionID, playerID)
	if err := p.nc.Publish(subject, data); err != nil {
		log.Error().
			Err(err).
			Str("subject", subject).
			Str("event_type", string(event.Type)).
			Msg("failed to publish event")
		return
	}
	log.Debug().
		Str("subject", subject).
		Uint64("seq", event.Seq).
		Int("size", len(data)).
		Msg("published event to NATS")
}

func (p *NATSPublisher) handleClientMessage(msg *nats.Msg) {
	var cm wire.ClientMessage
	if err := json.Unmarshal(msg.Data, &cm); err != nil {
		log.Debug().Err(err).Str("subject", msg.Subject).Msg("ignoring malformed client message")
		return
	}

	sessionID, playerID, ok := transport.ParseClientSubject(p.prefix, msg.Subject)
	if !ok {
		log.Debug().Str("subject", msg.Subject).Msg("ignoring message on unexpected subject")
		return
	}

	switch cm.Action {
	case wire.ClientActionSync:
		ev, err := p.syncFn(playerID, sessionID)
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("sync request failed")
			return
		}
		p.Notify(sessionID, playerID, ev)
	default:
		log.Debug().
			Str("subject", msg.Subject).
			Str("action", cm.Action).
			Msg("received client message")
	}
}

// Close drains pending publishes and disconnects
func (p *NATSPublisher) Close() error {
	if p.sub != nil {
		_ = p.sub.Unsubscribe()
	}
	return p.nc.Drain()
}

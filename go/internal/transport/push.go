package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// DefaultHandshakeTimeout bounds OpenPush
const DefaultHandshakeTimeout = 5 * time.Second

const eventBufferSize = 64

// Identity authenticates a participant on the push channel
type Identity struct {
	PlayerID string
	Token    string
}

// Push is an open push channel. Events yields messages in arrival order and is
// closed after Close or after the remote end goes away, in which case the last
// event is of type Disconnected.
type Push interface {
	Events() <-chan wire.Event
	Send(ctx context.Context, msg wire.ClientMessage) error
	Close() error
}

// Dialer opens push channels
type Dialer interface {
	OpenPush(ctx context.Context, sessionID string, id Identity) (Push, error)
}

// stream is the event plumbing shared by push implementations
type stream struct {
	sessionID string
	events    chan wire.Event
	done      chan struct{}

	mu      sync.RWMutex
	ended   bool
	endOnce sync.Once
}

func newStream(sessionID string) *stream {
	return &stream{
		sessionID: sessionID,
		events:    make(chan wire.Event, eventBufferSize),
		done:      make(chan struct{}),
	}
}

func (s *stream) Events() <-chan wire.Event {
	return s.events
}

func (s *stream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *stream) open() bool {
	if s.closed() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.ended
}

// emit delivers an event unless the stream was closed locally
func (s *stream) emit(ev wire.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ended {
		return
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// disconnected reports a remote closure and ends the stream
func (s *stream) disconnected(err error) {
	if s.closed() {
		s.end()
		return
	}
	log.Warn().Err(err).Str("session_id", s.sessionID).Msg("push channel closed by remote")
	s.emit(wire.Event{
		ID:        uuid.NewString(),
		SessionID: s.sessionID,
		Type:      wire.EventTypeDisconnected,
		Timestamp: time.Now(),
		Err:       err,
	})
	s.end()
}

func (s *stream) end() {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.ended = true
		close(s.events)
		s.mu.Unlock()
	})
}

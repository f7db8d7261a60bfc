package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/wordduel/go/internal/clock"
	"github.com/mcdev12/wordduel/go/internal/protocol"
	"github.com/mcdev12/wordduel/go/internal/session"
	"github.com/mcdev12/wordduel/go/internal/transport"
	"github.com/mcdev12/wordduel/go/internal/wire"
)

const (
	DefaultPollInterval = 3 * time.Second
	noticeBuffer        = 32
)

// Config identifies the session a Runner owns
type Config struct {
	SessionID    string
	Player       session.PlayerID
	Token        string
	PollInterval time.Duration
	TickInterval time.Duration
}

// Runner owns one player's view of one session. It feeds the engine from the
// pull and push channels, drives the local clock and escalates suspected
// timeouts. Actions go through Protocol.
type Runner struct {
	cfg    Config
	api    *transport.API
	dialer transport.Dialer
	clock  clockwork.Clock

	engine *session.Engine
	timer  *clock.Clock
	proto  *protocol.Protocol

	notices chan Notice

	mu       sync.Mutex
	push     transport.Push
	pullOnly bool

	// recheck is set when a timeout check could not reach the server
	recheck atomic.Bool
}

// New builds a runner. A nil dialer runs the session on polling alone.
func New(cfg Config, api *transport.API, dialer transport.Dialer, clk clockwork.Clock) *Runner {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = clock.DefaultTickInterval
	}
	if cfg.Token != "" {
		api.SetToken(cfg.Token)
	}

	engine := session.NewEngine(cfg.SessionID, cfg.Player, clk)
	return &Runner{
		cfg:      cfg,
		api:      api,
		dialer:   dialer,
		clock:    clk,
		engine:   engine,
		timer:    clock.New(clk),
		proto:    protocol.New(engine, api),
		notices:  make(chan Notice, noticeBuffer),
		pullOnly: dialer == nil,
	}
}

func (r *Runner) Engine() *session.Engine { return r.engine }

func (r *Runner) Protocol() *protocol.Protocol { return r.proto }

func (r *Runner) Clock() *clock.Clock { return r.timer }

// Notices delivers recoverable problems and game announcements. It is closed
// when Run returns.
func (r *Runner) Notices() <-chan Notice { return r.notices }

// PullOnly reports whether the runner is relying on polling alone
func (r *Runner) PullOnly() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pullOnly
}

// Run blocks until ctx is cancelled or the server rejects the credentials.
// Cancellation returns nil; a rejected credential returns an error wrapping
// transport.ErrUnauthorized.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.notices)

	if err := r.pull(ctx); err != nil {
		return fmt.Errorf("initial state: %w", err)
	}

	r.openPush(ctx)
	defer r.closePush()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.consumePush(gctx) })
	g.Go(func() error { return r.poll(gctx) })
	g.Go(func() error { return r.timer.Run(gctx, r.cfg.TickInterval) })
	g.Go(func() error { return r.watchTimeouts(gctx) })
	g.Go(func() error { return r.follow(gctx) })

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Str("session_id", r.cfg.SessionID).Msg("session runner stopped")
		return err
	}
	log.Info().Str("session_id", r.cfg.SessionID).Msg("session runner stopped")
	return nil
}

// pull fetches and merges the authoritative state
func (r *Runner) pull(ctx context.Context) error {
	doc, err := r.api.State(ctx, r.cfg.SessionID)
	if err != nil {
		return err
	}
	r.engine.Merge(session.UpdateFromDoc(doc), session.SourcePull)
	return nil
}

func (r *Runner) openPush(ctx context.Context) {
	if r.dialer == nil {
		return
	}
	push, err := r.dialer.OpenPush(ctx, r.cfg.SessionID, transport.Identity{
		PlayerID: string(r.cfg.Player),
		Token:    r.cfg.Token,
	})
	if err != nil {
		log.Warn().Err(err).Str("session_id", r.cfg.SessionID).Msg("push unavailable, polling only")
		r.degrade()
		r.notify(NoticeWarning, "live updates unavailable, polling every "+r.cfg.PollInterval.String(), err)
		return
	}

	r.mu.Lock()
	r.push = push
	r.mu.Unlock()
}

func (r *Runner) closePush() {
	r.mu.Lock()
	push := r.push
	r.push = nil
	r.mu.Unlock()
	if push != nil {
		_ = push.Close()
	}
}

func (r *Runner) degrade() {
	r.mu.Lock()
	r.pullOnly = true
	r.mu.Unlock()
}

// consumePush merges push events until the channel ends
func (r *Runner) consumePush(ctx context.Context) error {
	r.mu.Lock()
	push := r.push
	r.mu.Unlock()
	if push == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-push.Events():
			if !ok {
				return nil
			}
			if ev.Type == wire.EventTypeDisconnected {
				r.degrade()
				r.notify(NoticeWarning, "live updates lost, polling every "+r.cfg.PollInterval.String(), ev.Err)
				return nil
			}
			doc, err := wire.ParseEventState(&ev)
			if err != nil {
				log.Debug().Err(err).Str("event_type", string(ev.Type)).Msg("skipping undecodable event")
				continue
			}
			if doc == nil {
				continue
			}
			r.engine.Merge(session.UpdateFromDoc(doc), session.SourcePush)
		}
	}
}

// refresh asks for the authoritative state. A live push channel is asked for a
// stateSync; otherwise, or when the request cannot be sent, the state is pulled.
func (r *Runner) refresh(ctx context.Context) error {
	if push := r.livePush(); push != nil {
		err := push.Send(ctx, wire.ClientMessage{Action: wire.ClientActionSync})
		if err == nil {
			return nil
		}
		log.Debug().Err(err).Str("session_id", r.cfg.SessionID).Msg("push sync failed, pulling")
	}
	return r.pull(ctx)
}

func (r *Runner) livePush() transport.Push {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pullOnly {
		return nil
	}
	return r.push
}

// poll refreshes on a fixed cadence and re-arms a timeout check that failed
// since the last round. Failures other than a rejected credential become
// notices and polling continues.
func (r *Runner) poll(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if r.engine.Snapshot().Phase == session.PhaseFinished {
				continue
			}
			err := r.refresh(ctx)
			switch {
			case err == nil:
			case errors.Is(err, transport.ErrUnauthorized):
				return err
			case ctx.Err() != nil:
				return nil
			default:
				r.notify(NoticeWarning, "could not refresh session", err)
			}
			if r.recheck.CompareAndSwap(true, false) {
				r.timer.Rearm()
			}
		}
	}
}

// watchTimeouts asks the server to settle each locally suspected timeout. A check
// that never reached a verdict is tried again after the next poll.
func (r *Runner) watchTimeouts(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case player := <-r.timer.Suspected():
			res, err := r.proto.OnSuspectedTimeout(ctx)
			switch {
			case err == nil:
				if res.TimedOut != nil && *res.TimedOut {
					r.notify(NoticeInfo, string(player)+" ran out of time", nil)
				}
			case errors.Is(err, transport.ErrUnauthorized):
				return err
			case errors.Is(err, protocol.ErrIllegalMove), ctx.Err() != nil:
			default:
				r.notify(NoticeWarning, "could not confirm timeout", err)
				var rejected *transport.RejectedError
				if !errors.As(err, &rejected) {
					r.recheck.Store(true)
				}
			}
		}
	}
}

type seedKey struct {
	at      time.Time
	running session.PlayerID
	phase   session.Phase
}

// follow re-seeds the clock whenever the clock baseline changes and announces
// the outcome once
func (r *Runner) follow(ctx context.Context) error {
	states, unsubscribe := r.engine.Subscribe()
	defer unsubscribe()

	var last seedKey
	announced := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-states:
			if !ok {
				return nil
			}
			key := seedKey{at: s.ClockSyncAt, phase: s.Phase}
			if s.Phase == session.PhaseActive {
				key.running = s.Turn
			}
			if key != last {
				r.timer.SeedFromState(s)
				last = key
			}
			if s.Phase == session.PhaseFinished && s.HasOutcome() && !announced {
				announced = true
				r.notify(NoticeInfo, outcome(s), nil)
			}
		}
	}
}

func outcome(s session.State) string {
	switch {
	case s.Draw:
		return "game over: draw"
	case s.Winner == s.Self:
		return "game over: you win"
	default:
		return "game over: " + string(s.Winner) + " wins"
	}
}

package clock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordduel/go/internal/session"
)

// DefaultTickInterval is the cadence Run uses when none is given
const DefaultTickInterval = time.Second

// Clock is a local countdown per player derived from the last authoritative
// baseline. Only the running player is charged for elapsed time; everyone else
// is frozen at their seeded value.
type Clock struct {
	mu    sync.Mutex
	clock clockwork.Clock

	remaining map[session.PlayerID]time.Duration
	asOf      time.Time
	running   session.PlayerID

	// fired is set once the running player's zero crossing has been reported
	// for the current baseline
	fired     bool
	suspected chan session.PlayerID
}

// New creates an unseeded clock. A nil clock means the real wall clock.
func New(clock clockwork.Clock) *Clock {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Clock{
		clock:     clock,
		remaining: make(map[session.PlayerID]time.Duration),
		suspected: make(chan session.PlayerID, 1),
	}
}

// Seed resets the baseline to the given remaining seconds as of asOf. running is
// the player whose time is being spent; an empty id freezes every clock.
func (c *Clock) Seed(remainingSec map[session.PlayerID]int, asOf time.Time, running session.PlayerID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.remaining = make(map[session.PlayerID]time.Duration, len(remainingSec))
	for p, sec := range remainingSec {
		if sec < 0 {
			sec = 0
		}
		c.remaining[p] = time.Duration(sec) * time.Second
	}
	c.asOf = asOf
	c.running = running
	c.fired = false

	log.Debug().
		Str("running", string(running)).
		Time("as_of", asOf).
		Int("players", len(remainingSec)).
		Msg("clock seeded")
}

// SeedFromState seeds the clock from an engine snapshot. The turn holder runs
// only while the session is Active.
func (c *Clock) SeedFromState(s session.State) {
	var running session.PlayerID
	if s.Phase == session.PhaseActive {
		running = s.Turn
	}
	asOf := s.ClockSyncAt
	if asOf.IsZero() {
		asOf = c.clock.Now()
	}
	c.Seed(s.Clocks, asOf, running)
}

// Running returns the player currently being charged, if any
func (c *Clock) Running() session.PlayerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// DisplayRemaining returns max(0, seeded - (now - asOf)) for the running player
// and the seeded value for everyone else.
func (c *Clock) DisplayRemaining(player session.PlayerID, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayLocked(player, now)
}

func (c *Clock) displayLocked(player session.PlayerID, now time.Time) time.Duration {
	seeded := c.remaining[player]
	if player == "" || player != c.running {
		return seeded
	}
	elapsed := now.Sub(c.asOf)
	if elapsed < 0 {
		elapsed = 0
	}
	if left := seeded - elapsed; left > 0 {
		return left
	}
	return 0
}

// Display returns the remaining time for every seeded player
func (c *Clock) Display(now time.Time) map[session.PlayerID]time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[session.PlayerID]time.Duration, len(c.remaining))
	for p := range c.remaining {
		out[p] = c.displayLocked(p, now)
	}
	return out
}

// Tick reports whether the running player just reached zero. It fires at most
// once per baseline; a new Seed or Rearm re-arms it.
func (c *Clock) Tick(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running == "" || c.fired {
		return false
	}
	if _, ok := c.remaining[c.running]; !ok {
		return false
	}
	if c.displayLocked(c.running, now) > 0 {
		return false
	}

	c.fired = true
	select {
	case c.suspected <- c.running:
	default:
		log.Warn().Str("player", string(c.running)).Msg("suspected timeout already pending")
	}
	log.Info().Str("player", string(c.running)).Msg("local timeout suspected")
	return true
}

// Rearm lets Tick report the current baseline's zero crossing again, for when
// the previous report could not be settled
func (c *Clock) Rearm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fired = false
}

// Suspected delivers the player whose clock ran out locally
func (c *Clock) Suspected() <-chan session.PlayerID {
	return c.suspected
}

// Run ticks on a fixed cadence until ctx is cancelled
func (c *Clock) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.Chan():
			c.Tick(now)
		}
	}
}

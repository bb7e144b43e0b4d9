package tether

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/tetherctl/internal/observability"
	"github.com/danmuck/tetherctl/internal/probe"
	"github.com/danmuck/tetherctl/internal/session"
	"github.com/danmuck/tetherctl/internal/transport"
)

var ErrEndpointUnreachable = errors.New("tether: endpoint unreachable")

// State is the controller's connection state for its endpoint.
type State string

const (
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateUnreachable  State = "unreachable"
	StateFailed       State = "failed"
)

// Result is one command's outcome plus recovery metadata. The reboot flag
// is set when the command succeeded only after the controller detected
// and recovered from a remote reboot.
type Result struct {
	transport.Result
	RecoveredAfterReboot bool
}

// Status is a point-in-time snapshot for status surfaces.
type Status struct {
	Endpoint          string    `json:"endpoint"`
	State             State     `json:"state"`
	SessionGeneration uint64    `json:"session_generation"`
	BootToken         string    `json:"boot_token"`
	BootTokenObserved time.Time `json:"boot_token_observed"`
	Episodes          uint64    `json:"episodes"`
	LastError         string    `json:"last_error,omitempty"`
}

// episode tracks one Execute call's retry budget across however many
// probe/open attempts it takes.
type episode struct {
	started   time.Time
	deadline  time.Time
	attempts  int
	lastDelay time.Duration
	lastErr   error
}

func newEpisode(budget time.Duration) *episode {
	now := time.Now()
	return &episode{started: now, deadline: now.Add(budget)}
}

// Controller owns the reconnection state machine for one endpoint. It is
// also the executor facade: Execute runs a command, transparently
// recovering from dropped sessions and reboots, and returns either a
// Result or a *FatalError.
type Controller struct {
	// execMu serializes Execute calls: one recovery episode runs to
	// completion before the next command is dispatched, which keeps at
	// most one open session per endpoint.
	execMu sync.Mutex

	tr     transport.Transport
	prober probe.Prober
	ep     transport.Endpoint
	cfg    session.Config
	rng    *rand.Rand
	log    zerolog.Logger

	stateMu       sync.RWMutex
	state         State
	sess          *session.Session
	lastBoot      session.BootToken
	everConnected bool
	episodes      uint64
	lastErr       error
}

func New(tr transport.Transport, prober probe.Prober, ep transport.Endpoint, cfg session.Config) *Controller {
	return &Controller{
		tr:     tr,
		prober: prober,
		ep:     ep,
		cfg:    cfg.WithDefaults(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		log:    log.With().Str("endpoint", ep.String()).Logger(),
		state:  StateReconnecting,
	}
}

// Execute runs one command against the managed endpoint. It blocks until
// a result is obtained or the state machine reaches a terminal failure
// within the configured retry budget.
func (c *Controller) Execute(ctx context.Context, command string) (Result, error) {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	start := time.Now()
	res, err := c.execute(ctx, command)

	outcome := "ok"
	if err != nil {
		var fe *FatalError
		if errors.As(err, &fe) {
			outcome = string(fe.Kind)
		} else {
			outcome = "error"
		}
	}
	observability.RecordCommand(c.ep.Addr(), outcome, time.Since(start))
	return res, err
}

// Status reports the controller's current state without mutating it.
func (c *Controller) Status() Status {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	st := Status{
		Endpoint:          c.ep.String(),
		State:             c.state,
		BootToken:         c.lastBoot.Raw,
		BootTokenObserved: c.lastBoot.ObservedAt,
		Episodes:          c.episodes,
	}
	if c.sess != nil {
		st.SessionGeneration = c.sess.Generation()
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

func (c *Controller) execute(ctx context.Context, command string) (Result, error) {
	ep := newEpisode(c.cfg.MaxTotalWait)
	var out Result

	if c.sess == nil || c.sess.Closed() {
		rebooted, err := c.reconnect(ctx, ep, c.everConnected)
		if err != nil {
			return Result{}, err
		}
		out.RecoveredAfterReboot = rebooted
	}

	recoveries := 0
	for {
		res, err := c.sess.Run(ctx, command)
		if err == nil {
			c.maybeRefreshBoot(ctx)
			out.Result = res
			return out, nil
		}
		if ctx.Err() != nil {
			return Result{}, fatal(FailureCancelled, ctx.Err())
		}

		// Any run failure that is not a caller cancellation means the
		// session is suspect: enter recovery and retry the command once
		// against the replacement session.
		c.log.Warn().Err(err).Uint64("generation", c.sess.Generation()).Msg("session_broken")
		ep.lastErr = err

		// A host that keeps accepting sessions and dropping them mid-run
		// draws down the same budget as one that never answers: check
		// the deadline and back off between recoveries so the episode
		// always terminates.
		if time.Now().After(ep.deadline) {
			return Result{}, c.exhaust(ep)
		}
		if recoveries > 0 {
			if werr := c.waitBackoff(ctx, ep); werr != nil {
				return Result{}, werr
			}
		}

		rebooted, rerr := c.reconnect(ctx, ep, true)
		if rerr != nil {
			return Result{}, rerr
		}
		out.RecoveredAfterReboot = out.RecoveredAfterReboot || rebooted
		recoveries++
	}
}

// reconnect drives one pass of the recovery loop until a fresh session is
// adopted or the episode ends in a terminal failure. With recovery set it
// reports whether the endpoint rebooted since the last known boot token.
func (c *Controller) reconnect(ctx context.Context, ep *episode, recovery bool) (bool, error) {
	c.setState(StateReconnecting)
	if c.sess != nil {
		_ = c.sess.Close()
	}
	if recovery {
		c.bumpEpisodes()
	}

	for {
		if ctx.Err() != nil {
			return false, fatal(FailureCancelled, ctx.Err())
		}
		ep.attempts++

		probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
		reachable := c.prober.Probe(probeCtx, c.ep)
		cancel()
		observability.RecordProbe(c.ep.Addr(), reachable)
		if !reachable {
			c.setState(StateUnreachable)
			ep.lastErr = ErrEndpointUnreachable
			c.log.Debug().Int("attempt", ep.attempts).Msg("probe_unreachable")
			if err := c.waitBackoff(ctx, ep); err != nil {
				return false, err
			}
			continue
		}
		c.setState(StateReconnecting)

		sess, err := session.Open(ctx, c.tr, c.ep, c.cfg)
		if err != nil {
			var oe *transport.OpenError
			if errors.As(err, &oe) && !oe.Transient() {
				// Waiting never fixes rejected credentials.
				c.setFailed(err)
				observability.RecordEpisode(c.ep.Addr(), "auth")
				c.log.Error().Err(err).Msg("open_rejected")
				return false, fatal(FailureAuth, err)
			}
			ep.lastErr = err
			c.log.Debug().Err(err).Int("attempt", ep.attempts).Msg("open_failed")
			if werr := c.waitBackoff(ctx, ep); werr != nil {
				return false, werr
			}
			continue
		}

		token, terr := sess.BootToken(ctx)
		if terr != nil {
			// Never guess reboot status from absent data: drop the
			// session and keep reconnecting.
			_ = sess.Close()
			if ctx.Err() != nil {
				return false, fatal(FailureCancelled, ctx.Err())
			}
			ep.lastErr = terr
			c.log.Debug().Err(terr).Msg("boot_token_unavailable")
			if werr := c.waitBackoff(ctx, ep); werr != nil {
				return false, werr
			}
			continue
		}

		prev := c.lastBoot
		rebooted := recovery && (prev.IsZero() || !token.Equal(prev, c.cfg.BootTokenTolerance))
		c.adopt(sess, token)
		observability.RecordEpisode(c.ep.Addr(), "connected")
		if rebooted {
			observability.RecordReboot(c.ep.Addr())
			c.log.Warn().
				Str("old_boot", prev.Raw).
				Str("new_boot", token.Raw).
				Uint64("generation", sess.Generation()).
				Msg("reboot_detected")
		} else {
			c.log.Info().
				Uint64("generation", sess.Generation()).
				Int("attempts", ep.attempts).
				Msg("connected")
		}
		return rebooted, nil
	}
}

// waitBackoff sleeps for the episode's next delay, honoring cancellation
// and the total-wait budget. Delays never decrease within an episode.
func (c *Controller) waitBackoff(ctx context.Context, ep *episode) error {
	d := session.NextBackoffDelay(c.cfg.Backoff, ep.attempts, c.rng)
	if d < ep.lastDelay {
		d = ep.lastDelay
	}
	ep.lastDelay = d

	if time.Now().Add(d).After(ep.deadline) {
		return c.exhaust(ep)
	}

	observability.RecordBackoffWait(c.ep.Addr(), d)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fatal(FailureCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// exhaust moves the controller to Failed and builds the terminal error
// for a spent retry budget.
func (c *Controller) exhaust(ep *episode) *FatalError {
	err := ep.lastErr
	if err == nil {
		err = ErrEndpointUnreachable
	}
	c.setFailed(err)
	observability.RecordEpisode(c.ep.Addr(), "exhausted")
	c.log.Error().
		Err(err).
		Int("attempts", ep.attempts).
		Dur("elapsed", time.Since(ep.started)).
		Msg("budget_exhausted")
	return fatal(FailureExhausted, fmt.Errorf("retry budget spent after %d attempts: %w", ep.attempts, err))
}

// maybeRefreshBoot opportunistically re-reads the boot token after a
// successful run, bounded by BootRefreshInterval so steady-state commands
// pay for at most one extra round-trip per interval.
func (c *Controller) maybeRefreshBoot(ctx context.Context) {
	if time.Since(c.lastBoot.ObservedAt) < c.cfg.BootRefreshInterval {
		return
	}
	token, err := c.sess.BootToken(ctx)
	if err != nil {
		// The next run will hit the broken session and recover.
		c.log.Debug().Err(err).Msg("boot_refresh_failed")
		return
	}
	c.stateMu.Lock()
	c.lastBoot = token
	c.stateMu.Unlock()
}

func (c *Controller) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

func (c *Controller) setFailed(err error) {
	c.stateMu.Lock()
	c.state = StateFailed
	c.lastErr = err
	if c.sess != nil {
		_ = c.sess.Close()
		c.sess = nil
	}
	c.stateMu.Unlock()
}

func (c *Controller) adopt(sess *session.Session, token session.BootToken) {
	c.stateMu.Lock()
	c.sess = sess
	c.lastBoot = token
	c.state = StateConnected
	c.everConnected = true
	c.lastErr = nil
	c.stateMu.Unlock()
}

func (c *Controller) bumpEpisodes() {
	c.stateMu.Lock()
	c.episodes++
	c.stateMu.Unlock()
}

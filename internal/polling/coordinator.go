// Package polling drives repeated status probes for one order at a fixed
// cadence until the order resolves, the deadline expires, or the caller stops
// the session. The deadline counts down one unit per tick independent of probe
// latency; a probe still in flight when the next probe tick arrives causes
// that tick's probe to be skipped, never queued.
package polling

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/yourorg/qrpay/internal/payment"
	"github.com/yourorg/qrpay/internal/policy"
)

// Controller is the slice of the lifecycle controller a session drives.
type Controller interface {
	Query(ctx context.Context, orderID string) payment.Result
	Cancel(ctx context.Context, orderID string) payment.Result
}

// Config tunes a session. Zero values fall back to the defaults mirroring the
// payment page: 1s ticks, 120-tick deadline, a probe every 3 ticks.
type Config struct {
	TickPeriod    time.Duration
	DeadlineTicks int
	IntervalTicks int
}

const (
	defaultTickPeriod    = time.Second
	defaultDeadlineTicks = 120
	defaultIntervalTicks = 3
)

// Session is an ephemeral polling run bound to one order. Create with
// NewSession, drive with Start, and observe via Done/Result. A session never
// restarts; once Done is closed all its timers are released.
type Session struct {
	orderID string
	ctrl    Controller
	policy  *policy.ProbePolicy
	cfg     Config

	mu        sync.Mutex
	active    bool
	inFlight  bool
	remaining int
	failures  int
	last      payment.Result
	timedOut  bool
	reason    string

	done       chan struct{}
	startOnce  sync.Once
	haltOnce   sync.Once
	cancelOnce sync.Once
}

// NewSession builds a session. A nil policy compiles the default rules.
func NewSession(orderID string, ctrl Controller, pol *policy.ProbePolicy, cfg Config) *Session {
	if ctrl == nil {
		panic("polling controller cannot be nil")
	}
	if pol == nil {
		pol, _ = policy.NewProbePolicy(policy.DefaultRules())
	}
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = defaultTickPeriod
	}
	if cfg.DeadlineTicks <= 0 {
		cfg.DeadlineTicks = defaultDeadlineTicks
	}
	if cfg.IntervalTicks <= 0 {
		cfg.IntervalTicks = defaultIntervalTicks
	}
	return &Session{
		orderID:   orderID,
		ctrl:      ctrl,
		policy:    pol,
		cfg:       cfg,
		remaining: cfg.DeadlineTicks,
		done:      make(chan struct{}),
	}
}

// Start begins the session: one immediate probe, then the tick loop.
// Subsequent calls are no-ops.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.active = true
		s.inFlight = true
		s.mu.Unlock()
		go s.probe(ctx)
		go s.run(ctx)
	})
}

// Stop halts the session without further side effects. Cooperative: a probe
// already in flight completes, but its result can no longer stop anything
// that is not already stopped.
func (s *Session) Stop() {
	s.halt("stopped by caller")
}

// Done is closed when the session has stopped by any path.
func (s *Session) Done() <-chan struct{} { return s.done }

// Remaining reports deadline ticks left.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Result returns the most recent observed result.
func (s *Session) Result() payment.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// TimedOut reports whether the deadline expired and the timeout action ran.
func (s *Session) TimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timedOut
}

// StopReason describes why the session stopped.
func (s *Session) StopReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickPeriod)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			s.halt("context cancelled")
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.active {
				s.mu.Unlock()
				return
			}
			s.remaining--
			remaining := s.remaining
			ticks++
			fire := remaining > 0 && ticks%s.cfg.IntervalTicks == 0 && !s.inFlight
			if fire {
				s.inFlight = true
			}
			s.mu.Unlock()

			if remaining <= 0 {
				s.timeout(ctx)
				return
			}
			if fire {
				go s.probe(ctx)
			}
		}
	}
}

// timeout fires the configured timeout action (cancellation) exactly once and
// ends the session.
func (s *Session) timeout(ctx context.Context) {
	s.cancelOnce.Do(func() {
		s.mu.Lock()
		s.timedOut = true
		s.mu.Unlock()

		timeoutsTotal.Inc()
		log.Printf("polling: session for order %s hit deadline, cancelling", s.orderID)
		res := s.ctrl.Cancel(ctx, s.orderID)

		s.mu.Lock()
		s.last = res
		s.mu.Unlock()
	})
	s.halt("deadline expired")
}

func (s *Session) probe(ctx context.Context) {
	res := s.ctrl.Query(ctx, s.orderID)
	probesTotal.Inc()

	s.mu.Lock()
	s.inFlight = false
	s.last = res
	if res.Success {
		s.failures = 0
	} else {
		s.failures++
	}
	outcome := policy.ProbeOutcome{
		Success:             res.Success,
		Status:              res.Status,
		ConsecutiveFailures: s.failures,
		TicksRemaining:      s.remaining,
	}
	active := s.active
	s.mu.Unlock()

	if !active {
		return
	}
	if res.Success && res.Status.Terminal() {
		s.halt("terminal status " + string(res.Status))
		return
	}
	decision, err := s.policy.Evaluate(outcome)
	if err != nil {
		// A broken rule must not kill the session; keep polling on the
		// deadline alone.
		log.Printf("polling: policy evaluation failed for order %s: %v", s.orderID, err)
		return
	}
	if decision.Abort {
		log.Printf("polling: session for order %s aborted by policy rule %s", s.orderID, decision.Reason)
		s.halt(decision.Reason)
	}
}

func (s *Session) halt(reason string) {
	s.haltOnce.Do(func() {
		s.mu.Lock()
		s.active = false
		s.reason = reason
		s.mu.Unlock()
		close(s.done)
	})
}

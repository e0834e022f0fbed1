package sync

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/email"
	"github.com/brandon/mailsync/internal/report"
)

var errSessionEnded = errors.New("session ended")

// State is the lifecycle state of one account.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSyncing
	StateDegraded
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSyncing:
		return "syncing"
	case StateDegraded:
		return "degraded"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a point-in-time view of an account's supervisor.
type Status struct {
	State          State
	LastError      error
	LastTransition time.Time
	// Attempts counts reconnect attempts over the process lifetime.
	Attempts      int
	Backfilled    int
	LiveProcessed int
}

// Connector opens sessions; *email.AccountManager satisfies it.
type Connector interface {
	Connect(ctx context.Context, cfg *config.AccountConfig) (email.Session, error)
	Disconnect(accountID string)
}

// Supervisor runs one account: connect, backfill, live sync, and reconnect
// with backoff when the session fails.
type Supervisor struct {
	account  *config.AccountConfig
	sessions Connector
	engine   *Engine
	policy   config.ReconnectConfig
	window   time.Duration
	reporter *report.Reporter
	logger   *logrus.Entry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     gosync.Mutex
	status Status
}

// NewSupervisor creates a supervisor for account.
func NewSupervisor(account *config.AccountConfig, sessions Connector, engine *Engine, policy config.ReconnectConfig, window time.Duration, reporter *report.Reporter) *Supervisor {
	return &Supervisor{
		account:  account,
		sessions: sessions,
		engine:   engine,
		policy:   policy,
		window:   window,
		reporter: reporter,
		logger:   engine.logger.WithField("account", account.ID),
		now:      time.Now,
		sleep:    sleepContext,
		status:   Status{State: StateDisconnected, LastTransition: time.Now()},
	}
}

// Status returns a snapshot of the supervisor state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run supervises the account until ctx ends or the reconnect policy gives
// up. Failures never escape to other accounts.
func (s *Supervisor) Run(ctx context.Context) {
	fields := logrus.Fields{"account": s.account.ID}
	failures := 0

	for {
		if ctx.Err() != nil {
			s.stop(nil)
			return
		}

		s.transition(StateConnecting, nil)
		sess, err := s.sessions.Connect(ctx, s.account)
		if err == nil {
			failures = 0
			err = s.runSession(ctx, sess)
			s.sessions.Disconnect(s.account.ID)
			if err == nil {
				err = errSessionEnded
			}
		}
		if ctx.Err() != nil {
			s.stop(nil)
			return
		}

		errorType := "session"
		if email.IsConnectionError(err) {
			errorType = "connection"
		}
		s.reporter.Error(errorType, err, fields)
		s.transition(StateDegraded, err)

		failures++
		if !s.policy.Enabled {
			s.logger.Warn("Reconnect disabled, account stopped")
			s.stop(err)
			return
		}
		if s.policy.MaxAttempts > 0 && failures >= s.policy.MaxAttempts {
			s.logger.WithField("attempt", failures).Error("Reconnect attempts exhausted, account stopped")
			s.stop(err)
			return
		}

		delay := backoff(failures, s.policy.BaseDelay, s.policy.MaxDelay)
		s.transition(StateReconnecting, err)
		s.mu.Lock()
		s.status.Attempts++
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{
			"attempt": failures,
			"delay":   delay.String(),
		}).Info("Reconnecting")

		if err := s.sleep(ctx, delay); err != nil {
			s.stop(nil)
			return
		}
	}
}

// runSession backfills and then live syncs until the session fails.
func (s *Supervisor) runSession(ctx context.Context, sess email.Session) error {
	s.transition(StateSyncing, nil)
	folder := s.account.Folder
	handled := NewUIDSet()

	// Watch before backfill so messages arriving meanwhile are queued.
	uidNext, err := sess.Watch(ctx, folder)
	if err != nil {
		return err
	}

	n, err := s.engine.Backfill(ctx, sess, folder, s.window, s.now(), handled)
	s.mu.Lock()
	s.status.Backfilled += n
	s.mu.Unlock()
	if err != nil {
		return err
	}

	// Without UIDNEXT, anything above what backfill saw counts as new.
	minUID := uidNext
	if minUID == 0 {
		minUID = handled.Max() + 1
	}
	live := s.engine.NewLiveSync(sess, folder, minUID, handled)
	live.logger = live.logger.WithField("account", s.account.ID)
	live.OnProcessed = func(uint32) {
		s.mu.Lock()
		s.status.LiveProcessed++
		s.mu.Unlock()
	}
	return live.Run(ctx)
}

func (s *Supervisor) transition(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status.LastError = err
	}
	if s.status.State == state {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"state": state.String(),
		"from":  s.status.State.String(),
	}).Debug("Account state changed")
	s.status.State = state
	s.status.LastTransition = s.now()
}

func (s *Supervisor) stop(err error) {
	s.transition(StateStopped, err)
}

// backoff returns the delay before reconnect attempt n (1-based): base
// doubled per attempt, capped at maxDelay, with up to half of it jittered away.
func backoff(n int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}
	d := base
	for i := 1; i < n && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

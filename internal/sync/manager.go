package sync

import (
	"context"
	"fmt"
	"runtime/debug"
	gosync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/report"
)

// Manager runs one supervisor per configured account
type Manager struct {
	supervisors []*Supervisor
	reporter    *report.Reporter
	logger      *logrus.Logger
}

// NewManager creates a supervisor for every account in cfg
func NewManager(cfg *config.Config, sessions Connector, proc MessageProcessor, reporter *report.Reporter, logger *logrus.Logger) *Manager {
	engine := NewEngine(proc, logger)
	window := time.Duration(cfg.SyncWindowDays) * 24 * time.Hour

	supervisors := make([]*Supervisor, 0, len(cfg.Accounts))
	for i := range cfg.Accounts {
		supervisors = append(supervisors, NewSupervisor(&cfg.Accounts[i], sessions, engine, cfg.Reconnect, window, reporter))
	}

	return &Manager{
		supervisors: supervisors,
		reporter:    reporter,
		logger:      logger,
	}
}

// Run starts every account and blocks until all of them have stopped. A
// panic in one account stops only that account.
func (m *Manager) Run(ctx context.Context) {
	var wg gosync.WaitGroup
	for _, sup := range m.supervisors {
		wg.Add(1)
		go func(sup *Supervisor) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("panic: %v", r)
					m.reporter.Error("panic", err, logrus.Fields{
						"account": sup.account.ID,
						"stack":   string(debug.Stack()),
					})
					sup.stop(err)
				}
			}()
			sup.Run(ctx)
		}(sup)
	}

	m.logger.WithField("accounts", len(m.supervisors)).Info("Sync started")
	wg.Wait()
	m.logger.Info("All accounts stopped")
}

// Statuses returns the current status of every account, keyed by id
func (m *Manager) Statuses() map[string]Status {
	out := make(map[string]Status, len(m.supervisors))
	for _, sup := range m.supervisors {
		out[sup.account.ID] = sup.Status()
	}
	return out
}

// LogStatuses writes one log line per account.
func (m *Manager) LogStatuses() {
	for id, st := range m.Statuses() {
		entry := m.logger.WithFields(logrus.Fields{
			"account":        id,
			"state":          st.State.String(),
			"attempts":       st.Attempts,
			"backfilled":     st.Backfilled,
			"live_processed": st.LiveProcessed,
		})
		if st.LastError != nil {
			entry = entry.WithError(st.LastError)
		}
		entry.Info("Account status")
	}
}

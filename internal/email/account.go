package email

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
)

// Dialer opens a Session for an account.
type Dialer func(ctx context.Context, cfg *config.AccountConfig) (Session, error)

// IMAPDialer returns a Dialer backed by Dial.
func IMAPDialer(logger *logrus.Logger) Dialer {
	return func(ctx context.Context, cfg *config.AccountConfig) (Session, error) {
		c, err := Dial(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// AccountManager owns the live session of every account
type AccountManager struct {
	mu       sync.Mutex
	dial     Dialer
	sessions map[string]Session
	logger   *logrus.Logger
}

// NewAccountManager creates a new account manager
func NewAccountManager(dial Dialer, logger *logrus.Logger) *AccountManager {
	return &AccountManager{
		dial:     dial,
		sessions: make(map[string]Session),
		logger:   logger,
	}
}

// Connect dials the account and records its session, replacing (and
// closing) any previous one. Failures are returned as *ConnectionError.
func (m *AccountManager) Connect(ctx context.Context, cfg *config.AccountConfig) (Session, error) {
	sess, err := m.dial(ctx, cfg)
	if err != nil {
		if !IsConnectionError(err) {
			err = &ConnectionError{Account: cfg.ID, Op: "connect", Err: err}
		}
		return nil, err
	}

	m.mu.Lock()
	prev := m.sessions[cfg.ID]
	m.sessions[cfg.ID] = sess
	m.mu.Unlock()

	if prev != nil {
		m.closeSession(cfg.ID, prev)
	}
	return sess, nil
}

// Disconnect closes and forgets the account's session, if any.
func (m *AccountManager) Disconnect(accountID string) {
	m.mu.Lock()
	sess := m.sessions[accountID]
	delete(m.sessions, accountID)
	m.mu.Unlock()

	if sess != nil {
		m.closeSession(accountID, sess)
	}
}

// GetSession returns the account's current session, or nil.
func (m *AccountManager) GetSession(accountID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[accountID]
}

// ListAccounts returns the ids of accounts with a live session
func (m *AccountManager) ListAccounts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes all account connections
func (m *AccountManager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]Session)
	m.mu.Unlock()

	for id, sess := range sessions {
		m.closeSession(id, sess)
	}
	return nil
}

func (m *AccountManager) closeSession(accountID string, sess Session) {
	if err := sess.Close(); err != nil {
		m.logger.WithError(err).WithField("account", accountID).Warn("Failed to close session")
	}
}

// Package sync keeps the document store in step with every configured
// mailbox: a windowed backfill on connect followed by IDLE-driven live sync,
// supervised per account with reconnect.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/email"
	"github.com/brandon/mailsync/internal/processor"
)

// MessageProcessor handles one fetched message.
type MessageProcessor interface {
	Process(ctx context.Context, raw *email.RawMessage) processor.Outcome
}

// Engine runs backfill and live sync passes against a session.
type Engine struct {
	proc   MessageProcessor
	logger *logrus.Logger
}

// NewEngine creates an engine feeding proc.
func NewEngine(proc MessageProcessor, logger *logrus.Logger) *Engine {
	return &Engine{proc: proc, logger: logger}
}

// Backfill processes every message in folder dated within window of now,
// in search order, holding the folder lock throughout. Each processed UID
// is added to handled. Only lock and search failures are returned; a
// failed fetch skips that message.
func (e *Engine) Backfill(ctx context.Context, sess email.Session, folder string, window time.Duration, now time.Time, handled *UIDSet) (int, error) {
	since := now.Add(-window)
	log := e.logger.WithFields(logrus.Fields{
		"folder": folder,
		"since":  since.Format("2006-01-02"),
	})

	release, err := sess.Lock(ctx, folder)
	if err != nil {
		return 0, fmt.Errorf("failed to lock %s: %w", folder, err)
	}
	defer release()

	uids, err := sess.Search(ctx, email.Criteria{Since: since})
	if err != nil {
		return 0, fmt.Errorf("failed to search %s: %w", folder, err)
	}
	log.WithField("count", len(uids)).Info("Starting backfill")

	processed := 0
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		raw, err := sess.FetchByUID(ctx, uid)
		if err != nil {
			log.WithError(err).WithField("uid", uid).Warn("Failed to fetch message")
			continue
		}
		if raw == nil {
			log.WithField("uid", uid).Debug("Message vanished before fetch")
			continue
		}
		if raw.Folder == "" {
			raw.Folder = folder
		}

		handled.Add(uid)
		e.proc.Process(ctx, raw)
		processed++
	}

	log.WithField("processed", processed).Info("Backfill complete")
	return processed, nil
}

package sync

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/email"
)

// LiveSync reacts to new-message notifications on one folder. Events are
// consumed one at a time, so at most one handler runs per session.
type LiveSync struct {
	engine  *Engine
	sess    email.Session
	folder  string
	handled *UIDSet
	minUID  uint32
	logger  *logrus.Entry

	// OnProcessed, if set, is called after each message is processed.
	OnProcessed func(uid uint32)
}

// NewLiveSync creates a live sync pass. Only messages with a UID of at least
// minUID are candidates, so mail that was already in the folder when
// watching started is left to backfill.
func (e *Engine) NewLiveSync(sess email.Session, folder string, minUID uint32, handled *UIDSet) *LiveSync {
	return &LiveSync{
		engine:  e,
		sess:    sess,
		folder:  folder,
		handled: handled,
		minUID:  minUID,
		logger:  e.logger.WithField("folder", folder),
	}
}

// Run handles session events until ctx ends or the session fails. It
// returns ctx.Err() on cancellation and the session's error otherwise.
func (l *LiveSync) Run(ctx context.Context) error {
	for {
		ev, err := l.sess.Next(ctx)
		if err != nil {
			return err
		}

		switch ev.Kind {
		case email.EventSessionError:
			if ev.Err == nil {
				return fmt.Errorf("session error on %s", l.folder)
			}
			return ev.Err

		case email.EventExpunge:
			l.logger.WithField("seq", ev.SeqNum).Debug("Message expunged")

		case email.EventMessageCount:
			if ev.Folder != "" && ev.Folder != l.folder {
				continue
			}
			if err := l.handle(ctx); err != nil {
				if email.IsConnectionError(err) || ctx.Err() != nil {
					return err
				}
				l.logger.WithError(err).Warn("Failed to handle new message")
			}
		}
	}
}

// handle processes the newest unseen message that arrived after watching
// started and is not already handled.
func (l *LiveSync) handle(ctx context.Context) error {
	raw, err := l.fetchNewest(ctx)
	if err != nil || raw == nil {
		return err
	}
	if raw.Folder == "" {
		raw.Folder = l.folder
	}

	out := l.engine.proc.Process(ctx, raw)
	l.logger.WithFields(logrus.Fields{
		"uid":   raw.UID,
		"stage": out.Stage,
	}).Debug("Live message processed")

	if l.OnProcessed != nil {
		l.OnProcessed(raw.UID)
	}
	return nil
}

// fetchNewest holds the folder lock only for search and fetch.
func (l *LiveSync) fetchNewest(ctx context.Context) (*email.RawMessage, error) {
	release, err := l.sess.Lock(ctx, l.folder)
	if err != nil {
		return nil, err
	}
	defer release()

	uids, err := l.sess.Search(ctx, email.Criteria{UnseenOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to search unseen: %w", err)
	}

	var uid uint32
	for i := len(uids) - 1; i >= 0 && uids[i] >= l.minUID; i-- {
		if !l.handled.Has(uids[i]) {
			uid = uids[i]
			break
		}
	}
	if uid == 0 {
		l.logger.Debug("No new unseen message")
		return nil, nil
	}

	raw, err := l.sess.FetchByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", uid, err)
	}
	l.handled.Add(uid)
	return raw, nil
}

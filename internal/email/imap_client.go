package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
)

const (
	idleLogoutTimeout = 25 * time.Minute
	idlePollInterval  = time.Minute
	updatesBuffer     = 64
)

// IMAPClient is a Session over a single go-imap connection. The connection
// sits in IDLE on the watched folder whenever no lock is held.
type IMAPClient struct {
	config *config.AccountConfig
	client *client.Client
	logger *logrus.Entry

	updates chan client.Update
	events  *eventQueue

	// sem is the mailbox lock; it serializes every command on the connection.
	sem      chan struct{}
	selected string
	watching string
	idleStop chan struct{}
	idleDone chan error

	closing   atomic.Bool
	closeOnce sync.Once
}

// Dial connects and logs in to the account's IMAP server.
func Dial(ctx context.Context, cfg *config.AccountConfig, logger *logrus.Logger) (*IMAPClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ConnectionError{Account: cfg.ID, Op: "dial", Err: err}
	}

	addr := fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort)
	tlsConfig := &tls.Config{
		ServerName: cfg.IMAPHost,
		MinVersion: tls.VersionTLS12,
	}

	var cl *client.Client
	var err error
	if cfg.IMAPTLS {
		cl, err = client.DialTLS(addr, tlsConfig)
	} else {
		cl, err = client.Dial(addr)
		if err == nil {
			if ok, _ := cl.SupportStartTLS(); ok {
				err = cl.StartTLS(tlsConfig)
			}
		}
	}
	if err != nil {
		if cl != nil {
			cl.Terminate() //nolint:errcheck
		}
		return nil, &ConnectionError{Account: cfg.ID, Op: "connect " + addr, Err: err}
	}

	updates := make(chan client.Update, updatesBuffer)
	cl.Updates = updates

	if err := cl.Login(cfg.IMAPUsername, cfg.IMAPPassword); err != nil {
		cl.Logout() //nolint:errcheck
		return nil, &ConnectionError{Account: cfg.ID, Op: "login", Err: err}
	}

	c := &IMAPClient{
		config:  cfg,
		client:  cl,
		logger:  logger.WithField("account", cfg.ID),
		updates: updates,
		events:  newEventQueue(),
		sem:     make(chan struct{}, 1),
	}
	go c.pump()

	c.logger.Info("Connected to IMAP server")
	return c, nil
}

// pump converts go-imap unilateral updates into session events. It must
// keep draining updates or the client reader blocks. Counts are not copied:
// the reader goroutine mutates the status behind its own lock.
func (c *IMAPClient) pump() {
	for {
		select {
		case u := <-c.updates:
			switch u := u.(type) {
			case *client.MailboxUpdate:
				if u.Mailbox == nil {
					continue
				}
				c.events.push(Event{Kind: EventMessageCount, Folder: u.Mailbox.Name})
			case *client.ExpungeUpdate:
				c.events.push(Event{Kind: EventExpunge, SeqNum: u.SeqNum})
			}
		case <-c.client.LoggedOut():
			if !c.closing.Load() {
				c.logger.Warn("IMAP connection closed by server")
				c.events.push(Event{
					Kind: EventSessionError,
					Err:  &ConnectionError{Account: c.config.ID, Op: "session", Err: errors.New("connection closed")},
				})
			}
			return
		}
	}
}

// Lock implements Session. An empty folder keeps the current selection.
func (c *IMAPClient) Lock(ctx context.Context, folder string) (func(), error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := c.stopIdle(); err != nil {
		c.logger.WithError(err).Debug("IDLE ended with error")
	}

	if folder != "" && c.selected != folder {
		if _, err := c.client.Select(folder, true); err != nil {
			c.selected = ""
			c.startIdle()
			<-c.sem
			return nil, &ConnectionError{Account: c.config.ID, Op: "select " + folder, Err: err}
		}
		c.selected = folder
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.startIdle()
			<-c.sem
		})
	}, nil
}

// Watch implements Session. The folder is selected afresh so UIDNEXT is
// current.
func (c *IMAPClient) Watch(ctx context.Context, folder string) (uint32, error) {
	release, err := c.Lock(ctx, "")
	if err != nil {
		return 0, err
	}
	defer release()

	mbox, err := c.client.Select(folder, true)
	if err != nil {
		c.selected = ""
		return 0, &ConnectionError{Account: c.config.ID, Op: "select " + folder, Err: err}
	}
	c.selected = folder
	c.watching = folder
	return mbox.UidNext, nil
}

// Search implements Session.
func (c *IMAPClient) Search(_ context.Context, criteria Criteria) ([]uint32, error) {
	sc := imap.NewSearchCriteria()
	if !criteria.Since.IsZero() {
		sc.Since = criteria.Since
	}
	if criteria.UnseenOnly {
		sc.WithoutFlags = []string{imap.SeenFlag}
	}

	uids, err := c.client.UidSearch(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	return uids, nil
}

// FetchByUID implements Session.
func (c *IMAPClient) FetchByUID(_ context.Context, uid uint32) (*RawMessage, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	// BODY.PEEK[] leaves \Seen untouched.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var found *imap.Message
	for msg := range messages {
		if msg.Uid == uid {
			found = msg
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", uid, err)
	}
	if found == nil {
		return nil, nil
	}

	raw := &RawMessage{
		AccountID:    c.config.ID,
		Folder:       c.selected,
		UID:          found.Uid,
		Flags:        append([]string(nil), found.Flags...),
		InternalDate: found.InternalDate,
	}
	if literal := found.GetBody(section); literal != nil {
		body, err := io.ReadAll(literal)
		if err != nil {
			c.logger.WithError(err).WithField("uid", uid).Warn("Error reading literal")
		}
		raw.Source = body
	}
	return raw, nil
}

// Next implements Session.
func (c *IMAPClient) Next(ctx context.Context) (Event, error) {
	return c.events.next(ctx)
}

// Close logs out and releases the connection.
func (c *IMAPClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.sem <- struct{}{}
		c.watching = ""
		if idleErr := c.stopIdle(); idleErr != nil {
			c.logger.WithError(idleErr).Debug("IDLE ended with error")
		}
		if err = c.client.Logout(); err != nil {
			err = c.client.Terminate()
		}
		<-c.sem
		c.logger.Info("Disconnected from IMAP server")
	})
	return err
}

// startIdle must be called with the lock held.
func (c *IMAPClient) startIdle() {
	if c.watching == "" || c.idleStop != nil || c.closing.Load() {
		return
	}
	stop := make(chan struct{})
	done := make(chan error, 1)
	c.idleStop, c.idleDone = stop, done

	go func() {
		done <- c.client.Idle(stop, &client.IdleOptions{
			LogoutTimeout: idleLogoutTimeout,
			PollInterval:  idlePollInterval,
		})
	}()
}

// stopIdle must be called with the lock held.
func (c *IMAPClient) stopIdle() error {
	if c.idleStop == nil {
		return nil
	}
	close(c.idleStop)
	err := <-c.idleDone
	c.idleStop, c.idleDone = nil, nil
	return err
}

package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/email"
	"github.com/brandon/mailsync/internal/processor"
	"github.com/brandon/mailsync/internal/report"
)

type fakeMessage struct {
	uid  uint32
	date time.Time
	seen bool
}

// fakeSession is an in-memory mailbox with a single folder.
type fakeSession struct {
	account string
	folder  string

	mu        gosync.Mutex
	messages  []fakeMessage
	locked    bool
	locks     int
	fetched   []uint32
	fetchErrs map[uint32]error
	lockErr   error
	searchErr error
	unlocked  int // operations attempted without the lock
	watched   chan struct{}
	closed    bool

	events chan email.Event
}

func newFakeSession(account string, messages ...fakeMessage) *fakeSession {
	return &fakeSession{
		account:   account,
		folder:    "INBOX",
		messages:  messages,
		fetchErrs: make(map[uint32]error),
		watched:   make(chan struct{}),
		events:    make(chan email.Event, 64),
	}
}

func (s *fakeSession) Lock(ctx context.Context, folder string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockErr != nil {
		return nil, s.lockErr
	}
	if s.locked {
		return nil, errors.New("lock already held")
	}
	s.locked = true
	s.locks++

	var once gosync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.locked = false
			s.mu.Unlock()
		})
	}, nil
}

func (s *fakeSession) Search(_ context.Context, c email.Criteria) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked {
		s.unlocked++
	}
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	var uids []uint32
	for _, m := range s.messages {
		if !c.Since.IsZero() && m.date.Before(c.Since) {
			continue
		}
		if c.UnseenOnly && m.seen {
			continue
		}
		uids = append(uids, m.uid)
	}
	return uids, nil
}

func (s *fakeSession) FetchByUID(_ context.Context, uid uint32) (*email.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked {
		s.unlocked++
	}
	s.fetched = append(s.fetched, uid)
	if err := s.fetchErrs[uid]; err != nil {
		return nil, err
	}
	for _, m := range s.messages {
		if m.uid == uid {
			return &email.RawMessage{
				AccountID:    s.account,
				UID:          uid,
				InternalDate: m.date,
				Source:       []byte(fmt.Sprintf("Subject: message %d\r\n\r\nbody\r\n", uid)),
			}, nil
		}
	}
	return nil, nil
}

// Watch returns the next UID the folder would assign.
func (s *fakeSession) Watch(_ context.Context, folder string) (uint32, error) {
	s.mu.Lock()
	next := uint32(1)
	for _, m := range s.messages {
		if m.uid >= next {
			next = m.uid + 1
		}
	}
	s.mu.Unlock()
	select {
	case <-s.watched:
	default:
		close(s.watched)
	}
	return next, nil
}

func (s *fakeSession) Next(ctx context.Context) (email.Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-ctx.Done():
		return email.Event{}, ctx.Err()
	}
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// deliver appends a message and emits the count-changed event.
func (s *fakeSession) deliver(uid uint32, date time.Time) {
	s.mu.Lock()
	s.messages = append(s.messages, fakeMessage{uid: uid, date: date})
	s.mu.Unlock()
	s.notify()
}

// notify emits a count-changed event without touching the folder.
func (s *fakeSession) notify() {
	s.events <- email.Event{Kind: email.EventMessageCount, Folder: s.folder}
}

// remove drops a message silently, the way an expunge from another client
// looks once the count is no longer tracked.
func (s *fakeSession) remove(uid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.uid == uid {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

func (s *fakeSession) setFetchErr(uid uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fetchErrs, uid)
		return
	}
	s.fetchErrs[uid] = err
}

func (s *fakeSession) fetchedUIDs() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.fetched...)
}

func (s *fakeSession) isLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// fakeProcessor records processed UIDs per account and tracks concurrency.
type fakeProcessor struct {
	mu        gosync.Mutex
	processed map[string][]uint32
	delay     time.Duration
	panicFor  string

	inFlight    int32
	maxInFlight int32
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{processed: make(map[string][]uint32)}
}

func (p *fakeProcessor) Process(_ context.Context, raw *email.RawMessage) processor.Outcome {
	if raw.AccountID == p.panicFor {
		panic("processor bug")
	}

	n := atomic.AddInt32(&p.inFlight, 1)
	defer atomic.AddInt32(&p.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&p.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&p.maxInFlight, cur, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.processed[raw.AccountID] = append(p.processed[raw.AccountID], raw.UID)
	p.mu.Unlock()
	return processor.Outcome{DocID: raw.AccountID, Stage: processor.StageIndexed}
}

func (p *fakeProcessor) uids(account string) []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint32(nil), p.processed[account]...)
}

// fakeConnector hands out sessions (or errors) in order per account.
type fakeConnector struct {
	mu       gosync.Mutex
	results  map[string][]interface{}
	dials    map[string]int
	fallback map[string]interface{}
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		results:  make(map[string][]interface{}),
		dials:    make(map[string]int),
		fallback: make(map[string]interface{}),
	}
}

// script queues results for account; the last one repeats forever.
func (c *fakeConnector) script(account string, results ...interface{}) {
	c.results[account] = results[:len(results)-1]
	c.fallback[account] = results[len(results)-1]
}

func (c *fakeConnector) Connect(_ context.Context, cfg *config.AccountConfig) (email.Session, error) {
	c.mu.Lock()
	c.dials[cfg.ID]++
	var next interface{}
	if queue := c.results[cfg.ID]; len(queue) > 0 {
		next, c.results[cfg.ID] = queue[0], queue[1:]
	} else {
		next = c.fallback[cfg.ID]
	}
	c.mu.Unlock()

	switch v := next.(type) {
	case *fakeSession:
		return v, nil
	case error:
		return nil, &email.ConnectionError{Account: cfg.ID, Op: "connect", Err: v}
	default:
		return nil, &email.ConnectionError{Account: cfg.ID, Op: "connect", Err: errors.New("unscripted")}
	}
}

func (c *fakeConnector) Disconnect(string) {}

func (c *fakeConnector) dialCount(account string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials[account]
}

func testLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func testReporter() *report.Reporter {
	r, _ := report.New("", "", testLogger())
	return r
}

package processor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailsync/internal/classifier"
	"github.com/brandon/mailsync/internal/email"
	"github.com/brandon/mailsync/internal/notify"
	"github.com/brandon/mailsync/internal/store"
	"github.com/brandon/mailsync/pkg/types"
)

type fakeStore struct {
	mu    sync.Mutex
	docs  map[string]types.EmailDocument
	calls int
	err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]types.EmailDocument)}
}

func (s *fakeStore) Upsert(_ context.Context, doc *types.EmailDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return &store.IndexError{DocID: doc.ID, Err: s.err}
	}
	s.docs[doc.ID] = *doc
	return nil
}

type fakeOracle struct {
	category types.Category
	err      error
	calls    int
	bodies   []string
}

func (o *fakeOracle) Classify(_ context.Context, _, body string) (types.Category, error) {
	o.calls++
	o.bodies = append(o.bodies, body)
	return o.category, o.err
}

type fakeNotifier struct {
	docs []types.EmailDocument
}

func (n *fakeNotifier) Notify(_ context.Context, doc *types.EmailDocument) []notify.ChannelResult {
	n.docs = append(n.docs, *doc)
	return []notify.ChannelResult{{Channel: "fake", DeliveryID: "d1"}}
}

type fakeArchiver struct {
	uids []uint32
	err  error
}

func (a *fakeArchiver) Archive(_ context.Context, raw *email.RawMessage) error {
	a.uids = append(a.uids, raw.UID)
	return a.err
}

type harness struct {
	store    *fakeStore
	oracle   *fakeOracle
	notifier *fakeNotifier
	archiver *fakeArchiver
	logs     *test.Hook
	proc     *Processor
}

func newHarness(category types.Category) *harness {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h := &harness{
		store:    newFakeStore(),
		oracle:   &fakeOracle{category: category},
		notifier: &fakeNotifier{},
		archiver: &fakeArchiver{},
		logs:     hook,
	}
	h.proc = New(Deps{
		Store:    h.store,
		Oracle:   h.oracle,
		Notifier: h.notifier,
		Archiver: h.archiver,
		Logger:   logger,
	})
	return h
}

const proposalSource = "From: Lead Person <Lead@Example.com>\r\n" +
	"To: Sales Team: me@example.com, \"Doe, Jane\" <jane@example.com>;, boss@example.com\r\n" +
	"Subject: Re: Proposal\r\n" +
	"Message-ID: <abc123@example.com>\r\n" +
	"Date: Fri, 01 Mar 2024 10:00:00 +0000\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Sounds great, let's set up a call next week.\r\n"

func rawMessage(uid uint32, source string) *email.RawMessage {
	return &email.RawMessage{
		AccountID:    "work",
		Folder:       "INBOX",
		UID:          uid,
		Flags:        []string{`\Seen`, `\Answered`},
		InternalDate: time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC),
		Source:       []byte(source),
	}
}

func TestProcessInterestedEndToEnd(t *testing.T) {
	h := newHarness(types.CategoryInterested)

	out := h.proc.Process(context.Background(), rawMessage(42, proposalSource))

	assert.Equal(t, StageNotified, out.Stage)
	assert.NoError(t, out.Err)
	assert.Equal(t, "work-42", out.DocID)
	assert.Len(t, out.Notifications, 1)

	require.Len(t, h.store.docs, 1)
	doc := h.store.docs["work-42"]
	assert.Equal(t, types.CategoryInterested, doc.AICategory)
	assert.Equal(t, "Re: Proposal", doc.Subject)
	assert.Equal(t, "<abc123@example.com>", doc.MessageID)
	assert.Equal(t, "lead@example.com", doc.From)
	assert.Equal(t, "me@example.com, jane@example.com, boss@example.com", doc.To)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), doc.Date)
	assert.True(t, doc.Read)
	assert.Equal(t, []string{`\Seen`, `\Answered`}, doc.Flags)
	assert.Contains(t, doc.BodyText, "set up a call")

	require.Len(t, h.notifier.docs, 1)
	assert.Equal(t, "work-42", h.notifier.docs[0].ID)
	assert.Equal(t, []uint32{42}, h.archiver.uids)
}

func TestProcessIsIdempotent(t *testing.T) {
	logger, _ := test.NewNullLogger()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "mailsync.db"), logger)
	require.NoError(t, err)
	s := store.NewStore(db, logger)
	defer s.Close()

	p := New(Deps{
		Store:    s,
		Oracle:   &fakeOracle{category: types.CategorySpam},
		Notifier: &fakeNotifier{},
		Logger:   logger,
	})
	ctx := context.Background()

	first := p.Process(ctx, rawMessage(7, proposalSource))
	require.Equal(t, StageIndexed, first.Stage)
	before, err := s.Get(ctx, "work-7")
	require.NoError(t, err)

	second := p.Process(ctx, rawMessage(7, proposalSource))
	require.Equal(t, StageIndexed, second.Stage)
	after, err := s.Get(ctx, "work-7")
	require.NoError(t, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, before, after)
}

func TestProcessClassificationFallback(t *testing.T) {
	tests := []struct {
		name     string
		category types.Category
		err      error
	}{
		{name: "oracle error", category: "", err: &classifier.ClassificationError{Reason: "API error (500)"}},
		{name: "unknown label", category: "Maybe Later"},
		{name: "empty label", category: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.category)
			h.oracle.err = tt.err

			out := h.proc.Process(context.Background(), rawMessage(1, proposalSource))
			assert.Equal(t, StageIndexed, out.Stage)
			assert.Equal(t, types.CategoryUncategorized, out.Category)
			assert.Equal(t, types.CategoryUncategorized, h.store.docs["work-1"].AICategory)
			assert.Empty(t, h.notifier.docs)
		})
	}
}

func TestProcessNotifiesOnlyInterested(t *testing.T) {
	for _, category := range types.Categories {
		t.Run(string(category), func(t *testing.T) {
			h := newHarness(category)
			out := h.proc.Process(context.Background(), rawMessage(3, proposalSource))

			if category == types.CategoryInterested {
				assert.Equal(t, StageNotified, out.Stage)
				assert.Len(t, h.notifier.docs, 1)
			} else {
				assert.Equal(t, StageIndexed, out.Stage)
				assert.Empty(t, h.notifier.docs)
			}
		})
	}
}

func TestProcessUnparseableSource(t *testing.T) {
	sources := map[string]string{
		"absent":     "",
		"whitespace": " \r\n\r\n",
		"no headers": "just some text with no header block",
	}

	for name, source := range sources {
		t.Run(name, func(t *testing.T) {
			h := newHarness(types.CategoryInterested)
			out := h.proc.Process(context.Background(), rawMessage(9, source))

			assert.Equal(t, StageSkipped, out.Stage)
			assert.True(t, IsParseError(out.Err))
			assert.Zero(t, h.store.calls)
			assert.Zero(t, h.oracle.calls)
			assert.Empty(t, h.notifier.docs)
		})
	}
}

func TestProcessNilMessage(t *testing.T) {
	h := newHarness(types.CategoryInterested)

	var out Outcome
	require.NotPanics(t, func() {
		out = h.proc.Process(context.Background(), nil)
	})

	assert.Equal(t, StageSkipped, out.Stage)
	assert.True(t, IsParseError(out.Err))
	assert.Zero(t, h.store.calls)
	assert.Zero(t, h.oracle.calls)
}

func TestProcessStoreFailure(t *testing.T) {
	h := newHarness(types.CategoryInterested)
	h.store.err = errors.New("disk full")

	var out Outcome
	require.NotPanics(t, func() {
		out = h.proc.Process(context.Background(), rawMessage(5, proposalSource))
	})

	assert.Equal(t, StageSkipped, out.Stage)
	assert.True(t, store.IsIndexError(out.Err))
	assert.Empty(t, h.notifier.docs)

	var logged bool
	for _, e := range h.logs.AllEntries() {
		if e.Data["error_type"] == "index" && e.Data["doc_id"] == "work-5" {
			logged = true
		}
	}
	assert.True(t, logged, "index failure should be logged")
}

func TestProcessArchiveFailureDoesNotSkip(t *testing.T) {
	h := newHarness(types.CategoryNotInterested)
	h.archiver.err = errors.New("AccessDenied")

	out := h.proc.Process(context.Background(), rawMessage(6, proposalSource))
	assert.Equal(t, StageIndexed, out.Stage)
}

func TestProcessRecoversPanics(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := New(Deps{
		Store: newFakeStore(),
		Oracle: classifier.Func(func(context.Context, string, string) (types.Category, error) {
			panic("oracle exploded")
		}),
		Notifier: &fakeNotifier{},
		Logger:   logger,
	})

	out := p.Process(context.Background(), rawMessage(8, proposalSource))
	assert.Equal(t, StageSkipped, out.Stage)
	assert.Contains(t, out.Err.Error(), "oracle exploded")
}

func TestProcessTruncatesBody(t *testing.T) {
	h := newHarness(types.CategorySpam)
	source := "From: a@example.com\r\nTo: b@example.com\r\nSubject: long\r\n\r\n" + strings.Repeat("x", 5000)

	h.proc.Process(context.Background(), rawMessage(11, source))
	require.Len(t, h.oracle.bodies, 1)
	assert.Len(t, h.oracle.bodies[0], defaultMaxBodyChars)
	assert.Equal(t, 5000, strings.Count(h.store.docs["work-11"].BodyText, "x"))
}

func TestProcessMissingDateAndRecipients(t *testing.T) {
	h := newHarness(types.CategoryOutOfOffice)
	source := "From: a@example.com\r\nTo: undisclosed-recipients:;\r\nSubject: Away\r\n\r\nBack Monday\r\n"

	raw := rawMessage(12, source)
	raw.Flags = nil
	h.proc.Process(context.Background(), raw)

	doc := h.store.docs["work-12"]
	assert.Equal(t, types.UnknownRecipient, doc.To)
	assert.Equal(t, raw.InternalDate, doc.Date)
	assert.False(t, doc.Read)
}

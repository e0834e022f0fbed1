// Package processor turns fetched messages into indexed, classified
// documents and triggers notifications for interested leads.
package processor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/archive"
	"github.com/brandon/mailsync/internal/classifier"
	"github.com/brandon/mailsync/internal/email"
	"github.com/brandon/mailsync/internal/notify"
	"github.com/brandon/mailsync/internal/report"
	"github.com/brandon/mailsync/pkg/types"
)

const defaultMaxBodyChars = 2000

// Indexer is the write side of the document store.
type Indexer interface {
	Upsert(ctx context.Context, doc *types.EmailDocument) error
}

// Notifier delivers notifications for a document.
type Notifier interface {
	Notify(ctx context.Context, doc *types.EmailDocument) []notify.ChannelResult
}

// Stage is how far a message got through the pipeline.
type Stage int

const (
	// StageSkipped means no document was written.
	StageSkipped Stage = iota
	// StageIndexed means the document was written and no notification was due.
	StageIndexed
	// StageNotified means the document was written and notifications were sent.
	StageNotified
)

func (s Stage) String() string {
	switch s {
	case StageSkipped:
		return "skipped"
	case StageIndexed:
		return "indexed"
	case StageNotified:
		return "notified"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Outcome describes what Process did with one message.
type Outcome struct {
	DocID    string
	Stage    Stage
	Category types.Category
	// Err is the error that caused a skip, if any.
	Err           error
	Notifications []notify.ChannelResult
}

// Deps are the collaborators of a Processor. Store, Notifier and Logger
// are required.
type Deps struct {
	Store        Indexer
	Oracle       classifier.Oracle
	Notifier     Notifier
	Archiver     archive.Archiver
	Reporter     *report.Reporter
	Logger       *logrus.Logger
	MaxBodyChars int
}

// Processor runs the parse, classify, index, notify pipeline.
type Processor struct {
	store        Indexer
	oracle       classifier.Oracle
	notifier     Notifier
	archiver     archive.Archiver
	reporter     *report.Reporter
	logger       *logrus.Logger
	maxBodyChars int
}

// New creates a processor.
func New(deps Deps) *Processor {
	p := &Processor{
		store:        deps.Store,
		oracle:       deps.Oracle,
		notifier:     deps.Notifier,
		archiver:     deps.Archiver,
		reporter:     deps.Reporter,
		logger:       deps.Logger,
		maxBodyChars: deps.MaxBodyChars,
	}
	if p.oracle == nil {
		p.oracle = classifier.Disabled{}
	}
	if p.archiver == nil {
		p.archiver = archive.Nop{}
	}
	if p.reporter == nil {
		p.reporter, _ = report.New("", "", p.logger)
	}
	if p.maxBodyChars <= 0 {
		p.maxBodyChars = defaultMaxBodyChars
	}
	return p
}

// Process runs one message through the pipeline. It never panics and never
// returns an error; failures are logged and reported in the Outcome.
func (p *Processor) Process(ctx context.Context, raw *email.RawMessage) (out Outcome) {
	fields := logrus.Fields{}
	defer func() {
		if r := recover(); r != nil {
			out.Stage = StageSkipped
			out.Err = fmt.Errorf("panic processing message: %v", r)
			p.reporter.Error("panic", out.Err, fields)
		}
	}()

	if raw == nil {
		out.Err = &ParseError{Err: errNilMessage}
		p.reporter.Warn("parse", out.Err, fields)
		return out
	}

	out.DocID = types.DocumentID(raw.AccountID, raw.UID)
	fields["account"] = raw.AccountID
	fields["folder"] = raw.Folder
	fields["uid"] = raw.UID
	fields["doc_id"] = out.DocID
	log := p.logger.WithFields(fields)

	if len(raw.Source) > 0 {
		if err := p.archiver.Archive(ctx, raw); err != nil {
			log.WithError(err).Warn("Failed to archive raw message")
		}
	}

	msg, err := parse(raw)
	if err != nil {
		out.Err = err
		p.reporter.Warn("parse", err, fields)
		return out
	}

	out.Category = p.classify(ctx, msg, log)

	doc := &types.EmailDocument{
		ID:         out.DocID,
		AccountID:  raw.AccountID,
		Folder:     raw.Folder,
		UID:        raw.UID,
		MessageID:  msg.MessageID,
		Subject:    msg.Subject,
		BodyText:   msg.BodyText,
		BodyHTML:   msg.BodyHTML,
		From:       firstAddress(msg.From),
		To:         types.JoinRecipients(msg.To),
		Date:       msg.Date,
		AICategory: out.Category,
		Read:       hasFlag(raw.Flags, `\Seen`),
		Flags:      raw.Flags,
	}

	if err := p.store.Upsert(ctx, doc); err != nil {
		out.Err = err
		p.reporter.Warn("index", err, fields)
		return out
	}
	out.Stage = StageIndexed
	log.WithField("category", out.Category).Info("Message indexed")

	if out.Category != types.CategoryInterested {
		return out
	}

	out.Notifications = p.notifier.Notify(ctx, doc)
	out.Stage = StageNotified
	return out
}

// classify never fails; any oracle error or unknown label becomes
// Uncategorized.
func (p *Processor) classify(ctx context.Context, msg *parsedMessage, log *logrus.Entry) types.Category {
	body := classifier.Truncate(msg.BodyText, p.maxBodyChars)

	category, err := p.oracle.Classify(ctx, msg.Subject, body)
	if err != nil {
		log.WithError(err).Warn("Classification failed, using Uncategorized")
		return types.CategoryUncategorized
	}
	if !category.Valid() {
		log.WithField("category", category).Warn("Classifier returned unknown label, using Uncategorized")
		return types.CategoryUncategorized
	}
	return category
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

package processor

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/jhillyerd/enmime"

	"github.com/brandon/mailsync/internal/email"
	"github.com/brandon/mailsync/pkg/types"
)

// ParseError means a message source could not be parsed; the message is
// skipped.
type ParseError struct {
	AccountID string
	UID       uint32
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s uid %d): %v", e.AccountID, e.UID, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is, or wraps, a ParseError.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

var (
	errEmptySource = errors.New("empty message source")
	errNilMessage  = errors.New("no message")
)

type parsedMessage struct {
	MessageID string
	Subject   string
	BodyText  string
	BodyHTML  string
	From      []types.AddressEntry
	To        []types.AddressEntry
	Date      time.Time
}

func parse(raw *email.RawMessage) (*parsedMessage, error) {
	wrap := func(err error) error {
		return &ParseError{AccountID: raw.AccountID, UID: raw.UID, Err: err}
	}

	if len(bytes.TrimSpace(raw.Source)) == 0 {
		return nil, wrap(errEmptySource)
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw.Source))
	if err != nil {
		return nil, wrap(fmt.Errorf("failed to read envelope: %w", err))
	}
	if env.Root == nil || len(env.Root.Header) == 0 {
		return nil, wrap(errors.New("message has no headers"))
	}

	p := &parsedMessage{
		MessageID: strings.TrimSpace(env.Root.Header.Get("Message-Id")),
		Subject:   env.GetHeader("Subject"),
		BodyText:  env.Text,
		BodyHTML:  env.HTML,
		From:      parseAddressList(env.Root.Header.Get("From")),
		To:        parseAddressList(env.Root.Header.Get("To")),
		Date:      messageDate(env, raw.InternalDate),
	}
	return p, nil
}

// messageDate returns the Date header, falling back to the server's
// internal date and then to the current time.
func messageDate(env *enmime.Envelope, internal time.Time) time.Time {
	var h mail.Header
	if v := env.Root.Header.Get("Date"); v != "" {
		h.Set("Date", v)
		if date, err := h.Date(); err == nil && !date.IsZero() {
			return date.UTC()
		}
	}
	if !internal.IsZero() {
		return internal.UTC()
	}
	return time.Now().UTC()
}

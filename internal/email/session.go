package email

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Session is one authenticated connection to an account's mail server.
//
// Search and FetchByUID operate on the folder selected by the most recent
// Lock and must only be called while that lock is held.
type Session interface {
	// Lock selects folder and grants exclusive use of the connection until
	// the returned release func is called.
	Lock(ctx context.Context, folder string) (release func(), err error)
	Search(ctx context.Context, criteria Criteria) ([]uint32, error)
	// FetchByUID returns nil and no error when the UID no longer exists.
	FetchByUID(ctx context.Context, uid uint32) (*RawMessage, error)
	// Watch starts change notifications for folder and returns its UIDNEXT,
	// the lowest UID a message arriving from now on can have. 0 means the
	// server did not report it.
	Watch(ctx context.Context, folder string) (uidNext uint32, err error)
	// Next blocks until the next session event.
	Next(ctx context.Context) (Event, error)
	Close() error
}

// Criteria narrows a UID search. Zero values match everything.
type Criteria struct {
	Since      time.Time
	UnseenOnly bool
}

// RawMessage is a fetched message before parsing.
type RawMessage struct {
	AccountID    string
	Folder       string
	UID          uint32
	Flags        []string
	InternalDate time.Time
	Source       []byte
}

// EventKind distinguishes session events.
type EventKind int

const (
	// EventMessageCount reports that a folder's message count changed.
	EventMessageCount EventKind = iota
	// EventExpunge reports that a message was removed.
	EventExpunge
	// EventSessionError reports that the connection is no longer usable.
	EventSessionError
)

func (k EventKind) String() string {
	switch k {
	case EventMessageCount:
		return "message_count"
	case EventExpunge:
		return "expunge"
	case EventSessionError:
		return "session_error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is an asynchronous notification emitted by a Session.
type Event struct {
	Kind   EventKind
	Folder string
	// SeqNum is the expunged sequence number for EventExpunge.
	SeqNum uint32
	Err    error
}

// ConnectionError indicates the session for an account could not be
// established or was lost. It is fatal to the session, never to other
// accounts.
type ConnectionError struct {
	Account string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%s): %s: %v", e.Account, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

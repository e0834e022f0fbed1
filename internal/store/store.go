package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/pkg/types"
)

// ErrNotFound is returned by Get when no document has the id.
var ErrNotFound = errors.New("document not found")

// IndexError is returned when a document cannot be written to the store.
type IndexError struct {
	DocID string
	Err   error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index error (%s): %v", e.DocID, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

// IsIndexError reports whether err is, or wraps, an IndexError.
func IsIndexError(err error) bool {
	var indexErr *IndexError
	return errors.As(err, &indexErr)
}

// Store provides methods for storing and retrieving documents
type Store struct {
	db     *DB
	logger *logrus.Logger
}

// NewStore creates a new store instance
func NewStore(db *DB, logger *logrus.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// documentRow is the column layout of the documents table.
type documentRow struct {
	ID         string `db:"id"`
	AccountID  string `db:"account_id"`
	Folder     string `db:"folder"`
	UID        int64  `db:"uid"`
	MessageID  string `db:"message_id"`
	Subject    string `db:"subject"`
	BodyText   string `db:"body_text"`
	BodyHTML   string `db:"body_html"`
	From       string `db:"from_addr"`
	To         string `db:"to_addrs"`
	DateUnix   int64  `db:"date_unix"`
	AICategory string `db:"ai_category"`
	Read       bool   `db:"is_read"`
	Flags      string `db:"flags"`
}

const documentColumns = `id, account_id, folder, uid, message_id, subject, body_text, body_html,
	from_addr, to_addrs, date_unix, ai_category, is_read, flags`

func toRow(doc *types.EmailDocument) (*documentRow, error) {
	flags := doc.Flags
	if flags == nil {
		flags = []string{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal flags: %w", err)
	}
	return &documentRow{
		ID:         doc.ID,
		AccountID:  doc.AccountID,
		Folder:     doc.Folder,
		UID:        int64(doc.UID),
		MessageID:  doc.MessageID,
		Subject:    doc.Subject,
		BodyText:   doc.BodyText,
		BodyHTML:   doc.BodyHTML,
		From:       doc.From,
		To:         doc.To,
		DateUnix:   doc.Date.UnixNano(),
		AICategory: string(doc.AICategory),
		Read:       doc.Read,
		Flags:      string(flagsJSON),
	}, nil
}

func (r *documentRow) document() (types.EmailDocument, error) {
	doc := types.EmailDocument{
		ID:         r.ID,
		AccountID:  r.AccountID,
		Folder:     r.Folder,
		UID:        uint32(r.UID),
		MessageID:  r.MessageID,
		Subject:    r.Subject,
		BodyText:   r.BodyText,
		BodyHTML:   r.BodyHTML,
		From:       r.From,
		To:         r.To,
		Date:       time.Unix(0, r.DateUnix).UTC(),
		AICategory: types.Category(r.AICategory),
		Read:       r.Read,
	}
	if err := json.Unmarshal([]byte(r.Flags), &doc.Flags); err != nil {
		return doc, fmt.Errorf("failed to unmarshal flags: %w", err)
	}
	return doc, nil
}

// Upsert writes doc under doc.ID. Writing the same id again replaces every
// field, so repeated writes leave one document holding the latest values.
func (s *Store) Upsert(ctx context.Context, doc *types.EmailDocument) error {
	if doc.ID == "" {
		return &IndexError{Err: errors.New("document id is empty")}
	}
	if !doc.AICategory.Valid() {
		return &IndexError{DocID: doc.ID, Err: fmt.Errorf("invalid category %q", doc.AICategory)}
	}

	row, err := toRow(doc)
	if err != nil {
		return &IndexError{DocID: doc.ID, Err: err}
	}

	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES (:id, :account_id, :folder, :uid, :message_id, :subject, :body_text, :body_html,
			:from_addr, :to_addrs, :date_unix, :ai_category, :is_read, :flags)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			folder = excluded.folder,
			uid = excluded.uid,
			message_id = excluded.message_id,
			subject = excluded.subject,
			body_text = excluded.body_text,
			body_html = excluded.body_html,
			from_addr = excluded.from_addr,
			to_addrs = excluded.to_addrs,
			date_unix = excluded.date_unix,
			ai_category = excluded.ai_category,
			is_read = excluded.is_read,
			flags = excluded.flags,
			indexed_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.db.NamedExecContext(ctx, query, row); err != nil {
		return &IndexError{DocID: doc.ID, Err: fmt.Errorf("failed to upsert document: %w", err)}
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":   doc.ID,
		"category": doc.AICategory,
	}).Debug("Document indexed")
	return nil
}

// Get retrieves a document by id
func (s *Store) Get(ctx context.Context, id string) (*types.EmailDocument, error) {
	var row documentRow
	err := s.db.db.GetContext(ctx, &row, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc, err := row.document()
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Count returns the number of stored documents
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM documents"); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/brandon/mailsync/pkg/types"
)

const (
	defaultPageSize = 20
	maxPageSize     = 1000
)

// QueryOptions contains query parameters. Empty strings are not filters.
// Page is 1-based.
type QueryOptions struct {
	Text      string
	AccountID string
	Folder    string
	Category  types.Category
	Page      int
	PageSize  int
}

func (o QueryOptions) normalized() QueryOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.PageSize > maxPageSize {
		o.PageSize = maxPageSize
	}
	return o
}

// Query returns one page of matching documents, newest first, and the total
// number of matches across all pages.
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]types.EmailDocument, int, error) {
	opts = opts.normalized()

	var conditions []string
	var args []interface{}

	if opts.AccountID != "" {
		conditions = append(conditions, "d.account_id = ?")
		args = append(args, opts.AccountID)
	}

	if opts.Folder != "" {
		conditions = append(conditions, "d.folder = ?")
		args = append(args, opts.Folder)
	}

	if opts.Category != "" {
		conditions = append(conditions, "d.ai_category = ?")
		args = append(args, string(opts.Category))
	}

	if match := ftsQuery(opts.Text); match != "" {
		conditions = append(conditions, "d.rowid IN (SELECT rowid FROM documents_fts WHERE documents_fts MATCH ?)")
		args = append(args, match)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM documents d %s", whereClause)
	if err := s.db.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}
	if total == 0 {
		return []types.EmailDocument{}, 0, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM documents d
		%s
		ORDER BY d.date_unix DESC, d.id
		LIMIT ? OFFSET ?
	`, documentColumns, whereClause)

	pageArgs := append(append([]interface{}{}, args...), opts.PageSize, (opts.Page-1)*opts.PageSize)

	var rows []documentRow
	if err := s.db.db.SelectContext(ctx, &rows, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to query documents: %w", err)
	}

	docs := make([]types.EmailDocument, 0, len(rows))
	for i := range rows {
		doc, err := rows[i].document()
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, nil
}

// ftsQuery turns free text into an FTS5 query matching every term. Terms
// are quoted so user input cannot inject FTS5 operators.
func ftsQuery(text string) string {
	terms := strings.Fields(text)
	for i, term := range terms {
		terms[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/erauner12/notebridge/internal/noteerr"
)

// TrashStatus filters listings by trash state.
type TrashStatus string

const (
	TrashActive  TrashStatus = "active"
	TrashTrashed TrashStatus = "trashed"
	TrashAny     TrashStatus = "any"
)

// ListQuery is the structured form of a list request. Zero time bounds
// mean unset. Page is 1-indexed.
type ListQuery struct {
	FTSTerm        string
	Tags           []string
	TrashStatus    TrashStatus
	ModifiedBefore int64
	ModifiedAfter  int64
	SortBy         string // modified_at or created_at
	SortOrder      string // ASC or DESC
	Limit          int
	Page           int
}

// ListResult carries one page of notes plus the unpaged total.
type ListResult struct {
	Notes      []*Note
	TotalItems int
}

// List runs the filtered, optionally full-text, paged query. With a
// full-text term, results order by FTS rank before the requested sort;
// without one, by the requested sort alone.
func (s *Store) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	sortBy := q.SortBy
	if sortBy != "created_at" {
		sortBy = "modified_at"
	}
	sortOrder := strings.ToUpper(q.SortOrder)
	if sortOrder != "ASC" {
		sortOrder = "DESC"
	}

	var (
		conds []string
		args  []any
		from  = "notes n"
	)

	useFTS := strings.TrimSpace(q.FTSTerm) != ""
	if useFTS {
		// The MATCH target must be the FTS table name, not an alias;
		// aliasing it breaks column resolution in the fts5 extension.
		from = "notes n JOIN notes_fts ON notes_fts.rowid = n.rowid"
		conds = append(conds, "notes_fts MATCH ?")
		args = append(args, ftsQuery(q.FTSTerm))
	}

	switch q.TrashStatus {
	case TrashTrashed:
		conds = append(conds, "n.trash = 1")
	case TrashAny:
	default:
		conds = append(conds, "n.trash = 0")
	}

	for _, tag := range q.Tags {
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(n.tags) WHERE value = ?)")
		args = append(args, tag)
	}

	if q.ModifiedBefore > 0 {
		conds = append(conds, "n.modified_at < ?")
		args = append(args, q.ModifiedBefore)
	}
	if q.ModifiedAfter > 0 {
		conds = append(conds, "n.modified_at > ?")
		args = append(args, q.ModifiedAfter)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var total int
	countSQL := "SELECT count(*) FROM " + from + where
	if err := db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, noteerr.Db("count list results", err)
	}

	orderBy := fmt.Sprintf(" ORDER BY n.%s %s", sortBy, sortOrder)
	if useFTS {
		orderBy = fmt.Sprintf(" ORDER BY notes_fts.rank, n.%s %s", sortBy, sortOrder)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	selectSQL := "SELECT " + prefixedNoteColumns + " FROM " + from + where + orderBy + " LIMIT ? OFFSET ?"
	args = append(args, limit, (page-1)*limit)

	rows, err := db.QueryContext(ctx, selectSQL, args...)
	if err != nil {
		return nil, noteerr.Db("query notes", err)
	}
	defer rows.Close()

	result := &ListResult{TotalItems: total}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, noteerr.Db("scan note", err)
		}
		result.Notes = append(result.Notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, noteerr.Db("iterate notes", err)
	}
	return result, nil
}

const prefixedNoteColumns = `n.id, n.local_version, n.server_version, n.text, n.tags, n.modified_at, n.created_at, n.trash, n.sync_deleted`

// SearchIDs runs a bare FTS lookup and returns matching note ids, used
// by the forgiving get-note fallback.
func (s *Store) SearchIDs(ctx context.Context, term string, limit int) ([]string, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT n.id FROM notes n JOIN notes_fts ON notes_fts.rowid = n.rowid
		 WHERE notes_fts MATCH ? ORDER BY notes_fts.rank LIMIT ?`,
		ftsQuery(term), limit)
	if err != nil {
		return nil, noteerr.Db("fts lookup", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, noteerr.Db("scan fts row", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ftsQuery turns free text into an FTS5 query: each whitespace token is
// quoted so user input cannot inject FTS syntax, and tokens AND
// together implicitly.
func ftsQuery(term string) string {
	fields := strings.Fields(term)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

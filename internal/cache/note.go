package cache

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/notebridge/internal/noteerr"
)

// Note is a cached note row.
type Note struct {
	ID            string   `json:"id"`
	LocalVersion  int      `json:"local_version"`
	ServerVersion *int     `json:"server_version,omitempty"`
	Text          string   `json:"text"`
	Tags          []string `json:"tags"`
	ModifiedAt    int64    `json:"modified_at"`
	CreatedAt     int64    `json:"created_at"`
	Trash         bool     `json:"trash"`
	SyncDeleted   bool     `json:"sync_deleted,omitempty"`
}

// RemoteChange is one remote entry to reconcile into the cache. Missing
// marks an entry whose version is no longer retrievable; it degrades to
// a local tombstone.
type RemoteChange struct {
	ID            string
	ServerVersion int
	Missing       bool

	Text       string
	Tags       []string
	Deleted    bool
	ModifiedAt int64
	CreatedAt  int64
}

const noteColumns = `id, local_version, server_version, text, tags, modified_at, created_at, trash, sync_deleted`

func scanNote(row interface{ Scan(...any) error }) (*Note, error) {
	var n Note
	var serverVersion sql.NullInt64
	var tagsJSON string
	var modifiedAt, createdAt sql.NullInt64

	err := row.Scan(&n.ID, &n.LocalVersion, &serverVersion, &n.Text, &tagsJSON,
		&modifiedAt, &createdAt, &n.Trash, &n.SyncDeleted)
	if err != nil {
		return nil, err
	}

	if serverVersion.Valid {
		v := int(serverVersion.Int64)
		n.ServerVersion = &v
	}
	n.ModifiedAt = modifiedAt.Int64
	n.CreatedAt = createdAt.Int64
	n.Tags = decodeTags(n.ID, tagsJSON)
	return &n, nil
}

// decodeTags parses the canonical JSON tag array. Invalid JSON reads as
// an empty list and is logged rather than failing the row.
func decodeTags(id, raw string) []string {
	if raw == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		log.Warn().Str("id", id).Msg("invalid tags JSON in cache, treating as empty")
		return []string{}
	}
	if tags == nil {
		return []string{}
	}
	return tags
}

// CanonicalTags normalizes a tag list: at most 100 tags, each 1-100
// bytes, empty entries dropped.
func CanonicalTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if len(t) < 1 || len(t) > 100 {
			continue
		}
		out = append(out, t)
		if len(out) == 100 {
			break
		}
	}
	return out
}

func encodeTags(tags []string) string {
	b, err := json.Marshal(CanonicalTags(tags))
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Get returns a note by id, or a NotFound error.
func (s *Store) Get(ctx context.Context, id string) (*Note, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, noteerr.NotFound(id)
	}
	if err != nil {
		return nil, noteerr.Db("read note", err)
	}
	return n, nil
}

// GetAtVersion returns the note only if its local_version matches.
func (s *Store) GetAtVersion(ctx context.Context, id string, localVersion int) (*Note, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.LocalVersion != localVersion {
		return nil, noteerr.NotFound(id)
	}
	return n, nil
}

// Count returns the number of cached notes.
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM notes`).Scan(&n); err != nil {
		return 0, noteerr.Db("count notes", err)
	}
	return n, nil
}

// UpsertLocal writes a locally originated mutation in a single
// transaction: local_version becomes (existing or 0) + 1 and the row is
// replaced with the given fields. The stored note is returned.
func (s *Store) UpsertLocal(ctx context.Context, n *Note) (*Note, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, noteerr.Db("begin write", err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx, `SELECT local_version FROM notes WHERE id = ?`, n.ID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return nil, noteerr.Db("read note version", err)
	}
	newLocal := existing + 1

	var serverVersion any
	if n.ServerVersion != nil {
		serverVersion = *n.ServerVersion
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (id, local_version, server_version, text, tags, modified_at, created_at, trash, sync_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			local_version  = excluded.local_version,
			server_version = excluded.server_version,
			text           = excluded.text,
			tags           = excluded.tags,
			modified_at    = excluded.modified_at,
			created_at     = excluded.created_at,
			trash          = excluded.trash,
			sync_deleted   = excluded.sync_deleted`,
		n.ID, newLocal, serverVersion, n.Text, encodeTags(n.Tags),
		n.ModifiedAt, n.CreatedAt, n.Trash, n.SyncDeleted)
	if err != nil {
		return nil, noteerr.Db("write note", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, noteerr.Db("commit write", err)
	}

	stored := *n
	stored.LocalVersion = newLocal
	stored.Tags = CanonicalTags(n.Tags)
	return &stored, nil
}

// ApplyRemotePage reconciles one page of remote changes and persists the
// cursor in the same transaction, so a crash never skips entries.
// Conflict policy is server-wins: an incoming revision strictly greater
// than the locally known server_version replaces local state; an equal
// revision is a no-op; a smaller one is anomalous, logged, and kept.
func (s *Store) ApplyRemotePage(ctx context.Context, changes []RemoteChange, cursor string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	db, err := s.handle()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return noteerr.Db("begin sync write", err)
	}
	defer tx.Rollback()

	for _, ch := range changes {
		if ch.Missing {
			if err := applyTombstone(ctx, tx, ch.ID); err != nil {
				return err
			}
			continue
		}
		if err := applyServerWins(ctx, tx, ch); err != nil {
			return err
		}
	}

	if cursor != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sync_meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			MetaBackendCursor, cursor); err != nil {
			return noteerr.Db("persist cursor", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return noteerr.Db("commit sync write", err)
	}
	return nil
}

func applyServerWins(ctx context.Context, tx *sql.Tx, ch RemoteChange) error {
	var localVersion int
	var serverVersion sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT local_version, server_version FROM notes WHERE id = ?`, ch.ID).
		Scan(&localVersion, &serverVersion)

	trash := ch.Deleted

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO notes (id, local_version, server_version, text, tags, modified_at, created_at, trash, sync_deleted)
			VALUES (?, 1, ?, ?, ?, ?, ?, ?, 0)`,
			ch.ID, ch.ServerVersion, ch.Text, encodeTags(ch.Tags),
			ch.ModifiedAt, ch.CreatedAt, trash)
		if err != nil {
			return noteerr.Db("insert remote note", err)
		}
		return nil

	case err != nil:
		return noteerr.Db("read note for reconciliation", err)

	case serverVersion.Valid && int(serverVersion.Int64) > ch.ServerVersion:
		log.Warn().Str("id", ch.ID).
			Int64("local_server_version", serverVersion.Int64).
			Int("incoming", ch.ServerVersion).
			Msg("local server_version ahead of remote, keeping local")
		return nil

	case serverVersion.Valid && int(serverVersion.Int64) == ch.ServerVersion:
		return nil

	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE notes SET
				local_version  = local_version + 1,
				server_version = ?,
				text           = ?,
				tags           = ?,
				modified_at    = ?,
				created_at     = ?,
				trash          = ?,
				sync_deleted   = 0
			WHERE id = ?`,
			ch.ServerVersion, ch.Text, encodeTags(ch.Tags),
			ch.ModifiedAt, ch.CreatedAt, trash, ch.ID)
		if err != nil {
			return noteerr.Db("apply remote note", err)
		}
		return nil
	}
}

// applyTombstone marks a note observed as hard-gone on the server.
func applyTombstone(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE notes SET
			trash         = 1,
			sync_deleted  = 1,
			local_version = local_version + 1
		WHERE id = ?`, id)
	if err != nil {
		return noteerr.Db("mark tombstone", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Info().Str("id", id).Msg("note no longer retrievable remotely, marked as tombstone")
	}
	return nil
}

// DeletePermanently removes the row locally; the FTS delete trigger
// keeps the shadow table in step.
func (s *Store) DeletePermanently(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	db, err := s.handle()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return noteerr.Db("delete note", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return noteerr.NotFound(id)
	}
	return nil
}

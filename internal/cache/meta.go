package cache

import (
	"context"
	"database/sql"
	"os"

	"github.com/erauner12/notebridge/internal/noteerr"
)

// Meta reads a sync metadata value; missing keys return "".
func (s *Store) Meta(ctx context.Context, key string) (string, error) {
	db, err := s.handle()
	if err != nil {
		return "", err
	}
	var value string
	err = db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", noteerr.Db("read sync metadata", err)
	}
	return value, nil
}

// SetMeta writes one sync metadata value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	db, err := s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO sync_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return noteerr.Db("write sync metadata", err)
	}
	return nil
}

// SetMetaBatch writes several metadata values in one transaction.
func (s *Store) SetMetaBatch(ctx context.Context, kv map[string]string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	db, err := s.handle()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return noteerr.Db("begin metadata write", err)
	}
	defer tx.Rollback()

	for k, v := range kv {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sync_meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return noteerr.Db("write sync metadata", err)
		}
	}
	return tx.Commit()
}

// Stats summarizes the store for the get_stats management action.
type Stats struct {
	FileSizeBytes int64 `json:"cache_file_size_bytes"`
	TotalNotes    int   `json:"total_notes"`
	SchemaVersion int   `json:"schema_version"`
}

// Stats returns cache-level statistics.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{SchemaVersion: SchemaVersion}

	if info, err := os.Stat(s.path); err == nil {
		st.FileSizeBytes = info.Size()
	}

	total, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	st.TotalNotes = total
	return st, nil
}

// FTSCount returns the FTS shadow table row count; used by integrity
// tests to confirm the triggers keep it equal to the notes count.
func (s *Store) FTSCount(ctx context.Context) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM notes_fts`).Scan(&n); err != nil {
		return 0, noteerr.Db("count fts rows", err)
	}
	return n, nil
}

package cache

// SchemaVersion is the compiled-in schema version, persisted in the
// store's user_version pragma. Any mismatch on open resets the cache
// and forces a full resync; there is no in-place migration.
const SchemaVersion = 2

const schemaDDL = `
CREATE TABLE IF NOT EXISTS notes (
    id             TEXT PRIMARY KEY,
    local_version  INTEGER NOT NULL DEFAULT 1 CHECK (local_version >= 1),
    server_version INTEGER,
    text           TEXT NOT NULL DEFAULT '',
    tags           TEXT NOT NULL DEFAULT '[]',
    modified_at    INTEGER,
    created_at     INTEGER,
    trash          INTEGER NOT NULL DEFAULT 0,
    sync_deleted   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_notes_modified_at ON notes(modified_at);
CREATE INDEX IF NOT EXISTS idx_notes_trash ON notes(trash);

CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
    text,
    tags,
    content='notes',
    content_rowid='rowid',
    tokenize='porter unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS notes_fts_ai AFTER INSERT ON notes BEGIN
    INSERT INTO notes_fts(rowid, text, tags) VALUES (new.rowid, new.text, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS notes_fts_ad AFTER DELETE ON notes BEGIN
    INSERT INTO notes_fts(notes_fts, rowid, text, tags) VALUES ('delete', old.rowid, old.text, old.tags);
END;

CREATE TRIGGER IF NOT EXISTS notes_fts_au AFTER UPDATE ON notes BEGIN
    INSERT INTO notes_fts(notes_fts, rowid, text, tags) VALUES ('delete', old.rowid, old.text, old.tags);
    INSERT INTO notes_fts(rowid, text, tags) VALUES (new.rowid, new.text, new.tags);
END;

CREATE TABLE IF NOT EXISTS sync_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Well-known sync_meta keys.
const (
	MetaOwnerIdentityHash  = "owner_identity_hash"
	MetaDBKeySaltHex       = "db_key_salt_hex"
	MetaBackendCursor      = "backend_cursor"
	MetaLastSyncAttemptAt  = "last_sync_attempt_at"
	MetaLastSuccessfulSync = "last_successful_sync_at"
	MetaLastSyncDurationMs = "last_sync_duration_ms"
	MetaLastSyncStatus     = "last_sync_status"
	MetaSyncErrorCount     = "sync_error_count"
)

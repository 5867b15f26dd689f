// Package cache implements the local note store: a SQLite file with an
// FTS5 shadow index, schema versioning, and an owner-binding integrity
// check. All mutation paths are serialized through a single write mutex;
// readers run against WAL snapshots.
package cache

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
	_ "modernc.org/sqlite"

	"github.com/erauner12/notebridge/internal/noteerr"
)

// AppSalt binds owner-identity hashes to this application. The shipped
// value is a placeholder; deployments substitute a real secret via
// -ldflags before first run.
var AppSalt = "notebridge-owner-salt-placeholder"

// Options configures how the store is opened.
type Options struct {
	Username      string
	EncryptionKey string // empty disables keying
	KDFIterations int
}

// Store is the cache handle. One writer at a time; see the write mutex.
type Store struct {
	path string
	opts Options

	// mu guards the db handle and the resync flag. Reset closes and
	// nils the handle, so every access goes through handle() or holds
	// mu; writeMu serializes logical writes on top of that.
	mu sync.RWMutex
	db *sql.DB

	writeMu sync.Mutex

	fullResyncRequired bool
	pendingSaltHex     string
}

// handle returns the live db handle, or a Db error while the store is
// closed or mid-reset.
func (s *Store) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, noteerr.Db("cache is not open", nil)
	}
	return s.db, nil
}

func (s *Store) setDB(db *sql.DB) {
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
}

// DefaultPath derives the stable per-owner cache file path.
func DefaultPath(username string) (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", noteerr.Db("cannot determine cache directory", err)
	}
	sum := sha256.Sum256([]byte(username))
	name := fmt.Sprintf("notes-%s.db", hex.EncodeToString(sum[:8]))
	return filepath.Join(base, "notebridge", name), nil
}

// OwnerIdentityHash is SHA-256(username || AppSalt), hex-encoded.
func OwnerIdentityHash(username string) string {
	sum := sha256.Sum256([]byte(username + AppSalt))
	return hex.EncodeToString(sum[:])
}

// Open opens or creates the cache at path, running the full startup
// sequence: keying, probe, integrity check, schema-version check, owner
// binding, pragmas. Any failed check resets the cache file and flags a
// full resync.
func Open(path string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, noteerr.Db("cannot create cache directory", err)
	}

	s := &Store{path: path, opts: opts}
	if err := s.open(); err != nil {
		// One reset-and-retry before giving up; a second failure is
		// fatal for the process.
		log.Warn().Err(err).Str("path", path).Msg("cache open failed, resetting")
		if rerr := s.reset(); rerr != nil {
			return nil, rerr
		}
		if err := s.open(); err != nil {
			return nil, noteerr.Db("cannot open cache after reset", err)
		}
	}
	return s, nil
}

func (s *Store) open() error {
	db, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return noteerr.Db("open cache file", err)
	}
	// The write mutex is the real writer serialization; a single
	// connection keeps pragma state consistent across the pool.
	db.SetMaxOpenConns(1)
	s.setDB(db)

	if s.opts.EncryptionKey != "" {
		if err := s.applyKeying(); err != nil {
			return err
		}
	}

	// Probe. A keyed open against a foreign or corrupt file fails here
	// with a "file is not a database" signal.
	var probe int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master`).Scan(&probe); err != nil {
		if isNotADatabase(err) {
			db.Close()
			if rerr := s.reset(); rerr != nil {
				return rerr
			}
			return s.open()
		}
		return noteerr.Db("cache probe failed", err)
	}

	var integrity string
	if err := db.QueryRow(`PRAGMA integrity_check`).Scan(&integrity); err != nil || integrity != "ok" {
		return noteerr.Db(fmt.Sprintf("integrity check failed: %s", integrity), err)
	}

	var userVersion int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&userVersion); err != nil {
		return noteerr.Db("read schema version", err)
	}

	hasTables := s.tableExists("notes")

	switch {
	case userVersion == 0 && hasTables:
		return noteerr.Db("schema version pragma missing on populated cache", nil)
	case userVersion != 0 && userVersion != SchemaVersion:
		return noteerr.Db(fmt.Sprintf("schema version %d incompatible with %d", userVersion, SchemaVersion), nil)
	}

	currentOwner := OwnerIdentityHash(s.opts.Username)
	if hasTables {
		stored, err := s.metaRaw(MetaOwnerIdentityHash)
		if err != nil {
			return err
		}
		if stored == "" {
			return noteerr.Db("owner identity missing on populated cache", nil)
		}
		if stored != currentOwner {
			return noteerr.Db("cache belongs to a different account", nil)
		}
	}

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=NORMAL`,
		`PRAGMA foreign_keys=ON`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			return noteerr.Db("apply pragma", err)
		}
	}

	if !hasTables {
		if err := s.createSchema(currentOwner); err != nil {
			return err
		}
		s.setFullResync(true)
	}
	return nil
}

// applyKeying derives the store key with PBKDF2-SHA256 and applies it.
// The salt is generated once per store and persisted in sync_meta.
func (s *Store) applyKeying() error {
	saltHex, _ := s.metaRaw(MetaDBKeySaltHex)
	var salt []byte
	if saltHex != "" {
		var err error
		salt, err = hex.DecodeString(saltHex)
		if err != nil || len(salt) != 16 {
			return noteerr.Db("stored key salt is malformed", err)
		}
	} else {
		salt = make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return noteerr.Db("generate key salt", err)
		}
	}

	key := pbkdf2.Key([]byte(s.opts.EncryptionKey), salt, s.opts.KDFIterations, 32, sha256.New)
	if _, err := s.db.Exec(fmt.Sprintf(`PRAGMA key = "x'%s'"`, hex.EncodeToString(key))); err != nil {
		return noteerr.Db("apply store key", err)
	}

	if saltHex == "" {
		// Persisted during schema creation for brand-new stores.
		s.pendingSaltHex = hex.EncodeToString(salt)
	}
	return nil
}

// createSchema runs all DDL in one transaction and seeds metadata. On
// failure the file is deleted and the DDL re-run once (every statement
// carries IF NOT EXISTS semantics).
func (s *Store) createSchema(ownerHash string) error {
	run := func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(schemaDDL); err != nil {
			return err
		}
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion)); err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO sync_meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			MetaOwnerIdentityHash, ownerHash); err != nil {
			return err
		}
		if s.pendingSaltHex != "" {
			if _, err := tx.Exec(
				`INSERT INTO sync_meta (key, value) VALUES (?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
				MetaDBKeySaltHex, s.pendingSaltHex); err != nil {
				return err
			}
		}
		return tx.Commit()
	}

	if err := run(); err != nil {
		log.Warn().Err(err).Msg("schema creation failed, recreating cache file")
		s.db.Close()
		removeStoreFiles(s.path)
		if oerr := s.reopenRaw(); oerr != nil {
			return oerr
		}
		if err := run(); err != nil {
			return noteerr.Db("schema creation failed after retry", err)
		}
	}
	return nil
}

func (s *Store) reopenRaw() error {
	db, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return noteerr.Db("reopen cache file", err)
	}
	db.SetMaxOpenConns(1)
	s.setDB(db)
	if s.opts.EncryptionKey != "" {
		return s.applyKeying()
	}
	return nil
}

// reset closes the handle and deletes the main, WAL, and SHM files.
func (s *Store) reset() error {
	s.mu.Lock()
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	s.fullResyncRequired = true
	s.mu.Unlock()

	removeStoreFiles(s.path)
	return nil
}

// Reset implements the reset_cache management action: the store is
// closed and its files removed; the next Open recreates it.
func (s *Store) Reset() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	log.Info().Str("path", s.path).Msg("resetting cache")
	return s.reset()
}

// Reopen re-runs the open sequence after Reset.
func (s *Store) Reopen() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.RLock()
	open := s.db != nil
	s.mu.RUnlock()
	if open {
		return nil
	}
	return s.open()
}

// FullResyncRequired reports whether any reset occurred during open; the
// sync engine consumes this as "treat the cursor as absent".
func (s *Store) FullResyncRequired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fullResyncRequired
}

// ClearFullResync acknowledges the resync signal after the first full
// sync cycle completes.
func (s *Store) ClearFullResync() {
	s.setFullResync(false)
}

func (s *Store) setFullResync(v bool) {
	s.mu.Lock()
	s.fullResyncRequired = v
	s.mu.Unlock()
}

// Path returns the cache file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) tableExists(name string) bool {
	var n int
	err := s.db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	return err == nil && n > 0
}

// metaRaw reads a sync_meta value without requiring the table to exist.
func (s *Store) metaRaw(key string) (string, error) {
	if !s.tableExists("sync_meta") {
		return "", nil
	}
	var value string
	err := s.db.QueryRow(`SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", noteerr.Db("read sync metadata", err)
	}
	return value, nil
}

func isNotADatabase(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "file is not a database") || strings.Contains(msg, "file is encrypted")
}

func removeStoreFiles(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", p).Msg("could not remove cache file")
		}
	}
}

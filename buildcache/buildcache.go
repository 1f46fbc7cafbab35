// Package buildcache indexes plugins built from generated chunk source so
// that a batch whose source was built before, in this process or an earlier
// one, is loaded instead of rebuilt.
package buildcache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// ErrNotFound means no plugin is recorded for a source hash.
var ErrNotFound = errors.New("build not found")

// Entry is one recorded plugin build.
type Entry struct {
	Hash      string // hex SHA-256 of the plugin source
	Path      string // location of the built .so
	Batch     string // generation batch id
	Chunks    int
	GoVersion string
	Created   time.Time
}

// Cache is a SQLite-backed build index.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the index at dbPath.
func Open(dbPath string) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Several processes may share one index.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS builds (
		hash       TEXT PRIMARY KEY,
		path       TEXT NOT NULL,
		batch      TEXT NOT NULL,
		chunks     INTEGER NOT NULL,
		go_version TEXT NOT NULL,
		created    INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Cache{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Put records a build, replacing any earlier entry for the same hash.
func (c *Cache) Put(e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.Created.IsZero() {
		e.Created = time.Now()
	}
	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO builds (hash, path, batch, chunks, go_version, created) VALUES (?, ?, ?, ?, ?, ?)",
		e.Hash, e.Path, e.Batch, e.Chunks, e.GoVersion, e.Created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving build: %w", err)
	}
	return nil
}

// Get returns the build recorded for hash and goVersion. An entry whose
// plugin file disappeared is removed and reported as not found.
func (c *Cache) Get(hash, goVersion string) (Entry, error) {
	e := Entry{Hash: hash}
	var created int64
	err := c.db.QueryRow(
		"SELECT path, batch, chunks, go_version, created FROM builds WHERE hash = ?", hash,
	).Scan(&e.Path, &e.Batch, &e.Chunks, &e.GoVersion, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("querying build: %w", err)
	}
	e.Created = time.Unix(0, created)

	if e.GoVersion != goVersion {
		return Entry{}, ErrNotFound
	}
	if _, err := os.Stat(e.Path); err != nil {
		if err := c.Delete(hash); err != nil {
			return Entry{}, err
		}
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Delete removes the entry for hash.
func (c *Cache) Delete(hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM builds WHERE hash = ?", hash); err != nil {
		return fmt.Errorf("deleting build: %w", err)
	}
	return nil
}

// List returns every entry, newest first.
func (c *Cache) List() ([]Entry, error) {
	rows, err := c.db.Query(
		"SELECT hash, path, batch, chunks, go_version, created FROM builds ORDER BY created DESC, hash",
	)
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Hash, &e.Path, &e.Batch, &e.Chunks, &e.GoVersion, &created); err != nil {
			return nil, fmt.Errorf("scanning build: %w", err)
		}
		e.Created = time.Unix(0, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune removes entries created before cutoff and returns how many were
// dropped. Plugin files are left alone; a loaded plugin cannot be unloaded.
func (c *Cache) Prune(cutoff time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec("DELETE FROM builds WHERE created < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("pruning builds: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
